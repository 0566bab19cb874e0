package obfuscator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameGenerator_UniqueNames(t *testing.T) {
	seed := int64(42)
	g := NewNameGenerator(ModeSequential, &seed)

	seen := make(map[string]bool)
	kinds := []SymbolKind{KindType, KindMethod, KindField, KindProperty, KindEvent, KindParameter, KindLocal}
	for i := 0; i < 500; i++ {
		kind := kinds[i%len(kinds)]
		name, err := g.Next(kind, "orig")
		require.NoError(t, err)
		assert.False(t, seen[name], "duplicate name %q", name)
		assert.False(t, reservedWords[name], "reserved word %q issued", name)
		assert.True(t, g.Issued(name))
		seen[name] = true
	}
}

func TestNameGenerator_KindPrefixes(t *testing.T) {
	seed := int64(1)
	g := NewNameGenerator(ModeSequential, &seed)

	typeName, err := g.Next(KindType, "Widget")
	require.NoError(t, err)
	assert.Equal(t, "tz", typeName[:2])

	methodName, err := g.Next(KindMethod, "Run")
	require.NoError(t, err)
	assert.Equal(t, "fn", methodName[:2])

	localName, err := g.Next(KindLocal, "count")
	require.NoError(t, err)
	assert.Equal(t, "lv", localName[:2])
}

func TestNameGenerator_SeededSequenceReproducible(t *testing.T) {
	seed := int64(7)
	g1 := NewNameGenerator(ModeSequential, &seed)
	g2 := NewNameGenerator(ModeSequential, &seed)

	for i := 0; i < 50; i++ {
		n1, err := g1.Next(KindMethod, "m")
		require.NoError(t, err)
		n2, err := g2.Next(KindMethod, "m")
		require.NoError(t, err)
		assert.Equal(t, n1, n2)
	}
}

func TestNameGenerator_ResetRepeatsSequence(t *testing.T) {
	seed := int64(3)
	g := NewNameGenerator(ModeSequential, &seed)

	var first []string
	for i := 0; i < 10; i++ {
		n, err := g.Next(KindField, "f")
		require.NoError(t, err)
		first = append(first, n)
	}

	g.Reset()
	assert.False(t, g.Issued(first[0]))
	for i := 0; i < 10; i++ {
		n, err := g.Next(KindField, "f")
		require.NoError(t, err)
		assert.Equal(t, first[i], n)
	}
}

func TestNameGenerator_DeterministicModeStable(t *testing.T) {
	seed := int64(99)
	g1 := NewNameGenerator(ModeDeterministic, &seed)
	g2 := NewNameGenerator(ModeDeterministic, &seed)

	n1, err := g1.Next(KindType, "Helper")
	require.NoError(t, err)
	n2, err := g2.Next(KindType, "Helper")
	require.NoError(t, err)
	assert.Equal(t, n1, n2)

	// A different original hashes to a different name.
	other, err := g2.Next(KindType, "Widget")
	require.NoError(t, err)
	assert.NotEqual(t, n1, other)
}

func TestNameGenerator_DeterministicCollisionRetries(t *testing.T) {
	seed := int64(5)
	g := NewNameGenerator(ModeDeterministic, &seed)

	// The same original twice must still yield distinct names: the
	// second draw bumps the attempt counter.
	n1, err := g.Next(KindLocal, "x1")
	require.NoError(t, err)
	n2, err := g.Next(KindLocal, "x1")
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2)
}

func TestNameGenerator_RandomSeedWhenNil(t *testing.T) {
	g := NewNameGenerator(ModeSequential, nil)
	n, err := g.Next(KindLocal, "v")
	require.NoError(t, err)
	assert.NotEmpty(t, n)
}

func TestLooksGenerated(t *testing.T) {
	seed := int64(11)
	g := NewNameGenerator(ModeSequential, &seed)
	for _, kind := range []SymbolKind{KindType, KindMethod, KindLocal} {
		n, err := g.Next(kind, "orig")
		require.NoError(t, err)
		assert.True(t, LooksGenerated(n), "generated name %q not recognized", n)
	}

	// Ordinary words that merely start with a prefix stay renamable.
	for _, name := range []string{"price", "event", "fname", "field", "level", "main", "fn", "tz"} {
		assert.False(t, LooksGenerated(name), "ordinary name %q flagged as generated", name)
	}
}
