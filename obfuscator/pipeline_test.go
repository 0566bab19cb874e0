package obfuscator

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// programModel assembles a small two-unit program: a public type with a
// private method containing a string literal, and a second unit calling
// the method.
func programModel() *Model {
	m := graphModel(
		&Symbol{ID: "p.Widget", Kind: KindType, Name: "Widget", Visibility: Public},
		&Symbol{ID: "p.Widget::greet", Kind: KindMethod, Name: "greet", Declaring: "p.Widget", Visibility: Internal},
	)
	m.Units = []*CompilationUnit{
		{
			Path: "widget.go", Package: "p",
			Tokens: []Token{
				comment("// greet says hello", 0), sp("\n"),
				kw("func"), sp(" "), ident("greet", "p.Widget::greet", true), punc("("), punc(")"), sp(" "),
				Token{Kind: TokenOther, Text: "{", Method: "p.Widget::greet", Flags: FlagBodyStart},
				sp("\n\t"),
				Token{Kind: TokenIdent, Text: "println", Method: "p.Widget::greet"},
				punc("("),
				Token{Kind: TokenString, Text: strconv.Quote("Hello"), Value: "Hello", Method: "p.Widget::greet"},
				punc(")"),
				sp("\n"), punc("}"), sp("\n"),
			},
		},
		{
			Path: "caller.go", Package: "p",
			Tokens: []Token{
				kw("func"), sp(" "), ident("runAll", "", true), punc("("), punc(")"), sp(" "), punc("{"),
				sp("\n\t"), ident("greet", "p.Widget::greet", false), punc("("), punc(")"),
				sp("\n"), punc("}"), sp("\n"),
			},
		},
	}
	return m
}

func TestPipeline_NoPassesEnabledReturnsInputUnchanged(t *testing.T) {
	m := programModel()
	before := m.Units[0].Text()

	report, err := New(Config{}, nil).Process(m)
	require.NoError(t, err)

	assert.Equal(t, before, m.Units[0].Text())
	assert.Equal(t, 2, report.Stats.UnitsProcessed)
	assert.Equal(t, 0, report.Stats.Renamed())
	require.NotEmpty(t, report.Log)
}

func TestPipeline_DefaultConfigFullRun(t *testing.T) {
	m := programModel()
	seed := int64(42)
	cfg := DefaultConfig()
	cfg.Seed = &seed

	report, err := New(cfg, nil).Process(m)
	require.NoError(t, err)

	// greet was renamed consistently across both units.
	newName, ok := report.Names["p.Widget::greet"]
	require.True(t, ok)
	assert.Contains(t, m.Units[0].Text(), newName)
	assert.Contains(t, m.Units[1].Text(), newName)
	assert.NotContains(t, m.Units[1].Text(), "greet")

	// The literal is gone and the decoder unit was appended.
	assert.NotContains(t, m.Units[0].Text(), `"Hello"`)
	require.Len(t, m.Units, 3)
	assert.Equal(t, "obscura_decrypt.go", m.Units[2].Path)
	assert.Equal(t, "p", m.Units[2].Package)

	// Comments are gone.
	assert.NotContains(t, m.Units[0].Text(), "says hello")
	assert.Equal(t, 1, report.Stats.CommentsRemoved)
	assert.Equal(t, 1, report.Stats.StringsEncrypted)
}

func TestPipeline_SeededRunsByteIdentical(t *testing.T) {
	render := func() string {
		m := programModel()
		seed := int64(7)
		cfg := DefaultConfig()
		cfg.Seed = &seed
		_, err := New(cfg, nil).Process(m)
		require.NoError(t, err)
		var out string
		for _, u := range m.Units {
			out += u.Path + "\x00" + u.Text() + "\x00"
		}
		return out
	}

	assert.Equal(t, render(), render())
}

func TestPipeline_MalformedUnitAbortsBatch(t *testing.T) {
	m := programModel()
	m.Units = append(m.Units, &CompilationUnit{Path: ""})

	_, err := New(DefaultConfig(), nil).Process(m)
	require.ErrorIs(t, err, ErrMalformedUnit)
}

func TestPipeline_NilModelRejected(t *testing.T) {
	_, err := New(DefaultConfig(), nil).Process(nil)
	require.ErrorIs(t, err, ErrMalformedUnit)
}

func TestPipeline_ControlFlowWithoutTransformWarns(t *testing.T) {
	m := programModel()
	cfg := Config{ObfuscateControlFlow: true}

	report, err := New(cfg, nil).Process(m)
	require.NoError(t, err)

	warned := false
	for _, e := range report.Log {
		if e.Level == LevelWarn {
			warned = true
		}
	}
	assert.True(t, warned)
}

type recordingTransform struct {
	name    string
	applied *bool
}

func (r recordingTransform) Name() string { return r.name }
func (r recordingTransform) Apply(m *Model, pres *PreservationResult, ctx *Context) error {
	*r.applied = true
	return nil
}

func TestPipeline_RegisteredControlFlowRuns(t *testing.T) {
	m := programModel()
	applied := false
	p := New(Config{ObfuscateControlFlow: true}, nil)
	p.SetControlFlow(recordingTransform{name: "flattener", applied: &applied})

	_, err := p.Process(m)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestPipeline_AntiDecompilerInjectsJunk(t *testing.T) {
	m := programModel()
	seed := int64(3)
	cfg := Config{AntiDecompiler: true, Seed: &seed}

	report, err := New(cfg, nil).Process(m)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Stats.JunkBlocksInjected)
	assert.Contains(t, m.Units[0].Text(), ":= 13")
}

func TestPipeline_RenameOnlyLeavesLiteralsAndComments(t *testing.T) {
	m := programModel()
	seed := int64(5)
	cfg := Config{RenameSymbols: true, Seed: &seed}

	report, err := New(cfg, nil).Process(m)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Stats.Renamed())
	assert.Contains(t, m.Units[0].Text(), `"Hello"`)
	assert.Contains(t, m.Units[0].Text(), "says hello")
	assert.Len(t, m.Units, 2)
}
