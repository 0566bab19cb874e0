package obfuscator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bodyStart(method string) Token {
	return Token{Kind: TokenOther, Text: "{", Method: method, Flags: FlagBodyStart}
}

func TestOpaquePredicates_InjectsAfterBodyStart(t *testing.T) {
	m := NewModel()
	m.AddSymbol(&Symbol{ID: "p.f", Kind: KindMethod, Name: "f", Visibility: Internal})
	m.Units = []*CompilationUnit{{
		Path: "a.go", Package: "p",
		Tokens: []Token{
			kw("func"), sp(" "), ident("f", "p.f", true), punc("("), punc(")"), sp(" "),
			bodyStart("p.f"), sp("\n"), punc("}"), sp("\n"),
		},
	}}
	seed := int64(1)
	ctx := NewContext(Config{AntiDecompiler: true, Seed: &seed}, nil)
	pres := Analyze(m, Config{}, ctx.Log)

	require.NoError(t, OpaquePredicates{}.Apply(m, pres, ctx))

	text := m.Units[0].Tokens
	assert.Equal(t, 1, ctx.Stats.JunkBlocksInjected)
	// The injected local immediately follows the opening brace.
	var afterBrace string
	for i, tok := range text {
		if tok.hasFlag(FlagBodyStart) {
			afterBrace = text[i+2].Text
			break
		}
	}
	assert.True(t, LooksGenerated(afterBrace), "injected local %q", afterBrace)
	assert.Contains(t, m.Units[0].Text(), ":= 13")
}

func TestOpaquePredicates_BlockEndsWithLineBreak(t *testing.T) {
	m := NewModel()
	m.AddSymbol(&Symbol{ID: "p.f", Kind: KindMethod, Name: "f", Visibility: Internal})
	m.Units = []*CompilationUnit{{
		Path: "a.go", Package: "p",
		Tokens: []Token{
			bodyStart("p.f"), sp(" "), kw("return"), sp(" "), punc("42"), sp(" "), punc("}"),
		},
	}}
	seed := int64(1)
	ctx := NewContext(Config{AntiDecompiler: true, Seed: &seed}, nil)
	pres := Analyze(m, Config{}, ctx.Log)

	require.NoError(t, OpaquePredicates{}.Apply(m, pres, ctx))

	// A statement that shared the line with the opening brace must end
	// up on its own line after the injected block.
	var local string
	for i, tok := range m.Units[0].Tokens {
		if tok.hasFlag(FlagBodyStart) {
			local = m.Units[0].Tokens[i+2].Text
			break
		}
	}
	require.NotEmpty(t, local)
	assert.Contains(t, m.Units[0].Text(), "_ = "+local+"\n return")
}

func TestOpaquePredicates_HonorsExemption(t *testing.T) {
	m := NewModel()
	m.AddSymbol(&Symbol{ID: "p.hot", Kind: KindMethod, Name: "hot", Visibility: Internal,
		Tags: TagSet{TagNoControlFlow: struct{}{}}})
	m.Units = []*CompilationUnit{{
		Path: "a.go", Package: "p",
		Tokens: []Token{bodyStart("p.hot"), sp("\n"), punc("}")},
	}}
	seed := int64(1)
	ctx := NewContext(Config{AntiDecompiler: true, Seed: &seed}, nil)
	pres := Analyze(m, Config{}, ctx.Log)

	before := m.Units[0].Text()
	require.NoError(t, OpaquePredicates{}.Apply(m, pres, ctx))

	assert.Equal(t, before, m.Units[0].Text())
	assert.Equal(t, 0, ctx.Stats.JunkBlocksInjected)
}

func TestOpaquePredicates_PredicateIsInert(t *testing.T) {
	m := NewModel()
	m.AddSymbol(&Symbol{ID: "p.f", Kind: KindMethod, Name: "f", Visibility: Internal})
	m.Units = []*CompilationUnit{{
		Path: "a.go", Package: "p",
		Tokens: []Token{bodyStart("p.f"), sp("\n"), punc("}")},
	}}
	seed := int64(1)
	ctx := NewContext(Config{AntiDecompiler: true, Seed: &seed}, nil)
	pres := Analyze(m, Config{}, ctx.Log)

	require.NoError(t, OpaquePredicates{}.Apply(m, pres, ctx))

	// The guard condition v*v < 0 can never hold for an integer.
	text := m.Units[0].Text()
	assert.True(t, strings.Contains(text, "< 0"))
	assert.True(t, strings.Contains(text, "_ ="))
}
