package obfuscator

import "fmt"

// OpaquePredicates is the built-in anti-decompiler transform: it injects
// an always-true predicate block at the entry of every method body not
// exempted by a no-control-flow flag. The block is side-effect free, so
// runtime behavior is unchanged while decompiled control flow gains
// spurious branches.
type OpaquePredicates struct{}

// Name implements Transform.
func (OpaquePredicates) Name() string { return "opaque-predicates" }

// Apply implements Transform.
func (OpaquePredicates) Apply(model *Model, pres *PreservationResult, ctx *Context) error {
	for _, unit := range model.Units {
		out := make([]Token, 0, len(unit.Tokens))
		changed := false
		for _, tok := range unit.Tokens {
			out = append(out, tok)
			if !tok.hasFlag(FlagBodyStart) {
				continue
			}
			if tok.Method != "" && pres.NoControlFlow(tok.Method) {
				continue
			}
			local, err := ctx.Gen.Next(KindLocal, "junk")
			if err != nil {
				return fmt.Errorf("opaque predicates: %w", err)
			}
			out = append(out, junkBlock(local, tok.Method)...)
			changed = true
			ctx.Stats.JunkBlocksInjected++
		}
		if changed {
			unit.Tokens = out
		}
	}
	return nil
}

// junkBlock builds the injected statements:
//
//	v := 13
//	if v*v < 0 {
//		v--
//	}
//	_ = v
//
// The predicate can never hold, so the branch body is dead weight for a
// decompiler and a no-op at runtime. The block ends with a line break so
// a statement already sitting after the brace stays on its own line.
func junkBlock(local, method string) []Token {
	ident := func() Token { return Token{Kind: TokenIdent, Text: local, Method: method} }
	sp := func(s string) Token { return Token{Kind: TokenSpace, Text: s} }
	op := func(s string) Token { return Token{Kind: TokenOther, Text: s} }
	kw := func(s string) Token { return Token{Kind: TokenKeyword, Text: s} }

	return []Token{
		sp("\n\t"), ident(), sp(" "), op(":="), sp(" "), op("13"),
		sp("\n\t"), kw("if"), sp(" "), ident(), op("*"), ident(), sp(" "), op("<"), sp(" "), op("0"), sp(" "), op("{"),
		sp("\n\t"), ident(), op("--"),
		sp("\n\t"), op("}"),
		sp("\n\t"), op("_"), sp(" "), op("="), sp(" "), ident(), sp("\n"),
	}
}
