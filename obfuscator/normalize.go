package obfuscator

import "strings"

// StripComments removes every comment token from the unit except
// compiler directives. When a removed comment was the only separation
// between two word-like tokens, a single space is kept so the tokens do
// not merge.
func StripComments(unit *CompilationUnit, stats *Statistics) {
	out := make([]Token, 0, len(unit.Tokens))
	removed := 0
	for i, tok := range unit.Tokens {
		if tok.Kind != TokenComment || tok.hasFlag(FlagDirective) {
			out = append(out, tok)
			continue
		}
		removed++
		if needsSeparator(out, unit.Tokens[i+1:]) {
			out = append(out, Token{Kind: TokenSpace, Text: " "})
		}
	}
	if removed > 0 {
		unit.Tokens = out
		if stats != nil {
			stats.CommentsRemoved += removed
		}
	}
}

// needsSeparator reports whether dropping a comment would leave the last
// emitted token and the next surviving token as adjacent word-like
// tokens, which would merge them into one.
func needsSeparator(emitted []Token, rest []Token) bool {
	if len(emitted) == 0 || !emitted[len(emitted)-1].wordLike() {
		return false
	}
	for _, next := range rest {
		switch next.Kind {
		case TokenComment:
			continue
		case TokenSpace:
			return false
		default:
			return next.wordLike()
		}
	}
	return false
}

// StripMetadata removes marker-attribute tokens from the unit and counts
// them; the tags were consumed during analysis and carry no runtime
// meaning.
func StripMetadata(unit *CompilationUnit, stats *Statistics) {
	out := make([]Token, 0, len(unit.Tokens))
	stripped := 0
	for _, tok := range unit.Tokens {
		if tok.hasFlag(FlagAttribute) {
			stripped++
			continue
		}
		out = append(out, tok)
	}
	if stripped > 0 {
		unit.Tokens = out
		if stats != nil {
			stats.AttributesStripped += stripped
		}
	}
}

// NormalizeWhitespace rewrites whitespace trivia in place: runs of blank
// lines collapse to at most one, and horizontal runs (tabs or multiple
// spaces) collapse to a single space. Single-space and empty trivia are
// left untouched, so the pass is idempotent.
func NormalizeWhitespace(unit *CompilationUnit) {
	for i := range unit.Tokens {
		tok := &unit.Tokens[i]
		if tok.Kind != TokenSpace {
			continue
		}
		tok.Text = normalizeTrivia(tok.Text)
	}
	// Adjacent whitespace tokens can appear after comment removal;
	// merge them so the collapse rules see the full run.
	out := unit.Tokens[:0]
	for _, tok := range unit.Tokens {
		if tok.Kind == TokenSpace && len(out) > 0 && out[len(out)-1].Kind == TokenSpace {
			out[len(out)-1].Text = normalizeTrivia(out[len(out)-1].Text + tok.Text)
			continue
		}
		out = append(out, tok)
	}
	unit.Tokens = out
}

// Normalize applies comment removal followed by whitespace collapse,
// the full ancillary pass of the pipeline.
func Normalize(unit *CompilationUnit, stats *Statistics) {
	StripComments(unit, stats)
	NormalizeWhitespace(unit)
}

// normalizeTrivia canonicalizes one whitespace run. Newline count is
// capped at two (one line terminator plus at most one blank line);
// horizontal segments become a single space.
func normalizeTrivia(text string) string {
	newlines := strings.Count(text, "\n")
	if newlines > 2 {
		newlines = 2
	}
	if newlines > 0 {
		// Trailing indentation after the last newline collapses to a
		// single space, or nothing if there was none.
		trailing := text[strings.LastIndexByte(text, '\n')+1:]
		result := strings.Repeat("\n", newlines)
		if trailing != "" {
			result += " "
		}
		return result
	}
	if text == "" || text == " " {
		return text
	}
	return " "
}
