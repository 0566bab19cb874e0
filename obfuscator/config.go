package obfuscator

import "strings"

// Config is the explicit option set for one pipeline invocation. It is
// passed once and never mutated mid-run.
type Config struct {
	RenameSymbols        bool
	EncryptStrings       bool
	StripMetadata        bool
	ObfuscateControlFlow bool
	AntiDecompiler       bool
	RemoveComments       bool
	NormalizeWhitespace  bool

	// Seed fixes the name generator; nil draws a random seed, so two
	// runs with the same non-nil seed and the same input order produce
	// byte-identical output.
	Seed *int64
	// Deterministic switches the generator to content-hash names.
	Deterministic bool

	// EncryptionKey overrides the fixed default XOR key.
	EncryptionKey []byte

	// ExcludeTypePatterns and ExcludeMemberPatterns are wildcard
	// patterns; matching symbols keep their original names.
	ExcludeTypePatterns   []string
	ExcludeMemberPatterns []string

	// PreserveTags lists the marker tags that force name preservation.
	PreserveTags []Tag

	// PreserveContracts lists interface-name substrings; members
	// implementing a matching interface keep their names.
	PreserveContracts []string

	// PreserveBaseTypes lists type names whose descendants are always
	// preserved in full.
	PreserveBaseTypes []string
}

// DefaultConfig returns the full-strength option set.
func DefaultConfig() Config {
	return Config{
		RenameSymbols:       true,
		EncryptStrings:      true,
		StripMetadata:       true,
		RemoveComments:      true,
		NormalizeWhitespace: true,
		PreserveTags:        []Tag{TagPreserveName},
	}
}

// preservesTag reports whether the tag is configured to force name
// preservation. An empty list falls back to the default preserve tag.
func (c *Config) preservesTag(tags TagSet) bool {
	if len(tags) == 0 {
		return false
	}
	if len(c.PreserveTags) == 0 {
		return tags.Has(TagPreserveName)
	}
	for _, t := range c.PreserveTags {
		if tags.Has(t) {
			return true
		}
	}
	return false
}

// enabled reports whether any pass would run at all.
func (c *Config) enabled() bool {
	return c.RenameSymbols || c.EncryptStrings || c.StripMetadata ||
		c.ObfuscateControlFlow || c.AntiDecompiler ||
		c.RemoveComments || c.NormalizeWhitespace
}

// matchPattern matches a symbol name against one wildcard pattern.
// Supported forms: "*", "prefix*", "*suffix", "*middle*", and a literal
// name with no wildcard.
func matchPattern(pattern, name string) bool {
	switch {
	case pattern == "":
		return false
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(name, pattern[1:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	default:
		return name == pattern
	}
}

// matchAny matches a name against a pattern list.
func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if matchPattern(p, name) {
			return true
		}
	}
	return false
}
