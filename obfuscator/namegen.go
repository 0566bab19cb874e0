package obfuscator

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"hash/fnv"
	"math/big"
	mrand "math/rand"
	"strconv"
	"strings"
)

// ErrNamespaceExhausted is returned when the generator cannot produce a
// fresh name after bounded retries. It indicates a fatal configuration
// error, not a recoverable per-symbol condition.
var ErrNamespaceExhausted = errors.New("name space exhausted")

// Mode selects how generated names are derived.
type Mode int

const (
	// ModeSequential derives names from a per-kind monotonic counter
	// plus a small random suffix for entropy.
	ModeSequential Mode = iota
	// ModeDeterministic derives names from a content hash of the
	// original name, stable across runs with the same seed.
	ModeDeterministic
)

const (
	maxNameAttempts = 100
	suffixLen       = 2
	hashWidth       = 8
)

// kindPrefixes keeps generated names syntactically valid and visually
// distinct per symbol category. All prefixes are lower-case so a rename
// never widens a symbol's visibility in case-significant languages.
var kindPrefixes = map[SymbolKind]string{
	KindType:      "tz",
	KindMethod:    "fn",
	KindField:     "fd",
	KindProperty:  "pr",
	KindEvent:     "ev",
	KindParameter: "pm",
	KindLocal:     "lv",
}

// reservedWords are names the generator never issues and the renamer
// never rewrites, regardless of symbol kind.
var reservedWords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true,
	"continue": true, "default": true, "defer": true, "else": true,
	"fallthrough": true, "for": true, "func": true, "go": true,
	"goto": true, "if": true, "import": true, "interface": true,
	"map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true,
	"var": true,
	"error": true, "string": true, "int": true, "bool": true,
	"byte": true, "rune": true, "nil": true, "true": true,
	"false": true, "iota": true, "len": true, "cap": true,
	"make": true, "new": true, "append": true, "copy": true,
	"delete": true, "panic": true, "recover": true, "close": true,
	"min": true, "max": true, "clear": true, "print": true,
	"println": true,
}

// NameGenerator issues unique obfuscated identifiers per symbol kind.
// It tracks every name it has issued since the last Reset; callers must
// Reset only between independent runs, never mid-run.
type NameGenerator struct {
	mode     Mode
	seed     int64
	rng      *mrand.Rand
	counters map[SymbolKind]int
	used     map[string]bool
}

// NewNameGenerator creates a generator. A nil seed draws one at random;
// a fixed seed reproduces the exact name sequence for the same inputs.
func NewNameGenerator(mode Mode, seed *int64) *NameGenerator {
	var s int64
	if seed != nil {
		s = *seed
	} else {
		n, err := crand.Int(crand.Reader, big.NewInt(1<<62))
		if err == nil {
			s = n.Int64()
		}
	}
	g := &NameGenerator{mode: mode, seed: s}
	g.Reset()
	return g
}

// Reset clears used-name tracking and the counters. Resetting while a
// run's name map still references issued names breaks its injectivity
// invariant, so it is only valid between independent runs.
func (g *NameGenerator) Reset() {
	g.rng = mrand.New(mrand.NewSource(g.seed))
	g.counters = make(map[SymbolKind]int)
	g.used = make(map[string]bool)
}

// Next returns a fresh identifier for the given kind. The original name
// feeds the deterministic mode and is ignored by the sequential mode.
func (g *NameGenerator) Next(kind SymbolKind, original string) (string, error) {
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		var name string
		switch g.mode {
		case ModeDeterministic:
			name = g.hashedName(kind, original, attempt)
		default:
			name = g.sequentialName(kind)
		}
		if reservedWords[name] || g.used[name] {
			continue
		}
		g.used[name] = true
		return name, nil
	}
	return "", fmt.Errorf("%w: kind %s after %d attempts", ErrNamespaceExhausted, kind, maxNameAttempts)
}

// Issued reports whether the generator has handed out the name since the
// last Reset.
func (g *NameGenerator) Issued(name string) bool { return g.used[name] }

func (g *NameGenerator) sequentialName(kind SymbolKind) string {
	g.counters[kind]++
	return kindPrefixes[kind] + strconv.FormatInt(int64(g.counters[kind]), 36) + g.suffix()
}

func (g *NameGenerator) hashedName(kind SymbolKind, original string, attempt int) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%s|%d", g.seed, kind, original, attempt)
	digest := strconv.FormatUint(h.Sum64(), 36)
	if len(digest) > hashWidth {
		digest = digest[:hashWidth]
	}
	return kindPrefixes[kind] + digest
}

func (g *NameGenerator) suffix() string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, suffixLen)
	for i := range b {
		b[i] = charset[g.rng.Intn(len(charset))]
	}
	return string(b)
}

// LooksGenerated reports whether a name already carries a generator
// prefix followed by counter/hash characters. Such names signal
// intentionally pre-obfuscated input and are left untouched.
func LooksGenerated(name string) bool {
	for _, prefix := range kindPrefixes {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || len(rest) < 3 {
			continue
		}
		valid := true
		hasDigit := false
		for _, r := range rest {
			if r >= '0' && r <= '9' {
				hasDigit = true
				continue
			}
			if r < 'a' || r > 'z' {
				valid = false
				break
			}
		}
		// A digit requirement keeps ordinary words with a coincidental
		// prefix ("price", "event") renamable.
		if valid && hasDigit {
			return true
		}
	}
	return false
}
