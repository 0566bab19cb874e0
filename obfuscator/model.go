// Package obfuscator implements a whole-program symbol obfuscation
// pipeline over a language-neutral program model: preservation analysis,
// batch-consistent symbol renaming, string literal encryption with an
// injected decoder, and comment/whitespace normalization.
//
// A frontend (see the golang package) builds the model; the pipeline
// transforms it in memory and hands it back behaviorally unchanged.
package obfuscator

// SymbolKind classifies a named declaration in the program model.
type SymbolKind int

const (
	KindType SymbolKind = iota
	KindMethod
	KindField
	KindProperty
	KindEvent
	KindParameter
	KindLocal
)

var kindNames = [...]string{"type", "method", "field", "property", "event", "parameter", "local"}

func (k SymbolKind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Visibility is the declared access level of a symbol.
type Visibility int

const (
	Private Visibility = iota
	Internal
	Protected
	Public
)

// Tag is a marker annotation attached to a symbol at parse time.
// Tags are checked by set membership, never by runtime inspection.
type Tag string

const (
	// TagPreserveName forbids renaming the carrying symbol.
	TagPreserveName Tag = "preserve"
	// TagNoStringEncryption exempts a method's literals from encryption.
	TagNoStringEncryption Tag = "nostrenc"
	// TagNoControlFlow exempts a method from control-flow transforms.
	TagNoControlFlow Tag = "nocflow"
)

// TagSet is the set of marker tags on one symbol.
type TagSet map[Tag]struct{}

func (s TagSet) Has(t Tag) bool {
	_, ok := s[t]
	return ok
}

// Add returns the set with t included, allocating on first use.
func (s TagSet) Add(t Tag) TagSet {
	if s == nil {
		s = make(TagSet)
	}
	s[t] = struct{}{}
	return s
}

// Symbol is one node in the program's declaration graph. Identity is
// assigned when the model is built and is immutable for the run.
type Symbol struct {
	// ID is the stable identity key, e.g. "Declaring::Name#sig" for
	// methods. Frontends choose the format; the pipeline only requires
	// uniqueness and stability for a given input.
	ID   string
	Kind SymbolKind
	Name string

	// Declaring is the identity of the enclosing type or method, or ""
	// for a top-level symbol.
	Declaring  string
	Visibility Visibility

	// BaseType names the direct base type (types only; "" for roots).
	// Interfaces lists implemented interface names (types only).
	BaseType   string
	Interfaces []string

	Tags TagSet

	// Contract markers. Overriding, abstract, and virtual members may be
	// bound externally and can never be proven private to the batch.
	Override bool
	Abstract bool
	Virtual  bool

	// Constructor marks symbols reachable through dynamic construction
	// paths; these are preserved unconditionally.
	Constructor bool

	// Synthesized marks compiler-generated symbols. BackingFor names the
	// member identity a synthesized backing symbol belongs to.
	Synthesized bool
	BackingFor  string
}

// TokenKind classifies one token of a compilation unit.
type TokenKind int

const (
	// TokenIdent is an identifier, optionally bound to a symbol identity.
	TokenIdent TokenKind = iota
	// TokenKeyword is a reserved word of the source language.
	TokenKeyword
	// TokenString is a string literal; Value holds the decoded text.
	TokenString
	// TokenOther covers operators, punctuation, and non-string literals.
	TokenOther
	// TokenComment is comment trivia of any form.
	TokenComment
	// TokenSpace is a whitespace run, possibly spanning line breaks.
	TokenSpace
)

// TokenFlags carries positional facts a pass cannot recover on its own.
type TokenFlags uint8

const (
	// FlagAttributeArg marks a literal inside an attribute/annotation
	// argument; such literals are never encrypted.
	FlagAttributeArg TokenFlags = 1 << iota
	// FlagInterpolated marks a literal segment of an interpolated or
	// composed string.
	FlagInterpolated
	// FlagNameOf marks the argument of a compile-time name-of operation.
	FlagNameOf
	// FlagBodyStart marks the opening brace of a method body that
	// transforms may inject statements into.
	FlagBodyStart
	// FlagAttribute marks a token that is itself part of a marker
	// attribute and may be stripped by the metadata pass.
	FlagAttribute
	// FlagDirective marks a comment the compiler or build system reads;
	// such comments survive comment removal.
	FlagDirective
	// FlagConstant marks a literal in a constant context. A decode call
	// is not a constant expression, so such literals are never encrypted.
	FlagConstant
)

// Token is one lexical element of a compilation unit. Text is the exact
// source text; rewrites replace Text and leave position-order intact, so
// rendering a unit is the concatenation of its token texts.
type Token struct {
	Kind  TokenKind
	Text  string
	Value string // decoded literal value (TokenString only)

	// Symbol is the identity the token resolves to ("" if unbound);
	// Decl distinguishes the declaration site from reference sites.
	Symbol string
	Decl   bool

	// Method is the identity of the enclosing method, if any.
	Method string

	Flags TokenFlags
}

func (t Token) hasFlag(f TokenFlags) bool { return t.Flags&f != 0 }

// wordLike reports whether the token must not become adjacent to another
// word-like token without intervening trivia.
func (t Token) wordLike() bool {
	switch t.Kind {
	case TokenIdent, TokenKeyword:
		return true
	}
	return false
}

// CompilationUnit is one source unit of the batch: an identifying path,
// the package it belongs to, and its token stream.
type CompilationUnit struct {
	Path    string
	Package string
	Tokens  []Token
}

// Text renders the unit back to source text.
func (u *CompilationUnit) Text() string {
	n := 0
	for i := range u.Tokens {
		n += len(u.Tokens[i].Text)
	}
	b := make([]byte, 0, n)
	for i := range u.Tokens {
		b = append(b, u.Tokens[i].Text...)
	}
	return string(b)
}

// Model is the whole-program input to one pipeline invocation: the
// ordered batch of compilation units plus the symbol graph they share.
type Model struct {
	Units   []*CompilationUnit
	Symbols map[string]*Symbol

	typeByName map[string]string // type name -> identity, built lazily
}

// NewModel creates an empty program model.
func NewModel() *Model {
	return &Model{Symbols: make(map[string]*Symbol)}
}

// AddSymbol registers a symbol under its identity.
func (m *Model) AddSymbol(sym *Symbol) {
	if m.Symbols == nil {
		m.Symbols = make(map[string]*Symbol)
	}
	m.Symbols[sym.ID] = sym
	if sym.Kind == KindType {
		m.typeByName = nil
	}
}

// Symbol returns the symbol with the given identity, or nil.
func (m *Model) Symbol(id string) *Symbol {
	return m.Symbols[id]
}

// TypeByName resolves a type name to its symbol. Returns nil when the
// name refers to a type outside the model (external reference).
func (m *Model) TypeByName(name string) *Symbol {
	if m.typeByName == nil {
		m.typeByName = make(map[string]string)
		for id, sym := range m.Symbols {
			if sym.Kind == KindType {
				m.typeByName[sym.Name] = id
			}
		}
	}
	if id, ok := m.typeByName[name]; ok {
		return m.Symbols[id]
	}
	return nil
}

// MembersOf returns the symbols declared directly under the given
// identity, in no particular order.
func (m *Model) MembersOf(id string) []*Symbol {
	var out []*Symbol
	for _, sym := range m.Symbols {
		if sym.Declaring == id {
			out = append(out, sym)
		}
	}
	return out
}
