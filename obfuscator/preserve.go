package obfuscator

import "strings"

// PreservationResult is the frozen outcome of preservation analysis:
// the set of symbol identities whose names must never change, plus the
// per-method string-encryption and control-flow exemption flags. It is
// built once per run and read-only thereafter.
type PreservationResult struct {
	preservedNames map[string]bool
	noStringEnc    map[string]bool
	noControlFlow  map[string]bool
}

// PreservedName reports whether the identity's name must not change.
func (r *PreservationResult) PreservedName(id string) bool {
	return r.preservedNames[id]
}

// NoStringEncryption reports whether literals in the method are exempt.
func (r *PreservationResult) NoStringEncryption(methodID string) bool {
	return r.noStringEnc[methodID]
}

// NoControlFlow reports whether the method is exempt from control-flow
// transforms.
func (r *PreservationResult) NoControlFlow(methodID string) bool {
	return r.noControlFlow[methodID]
}

// PreservedCount returns the size of the preserved-name set.
func (r *PreservationResult) PreservedCount() int { return len(r.preservedNames) }

// Analyze walks the full symbol graph once and classifies every symbol
// as preservable or renamable. Unresolved external references never
// abort the analysis: the affected check is treated as unproven, a
// warning is logged, and the remaining checks still apply.
func Analyze(model *Model, cfg Config, log *Log) *PreservationResult {
	a := &analyzer{
		model: model,
		cfg:   cfg,
		log:   log,
		result: &PreservationResult{
			preservedNames: make(map[string]bool),
			noStringEnc:    make(map[string]bool),
			noControlFlow:  make(map[string]bool),
		},
		warned: make(map[string]bool),
	}
	for _, sym := range model.Symbols {
		a.classify(sym)
	}
	// Backing symbols inherit the decision of the member they back, so
	// they are settled after every ordinary member has been classified.
	for _, sym := range model.Symbols {
		if sym.BackingFor != "" && a.result.preservedNames[sym.BackingFor] {
			a.result.preservedNames[sym.ID] = true
		}
	}
	return a.result
}

type analyzer struct {
	model  *Model
	cfg    Config
	log    *Log
	result *PreservationResult
	warned map[string]bool
}

func (a *analyzer) classify(sym *Symbol) {
	// Per-method exemption flags are independent of the naming decision.
	if sym.Kind == KindMethod {
		if sym.Tags.Has(TagNoStringEncryption) {
			a.result.noStringEnc[sym.ID] = true
		}
		if sym.Tags.Has(TagNoControlFlow) {
			a.result.noControlFlow[sym.ID] = true
		}
	}

	if a.preserve(sym) {
		a.result.preservedNames[sym.ID] = true
	}
}

// preserve applies the positive checks in turn; any single hit settles
// the symbol as preserved.
func (a *analyzer) preserve(sym *Symbol) bool {
	if sym.Constructor {
		// Constructors are invoked through dynamic construction paths
		// even when declared non-public.
		return true
	}
	if a.exposed(sym) {
		return true
	}
	if sym.Override || sym.Abstract || sym.Virtual {
		return true
	}
	if a.implementsPreservedContract(sym) {
		return true
	}
	if a.taggedAlongBaseChain(sym) {
		return true
	}
	if a.matchesExclusion(sym) {
		return true
	}
	return false
}

// exposed reports whether the symbol sits on the public surface: its own
// visibility is public (or protected, reachable by external subclasses)
// and every enclosing type is externally visible.
func (a *analyzer) exposed(sym *Symbol) bool {
	if sym.Visibility != Public && sym.Visibility != Protected {
		return false
	}
	for id := sym.Declaring; id != ""; {
		encl := a.model.Symbol(id)
		if encl == nil {
			// Enclosing scope outside the model; visibility unprovable.
			a.warnOnce(id, "cannot resolve enclosing scope %q of %q", id, sym.ID)
			return false
		}
		if encl.Kind == KindMethod {
			// Locals and parameters are never externally visible.
			return false
		}
		if encl.Visibility != Public && encl.Visibility != Protected {
			return false
		}
		id = encl.Declaring
	}
	return true
}

// implementsPreservedContract reports whether the symbol is a member of
// a type implementing a preserve-by-contract interface, matched by
// interface-name substring against the configured list.
func (a *analyzer) implementsPreservedContract(sym *Symbol) bool {
	if len(a.cfg.PreserveContracts) == 0 || sym.Declaring == "" {
		return false
	}
	decl := a.model.Symbol(sym.Declaring)
	if decl == nil || decl.Kind != KindType {
		return false
	}
	for _, ifaceName := range a.interfaceSet(decl) {
		if !a.contractMatches(ifaceName) {
			continue
		}
		iface := a.model.TypeByName(ifaceName)
		if iface == nil {
			// External interface: its member names cannot be checked, so
			// the check is unproven for this symbol.
			a.warnOnce(ifaceName, "cannot resolve contract interface %q; not preserving %q from this check", ifaceName, sym.ID)
			continue
		}
		for _, member := range a.model.MembersOf(iface.ID) {
			if member.Name == sym.Name {
				return true
			}
		}
	}
	return false
}

func (a *analyzer) contractMatches(ifaceName string) bool {
	for _, sub := range a.cfg.PreserveContracts {
		if sub != "" && strings.Contains(ifaceName, sub) {
			return true
		}
	}
	return false
}

// interfaceSet collects the interface names implemented by the type and
// its base-type chain. The walk is bounded by a visited set so malformed
// cyclic type graphs terminate.
func (a *analyzer) interfaceSet(typ *Symbol) []string {
	var out []string
	visited := make(map[string]bool)
	for t := typ; t != nil; {
		if visited[t.ID] {
			a.warnOnce(t.ID, "base-type cycle at %q", t.ID)
			break
		}
		visited[t.ID] = true
		out = append(out, t.Interfaces...)
		if t.BaseType == "" {
			break
		}
		base := a.model.TypeByName(t.BaseType)
		if base == nil {
			a.warnOnce(t.BaseType, "cannot resolve base type %q of %q", t.BaseType, t.ID)
			break
		}
		t = base
	}
	return out
}

// taggedAlongBaseChain reports whether the symbol, its declaring type,
// or any ancestor of that type carries a configured preserve tag or
// descends from an always-preserve base type.
func (a *analyzer) taggedAlongBaseChain(sym *Symbol) bool {
	if a.cfg.preservesTag(sym.Tags) {
		return true
	}
	declID := sym.Declaring
	if sym.Kind == KindType {
		declID = sym.ID
	}
	if declID == "" {
		return false
	}
	start := a.model.Symbol(declID)
	if start == nil || start.Kind != KindType {
		return false
	}
	visited := make(map[string]bool)
	for t := start; t != nil; {
		if visited[t.ID] {
			a.warnOnce(t.ID, "base-type cycle at %q", t.ID)
			return false
		}
		visited[t.ID] = true
		if a.cfg.preservesTag(t.Tags) {
			return true
		}
		for _, name := range a.cfg.PreserveBaseTypes {
			if t.Name == name || t.BaseType == name {
				return true
			}
		}
		if t.BaseType == "" {
			return false
		}
		base := a.model.TypeByName(t.BaseType)
		if base == nil {
			a.warnOnce(t.BaseType, "cannot resolve base type %q of %q", t.BaseType, t.ID)
			return false
		}
		t = base
	}
	return false
}

// matchesExclusion applies the configured wildcard exclusion patterns:
// type patterns to types, member patterns to everything else.
func (a *analyzer) matchesExclusion(sym *Symbol) bool {
	if sym.Kind == KindType {
		return matchAny(a.cfg.ExcludeTypePatterns, sym.Name)
	}
	return matchAny(a.cfg.ExcludeMemberPatterns, sym.Name)
}

func (a *analyzer) warnOnce(key, format string, args ...any) {
	if a.warned[key] || a.log == nil {
		return
	}
	a.warned[key] = true
	a.log.Warnf(format, args...)
}
