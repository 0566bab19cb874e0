package obfuscator

import "fmt"

// Rename assigns one generated name per renamable symbol identity and
// rewrites every declaration and reference across the whole batch.
//
// The algorithm is two explicit passes over all units: the collection
// pass visits declaration sites and fills the name map; the map is then
// frozen, and the rewrite pass substitutes every bound identifier found
// in it. Both passes run against the same frozen preservation result,
// and the map is never cleared between them; that is what keeps
// cross-unit references consistent and seeded runs byte-identical.
func Rename(model *Model, pres *PreservationResult, ctx *Context) error {
	// Collection pass: declaration sites only, in batch order.
	for _, unit := range model.Units {
		for i := range unit.Tokens {
			tok := &unit.Tokens[i]
			if tok.Symbol == "" || !tok.Decl {
				continue
			}
			sym := model.Symbol(tok.Symbol)
			if sym == nil {
				ctx.Log.Warnf("declaration %q in %s is bound to unknown identity %q", tok.Text, unit.Path, tok.Symbol)
				continue
			}
			if ctx.Names.Has(sym.ID) || !renamable(sym, pres) {
				continue
			}
			name, err := ctx.Gen.Next(sym.Kind, sym.Name)
			if err != nil {
				return fmt.Errorf("renaming %q: %w", sym.ID, err)
			}
			if err := ctx.Names.Assign(sym.ID, name); err != nil {
				return fmt.Errorf("renaming %q: %w", sym.ID, err)
			}
			ctx.Stats.countRename(sym.Kind)
		}
	}

	ctx.Names.Freeze()

	// Rewrite pass: declarations and references alike; the original
	// token keeps its position in the stream, only its text changes.
	for _, unit := range model.Units {
		for i := range unit.Tokens {
			tok := &unit.Tokens[i]
			if tok.Symbol == "" {
				continue
			}
			if name, ok := ctx.Names.Get(tok.Symbol); ok {
				tok.Text = name
			}
		}
	}
	return nil
}

// renamable applies the per-symbol skip rules on top of the preservation
// result: reserved words and names that already look generated are left
// untouched, as are single-character names.
func renamable(sym *Symbol, pres *PreservationResult) bool {
	if pres.PreservedName(sym.ID) {
		return false
	}
	if len(sym.Name) <= 1 || reservedWords[sym.Name] {
		return false
	}
	if LooksGenerated(sym.Name) {
		return false
	}
	return true
}
