package golang

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"obscura/obfuscator"
)

// WriteTree materializes the transformed module under outDir: lowered
// units are rendered from their token streams, synthesized units are
// cloned into every package that calls them, and everything else in the
// source tree (go.mod, assets, testdata, non-Go files) is copied
// verbatim. outDir must not lie inside the source tree.
func (p *Project) WriteTree(outDir string) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return err
	}
	srcAbs, err := filepath.Abs(p.Dir)
	if err != nil {
		return err
	}
	if abs == srcAbs || within(srcAbs, abs) {
		return fmt.Errorf("output directory %s is inside the source tree", outDir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return err
	}

	p.placeSynthesized()

	for _, unit := range p.model.Units {
		dst := filepath.Join(abs, unit.Path)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, []byte(unit.Text()), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
	}

	return filepath.WalkDir(srcAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(srcAbs, path)
		if err != nil {
			return err
		}
		if p.lowered[rel] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		dst := filepath.Join(abs, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return os.WriteFile(dst, data, 0o644)
	})
}

// placeSynthesized gives every unit the pipeline synthesized a
// module-relative path. The decoder declares an unexported function, so
// one emitted copy cannot be called from another package: each package
// directory whose units reference the declared name gets its own clone,
// retargeted to that directory's package clause.
func (p *Project) placeSynthesized() {
	var placed, synth []*obfuscator.CompilationUnit
	for _, unit := range p.model.Units {
		if p.lowered[unit.Path] {
			placed = append(placed, unit)
		} else {
			synth = append(synth, unit)
		}
	}
	if len(synth) == 0 {
		return
	}

	for _, unit := range synth {
		name := declaredName(unit)
		// dir -> package name of the units living there
		dirs := make(map[string]string)
		for _, u := range placed {
			if name != "" && referencesName(u, name) {
				dirs[filepath.Dir(u.Path)] = u.Package
			}
		}
		if len(dirs) == 0 {
			// Nothing calls it; keep one copy next to its own package.
			for _, u := range placed {
				if u.Package == unit.Package {
					dirs[filepath.Dir(u.Path)] = u.Package
					break
				}
			}
		}
		sorted := make([]string, 0, len(dirs))
		for dir := range dirs {
			sorted = append(sorted, dir)
		}
		sort.Strings(sorted)
		for _, dir := range sorted {
			clone := cloneUnit(unit, filepath.Join(dir, unit.Path), dirs[dir])
			// Registered so a repeated write does not re-clone; the path
			// never exists in the source tree, so nothing is skipped.
			p.lowered[clone.Path] = true
			placed = append(placed, clone)
		}
	}
	p.model.Units = placed
}

// declaredName returns the name of the function a synthesized unit
// declares, or "".
func declaredName(unit *obfuscator.CompilationUnit) string {
	for _, tok := range unit.Tokens {
		if tok.Kind == obfuscator.TokenIdent && tok.Decl {
			return tok.Text
		}
	}
	return ""
}

// referencesName reports whether any identifier in the unit calls name.
func referencesName(unit *obfuscator.CompilationUnit, name string) bool {
	for _, tok := range unit.Tokens {
		if tok.Kind == obfuscator.TokenIdent && !tok.Decl && tok.Text == name {
			return true
		}
	}
	return false
}

// cloneUnit copies a synthesized unit to a concrete path, rewriting its
// package clause to the target package.
func cloneUnit(unit *obfuscator.CompilationUnit, path, pkg string) *obfuscator.CompilationUnit {
	tokens := make([]obfuscator.Token, len(unit.Tokens))
	copy(tokens, unit.Tokens)
	for i := range tokens {
		if tokens[i].Kind != obfuscator.TokenKeyword || tokens[i].Text != "package" {
			continue
		}
		for j := i + 1; j < len(tokens); j++ {
			if tokens[j].Kind == obfuscator.TokenIdent {
				tokens[j].Text = pkg
				break
			}
		}
		break
	}
	return &obfuscator.CompilationUnit{Path: path, Package: pkg, Tokens: tokens}
}

// within reports whether path sits strictly under root.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
