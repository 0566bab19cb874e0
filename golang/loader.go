// Package golang loads a Go module from disk and lowers it into the
// neutral program model the obfuscator pipeline operates on. It is the
// host-side frontend: parsing and type checking happen here, never in
// the pipeline.
package golang

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/go/packages"

	"obscura/obfuscator"
)

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedTypes |
	packages.NeedTypesInfo |
	packages.NeedSyntax

// Project is a loaded Go module: its program model plus enough layout
// information to write the transformed tree back out.
type Project struct {
	Dir    string
	Module string

	model *obfuscator.Model
	// lowered marks source paths that were converted to units; the rest
	// of the tree is copied verbatim on write.
	lowered map[string]bool
}

// Model returns the program model for the pipeline to transform.
func (p *Project) Model() *obfuscator.Model { return p.model }

// Load parses and type-checks every package of the module rooted at
// dir and builds the program model. Any parse or type error is fatal
// for the invocation: partially renaming a batch is worse than failing.
func Load(dir string, logger *slog.Logger) (*Project, error) {
	if logger == nil {
		logger = slog.Default()
	}
	modPath, err := modulePath(dir)
	if err != nil {
		return nil, err
	}

	cfg := &packages.Config{Mode: loadMode, Dir: dir}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return nil, fmt.Errorf("loading packages: %w", err)
	}

	var own []*packages.Package
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			return nil, fmt.Errorf("%w: %s: %s", obfuscator.ErrMalformedUnit, pkg.PkgPath, e.Msg)
		}
		if pkg.PkgPath == modPath || strings.HasPrefix(pkg.PkgPath, modPath+"/") {
			own = append(own, pkg)
		}
	}
	sort.Slice(own, func(i, j int) bool { return own[i].PkgPath < own[j].PkgPath })
	if len(own) == 0 {
		return nil, fmt.Errorf("%w: no packages under module %s", obfuscator.ErrMalformedUnit, modPath)
	}

	b := newBinder()
	for _, pkg := range own {
		b.collectInterfaces(pkg)
	}
	for _, pkg := range own {
		for _, file := range pkg.Syntax {
			b.buildFileSymbols(pkg, file)
		}
	}
	b.resolveImplements()

	proj := &Project{
		Dir:     dir,
		Module:  modPath,
		model:   b.model,
		lowered: make(map[string]bool),
	}
	for _, pkg := range own {
		for i, file := range pkg.Syntax {
			path := pkg.CompiledGoFiles[i]
			src, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				rel = path
			}
			unit, err := lowerFile(pkg.Fset, rel, src, file, pkg.TypesInfo, b)
			if err != nil {
				return nil, err
			}
			proj.model.Units = append(proj.model.Units, unit)
			proj.lowered[rel] = true
		}
	}

	logger.Info("module loaded",
		"module", modPath,
		"packages", len(own),
		"units", len(proj.model.Units),
		"symbols", len(proj.model.Symbols))
	return proj, nil
}

// modulePath reads the module path from go.mod at the project root.
func modulePath(dir string) (string, error) {
	gomod := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(gomod)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", gomod, err)
	}
	f, err := modfile.Parse(gomod, data, nil)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", gomod, err)
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return "", fmt.Errorf("%s declares no module path", gomod)
	}
	return f.Module.Mod.Path, nil
}
