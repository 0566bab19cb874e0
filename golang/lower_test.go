package golang

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"

	"obscura/obfuscator"
)

const demoSrc = `//go:build !tiny

package demo

//go:generate stub

// Widget is the demo aggregate.
type Widget struct {
	name  string ` + "`json:\"name\"`" + `
	count int
}

//obscura:preserve
type keeper struct{}

// Greet builds the greeting.
func (w *Widget) Greet() string {
	msg := "hello there"
	return msg
}

func helper(n int) int {
	total := n
	total++
	return total + 1
}
`

// checkPackage parses and type-checks one fixture file in process and
// wraps it the way the loader would hand it to the binder.
func checkPackage(t *testing.T, pkgPath, fileName, src string) *packages.Package {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, fileName, src, parser.ParseComments)
	require.NoError(t, err)

	info := &types.Info{
		Defs: make(map[*ast.Ident]types.Object),
		Uses: make(map[*ast.Ident]types.Object),
	}
	conf := types.Config{}
	typesPkg, err := conf.Check(pkgPath, fset, []*ast.File{file}, info)
	require.NoError(t, err)

	return &packages.Package{
		PkgPath:         pkgPath,
		Fset:            fset,
		Syntax:          []*ast.File{file},
		CompiledGoFiles: []string{fileName},
		Types:           typesPkg,
		TypesInfo:       info,
	}
}

func lowerFixture(t *testing.T, pkgPath, fileName, src string) (*obfuscator.CompilationUnit, *binder) {
	t.Helper()
	pkg := checkPackage(t, pkgPath, fileName, src)
	b := newBinder()
	b.collectInterfaces(pkg)
	b.buildFileSymbols(pkg, pkg.Syntax[0])
	b.resolveImplements()

	unit, err := lowerFile(pkg.Fset, fileName, []byte(src), pkg.Syntax[0], pkg.TypesInfo, b)
	require.NoError(t, err)
	return unit, b
}

func findToken(unit *obfuscator.CompilationUnit, text string) *obfuscator.Token {
	for i := range unit.Tokens {
		if unit.Tokens[i].Text == text {
			return &unit.Tokens[i]
		}
	}
	return nil
}

func TestLowerFile_RoundTripsByteIdentical(t *testing.T) {
	unit, _ := lowerFixture(t, "example/demo", "demo.go", demoSrc)

	assert.Equal(t, demoSrc, unit.Text())
	assert.Equal(t, "demo", unit.Package)
	assert.Equal(t, "demo.go", unit.Path)
}

func TestLowerFile_BindsDeclarationsAndReferences(t *testing.T) {
	unit, _ := lowerFixture(t, "example/demo", "demo.go", demoSrc)

	decl := findToken(unit, "helper")
	require.NotNil(t, decl)
	assert.Equal(t, "example/demo.helper", decl.Symbol)
	assert.True(t, decl.Decl)

	// msg appears as a declaration and a reference bound to the same
	// identity inside Greet.
	var msgSymbols []string
	var decls int
	for _, tok := range unit.Tokens {
		if tok.Kind == obfuscator.TokenIdent && tok.Text == "msg" {
			msgSymbols = append(msgSymbols, tok.Symbol)
			if tok.Decl {
				decls++
			}
		}
	}
	require.Len(t, msgSymbols, 2)
	assert.Equal(t, msgSymbols[0], msgSymbols[1])
	assert.NotEmpty(t, msgSymbols[0])
	assert.Equal(t, 1, decls)
}

func TestLowerFile_ClassifiesTrivia(t *testing.T) {
	unit, _ := lowerFixture(t, "example/demo", "demo.go", demoSrc)

	build := findToken(unit, "//go:build !tiny")
	require.NotNil(t, build)
	assert.Equal(t, obfuscator.TokenComment, build.Kind)
	assert.NotZero(t, build.Flags&obfuscator.FlagDirective)

	marker := findToken(unit, "//obscura:preserve")
	require.NotNil(t, marker)
	assert.NotZero(t, marker.Flags&obfuscator.FlagAttribute)

	doc := findToken(unit, "// Widget is the demo aggregate.")
	require.NotNil(t, doc)
	assert.Equal(t, obfuscator.TokenComment, doc.Kind)
	assert.Zero(t, doc.Flags)
}

func TestLowerFile_StringLiterals(t *testing.T) {
	unit, _ := lowerFixture(t, "example/demo", "demo.go", demoSrc)

	lit := findToken(unit, `"hello there"`)
	require.NotNil(t, lit)
	assert.Equal(t, obfuscator.TokenString, lit.Kind)
	assert.Equal(t, "hello there", lit.Value)
	assert.Zero(t, lit.Flags&obfuscator.FlagAttributeArg)
	assert.Equal(t, "example/demo.Widget::Greet", lit.Method)

	tag := findToken(unit, "`json:\"name\"`")
	require.NotNil(t, tag)
	assert.NotZero(t, tag.Flags&obfuscator.FlagAttributeArg)
}

func TestLowerFile_MarksBodyStarts(t *testing.T) {
	unit, _ := lowerFixture(t, "example/demo", "demo.go", demoSrc)

	// Greet has only two statements, so only helper is open to
	// statement injection.
	var starts []string
	for _, tok := range unit.Tokens {
		if tok.Flags&obfuscator.FlagBodyStart != 0 {
			starts = append(starts, tok.Method)
		}
	}
	assert.Equal(t, []string{"example/demo.helper"}, starts)
}

func TestLowerFile_ConstLiteralsStayConstant(t *testing.T) {
	src := `package cdemo

const greeting = "hello, world"

const (
	alpha = "first constant"
	width = len("sized")
)

var banner [len("abc")]byte

var message = "encrypt me please"

func use() string {
	return greeting + alpha + message
}
`
	unit, b := lowerFixture(t, "example/cdemo", "cdemo.go", src)

	lit := findToken(unit, `"hello, world"`)
	require.NotNil(t, lit)
	assert.NotZero(t, lit.Flags&obfuscator.FlagConstant)

	sized := findToken(unit, `"sized"`)
	require.NotNil(t, sized)
	assert.NotZero(t, sized.Flags&obfuscator.FlagConstant)

	arrLen := findToken(unit, `"abc"`)
	require.NotNil(t, arrLen)
	assert.NotZero(t, arrLen.Flags&obfuscator.FlagConstant)

	free := findToken(unit, `"encrypt me please"`)
	require.NotNil(t, free)
	assert.Zero(t, free.Flags&obfuscator.FlagConstant)

	model := b.model
	model.Units = []*obfuscator.CompilationUnit{unit}
	seed := int64(7)
	cfg := obfuscator.DefaultConfig()
	cfg.Seed = &seed
	report, err := obfuscator.New(cfg, nil).Process(model)
	require.NoError(t, err)
	require.Greater(t, report.Stats.StringsEncrypted, 0)

	for _, u := range model.Units {
		fset := token.NewFileSet()
		_, perr := parser.ParseFile(fset, u.Path, u.Text(), 0)
		require.NoError(t, perr, "unit %s no longer parses:\n%s", u.Path, u.Text())
	}

	// Constant contexts keep their literals; the plain var does not.
	text := model.Units[0].Text()
	assert.Contains(t, text, `"hello, world"`)
	assert.Contains(t, text, `"first constant"`)
	assert.Contains(t, text, `"sized"`)
	assert.Contains(t, text, `"abc"`)
	assert.NotContains(t, text, `"encrypt me please"`)
}

func TestLowerFile_SingleLineBodySurvivesInjection(t *testing.T) {
	src := `package sdemo

func answer() int { return 42 }

func busy() int { a := 1; a++; return a + 7 }
`
	unit, b := lowerFixture(t, "example/sdemo", "sdemo.go", src)
	model := b.model
	model.Units = []*obfuscator.CompilationUnit{unit}

	seed := int64(7)
	cfg := obfuscator.DefaultConfig()
	cfg.Seed = &seed
	cfg.AntiDecompiler = true
	report, err := obfuscator.New(cfg, nil).Process(model)
	require.NoError(t, err)

	// answer is too small to inject into; busy got the block and still
	// parses even though its statements share one line.
	assert.Equal(t, 1, report.Stats.JunkBlocksInjected)
	fset := token.NewFileSet()
	_, perr := parser.ParseFile(fset, unit.Path, unit.Text(), 0)
	require.NoError(t, perr, "unit no longer parses:\n%s", unit.Text())
}

func TestLowerFile_RenamedOutputStillParses(t *testing.T) {
	unit, b := lowerFixture(t, "example/demo", "demo.go", demoSrc)
	model := b.model
	model.Units = []*obfuscator.CompilationUnit{unit}

	seed := int64(42)
	cfg := obfuscator.DefaultConfig()
	cfg.Seed = &seed
	report, err := obfuscator.New(cfg, nil).Process(model)
	require.NoError(t, err)
	require.Greater(t, report.Stats.Renamed(), 0)

	for _, u := range model.Units {
		fset := token.NewFileSet()
		_, err := parser.ParseFile(fset, u.Path, u.Text(), 0)
		require.NoError(t, err, "unit %s no longer parses:\n%s", u.Path, u.Text())
	}

	// The exported surface survived, the private helper did not.
	text := model.Units[0].Text()
	assert.Contains(t, text, "Greet")
	assert.Contains(t, text, "Widget")
	assert.NotContains(t, text, "helper")
}
