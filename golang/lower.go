package golang

import (
	"fmt"
	"go/ast"
	"go/scanner"
	"go/token"
	"go/types"
	"sort"
	"strconv"
	"strings"

	"obscura/obfuscator"
)

// fileFacts indexes one file's AST by byte offset so the scanner loop
// can annotate tokens without walking the tree per token.
type fileFacts struct {
	declOff  map[int]string // identifier offset -> symbol identity (declaration)
	useOff   map[int]string // identifier offset -> symbol identity (reference)
	attrOff  map[int]bool   // string-literal offsets that are metadata, not data
	constOff map[int]bool   // string-literal offsets in constant contexts
	bodyOff  map[int]bool   // opening-brace offsets of injectable function bodies
	funcs    []funcRange    // enclosing-function ranges, sorted by start
}

type funcRange struct {
	start, end int
	id         string
}

// lowerFile converts one parsed and type-checked file into a token
// stream. Every byte of the source lands in exactly one token, so the
// untouched unit renders back byte-identical.
func lowerFile(fset *token.FileSet, rel string, src []byte, file *ast.File, info *types.Info, b *binder) (*obfuscator.CompilationUnit, error) {
	facts := collectFacts(fset, file, info, b)

	// Scan against a private fileset so token positions are plain
	// offsets into src, matching the offsets recorded in facts.
	sfs := token.NewFileSet()
	tf := sfs.AddFile(rel, -1, len(src))
	var s scanner.Scanner
	var scanErr error
	s.Init(tf, src, func(pos token.Position, msg string) {
		if scanErr == nil {
			scanErr = fmt.Errorf("%w: %s: %s", obfuscator.ErrMalformedUnit, pos, msg)
		}
	}, scanner.ScanComments)

	unit := &obfuscator.CompilationUnit{
		Path:    rel,
		Package: file.Name.Name,
	}
	prevEnd := 0
	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		off := tf.Offset(pos)

		// The scanner injects semicolons at line ends; they occupy no
		// source bytes and must not appear in the stream.
		if tok == token.SEMICOLON && lit == "\n" {
			continue
		}

		if off > prevEnd {
			unit.Tokens = append(unit.Tokens, obfuscator.Token{
				Kind: obfuscator.TokenSpace,
				Text: string(src[prevEnd:off]),
			})
		}

		text := lit
		if text == "" {
			text = tok.String()
		}
		unit.Tokens = append(unit.Tokens, facts.classify(tok, text, off))
		prevEnd = off + len(text)
	}
	if scanErr != nil {
		return nil, scanErr
	}
	if prevEnd < len(src) {
		unit.Tokens = append(unit.Tokens, obfuscator.Token{
			Kind: obfuscator.TokenSpace,
			Text: string(src[prevEnd:]),
		})
	}
	return unit, nil
}

func (f *fileFacts) classify(tok token.Token, text string, off int) obfuscator.Token {
	out := obfuscator.Token{Text: text, Method: f.enclosing(off)}

	switch {
	case tok == token.COMMENT:
		out.Kind = obfuscator.TokenComment
		switch {
		case strings.HasPrefix(text, directivePrefix):
			out.Flags |= obfuscator.FlagAttribute
		case isCompilerDirective(text):
			out.Flags |= obfuscator.FlagDirective
		}
	case tok == token.IDENT:
		out.Kind = obfuscator.TokenIdent
		if id, ok := f.declOff[off]; ok {
			out.Symbol = id
			out.Decl = true
		} else if id, ok := f.useOff[off]; ok {
			out.Symbol = id
		}
	case tok.IsKeyword():
		out.Kind = obfuscator.TokenKeyword
	case tok == token.STRING:
		out.Kind = obfuscator.TokenString
		if v, err := strconv.Unquote(text); err == nil {
			out.Value = v
		} else {
			out.Value = text
		}
		if f.attrOff[off] {
			out.Flags |= obfuscator.FlagAttributeArg
		}
		if f.constOff[off] {
			out.Flags |= obfuscator.FlagConstant
		}
	default:
		out.Kind = obfuscator.TokenOther
		if tok == token.LBRACE && f.bodyOff[off] {
			out.Flags |= obfuscator.FlagBodyStart
		}
	}
	return out
}

// enclosing returns the identity of the innermost function whose body
// spans the offset, or "".
func (f *fileFacts) enclosing(off int) string {
	id := ""
	for _, fr := range f.funcs {
		if fr.start > off {
			break
		}
		if off < fr.end {
			id = fr.id
		}
	}
	return id
}

func collectFacts(fset *token.FileSet, file *ast.File, info *types.Info, b *binder) *fileFacts {
	facts := &fileFacts{
		declOff:  make(map[int]string),
		useOff:   make(map[int]string),
		attrOff:  make(map[int]bool),
		constOff: make(map[int]bool),
		bodyOff:  make(map[int]bool),
	}
	offset := func(pos token.Pos) int { return fset.Position(pos).Offset }

	ast.Inspect(file, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.Ident:
			if obj := info.Defs[x]; obj != nil {
				if id, ok := b.ids[obj]; ok {
					facts.declOff[offset(x.Pos())] = id
				}
			} else if obj := info.Uses[x]; obj != nil {
				if id, ok := b.ids[obj]; ok {
					facts.useOff[offset(x.Pos())] = id
				}
			}
		case *ast.ImportSpec:
			if x.Path != nil {
				facts.attrOff[offset(x.Path.Pos())] = true
			}
		case *ast.Field:
			if x.Tag != nil {
				facts.attrOff[offset(x.Tag.Pos())] = true
			}
		case *ast.GenDecl:
			if x.Tok == token.CONST {
				facts.markConstStrings(x, offset)
			}
		case *ast.ArrayType:
			if x.Len != nil {
				facts.markConstStrings(x.Len, offset)
			}
		case *ast.FuncDecl:
			obj := info.Defs[x.Name]
			id, bound := "", false
			if obj != nil {
				id, bound = b.ids[obj]
			}
			if bound && x.Body != nil {
				facts.funcs = append(facts.funcs, funcRange{
					start: offset(x.Body.Pos()),
					end:   offset(x.Body.End()),
					id:    id,
				})
				if injectable(x) {
					facts.bodyOff[offset(x.Body.Lbrace)] = true
				}
			}
		}
		return true
	})
	sort.Slice(facts.funcs, func(i, j int) bool { return facts.funcs[i].start < facts.funcs[j].start })
	return facts
}

// markConstStrings flags every string literal under n. These sit in
// constant contexts, and a decode call is not a constant expression.
func (f *fileFacts) markConstStrings(n ast.Node, offset func(token.Pos) int) {
	ast.Inspect(n, func(c ast.Node) bool {
		if lit, ok := c.(*ast.BasicLit); ok && lit.Kind == token.STRING {
			f.constOff[offset(lit.Pos())] = true
		}
		return true
	})
}

// injectable reports whether a function body may receive injected
// statements. Runtime entry points (init, main) and directive-annotated
// functions are left alone, and bodies of one or two statements gain
// nothing but size.
func injectable(d *ast.FuncDecl) bool {
	if d.Name.Name == "init" || (d.Recv == nil && d.Name.Name == "main") {
		return false
	}
	if len(d.Body.List) <= 2 {
		return false
	}
	if d.Doc != nil {
		for _, c := range d.Doc.List {
			if strings.HasPrefix(c.Text, "//go:") {
				return false
			}
		}
	}
	return true
}

// isCompilerDirective reports whether a comment is read by the Go
// toolchain and must survive comment removal.
func isCompilerDirective(text string) bool {
	return strings.HasPrefix(text, "//go:") ||
		strings.HasPrefix(text, "// +build") ||
		strings.HasPrefix(text, "//+build")
}
