package golang

import (
	"go/ast"
	"strings"
)

// reflectionGuard decides which declarations in a file must keep their
// names because reflection or struct-tag driven encoders can observe
// them at runtime.
type reflectionGuard struct {
	// protectTypes is set when the file imports reflect: any type,
	// field, or method in such a file may be looked up by name.
	protectTypes   bool
	protectMethods bool

	// usesEncoding is set when the file imports a marshalling package
	// that falls back to field names when no tag is present.
	usesEncoding bool
}

func newReflectionGuard(file *ast.File) *reflectionGuard {
	g := &reflectionGuard{}
	for _, imp := range file.Imports {
		if imp.Path == nil {
			continue
		}
		path := strings.Trim(imp.Path.Value, `"`)
		switch {
		case path == "reflect" || strings.HasSuffix(path, "/reflect"):
			g.protectTypes = true
			g.protectMethods = true
		case strings.Contains(path, "encoding/json"),
			strings.Contains(path, "encoding/xml"),
			strings.Contains(path, "gopkg.in/yaml"),
			strings.Contains(path, "go.yaml.in/yaml"):
			g.usesEncoding = true
		}
	}
	return g
}

// protectField reports whether a struct field's name must survive. A
// reflecting file protects everything; an encoding file protects only
// fields whose serialized name would otherwise change because no
// explicit tag pins it.
func (g *reflectionGuard) protectField(field *ast.Field) bool {
	if g.protectTypes {
		return true
	}
	if !g.usesEncoding {
		return false
	}
	if field.Tag == nil {
		return true
	}
	tag := field.Tag.Value
	return !strings.Contains(tag, "json:") &&
		!strings.Contains(tag, "xml:") &&
		!strings.Contains(tag, "yaml:")
}
