package golang

import (
	"go/ast"
	"go/types"
	"strconv"

	"golang.org/x/tools/go/packages"

	"obscura/obfuscator"
)

// binder accumulates the symbol graph while files are walked, keeping
// the types.Object → identity mapping the lowering step binds tokens
// with.
type binder struct {
	model *obfuscator.Model

	ids map[types.Object]string

	// ifaceMethods holds every method name declared by an interface in
	// the batch; matching methods may be bound through that interface,
	// so they are marked virtual.
	ifaceMethods map[string]bool
	ifaces       []namedInterface

	// typeObjs maps type identity to its types object for the
	// interface-satisfaction sweep after all types exist.
	typeObjs map[string]types.Object
}

type namedInterface struct {
	name  string
	iface *types.Interface
}

func newBinder() *binder {
	return &binder{
		model:        obfuscator.NewModel(),
		ids:          make(map[types.Object]string),
		ifaceMethods: make(map[string]bool),
		typeObjs:     make(map[string]types.Object),
	}
}

// collectInterfaces pre-scans a package for named interfaces so method
// virtuality and contract sets can be decided while symbols are built.
func (b *binder) collectInterfaces(pkg *packages.Package) {
	scope := pkg.Types.Scope()
	for _, name := range scope.Names() {
		obj, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || obj.IsAlias() {
			continue
		}
		iface, ok := obj.Type().Underlying().(*types.Interface)
		if !ok {
			continue
		}
		b.ifaces = append(b.ifaces, namedInterface{name: name, iface: iface})
		for i := 0; i < iface.NumMethods(); i++ {
			b.ifaceMethods[iface.Method(i).Name()] = true
		}
	}
}

// buildFileSymbols creates model symbols for every declaration in the
// file. Reflection and encoding usage in the file forces preserve tags
// the way the analyzer expects them (see reflect.go).
func (b *binder) buildFileSymbols(pkg *packages.Package, file *ast.File) {
	guard := newReflectionGuard(file)

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			b.buildFunc(pkg, d, guard)
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					b.buildType(pkg, d, s, guard)
				case *ast.ValueSpec:
					b.buildPackageValues(pkg, s)
				}
			}
		}
	}
}

func (b *binder) buildFunc(pkg *packages.Package, d *ast.FuncDecl, guard *reflectionGuard) {
	obj := pkg.TypesInfo.Defs[d.Name]
	if obj == nil {
		return
	}
	name := d.Name.Name

	var id, declaring string
	if d.Recv != nil {
		typeID := pkg.PkgPath + "." + recvTypeName(d.Recv)
		id = typeID + "::" + name
		declaring = typeID
	} else {
		id = pkg.PkgPath + "." + name
	}

	// An exported method can satisfy an interface declared outside the
	// batch even when its receiver type is unexported, so it is treated
	// as externally bindable.
	virtual := b.ifaceMethods[name] || (d.Recv != nil && ast.IsExported(name))

	sym := &obfuscator.Symbol{
		ID:          id,
		Kind:        obfuscator.KindMethod,
		Name:        name,
		Declaring:   declaring,
		Visibility:  visibilityOf(name),
		Tags:        parseTags(d.Doc),
		Virtual:     virtual,
		Constructor: d.Recv == nil && (name == "main" || name == "init"),
	}
	if guard.protectMethods && d.Recv != nil {
		sym.Tags = sym.Tags.Add(obfuscator.TagPreserveName)
	}
	b.add(obj, sym)

	// Parameters, results, and the receiver.
	b.buildFieldListVars(pkg, id, d.Recv, obfuscator.KindParameter)
	b.buildFieldListVars(pkg, id, d.Type.Params, obfuscator.KindParameter)
	b.buildFieldListVars(pkg, id, d.Type.Results, obfuscator.KindParameter)

	if d.Body != nil {
		b.buildLocals(pkg, id, d.Body)
	}
}

func (b *binder) buildType(pkg *packages.Package, d *ast.GenDecl, s *ast.TypeSpec, guard *reflectionGuard) {
	obj := pkg.TypesInfo.Defs[s.Name]
	if obj == nil {
		return
	}
	name := s.Name.Name
	typeID := pkg.PkgPath + "." + name

	tags := parseTags(d.Doc)
	for t := range parseTags(s.Doc) {
		tags = tags.Add(t)
	}
	if guard.protectTypes {
		tags = tags.Add(obfuscator.TagPreserveName)
	}

	sym := &obfuscator.Symbol{
		ID:         typeID,
		Kind:       obfuscator.KindType,
		Name:       name,
		Visibility: visibilityOf(name),
		Tags:       tags,
	}
	b.add(obj, sym)
	b.typeObjs[typeID] = obj

	switch t := s.Type.(type) {
	case *ast.StructType:
		b.buildStructFields(pkg, typeID, sym, t, guard)
	case *ast.InterfaceType:
		b.buildInterfaceMethods(pkg, typeID, t)
	}
}

func (b *binder) buildStructFields(pkg *packages.Package, typeID string, typeSym *obfuscator.Symbol, st *ast.StructType, guard *reflectionGuard) {
	if st.Fields == nil {
		return
	}
	for _, field := range st.Fields.List {
		if len(field.Names) == 0 {
			// Embedded type: the first one is recorded as the base for
			// the analyzer's chain walk.
			if typeSym.BaseType == "" {
				typeSym.BaseType = embeddedTypeName(field.Type)
			}
			continue
		}
		for _, nameIdent := range field.Names {
			obj := pkg.TypesInfo.Defs[nameIdent]
			if obj == nil {
				continue
			}
			sym := &obfuscator.Symbol{
				ID:         typeID + "::" + nameIdent.Name,
				Kind:       obfuscator.KindField,
				Name:       nameIdent.Name,
				Declaring:  typeID,
				Visibility: visibilityOf(nameIdent.Name),
				Tags:       parseTags(field.Doc),
			}
			if guard.protectField(field) {
				sym.Tags = sym.Tags.Add(obfuscator.TagPreserveName)
			}
			b.add(obj, sym)
		}
	}
}

func (b *binder) buildInterfaceMethods(pkg *packages.Package, typeID string, it *ast.InterfaceType) {
	if it.Methods == nil {
		return
	}
	for _, m := range it.Methods.List {
		for _, nameIdent := range m.Names {
			obj := pkg.TypesInfo.Defs[nameIdent]
			if obj == nil {
				continue
			}
			b.add(obj, &obfuscator.Symbol{
				ID:         typeID + "::" + nameIdent.Name,
				Kind:       obfuscator.KindMethod,
				Name:       nameIdent.Name,
				Declaring:  typeID,
				Visibility: visibilityOf(nameIdent.Name),
				Abstract:   true,
			})
		}
	}
}

func (b *binder) buildPackageValues(pkg *packages.Package, s *ast.ValueSpec) {
	for _, nameIdent := range s.Names {
		obj := pkg.TypesInfo.Defs[nameIdent]
		if obj == nil || nameIdent.Name == "_" {
			continue
		}
		// Package-level objects only; locals are collected per function.
		if obj.Parent() != pkg.Types.Scope() {
			continue
		}
		b.add(obj, &obfuscator.Symbol{
			ID:         pkg.PkgPath + "." + nameIdent.Name,
			Kind:       obfuscator.KindField,
			Name:       nameIdent.Name,
			Visibility: visibilityOf(nameIdent.Name),
			Tags:       parseTags(s.Doc),
		})
	}
}

func (b *binder) buildFieldListVars(pkg *packages.Package, funcID string, fields *ast.FieldList, kind obfuscator.SymbolKind) {
	if fields == nil {
		return
	}
	for _, field := range fields.List {
		for _, nameIdent := range field.Names {
			b.addScoped(pkg, funcID, nameIdent, kind)
		}
	}
}

// buildLocals registers every identifier declared inside the body:
// short declarations, var/const statements, range and type-switch
// bindings, and function-literal parameters.
func (b *binder) buildLocals(pkg *packages.Package, funcID string, body *ast.BlockStmt) {
	ast.Inspect(body, func(n ast.Node) bool {
		ident, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		obj := pkg.TypesInfo.Defs[ident]
		if obj == nil {
			return true
		}
		switch obj.(type) {
		case *types.Var, *types.Const:
			b.addScoped(pkg, funcID, ident, obfuscator.KindLocal)
		}
		return true
	})
}

func (b *binder) addScoped(pkg *packages.Package, funcID string, ident *ast.Ident, kind obfuscator.SymbolKind) {
	if ident.Name == "_" {
		return
	}
	obj := pkg.TypesInfo.Defs[ident]
	if obj == nil {
		return
	}
	if _, exists := b.ids[obj]; exists {
		return
	}
	off := pkg.Fset.Position(ident.Pos()).Offset
	b.add(obj, &obfuscator.Symbol{
		ID:         funcID + "::" + ident.Name + "@" + strconv.Itoa(off),
		Kind:       kind,
		Name:       ident.Name,
		Declaring:  funcID,
		Visibility: obfuscator.Private,
	})
}

func (b *binder) add(obj types.Object, sym *obfuscator.Symbol) {
	b.ids[obj] = sym.ID
	b.model.AddSymbol(sym)
}

// resolveImplements fills each type's implemented-interface list once
// every named interface in the batch is known, and aliases embedded
// field objects to their type's identity so a selector like x.base is
// renamed in lockstep with the type base itself.
func (b *binder) resolveImplements() {
	for typeID, obj := range b.typeObjs {
		sym := b.model.Symbol(typeID)
		if sym == nil {
			continue
		}
		t := obj.Type()
		if _, isIface := t.Underlying().(*types.Interface); isIface {
			continue
		}
		if st, ok := t.Underlying().(*types.Struct); ok {
			b.aliasEmbeddedFields(st)
		}
		for _, ni := range b.ifaces {
			if ni.iface.Empty() {
				continue
			}
			if types.Implements(t, ni.iface) || types.Implements(types.NewPointer(t), ni.iface) {
				sym.Interfaces = append(sym.Interfaces, ni.name)
			}
		}
	}
}

func (b *binder) aliasEmbeddedFields(st *types.Struct) {
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if !f.Embedded() {
			continue
		}
		ft := f.Type()
		if p, ok := ft.(*types.Pointer); ok {
			ft = p.Elem()
		}
		named, ok := ft.(*types.Named)
		if !ok {
			continue
		}
		if id, ok := b.ids[named.Obj()]; ok {
			b.ids[f] = id
		}
	}
}

// recvTypeName extracts the receiver's type name, unwrapping pointers
// and generic instantiations.
func recvTypeName(recv *ast.FieldList) string {
	if recv == nil || len(recv.List) == 0 {
		return ""
	}
	return baseTypeName(recv.List[0].Type)
}

func embeddedTypeName(expr ast.Expr) string {
	return baseTypeName(expr)
}

func baseTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return baseTypeName(t.X)
	case *ast.IndexExpr:
		return baseTypeName(t.X)
	case *ast.IndexListExpr:
		return baseTypeName(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	}
	return ""
}

func visibilityOf(name string) obfuscator.Visibility {
	if ast.IsExported(name) {
		return obfuscator.Public
	}
	return obfuscator.Internal
}

// directivePrefix introduces a marker tag in a doc comment, e.g.
// "//obscura:preserve" above a declaration.
const directivePrefix = "//obscura:"

func parseTags(doc *ast.CommentGroup) obfuscator.TagSet {
	var tags obfuscator.TagSet
	if doc == nil {
		return tags
	}
	for _, c := range doc.List {
		if tag, ok := directiveTag(c.Text); ok {
			tags = tags.Add(tag)
		}
	}
	return tags
}

func directiveTag(text string) (obfuscator.Tag, bool) {
	if len(text) <= len(directivePrefix) || text[:len(directivePrefix)] != directivePrefix {
		return "", false
	}
	switch text[len(directivePrefix):] {
	case string(obfuscator.TagPreserveName):
		return obfuscator.TagPreserveName, true
	case string(obfuscator.TagNoStringEncryption):
		return obfuscator.TagNoStringEncryption, true
	case string(obfuscator.TagNoControlFlow):
		return obfuscator.TagNoControlFlow, true
	}
	return "", false
}
