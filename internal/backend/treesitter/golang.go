package treesitter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// goExtractor extracts Go source files. The package clause becomes a MODULE
// that contains every top-level declaration. Types are declared before
// functions so that methods attach to their receiver type wherever in the
// file it is declared.
type goExtractor struct{}

func (e *goExtractor) extract(s *backend.Session, root *tree_sitter.Node, src []byte) {
	if pkg := childOfKind(root, "package_clause"); pkg != nil {
		if id := childOfKind(pkg, "package_identifier"); id != nil {
			mod := s.Declare(backend.Decl{Kind: graph.KindModule, Name: id.Utf8Text(src), Location: location(pkg)})
			defer s.Push(mod)()
		}
	}

	top := namedChildren(root)
	for _, n := range top {
		switch n.Kind() {
		case "import_declaration":
			e.imports(s, n, src)
		case "type_declaration":
			for _, spec := range childrenOfKind(n, "type_spec", "type_alias") {
				e.typeSpec(s, n, spec, src)
			}
		}
	}
	for _, n := range top {
		switch n.Kind() {
		case "function_declaration":
			e.function(s, n, src)
		case "method_declaration":
			e.method(s, n, src)
		case "const_declaration", "var_declaration":
			e.values(s, n, src)
		}
	}
}

func (e *goExtractor) imports(s *backend.Session, decl *tree_sitter.Node, src []byte) {
	var specs []*tree_sitter.Node
	walkTree(decl, func(n *tree_sitter.Node) (bool, func()) {
		if n.Kind() == "import_spec" {
			specs = append(specs, n)
			return false, nil
		}
		return true, nil
	})
	for _, spec := range specs {
		path := unquote(field(spec, "path", src))
		if path == "" {
			continue
		}
		local := field(spec, "name", src)
		switch local {
		case "_", ".":
			backend.ImportFrom(s, backend.Import{Specifier: path, Location: location(spec)})
			continue
		case "":
			local = path[strings.LastIndex(path, "/")+1:]
		}
		backend.ImportFrom(s, backend.Import{
			Specifier: path,
			Names:     map[string]string{local: "*"},
			Location:  location(spec),
		})
	}
}

func (e *goExtractor) typeSpec(s *backend.Session, decl, spec *tree_sitter.Node, src []byte) {
	name := field(spec, "name", src)
	if name == "" {
		return
	}
	typ := spec.ChildByFieldName("type")
	kind := graph.KindType
	if typ != nil {
		switch typ.Kind() {
		case "struct_type":
			kind = graph.KindStruct
		case "interface_type":
			kind = graph.KindInterface
		}
	}
	meta := map[string]any{graph.MetaExported: isGoExported(name)}
	if doc := goDoc(decl, spec, src); doc != "" {
		meta[graph.MetaDoc] = doc
	}
	if spec.Kind() == "type_alias" {
		meta["alias"] = true
	}
	if tp := spec.ChildByFieldName("type_parameters"); tp != nil {
		meta["typeParameters"] = tp.Utf8Text(src)
	}
	c := s.Declare(backend.Decl{
		Kind:     kind,
		Name:     name,
		Location: location(spec),
		Code:     spec.Utf8Text(src),
		Metadata: meta,
	})
	if typ == nil {
		return
	}

	pop := s.Push(c)
	defer pop()
	switch kind {
	case graph.KindStruct:
		e.fields(s, c, typ, src)
	case graph.KindInterface:
		e.interfaceElems(s, c, typ, src)
	default:
		if t := goTypeName(typ, src); t != "" {
			s.Refer(graph.RelReferences, c.ID, t, locPtr(typ), nil)
		}
	}
}

func (e *goExtractor) fields(s *backend.Session, owner graph.Component, st *tree_sitter.Node, src []byte) {
	list := childOfKind(st, "field_declaration_list")
	if list == nil {
		return
	}
	for _, fd := range childrenOfKind(list, "field_declaration") {
		typ := fd.ChildByFieldName("type")
		names := fieldNodes(fd, "name")
		if len(names) == 0 {
			// Embedded field: the struct extends the embedded type.
			if typ != nil {
				if t := goTypeName(typ, src); t != "" {
					s.Refer(graph.RelExtends, owner.ID, t, locPtr(fd), map[string]any{"embedded": true})
				}
			}
			continue
		}
		for i := range names {
			name := names[i].Utf8Text(src)
			meta := map[string]any{graph.MetaExported: isGoExported(name)}
			if typ != nil {
				meta["type"] = typ.Utf8Text(src)
			}
			if tag := field(fd, "tag", src); tag != "" {
				meta["tag"] = strings.Trim(tag, "`")
			}
			p := s.Declare(backend.Decl{Kind: graph.KindProperty, Name: name, Location: location(fd), Code: fd.Utf8Text(src), Metadata: meta})
			if typ != nil {
				if t := goTypeName(typ, src); t != "" && !isGoBuiltin(t) {
					s.Refer(graph.RelUses, p.ID, t, locPtr(typ), nil)
				}
			}
		}
	}
}

func (e *goExtractor) interfaceElems(s *backend.Session, owner graph.Component, it *tree_sitter.Node, src []byte) {
	for _, el := range namedChildren(it) {
		switch el.Kind() {
		case "method_elem":
			name := field(el, "name", src)
			if name == "" {
				continue
			}
			meta := map[string]any{graph.MetaExported: isGoExported(name), graph.MetaAbstract: true}
			goSignature(el, src, meta)
			s.Declare(backend.Decl{Kind: graph.KindMethod, Name: name, Location: location(el), Code: el.Utf8Text(src), Metadata: meta})
		case "type_elem":
			// Embedded interfaces and constraint terms.
			for _, t := range namedChildren(el) {
				if name := goTypeName(t, src); name != "" && !isGoBuiltin(name) {
					s.Refer(graph.RelExtends, owner.ID, name, locPtr(t), map[string]any{"embedded": true})
				}
			}
		}
	}
}

func (e *goExtractor) function(s *backend.Session, n *tree_sitter.Node, src []byte) {
	name := field(n, "name", src)
	if name == "" {
		return
	}
	meta := map[string]any{graph.MetaExported: isGoExported(name)}
	goSignature(n, src, meta)
	if doc := goDoc(n, n, src); doc != "" {
		meta[graph.MetaDoc] = doc
	}
	if strings.HasPrefix(name, "New") && len(name) > 3 {
		meta["constructorFor"] = name[3:]
	}
	c := s.Declare(backend.Decl{Kind: graph.KindFunction, Name: name, Location: location(n), Code: n.Utf8Text(src), Metadata: meta})
	e.signatureUses(s, c.ID, n, src)
	e.body(s, c, n, src)
}

// method declares a method under its receiver type when the type is
// declared in this file, and at package level with a Type.Method qualified
// name otherwise.
func (e *goExtractor) method(s *backend.Session, n *tree_sitter.Node, src []byte) {
	name := field(n, "name", src)
	if name == "" {
		return
	}
	meta := map[string]any{graph.MetaExported: isGoExported(name)}
	goSignature(n, src, meta)
	if doc := goDoc(n, n, src); doc != "" {
		meta[graph.MetaDoc] = doc
	}

	recv := receiverType(n, src)
	if recv != "" {
		meta["receiver"] = recv
	}
	pop := func() {}
	qualified := ""
	if recv != "" {
		if id, ok := s.Lookup(s.Qualify(recv)); ok {
			if owner, ok := s.Component(id); ok {
				pop = s.Push(owner)
			}
		} else {
			qualified = s.Qualify(recv + "." + name)
		}
	}
	defer pop()

	c := s.Declare(backend.Decl{
		Kind:      graph.KindMethod,
		Name:      name,
		Location:  location(n),
		Code:      n.Utf8Text(src),
		Metadata:  meta,
		Qualified: qualified,
	})
	e.signatureUses(s, c.ID, n, src)
	e.body(s, c, n, src)
}

func (e *goExtractor) values(s *backend.Session, decl *tree_sitter.Node, src []byte) {
	kind := graph.KindVariable
	specKind := "var_spec"
	if decl.Kind() == "const_declaration" {
		kind, specKind = graph.KindConstant, "const_spec"
	}
	var specs []*tree_sitter.Node
	walkTree(decl, func(n *tree_sitter.Node) (bool, func()) {
		if n.Kind() == specKind {
			specs = append(specs, n)
			return false, nil
		}
		return true, nil
	})
	for _, spec := range specs {
		for _, id := range fieldNodes(spec, "name") {
			name := id.Utf8Text(src)
			if name == "_" {
				continue
			}
			meta := map[string]any{graph.MetaExported: isGoExported(name)}
			if t := field(spec, "type", src); t != "" {
				meta["type"] = t
			}
			c := s.Declare(backend.Decl{Kind: kind, Name: name, Location: location(spec), Code: spec.Utf8Text(src), Metadata: meta})
			if val := spec.ChildByFieldName("value"); val != nil {
				e.calls(s, c.ID, val, src)
			}
		}
	}
}

func (e *goExtractor) body(s *backend.Session, c graph.Component, n *tree_sitter.Node, src []byte) {
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	defer s.Push(c)()
	e.calls(s, c.ID, body, src)
}

// calls emits CALLS for call expressions and CREATES for composite literals
// of named types in n.
func (e *goExtractor) calls(s *backend.Session, owner string, n *tree_sitter.Node, src []byte) {
	walkTree(n, func(c *tree_sitter.Node) (bool, func()) {
		switch c.Kind() {
		case "call_expression":
			fn := c.ChildByFieldName("function")
			if fn == nil {
				break
			}
			switch fn.Kind() {
			case "identifier", "selector_expression":
				callee := fn.Utf8Text(src)
				if !isGoBuiltin(callee) {
					backend.Call(s, owner, callee, location(c))
				}
			case "generic_type":
				backend.Call(s, owner, baseType(fn.Utf8Text(src)), location(c))
			}
		case "composite_literal":
			if t := c.ChildByFieldName("type"); t != nil {
				if name := goTypeName(t, src); name != "" {
					backend.Call(s, owner, "new "+name, location(c))
				}
			}
		}
		return true, nil
	})
}

// signatureUses emits USES from a function to the named types in its
// parameters and results.
func (e *goExtractor) signatureUses(s *backend.Session, id string, n *tree_sitter.Node, src []byte) {
	seen := make(map[string]bool)
	visit := func(t *tree_sitter.Node) {
		walkTree(t, func(c *tree_sitter.Node) (bool, func()) {
			switch c.Kind() {
			case "type_identifier", "qualified_type":
				name := c.Utf8Text(src)
				if !seen[name] && !isGoBuiltin(name) {
					seen[name] = true
					s.Refer(graph.RelUses, id, name, locPtr(c), nil)
				}
				return false, nil
			}
			return true, nil
		})
	}
	if p := n.ChildByFieldName("parameters"); p != nil {
		visit(p)
	}
	if r := n.ChildByFieldName("result"); r != nil {
		visit(r)
	}
}

// goSignature records parameter names and the result type.
func goSignature(n *tree_sitter.Node, src []byte, meta map[string]any) {
	if params := n.ChildByFieldName("parameters"); params != nil {
		var names []string
		for _, p := range childrenOfKind(params, "parameter_declaration", "variadic_parameter_declaration") {
			ids := fieldNodes(p, "name")
			for i := range ids {
				names = append(names, ids[i].Utf8Text(src))
			}
		}
		meta[graph.MetaParameters] = names
	}
	if r := n.ChildByFieldName("result"); r != nil {
		meta[graph.MetaReturnType] = r.Utf8Text(src)
	}
}

// receiverType returns the base type name of a method receiver, "Repo" for
// (r *Repo[T]).
func receiverType(n *tree_sitter.Node, src []byte) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for _, p := range childrenOfKind(recv, "parameter_declaration") {
		if t := p.ChildByFieldName("type"); t != nil {
			return goTypeName(t, src)
		}
	}
	return ""
}

// goTypeName returns the name a type expression refers to, without pointer
// and generic decoration, or "" for unnamed types.
func goTypeName(t *tree_sitter.Node, src []byte) string {
	switch t.Kind() {
	case "type_identifier", "qualified_type":
		return t.Utf8Text(src)
	case "pointer_type", "generic_type", "parenthesized_type":
		for _, c := range namedChildren(t) {
			if name := goTypeName(c, src); name != "" {
				return name
			}
		}
	}
	return ""
}

// goDoc returns the comment block directly above decl. For grouped type
// declarations a type_spec's own comment wins.
func goDoc(decl, spec *tree_sitter.Node, src []byte) string {
	target := spec
	if spec.Kind() == "type_spec" || spec.Kind() == "type_alias" {
		if prev := spec.PrevNamedSibling(); prev == nil || prev.Kind() != "comment" {
			target = decl
		}
	}
	var lines []string
	end := target.StartPosition().Row
	for prev := target.PrevNamedSibling(); prev != nil && prev.Kind() == "comment"; prev = prev.PrevNamedSibling() {
		if prev.EndPosition().Row+1 != end {
			break
		}
		lines = append([]string{strings.TrimSpace(strings.TrimPrefix(prev.Utf8Text(src), "//"))}, lines...)
		end = prev.StartPosition().Row
	}
	return strings.Join(lines, "\n")
}

// isGoExported reports whether name starts with an uppercase letter.
func isGoExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

var goBuiltins = map[string]bool{
	"append": true, "cap": true, "clear": true, "close": true, "complex": true, "copy": true,
	"delete": true, "imag": true, "len": true, "make": true, "max": true, "min": true,
	"new": true, "panic": true, "print": true, "println": true, "real": true, "recover": true,
	"bool": true, "byte": true, "error": true, "float32": true, "float64": true, "int": true,
	"int8": true, "int16": true, "int32": true, "int64": true, "rune": true, "string": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true, "uintptr": true,
	"any": true, "comparable": true, "complex64": true, "complex128": true,
}

func isGoBuiltin(name string) bool { return goBuiltins[name] }
