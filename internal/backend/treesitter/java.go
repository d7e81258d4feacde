package treesitter

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// javaExtractor extracts Java source files structurally. The package
// declaration becomes a NAMESPACE containing the file's types, so qualified
// names are fully qualified class names.
type javaExtractor struct{}

func (e *javaExtractor) extract(s *backend.Session, root *tree_sitter.Node, src []byte) {
	v := &javaVisitor{s: s, src: src}
	if pkg := childOfKind(root, "package_declaration"); pkg != nil {
		for _, c := range namedChildren(pkg) {
			if c.Kind() == "scoped_identifier" || c.Kind() == "identifier" {
				ns := s.Declare(backend.Decl{Kind: graph.KindNamespace, Name: c.Utf8Text(src), Location: location(pkg)})
				defer s.Push(ns)()
				break
			}
		}
	}
	walkTree(root, v.visit)
}

type javaVisitor struct {
	s   *backend.Session
	src []byte
}

func (v *javaVisitor) visit(n *tree_sitter.Node) (bool, func()) {
	switch n.Kind() {
	case "package_declaration":
		return false, nil
	case "import_declaration":
		v.importDecl(n)
		return false, nil
	case "class_declaration", "record_declaration":
		return v.typeDecl(n, graph.KindClass)
	case "interface_declaration", "annotation_type_declaration":
		return v.typeDecl(n, graph.KindInterface)
	case "enum_declaration":
		return v.typeDecl(n, graph.KindEnum)
	case "enum_constant":
		if name := field(n, "name", v.src); name != "" {
			v.s.Declare(backend.Decl{Kind: graph.KindConstant, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: map[string]any{graph.MetaStatic: true}})
		}
		return true, nil
	case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
		return v.method(n)
	case "field_declaration", "constant_declaration":
		v.fieldDecl(n)
		return true, nil
	case "method_invocation":
		v.invocation(n)
		return true, nil
	case "object_creation_expression":
		if t := n.ChildByFieldName("type"); t != nil {
			backend.Call(v.s, v.s.Current().ID, "new "+baseType(t.Utf8Text(v.src)), location(n))
		}
		return true, nil
	case "throw_statement":
		for _, c := range namedChildren(n) {
			if c.Kind() == "object_creation_expression" {
				if t := c.ChildByFieldName("type"); t != nil {
					backend.Throw(v.s, v.s.Current().ID, baseType(t.Utf8Text(v.src)), location(n))
				}
			}
		}
		return true, nil
	}
	return true, nil
}

func (v *javaVisitor) importDecl(n *tree_sitter.Node) {
	var path string
	for _, c := range namedChildren(n) {
		if c.Kind() == "scoped_identifier" || c.Kind() == "identifier" {
			path = c.Utf8Text(v.src)
		}
	}
	if path == "" {
		return
	}
	static := hasToken(n, "static")
	if childOfKind(n, "asterisk") != nil {
		backend.ImportFrom(v.s, backend.Import{Specifier: path, Names: map[string]string{"*": "*"}, Location: location(n)})
		return
	}
	i := strings.LastIndex(path, ".")
	if i < 0 {
		backend.ImportFrom(v.s, backend.Import{Specifier: path, Location: location(n)})
		return
	}
	// import a.b.C binds C from package a.b; a static import binds a member
	// of class a.b.C.
	module, name := path[:i], path[i+1:]
	if !static {
		module, name = path, path[i+1:]
	}
	backend.ImportFrom(v.s, backend.Import{Specifier: module, Names: map[string]string{name: name}, Location: location(n)})
}

func (v *javaVisitor) typeDecl(n *tree_sitter.Node, kind graph.ComponentKind) (bool, func()) {
	name := field(n, "name", v.src)
	if name == "" {
		return true, nil
	}
	meta := v.modifiers(n)
	if n.Kind() == "record_declaration" {
		meta["record"] = true
	}
	if n.Kind() == "annotation_type_declaration" {
		meta["annotation"] = true
	}
	if doc := javadoc(n, v.src); doc != "" {
		meta[graph.MetaDoc] = doc
	}
	c := v.s.Declare(backend.Decl{Kind: kind, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: meta})

	if sc := n.ChildByFieldName("superclass"); sc != nil {
		for _, t := range namedChildren(sc) {
			v.s.Refer(graph.RelExtends, c.ID, baseType(t.Utf8Text(v.src)), locPtr(t), nil)
		}
	}
	if si := n.ChildByFieldName("interfaces"); si != nil {
		v.typeList(si, c.ID, graph.RelImplements)
	}
	if ext := childOfKind(n, "extends_interfaces"); ext != nil {
		v.typeList(ext, c.ID, graph.RelExtends)
	}
	if params := n.ChildByFieldName("parameters"); params != nil && n.Kind() == "record_declaration" {
		pop := v.s.Push(c)
		for _, p := range childrenOfKind(params, "formal_parameter") {
			if pn := field(p, "name", v.src); pn != "" {
				v.s.Declare(backend.Decl{Kind: graph.KindProperty, Name: pn, Location: location(p), Code: p.Utf8Text(v.src),
					Metadata: map[string]any{"type": field(p, "type", v.src), graph.MetaVisibility: "private"}})
			}
		}
		pop()
	}
	return true, v.s.Push(c)
}

func (v *javaVisitor) typeList(n *tree_sitter.Node, id string, kind graph.RelationshipKind) {
	list := childOfKind(n, "type_list")
	if list == nil {
		return
	}
	for _, t := range namedChildren(list) {
		v.s.Refer(kind, id, baseType(t.Utf8Text(v.src)), locPtr(t), nil)
	}
}

func (v *javaVisitor) method(n *tree_sitter.Node) (bool, func()) {
	name := field(n, "name", v.src)
	if name == "" {
		return true, nil
	}
	kind := graph.KindMethod
	if n.Kind() != "method_declaration" {
		kind = graph.KindConstructor
	}
	meta := v.modifiers(n)
	if v.s.Current().Kind == graph.KindInterface && n.ChildByFieldName("body") == nil {
		meta[graph.MetaAbstract] = true
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		var names []string
		for _, p := range childrenOfKind(params, "formal_parameter", "spread_parameter") {
			if pn := field(p, "name", v.src); pn != "" {
				names = append(names, pn)
			} else if d := childOfKind(p, "variable_declarator"); d != nil {
				names = append(names, field(d, "name", v.src))
			}
		}
		meta[graph.MetaParameters] = names
	}
	if rt := field(n, "type", v.src); rt != "" {
		meta[graph.MetaReturnType] = rt
	}
	if doc := javadoc(n, v.src); doc != "" {
		meta[graph.MetaDoc] = doc
	}
	c := v.s.Declare(backend.Decl{Kind: kind, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: meta})
	if throws := childOfKind(n, "throws"); throws != nil {
		for _, t := range namedChildren(throws) {
			backend.Throw(v.s, c.ID, baseType(t.Utf8Text(v.src)), location(t))
		}
	}
	if rt := n.ChildByFieldName("type"); rt != nil && rt.Kind() == "type_identifier" {
		v.s.Refer(graph.RelUses, c.ID, rt.Utf8Text(v.src), locPtr(rt), nil)
	}
	return true, v.s.Push(c)
}

func (v *javaVisitor) fieldDecl(n *tree_sitter.Node) {
	meta := v.modifiers(n)
	typ := n.ChildByFieldName("type")
	if typ != nil {
		meta["type"] = typ.Utf8Text(v.src)
	}
	kind := graph.KindProperty
	if meta[graph.MetaStatic] == true && meta["final"] == true || n.Kind() == "constant_declaration" {
		kind = graph.KindConstant
	}
	for _, d := range fieldNodes(n, "declarator") {
		name := field(&d, "name", v.src)
		if name == "" {
			continue
		}
		c := v.s.Declare(backend.Decl{Kind: kind, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: meta})
		if typ != nil {
			if t := baseType(typ.Utf8Text(v.src)); t != "" && typ.Kind() != "integral_type" && typ.Kind() != "boolean_type" && typ.Kind() != "floating_point_type" {
				v.s.Refer(graph.RelUses, c.ID, t, locPtr(typ), nil)
			}
		}
	}
}

func (v *javaVisitor) invocation(n *tree_sitter.Node) {
	name := field(n, "name", v.src)
	if name == "" {
		return
	}
	callee := name
	if obj := n.ChildByFieldName("object"); obj != nil {
		switch obj.Kind() {
		case "identifier", "field_access", "this", "super", "scoped_identifier":
			callee = obj.Utf8Text(v.src) + "." + name
		default:
			callee = snippet(obj.Utf8Text(v.src)) + "." + name
		}
	}
	backend.Call(v.s, v.s.Current().ID, callee, location(n))
}

// modifiers returns visibility, static, abstract, final and annotations.
func (v *javaVisitor) modifiers(n *tree_sitter.Node) map[string]any {
	meta := map[string]any{graph.MetaVisibility: "package"}
	if v.s.Current().Kind == graph.KindInterface {
		meta[graph.MetaVisibility] = "public"
	}
	mods := childOfKind(n, "modifiers")
	if mods == nil {
		meta[graph.MetaExported] = false
		return meta
	}
	var annotations []string
	for i := uint(0); i < mods.ChildCount(); i++ {
		c := mods.Child(i)
		switch k := c.Kind(); k {
		case "public", "private", "protected":
			meta[graph.MetaVisibility] = k
		case "static":
			meta[graph.MetaStatic] = true
		case "abstract":
			meta[graph.MetaAbstract] = true
		case "final", "synchronized", "default":
			meta[k] = true
		case "marker_annotation", "annotation":
			annotations = append(annotations, strings.TrimPrefix(c.Utf8Text(v.src), "@"))
		}
	}
	if len(annotations) > 0 {
		meta["annotations"] = annotations
	}
	meta[graph.MetaExported] = meta[graph.MetaVisibility] == "public"
	return meta
}

// javadoc returns the /** */ block comment directly above n.
func javadoc(n *tree_sitter.Node, src []byte) string {
	prev := n.PrevNamedSibling()
	if prev == nil || prev.Kind() != "block_comment" {
		return ""
	}
	text := prev.Utf8Text(src)
	if !strings.HasPrefix(text, "/**") {
		return ""
	}
	text = strings.TrimSuffix(strings.TrimPrefix(text, "/**"), "*/")
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "*"))
		if l != "" && !strings.HasPrefix(l, "@") {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}
