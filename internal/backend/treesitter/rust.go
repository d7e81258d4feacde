package treesitter

import (
	"strconv"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// rsExtractor extracts Rust source files structurally. Inline modules nest
// qualified names with "::"; functions in impl blocks become methods of the
// implemented type.
type rsExtractor struct{}

func (e *rsExtractor) extract(s *backend.Session, root *tree_sitter.Node, src []byte) {
	v := &rsVisitor{s: s, src: src}
	walkTree(root, v.visit)
}

type rsVisitor struct {
	s   *backend.Session
	src []byte
}

func (v *rsVisitor) visit(n *tree_sitter.Node) (bool, func()) {
	switch n.Kind() {
	case "mod_item":
		name := field(n, "name", v.src)
		if name == "" {
			return true, nil
		}
		c := v.s.Declare(backend.Decl{Kind: graph.KindModule, Name: name, Location: location(n), Metadata: v.common(n)})
		return true, v.s.Push(c)
	case "struct_item", "union_item":
		v.structItem(n)
		return false, nil
	case "enum_item":
		v.enumItem(n)
		return false, nil
	case "trait_item":
		return v.traitItem(n)
	case "type_item":
		if name := field(n, "name", v.src); name != "" {
			c := v.s.Declare(backend.Decl{Kind: graph.KindType, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: v.common(n)})
			if t := n.ChildByFieldName("type"); t != nil {
				v.s.Refer(graph.RelReferences, c.ID, baseType(t.Utf8Text(v.src)), locPtr(t), nil)
			}
		}
		return false, nil
	case "impl_item":
		v.implItem(n)
		return false, nil
	case "function_item", "function_signature_item":
		return v.function(n)
	case "const_item", "static_item":
		v.value(n)
		return true, nil
	case "use_declaration":
		if arg := n.ChildByFieldName("argument"); arg != nil {
			v.use("", arg, location(n))
		}
		return false, nil
	case "call_expression":
		v.call(n)
		return true, nil
	case "struct_expression":
		if name := field(n, "name", v.src); name != "" {
			backend.Call(v.s, v.s.Current().ID, "new "+baseType(name), location(n))
		}
		return true, nil
	}
	return true, nil
}

func (v *rsVisitor) common(n *tree_sitter.Node) map[string]any {
	meta := map[string]any{}
	vis := "private"
	if m := childOfKind(n, "visibility_modifier"); m != nil {
		vis = m.Utf8Text(v.src)
	}
	meta[graph.MetaVisibility] = vis
	meta[graph.MetaExported] = strings.HasPrefix(vis, "pub")
	if doc := rsDoc(n, v.src); doc != "" {
		meta[graph.MetaDoc] = doc
	}
	if attrs := rsAttributes(n, v.src); len(attrs) > 0 {
		meta["attributes"] = attrs
	}
	return meta
}

func (v *rsVisitor) structItem(n *tree_sitter.Node) {
	name := field(n, "name", v.src)
	if name == "" {
		return
	}
	c := v.s.Declare(backend.Decl{Kind: graph.KindStruct, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: v.common(n)})
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	defer v.s.Push(c)()
	if body.Kind() == "ordered_field_declaration_list" {
		// Tuple struct: fields are positional.
		for i, t := range fieldNodes(body, "type") {
			meta := map[string]any{"type": t.Utf8Text(v.src)}
			p := v.s.Declare(backend.Decl{Kind: graph.KindProperty, Name: strconv.Itoa(i), Location: location(&t), Metadata: meta})
			v.fieldUse(p.ID, &t)
		}
		return
	}
	for _, fd := range childrenOfKind(body, "field_declaration") {
		fname := field(fd, "name", v.src)
		if fname == "" {
			continue
		}
		meta := v.common(fd)
		if t := fd.ChildByFieldName("type"); t != nil {
			meta["type"] = t.Utf8Text(v.src)
		}
		p := v.s.Declare(backend.Decl{Kind: graph.KindProperty, Name: fname, Location: location(fd), Code: fd.Utf8Text(v.src), Metadata: meta})
		if t := fd.ChildByFieldName("type"); t != nil {
			v.fieldUse(p.ID, t)
		}
	}
}

func (v *rsVisitor) fieldUse(id string, t *tree_sitter.Node) {
	walkTree(t, func(c *tree_sitter.Node) (bool, func()) {
		switch c.Kind() {
		case "type_identifier", "scoped_type_identifier":
			v.s.Refer(graph.RelUses, id, c.Utf8Text(v.src), locPtr(c), nil)
			return false, nil
		}
		return true, nil
	})
}

func (v *rsVisitor) enumItem(n *tree_sitter.Node) {
	name := field(n, "name", v.src)
	if name == "" {
		return
	}
	c := v.s.Declare(backend.Decl{Kind: graph.KindEnum, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: v.common(n)})
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	defer v.s.Push(c)()
	for _, variant := range childrenOfKind(body, "enum_variant") {
		if vn := field(variant, "name", v.src); vn != "" {
			v.s.Declare(backend.Decl{Kind: graph.KindConstant, Name: vn, Location: location(variant), Code: variant.Utf8Text(v.src)})
		}
	}
}

func (v *rsVisitor) traitItem(n *tree_sitter.Node) (bool, func()) {
	name := field(n, "name", v.src)
	if name == "" {
		return true, nil
	}
	c := v.s.Declare(backend.Decl{Kind: graph.KindTrait, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: v.common(n)})
	if bounds := n.ChildByFieldName("bounds"); bounds != nil {
		for _, b := range namedChildren(bounds) {
			if b.Kind() == "type_identifier" || b.Kind() == "scoped_type_identifier" {
				v.s.Refer(graph.RelExtends, c.ID, b.Utf8Text(v.src), locPtr(b), nil)
			}
		}
	}
	return true, v.s.Push(c)
}

// implItem attaches the functions of an impl block to the implemented type.
// A trait impl also emits IMPLEMENTS from the type to the trait.
func (v *rsVisitor) implItem(n *tree_sitter.Node) {
	typNode := n.ChildByFieldName("type")
	if typNode == nil {
		return
	}
	typ := baseType(typNode.Utf8Text(v.src))
	trait := ""
	if t := n.ChildByFieldName("trait"); t != nil {
		trait = baseType(t.Utf8Text(v.src))
	}

	var owner graph.Component
	found := false
	if id, ok := v.s.Lookup(v.s.Qualify(typ)); ok {
		owner, found = v.s.Component(id)
	}
	if trait != "" {
		source := v.s.File().ID
		if found {
			source = owner.ID
		}
		v.s.Refer(graph.RelImplements, source, trait, locPtr(n), map[string]any{"implementor": typ})
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	if found {
		defer v.s.Push(owner)()
	}
	for _, item := range namedChildren(body) {
		switch item.Kind() {
		case "function_item":
			qualified := ""
			if !found {
				qualified = v.s.Qualify(typ + "::" + field(item, "name", v.src))
			}
			_, pop := v.method(item, trait, qualified)
			if pop != nil {
				if fb := item.ChildByFieldName("body"); fb != nil {
					walkTree(fb, v.visit)
				}
				pop()
			}
		case "const_item":
			v.value(item)
		default:
			walkTree(item, v.visit)
		}
	}
}

func (v *rsVisitor) function(n *tree_sitter.Node) (bool, func()) {
	if v.s.Current().Kind == graph.KindTrait {
		return v.method(n, "", "")
	}
	name := field(n, "name", v.src)
	if name == "" {
		return true, nil
	}
	meta := v.common(n)
	v.signature(n, meta)
	c := v.s.Declare(backend.Decl{Kind: graph.KindFunction, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: meta})
	return true, v.s.Push(c)
}

func (v *rsVisitor) method(n *tree_sitter.Node, trait, qualified string) (bool, func()) {
	name := field(n, "name", v.src)
	if name == "" {
		return true, nil
	}
	meta := v.common(n)
	v.signature(n, meta)
	if trait != "" {
		meta["trait"] = trait
	}
	if n.Kind() == "function_signature_item" {
		meta[graph.MetaAbstract] = true
	}
	kind := graph.KindMethod
	if params := n.ChildByFieldName("parameters"); params != nil && childOfKind(params, "self_parameter") == nil {
		meta[graph.MetaStatic] = true
		if name == "new" {
			kind = graph.KindConstructor
		}
	}
	c := v.s.Declare(backend.Decl{Kind: kind, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: meta, Qualified: qualified})
	return true, v.s.Push(c)
}

func (v *rsVisitor) signature(n *tree_sitter.Node, meta map[string]any) {
	if hasToken(n, "async") || rsHasModifier(n, "async") {
		meta[graph.MetaAsync] = true
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		var names []string
		for _, p := range namedChildren(params) {
			switch p.Kind() {
			case "self_parameter":
				names = append(names, "self")
			case "parameter":
				names = append(names, field(p, "pattern", v.src))
			}
		}
		meta[graph.MetaParameters] = names
	}
	if rt := field(n, "return_type", v.src); rt != "" {
		meta[graph.MetaReturnType] = rt
	}
}

func (v *rsVisitor) value(n *tree_sitter.Node) {
	name := field(n, "name", v.src)
	if name == "" {
		return
	}
	kind := graph.KindConstant
	meta := v.common(n)
	if n.Kind() == "static_item" {
		kind = graph.KindVariable
		meta[graph.MetaStatic] = true
	}
	if t := field(n, "type", v.src); t != "" {
		meta["type"] = t
	}
	v.s.Declare(backend.Decl{Kind: kind, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: meta})
}

// use flattens a use tree into one import per module path.
func (v *rsVisitor) use(prefix string, n *tree_sitter.Node, loc graph.Location) {
	join := func(a, b string) string {
		if a == "" {
			return b
		}
		return a + "::" + b
	}
	switch n.Kind() {
	case "identifier", "scoped_identifier", "crate", "self", "super":
		path := join(prefix, n.Utf8Text(v.src))
		module, name := splitRustPath(path)
		if module == "" {
			backend.ImportFrom(v.s, backend.Import{Specifier: path, Names: map[string]string{name: "*"}, Location: loc})
			return
		}
		backend.ImportFrom(v.s, backend.Import{Specifier: module, Names: map[string]string{name: name}, Location: loc})
	case "use_as_clause":
		path := join(prefix, field(n, "path", v.src))
		alias := field(n, "alias", v.src)
		module, name := splitRustPath(path)
		if module == "" {
			module, name = path, "*"
		}
		backend.ImportFrom(v.s, backend.Import{Specifier: module, Names: map[string]string{alias: name}, Location: loc})
	case "use_wildcard":
		path := strings.TrimSuffix(join(prefix, n.Utf8Text(v.src)), "::*")
		backend.ImportFrom(v.s, backend.Import{Specifier: path, Names: map[string]string{"*": "*"}, Location: loc})
	case "scoped_use_list":
		path := join(prefix, field(n, "path", v.src))
		if list := n.ChildByFieldName("list"); list != nil {
			for _, item := range namedChildren(list) {
				if item.Kind() == "self" {
					_, name := splitRustPath(path)
					backend.ImportFrom(v.s, backend.Import{Specifier: path, Names: map[string]string{name: "*"}, Location: loc})
					continue
				}
				v.use(path, item, loc)
			}
		}
	case "use_list":
		for _, item := range namedChildren(n) {
			v.use(prefix, item, loc)
		}
	}
}

func (v *rsVisitor) call(n *tree_sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	switch fn.Kind() {
	case "identifier", "scoped_identifier", "field_expression":
		callee := fn.Utf8Text(v.src)
		// Type::new(..) constructs Type.
		if typ, ok := strings.CutSuffix(callee, "::new"); ok && typ != "" && !strings.Contains(typ, ".") {
			backend.Call(v.s, v.s.Current().ID, "new "+typ, location(n))
			return
		}
		backend.Call(v.s, v.s.Current().ID, callee, location(n))
	case "generic_function":
		if f := fn.ChildByFieldName("function"); f != nil {
			backend.Call(v.s, v.s.Current().ID, f.Utf8Text(v.src), location(n))
		}
	}
}

func splitRustPath(path string) (module, name string) {
	i := strings.LastIndex(path, "::")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+2:]
}

// rsDoc collects the /// comments directly above n, skipping attributes.
func rsDoc(n *tree_sitter.Node, src []byte) string {
	var lines []string
	end := n.StartPosition().Row
	for prev := n.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		if prev.EndPosition().Row+1 < end {
			break
		}
		end = prev.StartPosition().Row
		if prev.Kind() == "attribute_item" {
			continue
		}
		text := prev.Utf8Text(src)
		if prev.Kind() != "line_comment" || !strings.HasPrefix(text, "///") {
			break
		}
		lines = append([]string{strings.TrimSpace(strings.TrimPrefix(text, "///"))}, lines...)
	}
	return strings.Join(lines, "\n")
}

func rsAttributes(n *tree_sitter.Node, src []byte) []string {
	var out []string
	for prev := n.PrevNamedSibling(); prev != nil && prev.Kind() == "attribute_item"; prev = prev.PrevNamedSibling() {
		text := strings.TrimSuffix(strings.TrimPrefix(prev.Utf8Text(src), "#["), "]")
		out = append([]string{text}, out...)
	}
	return out
}

func rsHasModifier(n *tree_sitter.Node, mod string) bool {
	if m := childOfKind(n, "function_modifiers"); m != nil {
		return hasToken(m, mod)
	}
	return false
}
