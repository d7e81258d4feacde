package treesitter

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// tsExtractor extracts TypeScript and JavaScript. Declarations are parented
// through the session's scope stack (file, namespace, class, function), and
// references to types and functions are resolved against the file's own
// declarations when the session finishes.
type tsExtractor struct{}

func (e *tsExtractor) extract(s *backend.Session, root *tree_sitter.Node, src []byte) {
	v := &tsVisitor{s: s, src: src}
	walkTree(root, v.visit)
}

type tsVisitor struct {
	s   *backend.Session
	src []byte
}

func (v *tsVisitor) visit(n *tree_sitter.Node) (bool, func()) {
	switch n.Kind() {
	case "import_statement":
		v.importStatement(n)
		return false, nil
	case "export_statement":
		v.exportStatement(n)
		return true, nil
	case "class_declaration", "abstract_class_declaration", "class":
		return v.class(n, field(n, "name", v.src))
	case "interface_declaration":
		return v.iface(n)
	case "enum_declaration":
		v.enum(n)
		return false, nil
	case "type_alias_declaration":
		v.typeAlias(n)
		return false, nil
	case "internal_module", "module":
		return v.namespace(n)
	case "function_declaration", "generator_function_declaration":
		return v.function(n, field(n, "name", v.src), graph.KindFunction, n)
	case "method_definition", "method_signature", "abstract_method_signature":
		return v.method(n)
	case "public_field_definition", "property_signature":
		return v.property(n)
	case "lexical_declaration", "variable_declaration":
		return v.variables(n)
	case "call_expression":
		return v.call(n), nil
	case "new_expression":
		if ctor := n.ChildByFieldName("constructor"); ctor != nil {
			backend.Call(v.s, v.owner(), "new "+ctor.Utf8Text(v.src), location(n))
		}
		return true, nil
	case "throw_statement":
		v.throw(n)
		return true, nil
	}
	return true, nil
}

// owner is the component that usages found at the current position belong to.
func (v *tsVisitor) owner() string { return v.s.Current().ID }

// --- Imports and exports ---

func (v *tsVisitor) importStatement(n *tree_sitter.Node) {
	spec := unquote(field(n, "source", v.src))
	names := make(map[string]string)

	if clause := childOfKind(n, "import_clause"); clause != nil {
		for _, c := range namedChildren(clause) {
			switch c.Kind() {
			case "identifier":
				names[c.Utf8Text(v.src)] = "default"
			case "namespace_import":
				if id := childOfKind(c, "identifier"); id != nil {
					names[id.Utf8Text(v.src)] = "*"
				}
			case "named_imports":
				for _, spec := range childrenOfKind(c, "import_specifier") {
					imported := field(spec, "name", v.src)
					local := field(spec, "alias", v.src)
					if local == "" {
						local = imported
					}
					names[local] = imported
				}
			}
		}
	}
	if req := childOfKind(n, "import_require_clause"); req != nil {
		if spec == "" {
			spec = unquote(field(req, "source", v.src))
		}
		if id := childOfKind(req, "identifier"); id != nil {
			names[id.Utf8Text(v.src)] = "*"
		}
	}
	backend.ImportFrom(v.s, backend.Import{Specifier: spec, Names: names, Location: location(n)})
}

func (v *tsVisitor) exportStatement(n *tree_sitter.Node) {
	loc := location(n)
	source := unquote(field(n, "source", v.src))

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		for _, name := range declaredNames(decl, v.src) {
			backend.Export(v.s, name, loc)
		}
		return
	}
	if clause := childOfKind(n, "export_clause"); clause != nil {
		reexports := make(map[string]string)
		for _, spec := range childrenOfKind(clause, "export_specifier") {
			local := field(spec, "name", v.src)
			exported := field(spec, "alias", v.src)
			if exported == "" {
				exported = local
			}
			if source != "" {
				reexports[exported] = local
			}
			backend.Export(v.s, local, loc)
		}
		if source != "" {
			backend.ImportFrom(v.s, backend.Import{Specifier: source, Names: reexports, Location: loc})
		}
		return
	}
	if source != "" {
		// export * from "./x"
		backend.ImportFrom(v.s, backend.Import{Specifier: source, Location: loc})
		return
	}
	if val := n.ChildByFieldName("value"); val != nil && val.Kind() == "identifier" {
		backend.Export(v.s, val.Utf8Text(v.src), loc)
	}
}

// declaredNames returns the names a declaration introduces.
func declaredNames(decl *tree_sitter.Node, src []byte) []string {
	switch decl.Kind() {
	case "lexical_declaration", "variable_declaration":
		var out []string
		for _, d := range childrenOfKind(decl, "variable_declarator") {
			if name := d.ChildByFieldName("name"); name != nil && name.Kind() == "identifier" {
				out = append(out, name.Utf8Text(src))
			}
		}
		return out
	}
	if name := field(decl, "name", src); name != "" {
		return []string{unquote(name)}
	}
	return nil
}

// --- Declarations ---

func (v *tsVisitor) class(n *tree_sitter.Node, name string) (bool, func()) {
	if name == "" {
		return true, nil
	}
	meta := v.common(n)
	if n.Kind() == "abstract_class_declaration" {
		meta[graph.MetaAbstract] = true
	}
	if tp := typeParameters(n, v.src); len(tp) > 0 {
		meta["typeParameters"] = tp
	}
	c := v.s.Declare(backend.Decl{
		Kind:     graph.KindClass,
		Name:     name,
		Location: location(n),
		Code:     n.Utf8Text(v.src),
		Metadata: meta,
	})

	if h := childOfKind(n, "class_heritage"); h != nil {
		for _, clause := range namedChildren(h) {
			switch clause.Kind() {
			case "extends_clause":
				for _, val := range namedChildren(clause) {
					if val.Kind() != "type_arguments" {
						v.s.Refer(graph.RelExtends, c.ID, baseType(val.Utf8Text(v.src)), locPtr(val), nil)
					}
				}
			case "implements_clause":
				for _, t := range namedChildren(clause) {
					v.s.Refer(graph.RelImplements, c.ID, baseType(t.Utf8Text(v.src)), locPtr(t), nil)
				}
			default:
				// JavaScript grammars put the base expression directly in the heritage.
				v.s.Refer(graph.RelExtends, c.ID, baseType(clause.Utf8Text(v.src)), locPtr(clause), nil)
			}
		}
	}
	return true, v.s.Push(c)
}

func (v *tsVisitor) iface(n *tree_sitter.Node) (bool, func()) {
	name := field(n, "name", v.src)
	if name == "" {
		return true, nil
	}
	meta := v.common(n)
	if tp := typeParameters(n, v.src); len(tp) > 0 {
		meta["typeParameters"] = tp
	}
	c := v.s.Declare(backend.Decl{
		Kind:     graph.KindInterface,
		Name:     name,
		Location: location(n),
		Code:     n.Utf8Text(v.src),
		Metadata: meta,
	})
	if ext := childOfKind(n, "extends_type_clause"); ext != nil {
		for _, t := range namedChildren(ext) {
			v.s.Refer(graph.RelExtends, c.ID, baseType(t.Utf8Text(v.src)), locPtr(t), nil)
		}
	}
	return true, v.s.Push(c)
}

func (v *tsVisitor) enum(n *tree_sitter.Node) {
	name := field(n, "name", v.src)
	if name == "" {
		return
	}
	meta := v.common(n)
	if hasToken(n, "const") {
		meta["const"] = true
	}
	c := v.s.Declare(backend.Decl{
		Kind:     graph.KindEnum,
		Name:     name,
		Location: location(n),
		Code:     n.Utf8Text(v.src),
		Metadata: meta,
	})
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	defer v.s.Push(c)()
	for _, m := range namedChildren(body) {
		var member string
		switch m.Kind() {
		case "property_identifier", "string":
			member = m.Utf8Text(v.src)
		case "enum_assignment":
			member = field(m, "name", v.src)
		}
		if member = unquote(member); member != "" {
			v.s.Declare(backend.Decl{Kind: graph.KindConstant, Name: member, Location: location(m), Code: m.Utf8Text(v.src)})
		}
	}
}

func (v *tsVisitor) typeAlias(n *tree_sitter.Node) {
	name := field(n, "name", v.src)
	if name == "" {
		return
	}
	c := v.s.Declare(backend.Decl{
		Kind:     graph.KindType,
		Name:     name,
		Location: location(n),
		Code:     n.Utf8Text(v.src),
		Metadata: v.common(n),
	})
	if val := n.ChildByFieldName("value"); val != nil {
		skip := setOf(typeParameters(n, v.src))
		for _, ref := range typeRefs(val, v.src) {
			if !skip[ref.name] && ref.name != name {
				v.s.Refer(graph.RelReferences, c.ID, ref.name, ref.loc, nil)
			}
		}
	}
}

func (v *tsVisitor) namespace(n *tree_sitter.Node) (bool, func()) {
	raw := field(n, "name", v.src)
	if raw == "" {
		return true, nil
	}
	kind := graph.KindNamespace
	name := raw
	if strings.ContainsAny(raw, "\"'") {
		// declare module "pkg" describes an external module.
		kind, name = graph.KindModule, unquote(raw)
	}
	c := v.s.Declare(backend.Decl{
		Kind:     kind,
		Name:     name,
		Location: location(n),
		Metadata: v.common(n),
	})
	return true, v.s.Push(c)
}

// function declares a function-like component and pushes it so that usages
// in its body are attributed to it. sig is the node carrying parameters and
// return type, which differs from n for arrow functions bound to variables.
func (v *tsVisitor) function(n *tree_sitter.Node, name string, kind graph.ComponentKind, sig *tree_sitter.Node) (bool, func()) {
	if name == "" {
		return true, nil
	}
	meta := v.common(n)
	v.signature(sig, meta)
	c := v.s.Declare(backend.Decl{
		Kind:     kind,
		Name:     name,
		Location: location(n),
		Code:     n.Utf8Text(v.src),
		Metadata: meta,
	})
	v.signatureUses(c.ID, sig)
	return true, v.s.Push(c)
}

func (v *tsVisitor) method(n *tree_sitter.Node) (bool, func()) {
	name := unquote(field(n, "name", v.src))
	if name == "" {
		return true, nil
	}
	kind := graph.KindMethod
	if name == "constructor" {
		kind = graph.KindConstructor
		v.parameterProperties(n)
	}
	meta := v.common(n)
	meta[graph.MetaVisibility] = visibility(n, v.src)
	if hasToken(n, "static") {
		meta[graph.MetaStatic] = true
	}
	if n.Kind() == "abstract_method_signature" || hasToken(n, "abstract") {
		meta[graph.MetaAbstract] = true
	}
	for _, acc := range []string{"get", "set"} {
		if hasToken(n, acc) {
			meta["accessor"] = acc
		}
	}
	v.signature(n, meta)
	c := v.s.Declare(backend.Decl{
		Kind:     kind,
		Name:     name,
		Location: location(n),
		Code:     n.Utf8Text(v.src),
		Metadata: meta,
	})
	v.signatureUses(c.ID, n)
	return true, v.s.Push(c)
}

// parameterProperties declares constructor parameters carrying an
// accessibility modifier, which TypeScript turns into class properties.
func (v *tsVisitor) parameterProperties(ctor *tree_sitter.Node) {
	params := ctor.ChildByFieldName("parameters")
	if params == nil {
		return
	}
	for _, p := range childrenOfKind(params, "required_parameter", "optional_parameter") {
		mod := childOfKind(p, "accessibility_modifier")
		if mod == nil && !hasToken(p, "readonly") {
			continue
		}
		name := field(p, "pattern", v.src)
		if name == "" {
			continue
		}
		meta := map[string]any{graph.MetaVisibility: visibility(p, v.src)}
		if t := typeAnnotation(p, v.src); t != "" {
			meta["type"] = t
		}
		prop := v.s.Declare(backend.Decl{Kind: graph.KindProperty, Name: name, Location: location(p), Code: p.Utf8Text(v.src), Metadata: meta})
		if tn := p.ChildByFieldName("type"); tn != nil {
			for _, ref := range typeRefs(tn, v.src) {
				v.s.Refer(graph.RelUses, prop.ID, ref.name, ref.loc, nil)
			}
		}
	}
}

func (v *tsVisitor) property(n *tree_sitter.Node) (bool, func()) {
	name := unquote(field(n, "name", v.src))
	if name == "" {
		return true, nil
	}
	value := n.ChildByFieldName("value")
	if value != nil && isFunctionValue(value) {
		// handle = () => {...} behaves as a method.
		meta := v.common(n)
		meta[graph.MetaVisibility] = visibility(n, v.src)
		if hasToken(n, "static") {
			meta[graph.MetaStatic] = true
		}
		v.signature(value, meta)
		c := v.s.Declare(backend.Decl{Kind: graph.KindMethod, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: meta})
		v.signatureUses(c.ID, value)
		return true, v.s.Push(c)
	}

	meta := v.common(n)
	meta[graph.MetaVisibility] = visibility(n, v.src)
	if hasToken(n, "static") {
		meta[graph.MetaStatic] = true
	}
	if hasToken(n, "readonly") {
		meta["readonly"] = true
	}
	if t := typeAnnotation(n, v.src); t != "" {
		meta["type"] = t
	}
	c := v.s.Declare(backend.Decl{Kind: graph.KindProperty, Name: name, Location: location(n), Code: n.Utf8Text(v.src), Metadata: meta})
	if tn := n.ChildByFieldName("type"); tn != nil {
		for _, ref := range typeRefs(tn, v.src) {
			v.s.Refer(graph.RelUses, c.ID, ref.name, ref.loc, nil)
		}
	}
	// Initializer usages belong to the class.
	return true, nil
}

// variables declares module-level variables and functions bound to them.
// Locals inside functions are not components; their initializers are still
// walked for usages.
func (v *tsVisitor) variables(n *tree_sitter.Node) (bool, func()) {
	switch v.s.Current().Kind {
	case graph.KindFile, graph.KindNamespace, graph.KindModule:
	default:
		return true, nil
	}
	isConst := hasToken(n, "const")
	for _, d := range childrenOfKind(n, "variable_declarator") {
		v.declarator(n, d, isConst)
	}
	return false, nil
}

func (v *tsVisitor) declarator(decl, d *tree_sitter.Node, isConst bool) {
	nameNode := d.ChildByFieldName("name")
	value := d.ChildByFieldName("value")
	if nameNode == nil || nameNode.Kind() != "identifier" {
		if value != nil {
			walkTree(value, v.visit)
		}
		return
	}
	name := nameNode.Utf8Text(v.src)

	if value != nil {
		switch {
		case isFunctionValue(value):
			_, pop := v.function(d, name, graph.KindFunction, value)
			func() {
				defer pop()
				v.s.SetMetadata(v.s.Current().ID, graph.MetaExported, isExported(decl))
				walkTree(value, v.visit)
			}()
			return
		case value.Kind() == "class":
			_, pop := v.class(value, name)
			if pop != nil {
				func() {
					defer pop()
					walkTree(value, v.visit)
				}()
			}
			return
		case isRequire(value, v.src):
			arg := firstStringArg(value, v.src)
			backend.ImportFrom(v.s, backend.Import{Specifier: arg, Names: map[string]string{name: "*"}, Location: location(decl)})
			return
		}
	}

	kind := graph.KindVariable
	if isConst {
		kind = graph.KindConstant
	}
	meta := map[string]any{graph.MetaExported: isExported(decl)}
	if t := typeAnnotation(d, v.src); t != "" {
		meta["type"] = t
	}
	if doc := docComment(decl, v.src); doc != "" {
		meta[graph.MetaDoc] = doc
	}
	v.s.Declare(backend.Decl{Kind: kind, Name: name, Location: location(d), Code: d.Utf8Text(v.src), Metadata: meta})
	if value != nil {
		walkTree(value, v.visit)
	}
}

// --- Usages ---

func (v *tsVisitor) call(n *tree_sitter.Node) bool {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return true
	}
	loc := location(n)
	switch fn.Kind() {
	case "import":
		if spec := firstStringArg(n, v.src); spec != "" {
			backend.ImportFrom(v.s, backend.Import{Specifier: spec, Location: loc})
		}
	case "identifier":
		if fn.Utf8Text(v.src) == "require" {
			if spec := firstStringArg(n, v.src); spec != "" {
				backend.ImportFrom(v.s, backend.Import{Specifier: spec, Location: loc})
				return false
			}
		}
		backend.Call(v.s, v.owner(), fn.Utf8Text(v.src), loc)
	case "member_expression":
		backend.Call(v.s, v.owner(), fn.Utf8Text(v.src), loc)
	case "call_expression", "subscript_expression":
		backend.Call(v.s, v.owner(), snippet(fn.Utf8Text(v.src)), loc)
	}
	return true
}

func (v *tsVisitor) throw(n *tree_sitter.Node) {
	for _, c := range namedChildren(n) {
		if c.Kind() == "new_expression" {
			if ctor := c.ChildByFieldName("constructor"); ctor != nil {
				backend.Throw(v.s, v.owner(), ctor.Utf8Text(v.src), location(n))
			}
		}
	}
}

// --- Metadata helpers ---

// common returns the metadata every declaration carries: export status,
// decorators and doc comment.
func (v *tsVisitor) common(n *tree_sitter.Node) map[string]any {
	meta := map[string]any{graph.MetaExported: isExported(n)}
	var decorators []string
	for _, d := range childrenOfKind(n, "decorator") {
		decorators = append(decorators, strings.TrimPrefix(d.Utf8Text(v.src), "@"))
	}
	if p := n.Parent(); p != nil && p.Kind() == "export_statement" {
		for _, d := range childrenOfKind(p, "decorator") {
			decorators = append(decorators, strings.TrimPrefix(d.Utf8Text(v.src), "@"))
		}
	}
	if len(decorators) > 0 {
		meta["decorators"] = decorators
	}
	if doc := docComment(n, v.src); doc != "" {
		meta[graph.MetaDoc] = doc
	}
	if hasToken(n, "async") {
		meta[graph.MetaAsync] = true
	}
	return meta
}

// signature records parameters and return type of a function-like node.
func (v *tsVisitor) signature(n *tree_sitter.Node, meta map[string]any) {
	if hasToken(n, "async") {
		meta[graph.MetaAsync] = true
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		var names []string
		for _, p := range namedChildren(params) {
			if name := field(p, "pattern", v.src); name != "" {
				names = append(names, name)
			}
		}
		meta[graph.MetaParameters] = names
	} else if p := n.ChildByFieldName("parameter"); p != nil {
		// x => x + 1
		meta[graph.MetaParameters] = []string{p.Utf8Text(v.src)}
	}
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		meta[graph.MetaReturnType] = strings.TrimSpace(strings.TrimPrefix(rt.Utf8Text(v.src), ":"))
	}
}

// signatureUses emits USES from a function to the types named in its
// parameter and return annotations, skipping its own type parameters.
func (v *tsVisitor) signatureUses(id string, n *tree_sitter.Node) {
	skip := setOf(typeParameters(n, v.src))
	if c, ok := v.s.Enclosing(graph.KindClass, graph.KindInterface); ok {
		if tps, ok := c.Metadata["typeParameters"].([]string); ok {
			for _, tp := range tps {
				skip[tp] = true
			}
		}
	}
	emit := func(t *tree_sitter.Node) {
		for _, ref := range typeRefs(t, v.src) {
			if !skip[ref.name] {
				v.s.Refer(graph.RelUses, id, ref.name, ref.loc, nil)
			}
		}
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		for _, p := range namedChildren(params) {
			if t := p.ChildByFieldName("type"); t != nil {
				emit(t)
			}
		}
	}
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		emit(rt)
	}
}

type typeRef struct {
	name string
	loc  *graph.Location
}

// typeRefs collects the user-defined type names mentioned in a type
// annotation. Predefined types are not type_identifier nodes.
func typeRefs(n *tree_sitter.Node, src []byte) []typeRef {
	var out []typeRef
	seen := make(map[string]bool)
	walkTree(n, func(c *tree_sitter.Node) (bool, func()) {
		switch c.Kind() {
		case "type_identifier", "nested_type_identifier":
			name := c.Utf8Text(src)
			if !seen[name] {
				seen[name] = true
				out = append(out, typeRef{name: name, loc: locPtr(c)})
			}
			return false, nil
		}
		return true, nil
	})
	return out
}

func typeParameters(n *tree_sitter.Node, src []byte) []string {
	tp := n.ChildByFieldName("type_parameters")
	if tp == nil {
		return nil
	}
	var out []string
	for _, p := range childrenOfKind(tp, "type_parameter") {
		if name := field(p, "name", src); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func typeAnnotation(n *tree_sitter.Node, src []byte) string {
	if t := n.ChildByFieldName("type"); t != nil {
		return strings.TrimSpace(strings.TrimPrefix(t.Utf8Text(src), ":"))
	}
	return ""
}

func visibility(n *tree_sitter.Node, src []byte) string {
	if m := childOfKind(n, "accessibility_modifier"); m != nil {
		return m.Utf8Text(src)
	}
	if name := n.ChildByFieldName("name"); name != nil && name.Kind() == "private_property_identifier" {
		return "private"
	}
	return "public"
}

// isExported reports whether n is the declaration of an export statement.
func isExported(n *tree_sitter.Node) bool {
	p := n.Parent()
	return p != nil && p.Kind() == "export_statement"
}

// docComment returns the /** */ comment directly above n or its export
// statement.
func docComment(n *tree_sitter.Node, src []byte) string {
	target := n
	if isExported(n) {
		target = n.Parent()
	}
	prev := target.PrevNamedSibling()
	if prev == nil || prev.Kind() != "comment" {
		return ""
	}
	text := prev.Utf8Text(src)
	if !strings.HasPrefix(text, "/**") || prev.EndPosition().Row+1 < target.StartPosition().Row {
		return ""
	}
	text = strings.TrimSuffix(strings.TrimPrefix(text, "/**"), "*/")
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "*"))
		if l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

func isFunctionValue(n *tree_sitter.Node) bool {
	switch n.Kind() {
	case "arrow_function", "function_expression", "function", "generator_function":
		return true
	}
	return false
}

func isRequire(n *tree_sitter.Node, src []byte) bool {
	if n.Kind() != "call_expression" {
		return false
	}
	fn := n.ChildByFieldName("function")
	return fn != nil && fn.Kind() == "identifier" && fn.Utf8Text(src) == "require" && firstStringArg(n, src) != ""
}

func firstStringArg(call *tree_sitter.Node, src []byte) string {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for _, a := range namedChildren(args) {
		if a.Kind() == "string" || a.Kind() == "template_string" {
			return unquote(a.Utf8Text(src))
		}
		return ""
	}
	return ""
}

func setOf(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
