package treesitter

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// pyExtractor extracts Python source files structurally: classes, functions,
// methods, module-level assignments, imports and the calls and raises inside
// function bodies.
type pyExtractor struct{}

func (e *pyExtractor) extract(s *backend.Session, root *tree_sitter.Node, src []byte) {
	v := &pyVisitor{s: s, src: src}
	walkTree(root, v.visit)
}

type pyVisitor struct {
	s   *backend.Session
	src []byte
}

func (v *pyVisitor) visit(n *tree_sitter.Node) (bool, func()) {
	switch n.Kind() {
	case "import_statement":
		v.importStatement(n)
		return false, nil
	case "import_from_statement":
		v.importFrom(n)
		return false, nil
	case "class_definition":
		return v.class(n, n)
	case "function_definition":
		return v.function(n, n)
	case "decorated_definition":
		def := n.ChildByFieldName("definition")
		if def == nil {
			return true, nil
		}
		var pop func()
		switch def.Kind() {
		case "class_definition":
			_, pop = v.class(def, n)
		case "function_definition":
			_, pop = v.function(def, n)
		}
		if pop == nil {
			return true, nil
		}
		// The definition was handled here; walk only its body.
		if body := def.ChildByFieldName("body"); body != nil {
			walkTree(body, v.visit)
		}
		for _, d := range childrenOfKind(n, "decorator") {
			walkTree(d, v.visit)
		}
		pop()
		return false, nil
	case "expression_statement":
		if a := childOfKind(n, "assignment"); a != nil && v.atModuleLevel() {
			v.assignment(a)
		}
		return true, nil
	case "call":
		v.call(n)
		return true, nil
	case "raise_statement":
		v.raise(n)
		return true, nil
	}
	return true, nil
}

func (v *pyVisitor) atModuleLevel() bool {
	switch v.s.Current().Kind {
	case graph.KindFile, graph.KindClass:
		return true
	}
	return false
}

func (v *pyVisitor) importStatement(n *tree_sitter.Node) {
	for _, c := range fieldNodes(n, "name") {
		var module, local string
		switch c.Kind() {
		case "dotted_name":
			module = c.Utf8Text(v.src)
			local = strings.SplitN(module, ".", 2)[0]
		case "aliased_import":
			module = field(&c, "name", v.src)
			local = field(&c, "alias", v.src)
		}
		backend.ImportFrom(v.s, backend.Import{
			Specifier: module,
			Names:     map[string]string{local: "*"},
			Location:  location(n),
		})
	}
}

func (v *pyVisitor) importFrom(n *tree_sitter.Node) {
	module := field(n, "module_name", v.src)
	names := make(map[string]string)
	for _, c := range fieldNodes(n, "name") {
		switch c.Kind() {
		case "dotted_name":
			name := c.Utf8Text(v.src)
			names[name] = name
		case "aliased_import":
			names[field(&c, "alias", v.src)] = field(&c, "name", v.src)
		}
	}
	if childOfKind(n, "wildcard_import") != nil {
		names["*"] = "*"
	}
	backend.ImportFrom(v.s, backend.Import{Specifier: module, Names: names, Location: location(n)})
}

// class declares a class. outer is the node carrying decorators, which is
// the class itself when it has none.
func (v *pyVisitor) class(n, outer *tree_sitter.Node) (bool, func()) {
	name := field(n, "name", v.src)
	if name == "" {
		return true, nil
	}
	meta := map[string]any{graph.MetaExported: !strings.HasPrefix(name, "_")}
	if decorators := pyDecorators(outer, v.src); len(decorators) > 0 {
		meta["decorators"] = decorators
	}
	if doc := pyDocstring(n, v.src); doc != "" {
		meta[graph.MetaDoc] = doc
	}
	c := v.s.Declare(backend.Decl{
		Kind:     graph.KindClass,
		Name:     name,
		Location: location(outer),
		Code:     outer.Utf8Text(v.src),
		Metadata: meta,
	})
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		for _, b := range namedChildren(supers) {
			switch b.Kind() {
			case "identifier", "attribute":
				v.s.Refer(graph.RelExtends, c.ID, b.Utf8Text(v.src), locPtr(b), nil)
			case "keyword_argument":
				if field(b, "name", v.src) == "metaclass" {
					v.s.SetMetadata(c.ID, "metaclass", field(b, "value", v.src))
				}
			}
		}
	}
	return true, v.s.Push(c)
}

func (v *pyVisitor) function(n, outer *tree_sitter.Node) (bool, func()) {
	name := field(n, "name", v.src)
	if name == "" {
		return true, nil
	}
	kind := graph.KindFunction
	meta := map[string]any{}
	decorators := pyDecorators(outer, v.src)
	if v.s.Current().Kind == graph.KindClass {
		kind = graph.KindMethod
		if name == "__init__" {
			kind = graph.KindConstructor
		}
		for _, d := range decorators {
			switch d {
			case "staticmethod", "classmethod":
				meta[graph.MetaStatic] = true
			case "property":
				meta["accessor"] = "get"
			case "abstractmethod", "abc.abstractmethod":
				meta[graph.MetaAbstract] = true
			}
		}
	}
	visibility := "public"
	switch {
	case strings.HasPrefix(name, "__") && !strings.HasSuffix(name, "__"):
		visibility = "private"
	case strings.HasPrefix(name, "_") && !strings.HasSuffix(name, "__"):
		visibility = "protected"
	}
	meta[graph.MetaVisibility] = visibility
	meta[graph.MetaExported] = visibility == "public"
	if hasToken(n, "async") {
		meta[graph.MetaAsync] = true
	}
	if len(decorators) > 0 {
		meta["decorators"] = decorators
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		meta[graph.MetaParameters] = pyParameters(params, v.src)
	}
	if rt := field(n, "return_type", v.src); rt != "" {
		meta[graph.MetaReturnType] = rt
	}
	if doc := pyDocstring(n, v.src); doc != "" {
		meta[graph.MetaDoc] = doc
	}
	c := v.s.Declare(backend.Decl{
		Kind:     kind,
		Name:     name,
		Location: location(outer),
		Code:     outer.Utf8Text(v.src),
		Metadata: meta,
	})
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		if t := baseType(rt.Utf8Text(v.src)); isPyName(t) {
			v.s.Refer(graph.RelUses, c.ID, t, locPtr(rt), nil)
		}
	}
	return true, v.s.Push(c)
}

// assignment declares module and class level names. UPPER_CASE names are
// constants by convention.
func (v *pyVisitor) assignment(a *tree_sitter.Node) {
	left := a.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		return
	}
	name := left.Utf8Text(v.src)
	kind := graph.KindVariable
	if name == strings.ToUpper(name) && strings.ContainsAny(name, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		kind = graph.KindConstant
	}
	if v.s.Current().Kind == graph.KindClass {
		kind = graph.KindProperty
		if name == "__slots__" {
			return
		}
	}
	meta := map[string]any{graph.MetaExported: !strings.HasPrefix(name, "_")}
	if t := field(a, "type", v.src); t != "" {
		meta["type"] = t
	}
	v.s.Declare(backend.Decl{Kind: kind, Name: name, Location: location(a), Code: a.Utf8Text(v.src), Metadata: meta})
}

func (v *pyVisitor) call(n *tree_sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	switch fn.Kind() {
	case "identifier", "attribute":
		callee := fn.Utf8Text(v.src)
		if pyBuiltins[callee] {
			return
		}
		// Calling a class constructs it; the linker cannot tell which
		// names are classes, so only local classes become CREATES.
		if id, ok := v.s.Lookup(callee); ok {
			if c, ok := v.s.Component(id); ok && c.Kind == graph.KindClass {
				callee = "new " + callee
			}
		}
		backend.Call(v.s, v.s.Current().ID, callee, location(n))
	}
}

func (v *pyVisitor) raise(n *tree_sitter.Node) {
	for _, c := range namedChildren(n) {
		exc := c
		if c.Kind() == "call" {
			exc = c.ChildByFieldName("function")
		}
		if exc != nil && (exc.Kind() == "identifier" || exc.Kind() == "attribute") {
			backend.Throw(v.s, v.s.Current().ID, exc.Utf8Text(v.src), location(n))
		}
		return
	}
}

func pyDecorators(outer *tree_sitter.Node, src []byte) []string {
	if outer.Kind() != "decorated_definition" {
		return nil
	}
	var out []string
	for _, d := range childrenOfKind(outer, "decorator") {
		text := strings.TrimPrefix(d.Utf8Text(src), "@")
		if i := strings.Index(text, "("); i >= 0 {
			text = text[:i]
		}
		out = append(out, strings.TrimSpace(text))
	}
	return out
}

func pyParameters(params *tree_sitter.Node, src []byte) []string {
	var out []string
	for _, p := range namedChildren(params) {
		switch p.Kind() {
		case "identifier":
			out = append(out, p.Utf8Text(src))
		case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
			if id := childOfKind(p, "identifier"); id != nil {
				out = append(out, id.Utf8Text(src))
			} else {
				out = append(out, p.Utf8Text(src))
			}
		case "default_parameter", "typed_default_parameter":
			out = append(out, field(p, "name", src))
		}
	}
	return out
}

// pyDocstring returns the first statement of the body when it is a string.
func pyDocstring(n *tree_sitter.Node, src []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Kind() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Kind() != "string" {
		return ""
	}
	text := str.Utf8Text(src)
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) && len(text) >= 2*len(q) {
			return strings.TrimSpace(text[len(q) : len(text)-len(q)])
		}
	}
	return ""
}

func isPyName(s string) bool {
	return s != "" && backend.IsNamePath(s, ".") && !pyBuiltins[s]
}

var pyBuiltins = map[string]bool{
	"print": true, "len": true, "range": true, "str": true, "int": true, "float": true,
	"bool": true, "list": true, "dict": true, "set": true, "tuple": true, "isinstance": true,
	"super": true, "open": true, "enumerate": true, "zip": true, "sorted": true, "getattr": true,
	"setattr": true, "hasattr": true, "type": true, "repr": true, "min": true, "max": true,
	"sum": true, "any": true, "all": true, "map": true, "filter": true, "iter": true, "next": true,
	"None": true, "bytes": true, "object": true,
}
