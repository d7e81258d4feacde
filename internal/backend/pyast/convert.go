package pyast

import (
	"sort"
	"strings"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// node is one decoded AST node: "_type", the position fields and the node's
// own fields, as written by the helper.
type node map[string]any

func (n node) typ() string {
	t, _ := n["_type"].(string)
	return t
}

func (n node) str(key string) string {
	s, _ := n[key].(string)
	return s
}

func (n node) num(key string) int {
	f, _ := n[key].(float64)
	return int(f)
}

func (n node) child(key string) node {
	return asNode(n[key])
}

func (n node) list(key string) []node {
	items, _ := n[key].([]any)
	out := make([]node, 0, len(items))
	for _, it := range items {
		if c := asNode(it); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// keys returns the field names in sorted order so walks are deterministic.
func (n node) keys() []string {
	out := make([]string, 0, len(n))
	for k := range n {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func asNode(v any) node {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return node(m)
}

// converter walks one module. classes holds every class name declared
// anywhere in the module so calls to them become CREATES regardless of
// declaration order.
type converter struct {
	s       *backend.Session
	src     []byte
	classes map[string]bool
}

func convert(s *backend.Session, module node) {
	c := &converter{s: s, src: s.Content(), classes: make(map[string]bool)}
	c.collectClasses(module)
	c.statements(module.list("body"))
	c.exports(module.list("body"))
}

func (c *converter) collectClasses(n node) {
	if n.typ() == "ClassDef" {
		c.classes[n.str("name")] = true
	}
	for _, v := range n {
		switch x := v.(type) {
		case map[string]any:
			c.collectClasses(node(x))
		case []any:
			for _, it := range x {
				if m := asNode(it); m != nil {
					c.collectClasses(m)
				}
			}
		}
	}
}

func (c *converter) statements(body []node) {
	for _, st := range body {
		c.statement(st)
	}
}

func (c *converter) statement(n node) {
	switch n.typ() {
	case "Import":
		for _, a := range n.list("names") {
			name := a.str("name")
			local := a.str("asname")
			if local == "" {
				local = strings.SplitN(name, ".", 2)[0]
			}
			backend.ImportFrom(c.s, backend.Import{Specifier: name, Names: map[string]string{local: "*"}, Location: c.loc(n)})
		}
	case "ImportFrom":
		spec := strings.Repeat(".", n.num("level")) + n.str("module")
		names := make(map[string]string)
		for _, a := range n.list("names") {
			local := a.str("asname")
			if local == "" {
				local = a.str("name")
			}
			names[local] = a.str("name")
		}
		backend.ImportFrom(c.s, backend.Import{Specifier: spec, Names: names, Location: c.loc(n)})
	case "ClassDef":
		c.class(n)
	case "FunctionDef", "AsyncFunctionDef":
		c.function(n)
	case "Assign":
		for _, t := range n.list("targets") {
			c.assign(n, t, nil)
		}
		c.expressions(n.child("value"))
	case "AnnAssign":
		c.assign(n, n.child("target"), n.child("annotation"))
		c.expressions(n.child("value"))
	case "Raise":
		if exc := n.child("exc"); exc != nil {
			target := exc
			if exc.typ() == "Call" {
				target = exc.child("func")
			}
			if name := dotted(target); name != "" {
				backend.Throw(c.s, c.s.Current().ID, name, c.loc(n))
			}
			c.expressions(exc)
		}
	default:
		// Compound statements: descend into nested bodies and expressions.
		for _, key := range n.keys() {
			v := n[key]
			switch key {
			case "body", "orelse", "finalbody":
				c.statements(n.list(key))
			case "handlers", "cases":
				for _, h := range n.list(key) {
					c.expressions(h.child("type"))
					c.statements(h.list("body"))
				}
			default:
				switch x := v.(type) {
				case map[string]any:
					c.expressions(node(x))
				case []any:
					for _, it := range x {
						c.expressions(asNode(it))
					}
				}
			}
		}
	}
}

// expressions records every call inside an expression tree.
func (c *converter) expressions(n node) {
	if n == nil {
		return
	}
	switch n.typ() {
	case "Call":
		c.call(n)
	case "Lambda":
		c.expressions(n.child("body"))
		return
	}
	for _, key := range n.keys() {
		switch x := n[key].(type) {
		case map[string]any:
			c.expressions(node(x))
		case []any:
			for _, it := range x {
				c.expressions(asNode(it))
			}
		}
	}
}

func (c *converter) call(n node) {
	callee := dotted(n.child("func"))
	if callee == "" || builtins[callee] {
		return
	}
	if c.classes[callee] {
		callee = "new " + callee
	}
	backend.Call(c.s, c.s.Current().ID, callee, c.loc(n))
}

func (c *converter) class(n node) {
	name := n.str("name")
	meta := map[string]any{graph.MetaExported: !strings.HasPrefix(name, "_")}
	decorators := c.decorators(n)
	if len(decorators) > 0 {
		meta["decorators"] = decorators
	}
	if doc := docstring(n); doc != "" {
		meta[graph.MetaDoc] = doc
	}
	for _, kw := range n.list("keywords") {
		if kw.str("arg") == "metaclass" {
			meta["metaclass"] = c.text(kw.child("value"))
			if m := dotted(kw.child("value")); m == "ABCMeta" || m == "abc.ABCMeta" {
				meta[graph.MetaAbstract] = true
			}
		}
	}
	loc := c.declLoc(n)
	cls := c.s.Declare(backend.Decl{Kind: graph.KindClass, Name: name, Location: loc, Code: c.slice(loc), Metadata: meta})
	for _, base := range n.list("bases") {
		if b := dotted(base); b != "" && b != "object" {
			c.s.Refer(graph.RelExtends, cls.ID, b, c.locPtr(base), nil)
			if b == "ABC" || b == "abc.ABC" {
				c.s.SetMetadata(cls.ID, graph.MetaAbstract, true)
			}
		}
	}
	for _, d := range n.list("decorator_list") {
		c.expressions(d)
	}
	pop := c.s.Push(cls)
	defer pop()
	c.statements(n.list("body"))
}

func (c *converter) function(n node) {
	name := n.str("name")
	kind := graph.KindFunction
	meta := map[string]any{}
	decorators := c.decorators(n)
	if c.s.Current().Kind == graph.KindClass {
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
			if strings.HasSuffix(d, ".setter") {
				meta["accessor"] = "set"
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
	if n.typ() == "AsyncFunctionDef" {
		meta[graph.MetaAsync] = true
	}
	if len(decorators) > 0 {
		meta["decorators"] = decorators
	}
	params, annotations := parameters(n.child("args"))
	meta[graph.MetaParameters] = params
	returns := n.child("returns")
	if returns != nil {
		meta[graph.MetaReturnType] = c.text(returns)
	}
	if doc := docstring(n); doc != "" {
		meta[graph.MetaDoc] = doc
	}

	loc := c.declLoc(n)
	fn := c.s.Declare(backend.Decl{Kind: kind, Name: name, Location: loc, Code: c.slice(loc), Metadata: meta})
	for _, a := range append(annotations, returns) {
		for _, t := range typeNames(a) {
			c.s.Refer(graph.RelUses, fn.ID, t, c.locPtr(a), nil)
		}
	}
	for _, d := range n.list("decorator_list") {
		c.expressions(d)
	}
	if args := n.child("args"); args != nil {
		for _, d := range args.list("defaults") {
			c.expressions(d)
		}
	}
	pop := c.s.Push(fn)
	defer pop()
	c.statements(n.list("body"))
}

// assign declares module and class level names and instance attributes
// assigned through self inside methods.
func (c *converter) assign(stmt, target, annotation node) {
	if target == nil {
		return
	}
	switch target.typ() {
	case "Tuple", "List":
		for _, e := range target.list("elts") {
			c.assign(stmt, e, nil)
		}
		return
	case "Attribute":
		c.instanceAttribute(stmt, target, annotation)
		return
	case "Name":
	default:
		return
	}

	cur := c.s.Current().Kind
	if cur != graph.KindFile && cur != graph.KindClass {
		return
	}
	name := target.str("id")
	if name == "__slots__" || name == "__all__" {
		return
	}
	kind := graph.KindVariable
	switch {
	case cur == graph.KindClass:
		kind = graph.KindProperty
	case name == strings.ToUpper(name) && strings.ContainsAny(name, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"):
		kind = graph.KindConstant
	}
	meta := map[string]any{graph.MetaExported: !strings.HasPrefix(name, "_")}
	if cur == graph.KindClass {
		meta[graph.MetaStatic] = true
	}
	if annotation != nil {
		meta["type"] = c.text(annotation)
	}
	loc := c.loc(stmt)
	v := c.s.Declare(backend.Decl{Kind: kind, Name: name, Location: loc, Code: c.slice(loc), Metadata: meta})
	for _, t := range typeNames(annotation) {
		c.s.Refer(graph.RelUses, v.ID, t, c.locPtr(annotation), nil)
	}
}

func (c *converter) instanceAttribute(stmt, target, annotation node) {
	if recv := target.child("value"); recv == nil || recv.typ() != "Name" || recv.str("id") != "self" {
		return
	}
	method, ok := c.s.Enclosing(graph.KindMethod, graph.KindConstructor)
	if !ok {
		return
	}
	cls, ok := c.s.Enclosing(graph.KindClass)
	if !ok || method.ParentID != cls.ID {
		return
	}
	name := target.str("attr")
	meta := map[string]any{graph.MetaExported: !strings.HasPrefix(name, "_"), "instance": true}
	if annotation != nil {
		meta["type"] = c.text(annotation)
	}
	loc := c.loc(stmt)
	pop := c.s.Push(cls)
	defer pop()
	c.s.Declare(backend.Decl{Kind: graph.KindProperty, Name: name, Location: loc, Code: c.slice(loc), Metadata: meta})
}

// exports turns a module-level __all__ list into EXPORTS relationships.
func (c *converter) exports(body []node) {
	for _, st := range body {
		if st.typ() != "Assign" {
			continue
		}
		targets := st.list("targets")
		if len(targets) != 1 || targets[0].str("id") != "__all__" {
			continue
		}
		value := st.child("value")
		if value == nil {
			continue
		}
		for _, e := range value.list("elts") {
			if name, ok := e["value"].(string); ok && e.typ() == "Constant" {
				backend.Export(c.s, name, c.loc(e))
			}
		}
	}
}

func (c *converter) decorators(n node) []string {
	var out []string
	for _, d := range n.list("decorator_list") {
		if d.typ() == "Call" {
			d = d.child("func")
		}
		if name := dotted(d); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// --- positions ---

func (c *converter) loc(n node) graph.Location {
	start := n.num("lineno")
	end := n.num("end_lineno")
	if end == 0 {
		end = start
	}
	return graph.Location{
		StartLine:   start,
		StartColumn: n.num("col_offset") + 1,
		EndLine:     end,
		EndColumn:   n.num("end_col_offset") + 1,
	}
}

func (c *converter) locPtr(n node) *graph.Location {
	if n == nil {
		return nil
	}
	l := c.loc(n)
	return &l
}

// declLoc starts a definition at its first decorator.
func (c *converter) declLoc(n node) graph.Location {
	loc := c.loc(n)
	for _, d := range n.list("decorator_list") {
		if line := d.num("lineno"); line > 0 && line < loc.StartLine {
			loc.StartLine = line
			loc.StartColumn = d.num("col_offset")
		}
	}
	return loc
}

// slice returns the source text of loc. Python reports UTF-8 byte columns,
// so positions index the content directly.
func (c *converter) slice(loc graph.Location) string {
	lines := c.s.Lines()
	if loc.StartLine < 1 || loc.EndLine > len(lines) || loc.StartLine > loc.EndLine {
		return ""
	}
	start := lines[loc.StartLine-1] + max(loc.StartColumn-1, 0)
	end := lines[loc.EndLine-1] + max(loc.EndColumn-1, 0)
	if start > end || end > len(c.src) {
		return ""
	}
	return string(c.src[start:end])
}

func (c *converter) text(n node) string {
	if n == nil {
		return ""
	}
	if n.typ() == "Constant" {
		if s, ok := n["value"].(string); ok {
			return s
		}
	}
	if d := dotted(n); d != "" {
		return d
	}
	return c.slice(c.loc(n))
}

// --- helpers ---

// dotted renders Name and Attribute chains ("os.path.join"), or "".
func dotted(n node) string {
	switch n.typ() {
	case "Name":
		return n.str("id")
	case "Attribute":
		if base := dotted(n.child("value")); base != "" {
			return base + "." + n.str("attr")
		}
	}
	return ""
}

// typeNames returns the user type names inside an annotation: the names of
// List[User] are List and User, minus builtins and typing names.
func typeNames(n node) []string {
	if n == nil {
		return nil
	}
	switch n.typ() {
	case "Name", "Attribute":
		if name := dotted(n); name != "" && !builtins[name] && !typing[name] {
			return []string{name}
		}
		return nil
	case "Constant":
		// Forward reference: "User".
		if s, ok := n["value"].(string); ok && backend.IsNamePath(s, ".") && !builtins[s] {
			return []string{s}
		}
		return nil
	case "Subscript":
		return append(typeNames(n.child("value")), typeNames(n.child("slice"))...)
	case "Tuple":
		var out []string
		for _, e := range n.list("elts") {
			out = append(out, typeNames(e)...)
		}
		return out
	case "BinOp":
		return append(typeNames(n.child("left")), typeNames(n.child("right"))...)
	}
	return nil
}

func parameters(args node) ([]string, []node) {
	if args == nil {
		return nil, nil
	}
	var names []string
	var annotations []node
	add := func(a node, prefix string) {
		if a == nil {
			return
		}
		names = append(names, prefix+a.str("arg"))
		if ann := a.child("annotation"); ann != nil {
			annotations = append(annotations, ann)
		}
	}
	for _, a := range args.list("posonlyargs") {
		add(a, "")
	}
	for _, a := range args.list("args") {
		add(a, "")
	}
	add(args.child("vararg"), "*")
	for _, a := range args.list("kwonlyargs") {
		add(a, "")
	}
	add(args.child("kwarg"), "**")
	return names, annotations
}

func docstring(n node) string {
	body := n.list("body")
	if len(body) == 0 || body[0].typ() != "Expr" {
		return ""
	}
	v := body[0].child("value")
	if v == nil || v.typ() != "Constant" {
		return ""
	}
	s, _ := v["value"].(string)
	return strings.TrimSpace(s)
}

var builtins = map[string]bool{
	"print": true, "len": true, "range": true, "str": true, "int": true, "float": true,
	"bool": true, "list": true, "dict": true, "set": true, "tuple": true, "isinstance": true,
	"super": true, "open": true, "enumerate": true, "zip": true, "sorted": true, "getattr": true,
	"setattr": true, "hasattr": true, "type": true, "repr": true, "min": true, "max": true,
	"sum": true, "any": true, "all": true, "map": true, "filter": true, "iter": true, "next": true,
	"None": true, "bytes": true, "object": true, "frozenset": true, "callable": true,
}

var typing = map[string]bool{
	"Any": true, "Optional": true, "Union": true, "List": true, "Dict": true, "Set": true,
	"Tuple": true, "Callable": true, "Iterable": true, "Iterator": true, "Sequence": true,
	"Mapping": true, "Type": true, "Awaitable": true, "Coroutine": true, "Generator": true,
	"typing.Any": true, "typing.Optional": true, "typing.List": true, "typing.Dict": true,
}
