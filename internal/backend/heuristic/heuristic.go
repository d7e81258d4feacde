// Package heuristic is the basic-level backend. It recognizes declarations,
// inheritance, imports and call sites with regular expressions over source
// whose comments and strings have been blanked, so it handles any language
// with a declaration syntax it knows and degrades to imports only for the
// rest. It is the last fallback of every chain.
package heuristic

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/dusk-indust/polyparse/internal/backend"
	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
	"github.com/dusk-indust/polyparse/internal/linker"
)

// Name is the backend name.
const Name = "heuristic"

// Compile-time check.
var _ backend.Backend = (*Backend)(nil)

// Backend is stateless and safe for concurrent use.
type Backend struct {
	log *logrus.Entry
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger.
func WithLogger(log *logrus.Entry) Option {
	return func(b *Backend) { b.log = log }
}

// New returns the heuristic backend.
func New(opts ...Option) *Backend {
	b := &Backend{log: logrus.StandardLogger().WithField("component", "heuristic")}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Backend) Name() string              { return Name }
func (b *Backend) Level() graph.ParsingLevel { return graph.LevelBasic }

func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Symbols: true, Relationships: true}
}

// Languages lists every language with declaration, data or import syntax
// the backend knows.
func (b *Backend) Languages() []graph.Language {
	set := map[graph.Language]bool{graph.LangJSON: true, graph.LangYAML: true, graph.LangCSS: true, graph.LangHTML: true}
	for l := range families {
		set[l] = true
	}
	out := make([]graph.Language, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Extract never fails on content. An unknown language yields the file
// component and whatever imports the linker syntax finds.
func (b *Backend) Extract(ctx context.Context, req backend.Request) (ex *backend.Extraction, err error) {
	if err := ctx.Err(); err != nil {
		return nil, perrors.Wrap(err, perrors.Internal, "heuristic: cancelled").WithContext("file", req.FilePath)
	}
	defer func() {
		if r := recover(); r != nil {
			ex, err = nil, perrors.Newf(perrors.Internal, "heuristic: panic extracting %s: %v", req.FilePath, r).
				WithContext("backend", Name)
		}
	}()

	fam := families[req.Language]
	sep := "."
	if fam != nil {
		sep = fam.sep
	}
	s := backend.NewSession(req, Name, backend.WithSeparator(sep))
	for _, d := range b.ValidateSyntax(ctx, req) {
		s.Diagnose(d)
	}
	for _, st := range linker.Scan(req.Language, req.Content) {
		backend.ImportFrom(s, st.Import())
	}

	switch {
	case req.Language == graph.LangJSON || req.Language == graph.LangYAML:
		dataKeys(s, req.Content)
	case fam != nil:
		x := &extraction{s: s, fam: fam, lang: req.Language, src: req.Content, blank: linker.Blank(req.Language, req.Content)}
		x.run()
	}

	ex = s.Result()
	b.log.WithFields(logrus.Fields{
		"file":          req.FilePath,
		"language":      req.Language,
		"components":    len(ex.Components),
		"relationships": len(ex.Relationships),
	}).Debug("heuristic extraction done")
	return ex, nil
}

// extraction is the working state of one Extract call.
type extraction struct {
	s     *backend.Session
	fam   *family
	lang  graph.Language
	src   []byte
	blank []byte
}

type frame struct {
	end    int
	isFunc bool
	pop    func()
}

func (x *extraction) run() {
	decls := findDecls(x.fam, x.blank)
	for _, d := range decls {
		x.bounds(d)
	}

	// Functions attached to a type declared elsewhere in the file are
	// declared once every type is known.
	var attached []*decl
	var stack []frame
	defer func() {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].pop != nil {
				stack[i].pop()
			}
		}
	}()

	for i := 0; i < len(decls); i++ {
		d := decls[i]
		for len(stack) > 0 && d.start >= stack[len(stack)-1].end {
			if top := stack[len(stack)-1]; top.pop != nil {
				top.pop()
			}
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 && stack[len(stack)-1].isFunc {
			continue
		}
		if d.role == roleAttach {
			attached = append(attached, d)
			// Skip the block's own declarations; they are handled with it.
			for i+1 < len(decls) && decls[i+1].start < d.end {
				i++
			}
			continue
		}
		if d.owner() != "" && (d.role == roleFunc || d.role == roleMember) && len(stack) == 0 {
			attached = append(attached, d)
			stack = append(stack, frame{end: d.end, isFunc: true})
			continue
		}
		c, ok := x.declare(d, "")
		if !ok {
			continue
		}
		switch {
		case isFunc(c.Kind):
			x.usages(d, c)
			stack = append(stack, frame{end: d.end, isFunc: true})
		case c.Kind.IsContainer():
			x.inheritance(d, c)
			stack = append(stack, frame{end: d.end, pop: x.s.Push(c)})
		}
	}
	for len(stack) > 0 {
		if top := stack[len(stack)-1]; top.pop != nil {
			top.pop()
		}
		stack = stack[:len(stack)-1]
	}

	for _, d := range attached {
		x.attach(d, decls)
	}
}

// bounds fills in the header and body range of d.
func (x *extraction) bounds(d *decl) {
	if x.fam.indent {
		d.headerEnd, d.end = indentBody(x.blank, d.start, x.lang == graph.LangRuby)
		d.bodyStart = d.headerEnd
		return
	}
	d.bodyStart, d.end = braceBody(x.blank, d.nameEnd)
	d.headerEnd = d.end
	if d.bodyStart >= 0 {
		d.headerEnd = d.bodyStart
	} else if d.role == roleType && d.kw == "namespace" {
		// File-scoped namespace: "namespace App;".
		d.end = len(x.blank)
	}
}

func isFunc(k graph.ComponentKind) bool {
	return k == graph.KindFunction || k == graph.KindMethod || k == graph.KindConstructor
}

// declare records d under the current scope. qualified, when set, replaces
// the scope-derived qualified name.
func (x *extraction) declare(d *decl, qualified string) (graph.Component, bool) {
	current := x.s.Current()
	inType := current.Kind.IsTypeLike()

	var kind graph.ComponentKind
	switch d.role {
	case roleType:
		kind = kindOf(d.kw)
	case roleFunc, roleMember:
		switch {
		case inType && x.fam.ctor != nil && x.fam.ctor(d.name, current.Name):
			kind = graph.KindConstructor
		case inType || qualified != "":
			kind = graph.KindMethod
		case d.role == roleMember:
			return graph.Component{}, false
		default:
			kind = graph.KindFunction
		}
	case roleProperty:
		if !inType {
			return graph.Component{}, false
		}
		kind = graph.KindProperty
	default:
		return graph.Component{}, false
	}

	loc := x.s.Lines().Location(d.start, d.end)
	c := x.s.Declare(backend.Decl{
		Kind:      kind,
		Name:      d.name,
		Location:  loc,
		Code:      string(x.src[d.start:d.end]),
		Metadata:  x.metadata(d, kind),
		Qualified: qualified,
	})
	if current.Kind == graph.KindFile && strings.Contains(d.mods, "export") {
		backend.Export(x.s, d.name, loc)
	}
	return c, true
}

// metadata derives visibility and modifier flags from the declaration text.
func (x *extraction) metadata(d *decl, kind graph.ComponentKind) map[string]any {
	meta := make(map[string]any)
	words := strings.Fields(d.mods)
	has := func(w string) bool {
		for _, m := range words {
			if m == w || strings.HasPrefix(m, w+"(") {
				return true
			}
		}
		return false
	}
	for _, v := range []string{"public", "private", "protected", "internal", "fileprivate"} {
		if has(v) {
			meta[graph.MetaVisibility] = v
		}
	}
	switch x.lang {
	case graph.LangGo:
		r, _ := firstRune(d.name)
		meta[graph.MetaExported] = unicode.IsUpper(r)
	case graph.LangRust:
		if has("pub") {
			meta[graph.MetaExported] = true
			meta[graph.MetaVisibility] = "public"
		}
	case graph.LangPython:
		switch {
		case strings.HasPrefix(d.name, "__") && !strings.HasSuffix(d.name, "__"):
			meta[graph.MetaVisibility] = "private"
		case strings.HasPrefix(d.name, "_"):
			meta[graph.MetaVisibility] = "protected"
		}
	case graph.LangTypeScript, graph.LangJavaScript, graph.LangVue, graph.LangSvelte:
		if has("export") {
			meta[graph.MetaExported] = true
		}
		if strings.HasPrefix(d.name, "#") {
			meta[graph.MetaVisibility] = "private"
		}
	}
	if has("static") || d.recv == "self." {
		meta[graph.MetaStatic] = true
	}
	if has("abstract") {
		meta[graph.MetaAbstract] = true
	}
	if has("async") || has("suspend") {
		meta[graph.MetaAsync] = true
	}
	if isFunc(kind) {
		params := parameters(x.blank, d.nameEnd, d.headerEnd)
		if x.lang == graph.LangPython && len(params) > 0 && (params[0] == "self" || params[0] == "cls") {
			params = params[1:]
		}
		if len(params) > 0 {
			meta[graph.MetaParameters] = params
		}
	}
	return meta
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}

// inheritance records the supertypes named in a type header and the mixins
// used in its body.
func (x *extraction) inheritance(d *decl, c graph.Component) {
	if !c.Kind.IsTypeLike() {
		return
	}
	loc := x.s.Lines().Location(d.start, d.headerEnd)
	if x.fam.supers != nil && d.headerEnd > d.nameEnd {
		for _, sup := range x.fam.supers(c.Kind, string(x.blank[d.nameEnd:d.headerEnd])) {
			x.s.Refer(sup.kind, c.ID, sup.target, &loc, nil)
		}
	}
	if x.fam.mixins == nil || d.bodyStart < 0 {
		return
	}
	body := x.blank[d.bodyStart:d.end]
	for _, m := range x.fam.mixins.FindAllSubmatchIndex(body, -1) {
		at := x.s.Lines().Location(d.bodyStart+m[0], d.bodyStart+m[1])
		for _, name := range strings.Split(string(body[m[2]:m[3]]), ",") {
			if name = strings.TrimSpace(name); name != "" {
				x.s.Refer(x.fam.mixinKind, c.ID, name, &at, nil)
			}
		}
	}
}

// usages scans a function body for calls, constructions and throws.
func (x *extraction) usages(d *decl, c graph.Component) {
	from := d.bodyStart
	if from < 0 {
		from = d.nameEnd
	}
	if from >= d.end {
		return
	}
	line, _ := x.s.Lines().Position(from)
	backend.ScanUsages(x.s, c.ID, string(x.blank[from:d.end]), line)
}

// attach declares a receiver-qualified function or the functions of an
// impl or extension block under the type they belong to. When that type is
// not declared in the file the functions are qualified by its name.
func (x *extraction) attach(d *decl, decls []*decl) {
	owner := d.owner()
	if d.role == roleAttach {
		owner = d.name[strings.LastIndexAny(d.name, ":.")+1:]
	}
	var pop func()
	qualified := func(name string) string { return owner + x.fam.sep + name }
	if id, ok := x.s.Lookup(owner); ok {
		if c, ok := x.s.Component(id); ok && c.Kind.IsTypeLike() {
			pop = x.s.Push(c)
			defer pop()
			qualified = func(string) string { return "" }
			if d.role == roleAttach {
				x.conformances(d, c)
			}
		}
	}

	declareFunc := func(f *decl) {
		if c, ok := x.declare(f, qualified(f.name)); ok && isFunc(c.Kind) {
			x.usages(f, c)
		}
	}
	if d.role != roleAttach {
		declareFunc(d)
		return
	}
	end := d.start
	for _, f := range decls {
		if f.start <= d.start || f.start >= d.end || f.start < end {
			continue
		}
		if f.role == roleFunc || f.role == roleMember {
			declareFunc(f)
			end = f.end
		}
	}
}

// conformances records what an impl or extension block implements.
func (x *extraction) conformances(d *decl, c graph.Component) {
	loc := x.s.Lines().Location(d.start, d.headerEnd)
	if d.trait != "" {
		x.s.Refer(graph.RelImplements, c.ID, d.trait, &loc, nil)
	}
	if x.lang == graph.LangSwift && x.fam.supers != nil && d.headerEnd > d.nameEnd {
		for _, sup := range x.fam.supers(graph.KindStruct, string(x.blank[d.nameEnd:d.headerEnd])) {
			x.s.Refer(graph.RelImplements, c.ID, sup.target, &loc, nil)
		}
	}
}
