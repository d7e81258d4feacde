package backend

import (
	"strings"

	"github.com/dusk-indust/polyparse/internal/graph"
)

// Session is the working state of one extraction call: the component and
// relationship accumulators, the qualified-name and namespace maps, and the
// scope stack. A backend creates a fresh Session per Extract call and never
// shares it, so nothing resolved in one file can leak into another.
type Session struct {
	req     Request
	backend string
	sep     string
	lines   Lines

	file          graph.Component
	components    []graph.Component
	componentIdx  map[string]int
	relationships []graph.Relationship
	relIdx        map[string]int
	diagnostics   []graph.Diagnostic

	qnames     map[string]string          // qualified name -> component id
	simple     map[string][]string        // simple name -> component ids
	namespaces map[string]graph.Component // namespace qualified name -> component
	imports    map[string]string          // local binding -> module specifier

	scope   []graph.Component
	pending []reference
}

// reference is a relationship whose target is resolved when the session
// finishes, so targets declared later in the file still resolve.
type reference struct {
	kind   graph.RelationshipKind
	source string
	target string
	scopes []string // enclosing qualified names, outermost first
	// visible holds the file id and the ids of the enclosing scopes. A
	// simple-name match must be declared directly under one of them.
	visible map[string]bool
	loc    *graph.Location
	meta   map[string]any
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSeparator sets the qualified-name separator ("::" for Rust).
func WithSeparator(sep string) SessionOption {
	return func(s *Session) { s.sep = sep }
}

// NewSession starts an extraction of req by the named backend. The file
// component is created and becomes the bottom of the scope stack.
func NewSession(req Request, backendName string, opts ...SessionOption) *Session {
	s := &Session{
		req:          req,
		backend:      backendName,
		sep:          ".",
		lines:        NewLines(req.Content),
		componentIdx: make(map[string]int),
		relIdx:       make(map[string]int),
		qnames:       make(map[string]string),
		simple:       make(map[string][]string),
		namespaces:   make(map[string]graph.Component),
		imports:      make(map[string]string),
	}
	for _, o := range opts {
		o(s)
	}
	s.file = graph.FileComponent(req.FilePath, req.Language, graph.CountLOC(req.Content))
	s.addComponent(s.file)
	s.scope = []graph.Component{s.file}
	return s
}

// File returns the file component.
func (s *Session) File() graph.Component { return s.file }

// Content returns the source being extracted.
func (s *Session) Content() []byte { return s.req.Content }

// Lines returns the line index of the source.
func (s *Session) Lines() Lines { return s.lines }

// Language returns the language of the source.
func (s *Session) Language() graph.Language { return s.req.Language }

// --- Scope stack ---

// Push makes c the current container and returns the function that restores
// the stack to its state before the push. Callers defer it so the stack is
// restored on every exit path:
//
//	defer s.Push(class)()
func (s *Session) Push(c graph.Component) (pop func()) {
	depth := len(s.scope)
	s.scope = append(s.scope, c)
	return func() { s.scope = s.scope[:depth] }
}

// Current returns the innermost container.
func (s *Session) Current() graph.Component {
	return s.scope[len(s.scope)-1]
}

// Depth returns the size of the scope stack, the file included.
func (s *Session) Depth() int { return len(s.scope) }

// Enclosing returns the innermost container of one of the given kinds.
func (s *Session) Enclosing(kinds ...graph.ComponentKind) (graph.Component, bool) {
	for i := len(s.scope) - 1; i >= 0; i-- {
		for _, k := range kinds {
			if s.scope[i].Kind == k {
				return s.scope[i], true
			}
		}
	}
	return graph.Component{}, false
}

// Namespace returns the qualified name of the innermost namespace or module.
func (s *Session) Namespace() string {
	if ns, ok := s.Enclosing(graph.KindNamespace, graph.KindModule); ok {
		return ns.QualifiedName()
	}
	return ""
}

// Qualify returns name qualified by the current scope.
func (s *Session) Qualify(name string) string {
	if len(s.scope) > 1 {
		return s.Current().QualifiedName() + s.sep + name
	}
	return name
}

// --- Components ---

// Decl describes a component to declare in the current scope.
type Decl struct {
	Kind     graph.ComponentKind
	Name     string
	Location graph.Location
	Code     string
	Metadata map[string]any
	// Qualified overrides the scope-derived qualified name.
	Qualified string
}

// Declare adds a component parented to the current scope, records it in the
// name maps and emits its containment relationships. Declaring the same
// (kind, qualified name) twice returns the first component.
func (s *Session) Declare(d Decl) graph.Component {
	qn := d.Qualified
	if qn == "" {
		qn = s.Qualify(d.Name)
	}
	parent := s.Current()
	meta := make(map[string]any, len(d.Metadata)+3)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	meta[graph.MetaQualifiedName] = qn
	if ns := s.Namespace(); ns != "" && d.Kind != graph.KindNamespace && d.Kind != graph.KindModule {
		meta[graph.MetaNamespace] = ns
	}
	meta[graph.MetaBackend] = s.backend

	c := graph.Component{
		ID:       graph.ComponentID(d.Kind, qn, s.req.FilePath),
		Name:     d.Name,
		Kind:     d.Kind,
		Language: s.req.Language,
		FilePath: s.req.FilePath,
		Location: d.Location,
		ParentID: parent.ID,
		Metadata: meta,
		Code:     d.Code,
	}
	if i, ok := s.componentIdx[c.ID]; ok {
		return s.components[i]
	}
	s.addComponent(c)

	if _, ok := s.qnames[qn]; !ok {
		s.qnames[qn] = c.ID
	}
	s.simple[d.Name] = append(s.simple[d.Name], c.ID)
	if d.Kind == graph.KindNamespace || d.Kind == graph.KindModule {
		s.namespaces[qn] = c
	}
	Containment(s, parent, c)
	return c
}

// Lookup returns the id of the component declared under qualified name qn.
func (s *Session) Lookup(qn string) (string, bool) {
	id, ok := s.qnames[qn]
	return id, ok
}

// NamespaceComponent returns the namespace declared under qn.
func (s *Session) NamespaceComponent(qn string) (graph.Component, bool) {
	c, ok := s.namespaces[qn]
	return c, ok
}

// Component returns the declared component with the given id.
func (s *Session) Component(id string) (graph.Component, bool) {
	i, ok := s.componentIdx[id]
	if !ok {
		return graph.Component{}, false
	}
	return s.components[i], true
}

// SetMetadata sets a metadata key on a declared component.
func (s *Session) SetMetadata(id, key string, value any) {
	if i, ok := s.componentIdx[id]; ok {
		s.components[i].Metadata[key] = value
	}
}

func (s *Session) addComponent(c graph.Component) {
	s.componentIdx[c.ID] = len(s.components)
	s.components = append(s.components, c)
}

// --- Relationships ---

// Relate adds a relationship between two known endpoints. Repeated edges are
// merged: the first metadata wins and later keys only fill gaps.
func (s *Session) Relate(kind graph.RelationshipKind, sourceID, targetID string, loc *graph.Location, meta map[string]any) graph.Relationship {
	rel := graph.NewRelationship(kind, sourceID, targetID, loc, meta)
	if _, ok := rel.Metadata[graph.MetaIsResolved]; !ok {
		rel.Metadata[graph.MetaIsResolved] = !graph.IsPlaceholder(targetID)
	}
	if i, ok := s.relIdx[rel.ID]; ok {
		existing := s.relationships[i]
		for k, v := range rel.Metadata {
			if _, has := existing.Metadata[k]; !has {
				existing.Metadata[k] = v
			}
		}
		return existing
	}
	s.relIdx[rel.ID] = len(s.relationships)
	s.relationships = append(s.relationships, rel)
	return rel
}

// Refer records a relationship to a target known only by name. The target is
// resolved when the session finishes: first as a qualified name relative to
// each enclosing scope, innermost first, then as a unique simple name. A
// target that does not resolve becomes a RESOLVE: placeholder, or an
// UNRESOLVED: placeholder when it is an expression rather than a name.
func (s *Session) Refer(kind graph.RelationshipKind, sourceID, target string, loc *graph.Location, meta map[string]any) {
	target = strings.TrimSpace(target)
	if target == "" {
		return
	}
	scopes := make([]string, 0, len(s.scope))
	visible := make(map[string]bool, len(s.scope))
	for i, c := range s.scope {
		visible[c.ID] = true
		if i > 0 {
			scopes = append(scopes, c.QualifiedName())
		}
	}
	s.pending = append(s.pending, reference{
		kind:    kind,
		source:  sourceID,
		target:  target,
		scopes:  scopes,
		visible: visible,
		loc:     loc,
		meta:    meta,
	})
}

// Bind records that local name was imported from specifier. References to
// the name that stay unresolved carry importedFrom metadata.
func (s *Session) Bind(local, specifier string) {
	if local != "" {
		s.imports[local] = specifier
	}
}

// Diagnose appends a diagnostic.
func (s *Session) Diagnose(d graph.Diagnostic) {
	if d.Backend == "" {
		d.Backend = s.backend
	}
	s.diagnostics = append(s.diagnostics, d)
}

// Result resolves pending references and returns the extraction. The file
// component is always first.
func (s *Session) Result() *Extraction {
	for _, ref := range s.pending {
		s.resolve(ref)
	}
	s.pending = nil
	return &Extraction{
		Components:    s.components,
		Relationships: s.relationships,
		Diagnostics:   s.diagnostics,
	}
}

func (s *Session) resolve(ref reference) {
	meta := make(map[string]any, len(ref.meta)+3)
	for k, v := range ref.meta {
		meta[k] = v
	}
	name := stripReceiver(ref.target)

	if id, ok := s.lookupScoped(ref, name); ok {
		meta[graph.MetaIsResolved] = true
		s.Relate(ref.kind, ref.source, id, ref.loc, meta)
		return
	}

	meta[graph.MetaIsResolved] = false
	if !IsNamePath(name, s.sep) {
		if _, ok := meta[graph.MetaExpression]; !ok {
			meta[graph.MetaExpression] = ref.target
		}
		s.Relate(ref.kind, ref.source, graph.UnresolvedPlaceholder(ref.target), ref.loc, meta)
		return
	}
	head := name
	if i := strings.Index(name, s.sep); i >= 0 {
		head = name[:i]
	}
	if spec, ok := s.imports[head]; ok {
		meta[graph.MetaImportedFrom] = spec
	}
	s.Relate(ref.kind, ref.source, graph.ResolvePlaceholder(name), ref.loc, meta)
}

// lookupScoped resolves name relative to the enclosing scopes of ref,
// innermost first, then as a top-level qualified name, then as a unique
// simple name declared under the file or an enclosing scope. Inheritance
// edges only resolve to type-like components.
func (s *Session) lookupScoped(ref reference, name string) (string, bool) {
	typeOnly := ref.kind.Category() == graph.CategoryInheritance
	accept := func(id string) bool {
		if !typeOnly {
			return true
		}
		c, ok := s.Component(id)
		return ok && c.Kind.IsTypeLike()
	}
	for i := len(ref.scopes) - 1; i >= 0; i-- {
		if id, ok := s.qnames[ref.scopes[i]+s.sep+name]; ok && accept(id) {
			return id, true
		}
	}
	if id, ok := s.qnames[name]; ok && accept(id) {
		return id, true
	}
	var match string
	for _, id := range s.simple[name] {
		c, ok := s.Component(id)
		if !ok || !ref.visible[c.ParentID] || !accept(id) {
			continue
		}
		if match != "" {
			return "", false
		}
		match = id
	}
	return match, match != ""
}

// stripReceiver drops a leading this./self./Self:: receiver so that member
// references resolve against the enclosing type.
func stripReceiver(target string) string {
	for _, p := range []string{"this.", "self.", "Self::", "self::", "$this->"} {
		if rest, ok := strings.CutPrefix(target, p); ok {
			return rest
		}
	}
	return target
}

// IsNamePath reports whether target is a separator-joined identifier path.
func IsNamePath(target, sep string) bool {
	for _, part := range strings.Split(target, sep) {
		if part == "" {
			return false
		}
		for i, r := range part {
			ident := r == '_' || r == '$' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 0x7f
			if !ident && (i == 0 || r < '0' || r > '9') {
				return false
			}
		}
	}
	return true
}
