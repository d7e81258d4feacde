package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/polyparse/internal/graph"
)

func newSession(src string) *Session {
	return NewSession(Request{FilePath: "src/a.ts", Language: graph.LangTypeScript, Content: []byte(src)}, "test")
}

func findRel(ex *Extraction, kind graph.RelationshipKind, sourceID string) *graph.Relationship {
	for i := range ex.Relationships {
		r := &ex.Relationships[i]
		if r.Kind == kind && r.SourceID == sourceID {
			return r
		}
	}
	return nil
}

func findComponent(ex *Extraction, kind graph.ComponentKind, name string) *graph.Component {
	for i := range ex.Components {
		c := &ex.Components[i]
		if c.Kind == kind && c.Name == name {
			return c
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// References and placeholders
// ---------------------------------------------------------------------------

func TestSession_ExtendsUnknownBaseStaysPlaceholder(t *testing.T) {
	s := newSession("class A extends B {}")
	a := s.Declare(Decl{Kind: graph.KindClass, Name: "A"})
	s.Refer(graph.RelExtends, a.ID, "B", nil, nil)

	ex := s.Result()
	rel := findRel(ex, graph.RelExtends, a.ID)
	require.NotNil(t, rel)
	assert.Equal(t, "RESOLVE:B", rel.TargetID)
	assert.Equal(t, false, rel.Metadata[graph.MetaIsResolved])
}

func TestSession_ExtendsLocalBaseResolves(t *testing.T) {
	s := newSession("class A extends B {}\nclass B {}")
	a := s.Declare(Decl{Kind: graph.KindClass, Name: "A"})
	s.Refer(graph.RelExtends, a.ID, "B", nil, nil)
	b := s.Declare(Decl{Kind: graph.KindClass, Name: "B"})

	ex := s.Result()
	rel := findRel(ex, graph.RelExtends, a.ID)
	require.NotNil(t, rel)
	assert.Equal(t, b.ID, rel.TargetID, "targets declared later in the file still resolve")
	assert.Equal(t, true, rel.Metadata[graph.MetaIsResolved])
}

func TestSession_InnermostScopeWins(t *testing.T) {
	s := newSession("")
	outer := s.Declare(Decl{Kind: graph.KindFunction, Name: "helper"})
	ns := s.Declare(Decl{Kind: graph.KindNamespace, Name: "ns"})
	var inner, caller graph.Component
	func() {
		defer s.Push(ns)()
		inner = s.Declare(Decl{Kind: graph.KindFunction, Name: "helper"})
		caller = s.Declare(Decl{Kind: graph.KindFunction, Name: "run"})
		s.Refer(graph.RelCalls, caller.ID, "helper", nil, nil)
	}()

	ex := s.Result()
	rel := findRel(ex, graph.RelCalls, caller.ID)
	require.NotNil(t, rel)
	assert.Equal(t, inner.ID, rel.TargetID)
	assert.NotEqual(t, outer.ID, rel.TargetID)
	assert.Equal(t, "ns.helper", inner.QualifiedName())
}

func TestSession_ReceiverIsStripped(t *testing.T) {
	s := newSession("")
	cls := s.Declare(Decl{Kind: graph.KindClass, Name: "Svc"})
	var run, save graph.Component
	func() {
		defer s.Push(cls)()
		run = s.Declare(Decl{Kind: graph.KindMethod, Name: "run"})
		save = s.Declare(Decl{Kind: graph.KindMethod, Name: "save"})
		s.Refer(graph.RelCalls, run.ID, "this.save", nil, nil)
	}()

	rel := findRel(s.Result(), graph.RelCalls, run.ID)
	require.NotNil(t, rel)
	assert.Equal(t, save.ID, rel.TargetID)
}

func TestSession_ExtendsSkipsMethodOfAnotherClass(t *testing.T) {
	s := newSession("class C { B(){} } class A extends B {}")
	c := s.Declare(Decl{Kind: graph.KindClass, Name: "C"})
	func() {
		defer s.Push(c)()
		s.Declare(Decl{Kind: graph.KindMethod, Name: "B"})
	}()
	a := s.Declare(Decl{Kind: graph.KindClass, Name: "A"})
	s.Refer(graph.RelExtends, a.ID, "B", nil, nil)

	rel := findRel(s.Result(), graph.RelExtends, a.ID)
	require.NotNil(t, rel)
	assert.Equal(t, "RESOLVE:B", rel.TargetID)
	assert.Equal(t, false, rel.Metadata[graph.MetaIsResolved])
}

func TestSession_ExtendsSkipsSameNamedMember(t *testing.T) {
	s := newSession("")
	a := s.Declare(Decl{Kind: graph.KindClass, Name: "A"})
	func() {
		defer s.Push(a)()
		s.Declare(Decl{Kind: graph.KindMethod, Name: "B"})
		s.Refer(graph.RelExtends, a.ID, "B", nil, nil)
	}()

	rel := findRel(s.Result(), graph.RelExtends, a.ID)
	require.NotNil(t, rel)
	assert.Equal(t, "RESOLVE:B", rel.TargetID, "a method is never a base type")
}

func TestSession_CallDoesNotBindToOtherClassMethod(t *testing.T) {
	s := newSession("function run(){ helper(); } class D { helper(){} }")
	run := s.Declare(Decl{Kind: graph.KindFunction, Name: "run"})
	func() {
		defer s.Push(run)()
		s.Refer(graph.RelCalls, run.ID, "helper", nil, nil)
	}()
	d := s.Declare(Decl{Kind: graph.KindClass, Name: "D"})
	func() {
		defer s.Push(d)()
		s.Declare(Decl{Kind: graph.KindMethod, Name: "helper"})
	}()

	rel := findRel(s.Result(), graph.RelCalls, run.ID)
	require.NotNil(t, rel)
	assert.Equal(t, "RESOLVE:helper", rel.TargetID)
	assert.Equal(t, false, rel.Metadata[graph.MetaIsResolved])
}

func TestSession_SimpleNameUnderFileResolves(t *testing.T) {
	s := newSession("")
	ns := s.Declare(Decl{Kind: graph.KindNamespace, Name: "pkg"})
	func() {
		defer s.Push(ns)()
		s.Declare(Decl{Kind: graph.KindClass, Name: "User"})
	}()
	svc := s.Declare(Decl{Kind: graph.KindClass, Name: "Svc"})
	func() {
		defer s.Push(svc)()
		s.Refer(graph.RelExtends, svc.ID, "User", nil, nil)
	}()

	rel := findRel(s.Result(), graph.RelExtends, svc.ID)
	require.NotNil(t, rel)
	assert.Equal(t, "RESOLVE:User", rel.TargetID, "pkg.User is not visible from Svc")

	s2 := newSession("")
	base := s2.Declare(Decl{Kind: graph.KindClass, Name: "Base", Qualified: "com.acme.Base"})
	child := s2.Declare(Decl{Kind: graph.KindClass, Name: "Child", Qualified: "com.acme.Child"})
	s2.Refer(graph.RelExtends, child.ID, "Base", nil, nil)
	rel = findRel(s2.Result(), graph.RelExtends, child.ID)
	require.NotNil(t, rel)
	assert.Equal(t, base.ID, rel.TargetID, "file-level types resolve by simple name")
}

func TestSession_ExpressionTargetIsUnresolved(t *testing.T) {
	s := newSession("")
	fn := s.Declare(Decl{Kind: graph.KindFunction, Name: "f"})
	s.Refer(graph.RelCalls, fn.ID, "handlers[0]", nil, nil)

	rel := findRel(s.Result(), graph.RelCalls, fn.ID)
	require.NotNil(t, rel)
	assert.Equal(t, "UNRESOLVED:handlers[0]", rel.TargetID)
	assert.Equal(t, "handlers[0]", rel.Metadata[graph.MetaExpression])
}

func TestSession_ImportedNameCarriesOrigin(t *testing.T) {
	s := newSession("")
	ImportFrom(s, Import{Specifier: "./util", Names: map[string]string{"fmt": "format"}})
	fn := s.Declare(Decl{Kind: graph.KindFunction, Name: "f"})
	s.Refer(graph.RelCalls, fn.ID, "fmt.pad", nil, nil)

	ex := s.Result()
	rel := findRel(ex, graph.RelCalls, fn.ID)
	require.NotNil(t, rel)
	assert.Equal(t, "RESOLVE:fmt.pad", rel.TargetID)
	assert.Equal(t, "./util", rel.Metadata[graph.MetaImportedFrom])

	imp := findRel(ex, graph.RelImportsFrom, s.File().ID)
	require.NotNil(t, imp)
	assert.Equal(t, "RESOLVE:./util", imp.TargetID)
	assert.Equal(t, []string{"format"}, imp.Metadata[graph.MetaImportedNames])
}

// ---------------------------------------------------------------------------
// Scope stack
// ---------------------------------------------------------------------------

func TestSession_PushRestoresDepth(t *testing.T) {
	s := newSession("")
	assert.Equal(t, 1, s.Depth())
	cls := s.Declare(Decl{Kind: graph.KindClass, Name: "C"})

	pop := s.Push(cls)
	m := s.Declare(Decl{Kind: graph.KindMethod, Name: "m"})
	inner := s.Push(m)
	assert.Equal(t, 3, s.Depth())
	inner()
	pop()
	assert.Equal(t, 1, s.Depth())
	assert.Equal(t, s.File().ID, s.Current().ID)
}

func TestSession_PushRestoresOnPanic(t *testing.T) {
	s := newSession("")
	cls := s.Declare(Decl{Kind: graph.KindClass, Name: "C"})

	assert.Panics(t, func() {
		defer s.Push(cls)()
		panic("visitor failed")
	})
	assert.Equal(t, 1, s.Depth())
}

func TestSession_NamespaceMetadataAndContainment(t *testing.T) {
	s := NewSession(Request{FilePath: "lib.rs", Language: graph.LangRust}, "test", WithSeparator("::"))
	mod := s.Declare(Decl{Kind: graph.KindModule, Name: "net"})
	var st graph.Component
	func() {
		defer s.Push(mod)()
		st = s.Declare(Decl{Kind: graph.KindStruct, Name: "Conn"})
	}()

	assert.Equal(t, "net::Conn", st.QualifiedName())
	assert.Equal(t, "net", st.Metadata[graph.MetaNamespace])
	assert.Equal(t, mod.ID, st.ParentID)

	ex := s.Result()
	assert.NotNil(t, findRel(ex, graph.RelContains, mod.ID))
	ns := findRel(ex, graph.RelInNamespace, st.ID)
	require.NotNil(t, ns)
	assert.Equal(t, mod.ID, ns.TargetID)
}

// ---------------------------------------------------------------------------
// Components
// ---------------------------------------------------------------------------

func TestSession_DeclareIsIdempotent(t *testing.T) {
	s := newSession("")
	first := s.Declare(Decl{Kind: graph.KindFunction, Name: "f", Metadata: map[string]any{"n": 1}})
	second := s.Declare(Decl{Kind: graph.KindFunction, Name: "f", Metadata: map[string]any{"n": 2}})

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.Metadata["n"])
	assert.Len(t, s.Result().Components, 2, "file plus one function")
}

func TestSession_FileComesFirst(t *testing.T) {
	s := newSession("a\nb\n")
	s.Declare(Decl{Kind: graph.KindFunction, Name: "f"})
	ex := s.Result()
	require.NotEmpty(t, ex.Components)
	assert.Equal(t, graph.KindFile, ex.Components[0].Kind)
	assert.Equal(t, "test", findComponent(ex, graph.KindFunction, "f").Metadata[graph.MetaBackend])
}

func TestSession_RelateMergesMetadata(t *testing.T) {
	s := newSession("")
	a := s.Declare(Decl{Kind: graph.KindFunction, Name: "a"})
	b := s.Declare(Decl{Kind: graph.KindFunction, Name: "b"})
	s.Relate(graph.RelCalls, a.ID, b.ID, nil, map[string]any{"x": 1})
	s.Relate(graph.RelCalls, a.ID, b.ID, nil, map[string]any{"x": 2, "y": 3})

	var calls []graph.Relationship
	for _, r := range s.Result().Relationships {
		if r.Kind == graph.RelCalls {
			calls = append(calls, r)
		}
	}
	require.Len(t, calls, 1)
	assert.Equal(t, 1, calls[0].Metadata["x"])
	assert.Equal(t, 3, calls[0].Metadata["y"])
}

func TestIsNamePath(t *testing.T) {
	assert.True(t, IsNamePath("a.b.c", "."))
	assert.True(t, IsNamePath("$el", "."))
	assert.True(t, IsNamePath("x1", "."))
	assert.False(t, IsNamePath("1x", "."))
	assert.False(t, IsNamePath("a..b", "."))
	assert.False(t, IsNamePath("f()", "."))
	assert.True(t, IsNamePath("std::io", "::"))
}
