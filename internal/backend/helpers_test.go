package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/polyparse/internal/graph"
)

func targetsOf(ex *Extraction, kind graph.RelationshipKind) []string {
	var out []string
	for _, r := range ex.Relationships {
		if r.Kind == kind {
			out = append(out, r.TargetID)
		}
	}
	return out
}

func TestContainment_TypeMembers(t *testing.T) {
	s := newSession("")
	cls := s.Declare(Decl{Kind: graph.KindClass, Name: "C"})
	func() {
		defer s.Push(cls)()
		s.Declare(Decl{Kind: graph.KindMethod, Name: "m"})
		s.Declare(Decl{Kind: graph.KindProperty, Name: "p"})
	}()

	ex := s.Result()
	assert.Len(t, targetsOf(ex, graph.RelHasMethod), 1)
	assert.Len(t, targetsOf(ex, graph.RelHasProperty), 1)
	// file->C, C->m, C->p
	assert.Len(t, targetsOf(ex, graph.RelContains), 3)
}

func TestCall_NewBecomesCreates(t *testing.T) {
	s := newSession("")
	fn := s.Declare(Decl{Kind: graph.KindFunction, Name: "f"})
	Call(s, fn.ID, "new Widget", graph.Location{StartLine: 1})
	Call(s, fn.ID, "render", graph.Location{StartLine: 2})
	Call(s, fn.ID, "super", graph.Location{StartLine: 3})

	ex := s.Result()
	assert.Equal(t, []string{"RESOLVE:Widget"}, targetsOf(ex, graph.RelCreates))
	assert.Equal(t, []string{"RESOLVE:render"}, targetsOf(ex, graph.RelCalls))
}

func TestCall_KeywordLikeNamesAreKept(t *testing.T) {
	s := newSession("")
	fn := s.Declare(Decl{Kind: graph.KindFunction, Name: "f"})
	for i, callee := range []string{"go", "list", "match", "select", "echo", "loop", "when", "using"} {
		Call(s, fn.ID, callee, graph.Location{StartLine: i + 1})
	}
	assert.Len(t, targetsOf(s.Result(), graph.RelCalls), 8, "a callee taken from a syntax tree is never filtered")
}

func TestScanUsages_KeywordsArePerLanguage(t *testing.T) {
	code := "go(worker)\nselect(x)\nmatch(y)\n"

	goSrc := NewSession(Request{FilePath: "a.go", Language: graph.LangGo, Content: []byte(code)}, "test")
	fn := goSrc.Declare(Decl{Kind: graph.KindFunction, Name: "f"})
	ScanUsages(goSrc, fn.ID, code, 1)
	assert.Equal(t, []string{"RESOLVE:match"}, targetsOf(goSrc.Result(), graph.RelCalls))

	tsSrc := newSession(code)
	fn = tsSrc.Declare(Decl{Kind: graph.KindFunction, Name: "f"})
	ScanUsages(tsSrc, fn.ID, code, 1)
	assert.ElementsMatch(t, []string{"RESOLVE:go", "RESOLVE:select", "RESOLVE:match"}, targetsOf(tsSrc.Result(), graph.RelCalls))
}

func TestScanUsages(t *testing.T) {
	code := "function run() {\n  const w = new Widget();\n  w.draw(1);\n  if (x) { throw new ValidationError('x') }\n}\n"
	s := newSession(code)
	fn := s.Declare(Decl{Kind: graph.KindFunction, Name: "run"})
	ScanUsages(s, fn.ID, code, 10)

	ex := s.Result()
	assert.Contains(t, targetsOf(ex, graph.RelCreates), "RESOLVE:Widget")
	assert.Contains(t, targetsOf(ex, graph.RelCalls), "RESOLVE:w.draw")
	assert.NotContains(t, targetsOf(ex, graph.RelCalls), "RESOLVE:run", "declaration site is not a call")
	assert.NotContains(t, targetsOf(ex, graph.RelCalls), "RESOLVE:if")
	assert.Contains(t, targetsOf(ex, graph.RelThrows), "RESOLVE:ValidationError")

	for _, r := range ex.Relationships {
		if r.Kind == graph.RelCreates && r.TargetID == "RESOLVE:Widget" {
			require.NotNil(t, r.Location)
			assert.Equal(t, 11, r.Location.StartLine, "lines are offset by startLine")
		}
	}
}

func TestImportFrom_EmptySpecifierIgnored(t *testing.T) {
	s := newSession("")
	ImportFrom(s, Import{Specifier: "  "})
	assert.Empty(t, targetsOf(s.Result(), graph.RelImportsFrom))
}

func TestLines(t *testing.T) {
	src := []byte("ab\ncd\r\n\nlast")
	l := NewLines(src)

	line, col := l.Position(0)
	assert.Equal(t, [2]int{1, 1}, [2]int{line, col})
	line, col = l.Position(4)
	assert.Equal(t, [2]int{2, 2}, [2]int{line, col})

	assert.Equal(t, "cd", l.Line(src, 2))
	assert.Equal(t, "", l.Line(src, 3))
	assert.Equal(t, "last", l.Line(src, 4))
	assert.Equal(t, "", l.Line(src, 9))

	loc := l.Location(3, 5)
	assert.Equal(t, graph.Location{StartLine: 2, StartColumn: 1, EndLine: 2, EndColumn: 3}, loc)
}
