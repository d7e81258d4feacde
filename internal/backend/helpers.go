package backend

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dusk-indust/polyparse/internal/graph"
)

// Shared extraction behaviors. Language backends compose these rather than
// re-implementing them.

// Containment emits the structural relationships between a container and a
// newly declared member: CONTAINS always, HAS_METHOD or HAS_PROPERTY for
// type members, and IN_NAMESPACE from the member to an enclosing namespace.
func Containment(s *Session, parent, child graph.Component) {
	s.Relate(graph.RelContains, parent.ID, child.ID, nil, nil)
	if parent.Kind.IsTypeLike() {
		switch child.Kind {
		case graph.KindMethod, graph.KindConstructor, graph.KindFunction:
			s.Relate(graph.RelHasMethod, parent.ID, child.ID, nil, nil)
		case graph.KindProperty, graph.KindVariable, graph.KindConstant:
			s.Relate(graph.RelHasProperty, parent.ID, child.ID, nil, nil)
		}
	}
	if parent.Kind == graph.KindNamespace || parent.Kind == graph.KindModule {
		s.Relate(graph.RelInNamespace, child.ID, parent.ID, nil, nil)
	}
}

// Import describes one import statement.
type Import struct {
	Specifier string
	// Names maps local bindings to the names they import. A namespace or
	// default import binds the module itself and maps to "*" or "default".
	Names    map[string]string
	Location graph.Location
}

// ImportFrom emits IMPORTS_FROM from the file to RESOLVE:<specifier> and
// binds the imported names so that later references carry their origin.
// The relationship shape matches what the initial linker emits for the same
// statement, so the two collapse to one id when aggregated.
func ImportFrom(s *Session, imp Import) {
	spec := strings.TrimSpace(imp.Specifier)
	if spec == "" {
		return
	}
	meta := map[string]any{
		graph.MetaSpecifier:  spec,
		graph.MetaIsResolved: false,
	}
	if len(imp.Names) > 0 {
		names := make([]string, 0, len(imp.Names))
		for local, imported := range imp.Names {
			s.Bind(local, spec)
			names = append(names, imported)
		}
		sort.Strings(names)
		meta[graph.MetaImportedNames] = names
	}
	loc := imp.Location
	s.Relate(graph.RelImportsFrom, s.File().ID, graph.ResolvePlaceholder(spec), &loc, meta)
}

// Export emits EXPORTS from the file to the named component.
func Export(s *Session, name string, loc graph.Location) {
	s.Refer(graph.RelExports, s.File().ID, name, &loc, nil)
}

// Call emits CALLS from caller to callee. A callee preceded by "new" is a
// construction and becomes CREATES.
func Call(s *Session, callerID, callee string, loc graph.Location) {
	callee = strings.TrimSpace(callee)
	kind := graph.RelCalls
	if rest, ok := strings.CutPrefix(callee, "new "); ok {
		kind, callee = graph.RelCreates, strings.TrimSpace(rest)
	}
	if callee == "" || receivers[callee] {
		return
	}
	s.Refer(kind, callerID, callee, &loc, map[string]any{graph.MetaExpression: callee})
}

// Throw emits THROWS from the component to the thrown type.
func Throw(s *Session, ownerID, typ string, loc graph.Location) {
	typ = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(typ), "new "))
	if typ == "" {
		return
	}
	s.Refer(graph.RelThrows, ownerID, typ, &loc, nil)
}

var (
	callPattern  = regexp.MustCompile(`(\bnew\s+)?([A-Za-z_$][\w$]*(?:(?:\.|::|->)[A-Za-z_$][\w$]*)*)\s*(?:<[^<>()]*>)?\s*\(`)
	throwPattern = regexp.MustCompile(`\b(?:throw|raise)\s+(?:new\s+)?([A-Za-z_$][\w$.]*)`)
)

// ScanUsages finds call sites, constructions and throws in code by text
// heuristics and attributes them to ownerID. startLine is the line of the
// first byte of code within the file. Backends without a syntax tree use it
// for usage relationships; tree-based backends use Call and Throw directly.
func ScanUsages(s *Session, ownerID, code string, startLine int) {
	lines := NewLines([]byte(code))
	at := func(off int) graph.Location {
		line, col := lines.Position(off)
		return graph.Location{StartLine: line + startLine - 1, StartColumn: col, EndLine: line + startLine - 1, EndColumn: col}
	}
	lang := s.Language()
	for _, m := range callPattern.FindAllStringSubmatchIndex(code, -1) {
		name := code[m[4]:m[5]]
		if isKeyword(lang, lastSegment(name)) || isDeclarationSite(code, m[0]) {
			continue
		}
		if m[2] >= 0 {
			Call(s, ownerID, "new "+name, at(m[0]))
		} else {
			Call(s, ownerID, name, at(m[4]))
		}
	}
	for _, m := range throwPattern.FindAllStringSubmatchIndex(code, -1) {
		Throw(s, ownerID, code[m[2]:m[3]], at(m[0]))
	}
}

// isDeclarationSite reports whether the match at off is the name of a
// function being declared rather than a call.
func isDeclarationSite(code string, off int) bool {
	before := strings.TrimRight(code[:off], " \t")
	for _, kw := range []string{"function", "func", "def", "fn", "fun", "sub", "void", "class", "struct", "interface"} {
		if strings.HasSuffix(before, kw) {
			return true
		}
	}
	return false
}

func lastSegment(name string) string {
	if i := strings.LastIndexAny(name, ".:>"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// receivers are constructor delegations such as super(...) rather than
// calls of a named component.
var receivers = wordSet("super", "this", "self")

// commonKeywords look like calls in most C-family and scripting languages.
var commonKeywords = wordSet(
	"if", "for", "while", "switch", "catch", "return", "function", "func", "def", "fn",
	"typeof", "sizeof", "elif", "else", "with", "await", "yield", "super", "this", "self",
	"import", "require", "new", "delete", "not", "and", "or", "in", "is", "lambda",
	"assert", "throw", "raise", "do", "try", "class", "interface",
)

// languageKeywords are constructs that only read as calls in one language
// and are ordinary identifiers elsewhere.
var languageKeywords = map[graph.Language]map[string]bool{
	graph.LangGo:     wordSet("defer", "go", "select", "case"),
	graph.LangRust:   wordSet("match", "loop"),
	graph.LangKotlin: wordSet("when"),
	graph.LangScala:  wordSet("match"),
	graph.LangRuby:   wordSet("unless", "until", "when", "case"),
	graph.LangCSharp: wordSet("using", "lock", "foreach"),
	graph.LangJava:   wordSet("synchronized"),
	graph.LangPHP: wordSet("array", "list", "isset", "empty", "echo", "exit", "foreach",
		"include", "include_once", "require_once"),
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// isKeyword reports whether a text match of name in lang is a language
// construct rather than a call. Only the text scanner needs this; a callee
// node from a syntax tree is never a keyword.
func isKeyword(lang graph.Language, name string) bool {
	return commonKeywords[name] || languageKeywords[lang][name]
}

// Lines maps byte offsets of a source to 1-based line and column numbers.
type Lines []int

// NewLines indexes the line starts of content.
func NewLines(content []byte) Lines {
	idx := Lines{0}
	for i, b := range content {
		if b == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

// Position returns the 1-based line and column of offset.
func (l Lines) Position(offset int) (line, col int) {
	line = max(sort.Search(len(l), func(i int) bool { return l[i] > offset }), 1)
	return line, offset - l[line-1] + 1
}

// Location returns the location spanning [start, end).
func (l Lines) Location(start, end int) graph.Location {
	sl, sc := l.Position(start)
	el, ec := l.Position(max(end-1, start))
	return graph.Location{StartLine: sl, StartColumn: sc, EndLine: el, EndColumn: ec + 1}
}

// Line returns the text of 1-based line n of content without its newline.
func (l Lines) Line(content []byte, n int) string {
	if n < 1 || n > len(l) {
		return ""
	}
	end := len(content)
	if n < len(l) {
		end = l[n] - 1
	}
	return strings.TrimSuffix(string(content[l[n-1]:end]), "\r")
}
