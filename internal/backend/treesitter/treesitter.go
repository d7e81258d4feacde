// Package treesitter provides in-process extraction backends built on
// tree-sitter grammars. TypeScript and JavaScript get a semantic backend that
// resolves names within a file; Go, Python, Rust and Java get structural
// backends.
package treesitter

import (
	"context"
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/dusk-indust/polyparse/internal/backend"
	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// maxDiagnostics caps the syntax diagnostics reported for one request.
const maxDiagnostics = 50

// extractor walks a parsed tree and records what it finds in the session.
type extractor interface {
	extract(s *backend.Session, root *tree_sitter.Node, src []byte)
}

// Backend is a tree-sitter backend for one family of languages. A new
// tree-sitter parser is created per call, so a Backend is safe for
// concurrent use.
type Backend struct {
	name      string
	level     graph.ParsingLevel
	sep       string
	grammars  map[graph.Language]*tree_sitter.Language
	extractor extractor
}

// Compile-time check.
var _ backend.Backend = (*Backend)(nil)

// NewTypeScript returns the semantic backend for TypeScript and JavaScript.
// JavaScript is parsed with the TSX grammar so JSX is accepted.
func NewTypeScript() *Backend {
	return &Backend{
		name:  "tree-sitter-typescript",
		level: graph.LevelSemantic,
		sep:   ".",
		grammars: map[graph.Language]*tree_sitter.Language{
			graph.LangTypeScript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
			graph.LangJavaScript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()),
		},
		extractor: &tsExtractor{},
	}
}

// NewGo returns the structural Go backend.
func NewGo() *Backend {
	return &Backend{
		name:      "tree-sitter-go",
		level:     graph.LevelStructural,
		sep:       ".",
		grammars:  map[graph.Language]*tree_sitter.Language{graph.LangGo: tree_sitter.NewLanguage(tree_sitter_go.Language())},
		extractor: &goExtractor{},
	}
}

// NewPython returns the structural Python backend.
func NewPython() *Backend {
	return &Backend{
		name:      "tree-sitter-python",
		level:     graph.LevelStructural,
		sep:       ".",
		grammars:  map[graph.Language]*tree_sitter.Language{graph.LangPython: tree_sitter.NewLanguage(tree_sitter_python.Language())},
		extractor: &pyExtractor{},
	}
}

// NewRust returns the structural Rust backend.
func NewRust() *Backend {
	return &Backend{
		name:      "tree-sitter-rust",
		level:     graph.LevelStructural,
		sep:       "::",
		grammars:  map[graph.Language]*tree_sitter.Language{graph.LangRust: tree_sitter.NewLanguage(tree_sitter_rust.Language())},
		extractor: &rsExtractor{},
	}
}

// NewJava returns the structural Java backend.
func NewJava() *Backend {
	return &Backend{
		name:      "tree-sitter-java",
		level:     graph.LevelStructural,
		sep:       ".",
		grammars:  map[graph.Language]*tree_sitter.Language{graph.LangJava: tree_sitter.NewLanguage(tree_sitter_java.Language())},
		extractor: &javaExtractor{},
	}
}

// All returns every tree-sitter backend.
func All() []*Backend {
	return []*Backend{NewTypeScript(), NewGo(), NewPython(), NewRust(), NewJava()}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Languages() []graph.Language {
	out := make([]graph.Language, 0, len(b.grammars))
	for _, l := range []graph.Language{graph.LangTypeScript, graph.LangJavaScript, graph.LangGo, graph.LangPython, graph.LangRust, graph.LangJava} {
		if _, ok := b.grammars[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Symbols:       true,
		Relationships: true,
		TypeInfo:      b.level == graph.LevelSemantic,
	}
}

func (b *Backend) Level() graph.ParsingLevel { return b.level }

// ValidateSyntax reports ERROR and MISSING nodes as diagnostics.
func (b *Backend) ValidateSyntax(ctx context.Context, req backend.Request) []graph.Diagnostic {
	tree, err := b.parse(ctx, req)
	if err != nil {
		return []graph.Diagnostic{{Severity: graph.SeverityError, Message: err.Error(), Backend: b.name, Code: "parser"}}
	}
	defer tree.Close()
	return b.syntaxErrors(tree.RootNode(), req.Content)
}

// Extract parses req and returns its components and relationships. Syntax
// errors do not fail extraction: tree-sitter recovers, the valid parts are
// extracted and the errors are returned as diagnostics.
func (b *Backend) Extract(ctx context.Context, req backend.Request) (ex *backend.Extraction, err error) {
	tree, err := b.parse(ctx, req)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	defer func() {
		if r := recover(); r != nil {
			ex, err = nil, perrors.Newf(perrors.Internal, "%s: panic extracting %s: %v", b.name, req.FilePath, r).
				WithContext("backend", b.name)
		}
	}()

	s := backend.NewSession(req, b.name, backend.WithSeparator(b.sep))
	root := tree.RootNode()
	for _, d := range b.syntaxErrors(root, req.Content) {
		s.Diagnose(d)
	}
	b.extractor.extract(s, root, req.Content)
	return s.Result(), nil
}

func (b *Backend) parse(ctx context.Context, req backend.Request) (*tree_sitter.Tree, error) {
	lang, ok := b.grammars[req.Language]
	if !ok {
		return nil, perrors.Newf(perrors.NoBackendAvailable, "%s: unsupported language %s", b.name, req.Language)
	}
	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(lang); err != nil {
		return nil, perrors.Wrap(err, perrors.Internal, fmt.Sprintf("%s: set language %s", b.name, req.Language))
	}
	// ParseCtx leaves a goroutine that may touch the parser after Close, so
	// cancellation is polled from the progress callback instead.
	src := req.Content
	tree := parser.ParseWithOptions(func(off int, _ tree_sitter.Point) []byte {
		if off >= len(src) {
			return nil
		}
		return src[off:]
	}, nil, &tree_sitter.ParseOptions{
		ProgressCallback: func(tree_sitter.ParseState) bool { return ctx.Err() != nil },
	})
	if tree == nil {
		if err := ctx.Err(); err != nil {
			return nil, perrors.Wrap(err, perrors.Internal, fmt.Sprintf("%s: parse %s cancelled", b.name, req.FilePath))
		}
		return nil, perrors.Newf(perrors.Internal, "%s: tree-sitter returned nil tree for %s", b.name, req.FilePath)
	}
	return tree, nil
}

func (b *Backend) syntaxErrors(root *tree_sitter.Node, src []byte) []graph.Diagnostic {
	if !root.HasError() {
		return nil
	}
	var out []graph.Diagnostic
	cursor := root.Walk()
	defer cursor.Close()
	walk(cursor, func(n *tree_sitter.Node) (bool, func()) {
		if len(out) >= maxDiagnostics {
			return false, nil
		}
		switch {
		case n.IsMissing():
			p := n.StartPosition()
			out = append(out, graph.Diagnostic{
				Severity: graph.SeverityError,
				Message:  fmt.Sprintf("missing %s", n.Kind()),
				Line:     int(p.Row) + 1,
				Column:   int(p.Column) + 1,
				Backend:  b.name,
				Code:     "missing",
			})
			return false, nil
		case n.IsError():
			p := n.StartPosition()
			out = append(out, graph.Diagnostic{
				Severity: graph.SeverityError,
				Message:  fmt.Sprintf("unexpected %q", snippet(n.Utf8Text(src))),
				Line:     int(p.Row) + 1,
				Column:   int(p.Column) + 1,
				Backend:  b.name,
				Code:     "syntax",
			})
			return false, nil
		}
		return n.HasError(), nil
	})
	return out
}

// --- Tree helpers ---

// visitFunc handles a node and reports whether to descend into its children.
// A non-nil leave runs after the children, on every exit path.
type visitFunc func(n *tree_sitter.Node) (descend bool, leave func())

func walk(cursor *tree_sitter.TreeCursor, visit visitFunc) {
	node := cursor.Node()
	descend, leave := visit(node)
	if leave != nil {
		defer leave()
	}
	if descend && cursor.GotoFirstChild() {
		walk(cursor, visit)
		for cursor.GotoNextSibling() {
			walk(cursor, visit)
		}
		cursor.GotoParent()
	}
}

// walkTree walks the subtree rooted at n.
func walkTree(n *tree_sitter.Node, visit visitFunc) {
	cursor := n.Walk()
	defer cursor.Close()
	walk(cursor, visit)
}

func location(n *tree_sitter.Node) graph.Location {
	s, e := n.StartPosition(), n.EndPosition()
	return graph.Location{
		StartLine:   int(s.Row) + 1,
		StartColumn: int(s.Column) + 1,
		EndLine:     int(e.Row) + 1,
		EndColumn:   int(e.Column) + 1,
	}
}

func locPtr(n *tree_sitter.Node) *graph.Location {
	l := location(n)
	return &l
}

// field returns the text of the named field, or "".
func field(n *tree_sitter.Node, name string, src []byte) string {
	if c := n.ChildByFieldName(name); c != nil {
		return c.Utf8Text(src)
	}
	return ""
}

// childOfKind returns the first direct child of the given kind.
func childOfKind(n *tree_sitter.Node, kind string) *tree_sitter.Node {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && c.Kind() == kind {
			return c
		}
	}
	return nil
}

// childrenOfKind returns the direct children of the given kinds.
func childrenOfKind(n *tree_sitter.Node, kinds ...string) []*tree_sitter.Node {
	var out []*tree_sitter.Node
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		for _, k := range kinds {
			if c.Kind() == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// fieldNodes returns every child stored under the named field.
func fieldNodes(n *tree_sitter.Node, name string) []tree_sitter.Node {
	cursor := n.Walk()
	defer cursor.Close()
	return n.ChildrenByFieldName(name, cursor)
}

// namedChildren returns the named children of n.
func namedChildren(n *tree_sitter.Node) []*tree_sitter.Node {
	out := make([]*tree_sitter.Node, 0, n.NamedChildCount())
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// hasToken reports whether n has a direct anonymous child spelled tok, such
// as "async" or "static".
func hasToken(n *tree_sitter.Node, tok string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && !c.IsNamed() && c.Kind() == tok {
			return true
		}
	}
	return false
}

func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}

// snippet shortens text for diagnostics.
func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return s
}

// baseType strips generic arguments, pointers and references from a type
// expression: "*pkg.Repo[T]" becomes "pkg.Repo".
func baseType(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "*&")
	s = strings.TrimPrefix(s, "mut ")
	s = strings.TrimPrefix(s, "dyn ")
	if i := strings.IndexAny(s, "<[("); i > 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
