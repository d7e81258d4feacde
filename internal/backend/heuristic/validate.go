package heuristic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/graph"
	"github.com/dusk-indust/polyparse/internal/linker"
)

// noBracketCheck lists languages whose brackets need not balance.
var noBracketCheck = map[graph.Language]bool{
	graph.LangHTML:     true,
	graph.LangMarkdown: true,
	graph.LangShell:    true,
	graph.LangSQL:      true,
	graph.LangUnknown:  true,
}

// ValidateSyntax decodes JSON and YAML documents and checks that brackets
// balance in everything else. It reports at most one problem.
func (b *Backend) ValidateSyntax(_ context.Context, req backend.Request) []graph.Diagnostic {
	var d *graph.Diagnostic
	switch {
	case len(req.Content) == 0:
	case req.Language == graph.LangJSON:
		d = validateJSON(req.Content)
	case req.Language == graph.LangYAML:
		d = validateYAML(req.Content)
	case noBracketCheck[req.Language]:
	default:
		d = balance(linker.Blank(req.Language, req.Content))
	}
	if d == nil {
		return nil
	}
	d.Backend = Name
	return []graph.Diagnostic{*d}
}

func validateJSON(src []byte) *graph.Diagnostic {
	var v any
	err := json.Unmarshal(src, &v)
	if err == nil {
		return nil
	}
	d := &graph.Diagnostic{Severity: graph.SeverityError, Message: err.Error(), Code: "syntax"}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		d.Line, d.Column = backend.NewLines(src).Position(int(max(syn.Offset-1, 0)))
	}
	return d
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

func validateYAML(src []byte) *graph.Diagnostic {
	var n yaml.Node
	err := yaml.Unmarshal(src, &n)
	if err == nil {
		return nil
	}
	d := &graph.Diagnostic{Severity: graph.SeverityError, Message: err.Error(), Code: "syntax"}
	if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
		d.Line, _ = strconv.Atoi(m[1])
	}
	return d
}

var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

// balance reports the first bracket that is unmatched in blanked source.
func balance(src []byte) *graph.Diagnostic {
	type open struct {
		b   byte
		off int
	}
	var stack []open
	lines := backend.NewLines(src)
	for i, c := range src {
		switch c {
		case '(', '[', '{':
			stack = append(stack, open{c, i})
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1].b != closers[c] {
				line, col := lines.Position(i)
				return &graph.Diagnostic{
					Severity: graph.SeverityError,
					Message:  fmt.Sprintf("unexpected %q", c),
					Line:     line,
					Column:   col,
					Code:     "unbalanced",
				}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		o := stack[len(stack)-1]
		line, col := lines.Position(o.off)
		return &graph.Diagnostic{
			Severity: graph.SeverityError,
			Message:  fmt.Sprintf("unclosed %q", o.b),
			Line:     line,
			Column:   col,
			Code:     "unbalanced",
		}
	}
	return nil
}

// dataKeys declares the keys of a JSON or YAML document as properties, two
// levels deep. Documents that do not decode yield no components.
func dataKeys(s *backend.Session, src []byte) {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil || len(doc.Content) == 0 {
		return
	}
	declareKeys(s, doc.Content[0], 2)
}

func declareKeys(s *backend.Session, n *yaml.Node, depth int) {
	if depth == 0 || n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		end := lastLine(value)
		c := s.Declare(backend.Decl{
			Kind: graph.KindProperty,
			Name: key.Value,
			Location: graph.Location{
				StartLine:   key.Line,
				StartColumn: key.Column,
				EndLine:     max(end, key.Line),
				EndColumn:   1,
			},
			Metadata: map[string]any{"valueKind": nodeKind(value)},
		})
		if value.Kind == yaml.MappingNode {
			pop := s.Push(c)
			declareKeys(s, value, depth-1)
			pop()
		}
	}
}

func lastLine(n *yaml.Node) int {
	line := n.Line
	for _, c := range n.Content {
		line = max(line, lastLine(c))
	}
	return line
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	}
	return "scalar"
}
