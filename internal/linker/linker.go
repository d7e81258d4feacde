// Package linker is the initial linking pass. It finds import, include and
// require statements by scanning text, without any parser, and turns them
// into low-confidence IMPORTS_FROM relationships. It works on files no
// backend can handle and on files whose backends all failed.
package linker

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// Name identifies linker output in relationship metadata.
const Name = "initial-linker"

// HintedConfidence is the confidence of a relationship whose specifier
// resolved to a workspace file.
const HintedConfidence = 0.6

const metaStatement = "statement"

// Hinter resolves an import specifier to a workspace-relative file path.
// graph.Resolver implements it.
type Hinter interface {
	ResolveSpecifier(lang graph.Language, fromFile, spec string) (string, bool)
}

// Linker emits initial-tier relationships. It holds no per-file state and
// is safe for concurrent use.
type Linker struct {
	hints Hinter
	log   *logrus.Entry
}

// Option configures a Linker.
type Option func(*Linker)

// WithResolver enables workspace resolution hints.
func WithResolver(h Hinter) Option {
	return func(l *Linker) { l.hints = h }
}

// WithLogger sets the linker logger.
func WithLogger(log *logrus.Entry) Option {
	return func(l *Linker) { l.log = log }
}

// New returns a Linker.
func New(opts ...Option) *Linker {
	l := &Linker{log: logrus.StandardLogger().WithField("component", "linker")}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Link scans a whole file written in lang.
func (l *Linker) Link(filePath string, lang graph.Language, content []byte) ([]graph.Relationship, graph.LinkingSummary) {
	return l.LinkBlocks(filePath, content, []graph.Block{{
		Language:  lang,
		StartByte: 0,
		EndByte:   len(content),
		StartLine: 1,
		EndLine:   max(graph.CountLOC(content), 1),
	}})
}

// LinkBlocks scans every block of a segmented file with the syntax of the
// block's language. Statements naming the same specifier collapse into one
// relationship located at the first of them, with the union of their
// imported names.
func (l *Linker) LinkBlocks(filePath string, content []byte, blocks []graph.Block) ([]graph.Relationship, graph.LinkingSummary) {
	summary := graph.LinkingSummary{Enabled: true}
	lines := backend.NewLines(content)

	type entry struct {
		stmt  Statement
		lang  graph.Language
		names map[string]bool
	}
	var order []string
	bySpec := make(map[string]*entry)
	for _, b := range blocks {
		if b.StartByte < 0 || b.EndByte > len(content) || b.StartByte >= b.EndByte {
			continue
		}
		for _, st := range scan(b.Language, content[b.StartByte:b.EndByte], b.StartByte, lines) {
			summary.Specifiers++
			e, ok := bySpec[st.Specifier]
			if !ok {
				e = &entry{stmt: st, lang: b.Language, names: make(map[string]bool)}
				bySpec[st.Specifier] = e
				order = append(order, st.Specifier)
			}
			for _, imported := range st.Names {
				e.names[imported] = true
			}
		}
	}

	fileID := graph.ComponentID(graph.KindFile, filePath, filePath)
	rels := make([]graph.Relationship, 0, len(order))
	for _, spec := range order {
		e := bySpec[spec]
		meta := map[string]any{
			graph.MetaSpecifier:  spec,
			graph.MetaIsResolved: false,
			graph.MetaTier:       string(graph.TierInitial),
			graph.MetaBackend:    Name,
			metaStatement:        string(e.stmt.Kind),
		}
		if len(e.names) > 0 {
			names := make([]string, 0, len(e.names))
			for n := range e.names {
				names = append(names, n)
			}
			sort.Strings(names)
			meta[graph.MetaImportedNames] = names
		}
		if l.hints != nil {
			if path, ok := l.hints.ResolveSpecifier(e.lang, filePath, spec); ok {
				meta[graph.MetaResolvedPath] = path
				meta[graph.MetaConfidence] = HintedConfidence
				summary.Hinted++
			}
		}
		loc := e.stmt.Location
		rels = append(rels, graph.NewRelationship(graph.RelImportsFrom, fileID, graph.ResolvePlaceholder(spec), &loc, meta))
	}
	summary.Relationships = len(rels)

	l.log.WithFields(logrus.Fields{
		"file":       filePath,
		"specifiers": summary.Specifiers,
		"hinted":     summary.Hinted,
	}).Debug("initial linking done")
	return rels, summary
}
