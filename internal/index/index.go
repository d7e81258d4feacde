// Package index builds a workspace graph: it walks a directory, parses every
// source file through the coordinator, stores the results, rewrites import
// placeholders that name workspace files, and groups files into clusters.
package index

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-enry/go-enry/v2"
	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"

	"github.com/dusk-indust/polyparse/internal/coordinator"
	"github.com/dusk-indust/polyparse/internal/detect"
	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// Options select what is indexed and how files are parsed.
type Options struct {
	// Exclude holds glob patterns over slash-separated workspace-relative
	// paths. A directory matching a pattern is skipped whole.
	Exclude []string
	// Languages restricts indexing when not empty.
	Languages   []graph.Language
	Parallelism int
	Parse       coordinator.Options
}

// FileError records a file that could not be indexed.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Summary describes one indexing run.
type Summary struct {
	Root          string              `json:"root"`
	Files         int                 `json:"files"`
	Skipped       int                 `json:"skipped"`
	Failed        []FileError         `json:"failed,omitempty"`
	Components    int                 `json:"components"`
	Relationships int                 `json:"relationships"`
	Resolved      int                 `json:"resolved"`
	Warnings      int                 `json:"warnings"`
	Clusters      []graph.ClusterNode `json:"clusters"`
	Stats         graph.GraphStats    `json:"stats"`
	Elapsed       time.Duration       `json:"elapsedNs"`
}

// Indexer fills a Store from a workspace.
type Indexer struct {
	coord      *coordinator.Coordinator
	store      graph.Store
	onProgress func(coordinator.ProgressEvent)
	log        *logrus.Entry
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the indexer logger.
func WithLogger(log *logrus.Entry) Option {
	return func(ix *Indexer) { ix.log = log }
}

// WithProgress receives one event per file status change.
func WithProgress(fn func(coordinator.ProgressEvent)) Option {
	return func(ix *Indexer) { ix.onProgress = fn }
}

// New returns an Indexer parsing with coord and writing to store.
func New(coord *coordinator.Coordinator, store graph.Store, opts ...Option) *Indexer {
	ix := &Indexer{
		coord: coord,
		store: store,
		log:   logrus.StandardLogger().WithField("component", "index"),
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Store returns the store being filled.
func (ix *Indexer) Store() graph.Store { return ix.store }

// Index parses every selected file under root and stores the results.
// Files that cannot be read are reported in the summary; only a failure to
// walk root or to write the store is returned as an error.
func (ix *Indexer) Index(ctx context.Context, root string, opts Options) (*Summary, error) {
	start := time.Now()
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.InputReadFailure, "resolve root")
	}

	all, err := coordinator.WorkspaceFiles(root)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.InputReadFailure, "walk workspace").WithContext("root", root)
	}
	sel, err := newSelector(opts)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, p := range all {
		if sel.keep(p) {
			paths = append(paths, p)
		}
	}
	sum := &Summary{Root: root, Files: len(paths), Skipped: len(all) - len(paths)}

	resolver := graph.NewResolver(root, all)
	ix.coord.UseWorkspace(root, resolver)
	parse := opts.Parse
	parse.WorkspaceRoot = root

	ix.log.WithFields(logrus.Fields{"root": root, "files": len(paths), "skipped": sum.Skipped}).Info("indexing workspace")
	results := ix.coord.ParseFiles(ctx, paths, parse, opts.Parallelism, ix.onProgress)

	if err := ix.store.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	files := make(map[string]graph.Component)
	var rels []graph.Relationship
	for _, fr := range results {
		if fr.Err != nil {
			sum.Failed = append(sum.Failed, FileError{Path: fr.Path, Error: fr.Err.Error()})
			continue
		}
		sum.Warnings += len(fr.Result.Metadata.Warnings)
		for _, c := range fr.Result.Components {
			if err := ix.store.AddComponent(ctx, c); err != nil {
				return nil, fmt.Errorf("add component %s: %w", c.ID, err)
			}
			if c.Kind == graph.KindFile {
				files[c.ID] = c
			}
		}
		sum.Components += len(fr.Result.Components)
		rels = append(rels, fr.Result.Relationships...)
	}

	for _, r := range resolver.ResolveImports(rels, files) {
		if _, ok := r.Metadata[graph.MetaResolvedPath]; ok && !graph.IsPlaceholder(r.TargetID) {
			sum.Resolved++
		}
		if err := ix.store.AddRelationship(ctx, r); err != nil {
			return nil, fmt.Errorf("add relationship %s: %w", r.ID, err)
		}
	}
	sum.Relationships = len(rels)

	clusters, err := graph.ComputeClusters(ctx, ix.store)
	if err != nil {
		return nil, fmt.Errorf("compute clusters: %w", err)
	}
	sum.Clusters = clusters
	stats, err := ix.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	sum.Stats = *stats
	sum.Elapsed = time.Since(start)

	ix.log.WithFields(logrus.Fields{
		"components":    sum.Components,
		"relationships": sum.Relationships,
		"resolved":      sum.Resolved,
		"clusters":      len(clusters),
		"failed":        len(sum.Failed),
		"elapsed":       sum.Elapsed,
	}).Info("workspace indexed")
	return sum, nil
}

// selector decides which workspace files are parsed.
type selector struct {
	exclude []glob.Glob
	langs   map[graph.Language]bool
}

func newSelector(opts Options) (*selector, error) {
	s := &selector{langs: make(map[graph.Language]bool, len(opts.Languages))}
	for _, p := range opts.Exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, perrors.Wrap(err, perrors.Config, "invalid exclude pattern").WithContext("pattern", p)
		}
		s.exclude = append(s.exclude, g)
	}
	for _, l := range opts.Languages {
		s.langs[graph.Language(strings.ToLower(string(l)))] = true
	}
	return s, nil
}

func (s *selector) excluded(rel string) bool {
	for dir := rel; dir != "."; dir = filepath.ToSlash(filepath.Dir(dir)) {
		for _, g := range s.exclude {
			if g.Match(dir) {
				return true
			}
		}
	}
	return false
}

func (s *selector) keep(rel string) bool {
	if s.excluded(rel) || enry.IsVendor(rel) {
		return false
	}
	lang := detect.Detect(rel, nil).Language
	if lang == graph.LangUnknown {
		return false
	}
	return len(s.langs) == 0 || s.langs[lang]
}
