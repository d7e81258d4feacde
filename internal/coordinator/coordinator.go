// Package coordinator runs the document pipeline for one file at a time:
// segment the file into language blocks, extract each block with the
// backend chain registered for its language, link imports from text, and
// merge the relationship tiers into one result.
//
// Only a file that cannot be read fails a parse. Every other problem is
// caught at its stage, recorded as a warning, and the pipeline continues
// with what it has.
package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/dusk-indust/polyparse/internal/aggregate"
	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/cache"
	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
	"github.com/dusk-indust/polyparse/internal/linker"
	"github.com/dusk-indust/polyparse/internal/segment"
)

// DefaultTimeout bounds one backend call.
const DefaultTimeout = 30 * time.Second

// Stage names used in warnings.
const (
	stageSegment   = "segmentation"
	stageExtract   = "extraction"
	stageLink      = "linking"
	stageAggregate = "aggregation"
)

// Coordinator is safe for concurrent use. Per-file state lives in a run
// created by each ParseDocument call.
type Coordinator struct {
	registry  *backend.Registry
	segmented *segment.Segmenter
	whole     *segment.Segmenter
	timeout   time.Duration
	cache     *cache.ResultCache
	observe   func(path string, s State)
	log       *logrus.Entry

	mu        sync.Mutex
	resolvers map[string]linker.Hinter
	// scans collapses concurrent first walks of one root; the walk itself
	// runs without mu held.
	scans singleflight.Group
	scan  func(root string) ([]string, error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithTimeout bounds every backend call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithCache serves repeated parses of identical input from rc.
func WithCache(rc *cache.ResultCache) Option {
	return func(c *Coordinator) { c.cache = rc }
}

// WithStateObserver calls fn on every state transition.
func WithStateObserver(fn func(path string, s State)) Option {
	return func(c *Coordinator) { c.observe = fn }
}

// WithScanners replaces the segmenter's scanners.
func WithScanners(scanners ...segment.Scanner) Option {
	return func(c *Coordinator) { c.segmented = segment.New(segment.WithScanners(scanners...)) }
}

// WithWorkspace registers a prebuilt resolver for root so that the linker
// does not walk the workspace itself.
func WithWorkspace(root string, r *graph.Resolver) Option {
	return func(c *Coordinator) { c.resolvers[root] = workspaceHinter{root: root, r: r} }
}

// UseWorkspace is WithWorkspace for a Coordinator already in use.
func (c *Coordinator) UseWorkspace(root string, r *graph.Resolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolvers[root] = workspaceHinter{root: root, r: r}
}

// New returns a Coordinator dispatching to the backends of reg.
func New(reg *backend.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:  reg,
		segmented: segment.New(),
		whole:     segment.New(segment.WithEnabled(false)),
		timeout:   DefaultTimeout,
		log:       logrus.StandardLogger().WithField("component", "coordinator"),
		resolvers: make(map[string]linker.Hinter),
		scan:      WorkspaceFiles,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Registry returns the backend registry.
func (c *Coordinator) Registry() *backend.Registry { return c.registry }

// ParseFile reads path and parses it.
func (c *Coordinator) ParseFile(ctx context.Context, path string, opts Options) (*graph.ParseResult, error) {
	return c.ParseDocument(ctx, path, nil, opts)
}

// ParseDocument parses content as the file at path. A nil content is read
// from disk, relative to opts.WorkspaceRoot when path is relative and a
// root is set; a read failure is the only error returned. The result is
// always complete and must be treated as immutable.
func (c *Coordinator) ParseDocument(ctx context.Context, path string, content []byte, opts Options) (*graph.ParseResult, error) {
	start := time.Now()
	m := &machine{path: path, observe: c.observe}
	if content == nil {
		readPath := path
		if opts.WorkspaceRoot != "" && !filepath.IsAbs(path) {
			readPath = filepath.Join(opts.WorkspaceRoot, path)
		}
		data, err := os.ReadFile(readPath)
		if err != nil {
			m.to(StateError)
			return nil, perrors.Wrap(err, perrors.InputReadFailure, "read input").WithContext("file", path)
		}
		content = data
	}

	var key string
	if c.cache != nil {
		key = cache.Key(path, content, opts.fingerprint())
		if res, ok := c.cache.Get(key); ok {
			return res, nil
		}
	}

	r := &run{
		c:        c,
		m:        m,
		path:     path,
		content:  content,
		opts:     opts,
		log:      c.log.WithField("file", path),
		warnings: make(map[string]bool),
	}
	res := r.execute(ctx)
	res.Metadata.ProcessingTime = time.Since(start)

	if c.cache != nil {
		c.cache.Add(key, res)
	}
	return res, nil
}

// run is the working state of one ParseDocument call.
type run struct {
	c       *Coordinator
	m       *machine
	path    string
	content []byte
	opts    Options
	log     *logrus.Entry
	file    graph.Component

	warningList []string
	warnings    map[string]bool
}

// warn records a stage failure once.
func (r *run) warn(stage string, err error, fields logrus.Fields) {
	w := perrors.Warning(stage, err)
	if r.warnings[w] {
		return
	}
	r.warnings[w] = true
	r.warningList = append(r.warningList, w)
	r.log.WithFields(fields).WithField("stage", stage).WithError(err).Warn("stage degraded")
}

func (r *run) execute(ctx context.Context) *graph.ParseResult {
	r.m.to(StateSegmenting)
	seg := r.segment()
	host := seg.Metadata.HostLanguage
	r.file = graph.FileComponent(r.path, host, graph.CountLOC(r.content))

	res := &graph.ParseResult{
		Components:    []graph.Component{r.file},
		Relationships: []graph.Relationship{},
		Segmentation: graph.SegmentationSummary{
			Blocks:         seg.Blocks,
			Scanner:        seg.Metadata.Scanner,
			Classification: seg.Metadata.Classification,
			Mixed:          seg.Metadata.Mixed,
		},
		Linking: graph.LinkingSummary{Enabled: r.opts.EnableInitialLinking},
		Metadata: graph.ResultMetadata{
			FilePath:          r.path,
			Language:          host,
			LanguagesDetected: seg.Metadata.Languages,
			Backend:           seg.Metadata.Classification,
			ParsingLevel:      graph.LevelBasic,
			Aggregated:        r.opts.EnableAggregation,
		},
	}
	defer func() { res.Metadata.Warnings = append([]string{}, r.warningList...) }()

	if r.opts.SegmentationOnly || len(bytes.TrimSpace(r.content)) == 0 {
		res.Metadata.Aggregated = false
		r.m.to(StateDone)
		return res
	}

	r.m.to(StateExtracting)
	ex := r.extract(ctx, seg.Blocks)
	res.Components = ex.components
	res.Metadata.BackendsUsed = ex.backends
	res.Metadata.Diagnostics = ex.diagnostics
	if ex.level != "" {
		res.Metadata.ParsingLevel = ex.level
	}
	res.Metadata.Backend = classify(ex, seg.Metadata.Classification)

	batches := ex.batches
	if r.opts.EnableInitialLinking {
		r.m.to(StateLinking)
		rels, summary := r.link(seg.Blocks)
		res.Linking = summary
		batches = append(batches, batch{rels: rels, tier: graph.TierInitial})
	}

	if r.opts.EnableAggregation {
		r.m.to(StateAggregating)
		res.Relationships, res.Metadata.Dropped = r.aggregate(batches)
	} else {
		for _, b := range batches {
			res.Relationships = append(res.Relationships, aggregate.Tag(b.rels, b.tier)...)
		}
	}

	r.m.to(StateDone)
	r.log.WithFields(logrus.Fields{
		"language":      host,
		"backend":       res.Metadata.Backend,
		"level":         res.Metadata.ParsingLevel,
		"components":    len(res.Components),
		"relationships": len(res.Relationships),
		"warnings":      len(r.warningList),
	}).Debug("document parsed")
	return res
}

// classify reports ast when a semantic backend succeeded, hybrid when a
// scanner split the file and only shallow backends ran, and the
// segmenter's own classification otherwise.
func classify(ex *extraction, segClass graph.BackendClass) graph.BackendClass {
	switch {
	case ex.semantic:
		return graph.BackendAST
	case segClass == graph.BackendHybrid && len(ex.backends) > 0:
		return graph.BackendHybrid
	}
	return segClass
}

func (r *run) segment() (res segment.Result) {
	seg := r.c.whole
	if r.opts.EnableSegmentation {
		seg = r.c.segmented
	}
	defer func() {
		if p := recover(); p != nil {
			r.warn(stageSegment, fmt.Errorf("scanner panic: %v", p), nil)
			lang := r.opts.ForceParser
			if lang == "" {
				lang = graph.LangUnknown
			}
			res = segment.Single(r.content, lang, segment.DisabledConfidence, segment.SourceDisabled)
		}
	}()
	return seg.Segment(r.path, r.content, r.opts.ForceParser)
}

func (r *run) link(blocks []graph.Block) (rels []graph.Relationship, summary graph.LinkingSummary) {
	defer func() {
		if p := recover(); p != nil {
			r.warn(stageLink, fmt.Errorf("linker panic: %v", p), nil)
			rels, summary = nil, graph.LinkingSummary{Enabled: true}
		}
	}()
	opts := []linker.Option{linker.WithLogger(r.log)}
	if root := r.opts.WorkspaceRoot; root != "" {
		h, err := r.c.hinter(root)
		if err != nil {
			r.warn(stageLink, err, logrus.Fields{"root": root})
		} else {
			opts = append(opts, linker.WithResolver(h))
		}
	}
	return linker.New(opts...).LinkBlocks(r.path, r.content, blocks)
}

func (r *run) aggregate(batches []batch) (rels []graph.Relationship, dropped int) {
	defer func() {
		if p := recover(); p != nil {
			r.warn(stageAggregate, fmt.Errorf("aggregator panic: %v", p), nil)
			rels, dropped = []graph.Relationship{}, 0
		}
	}()
	agg := aggregate.New(aggregate.WithLogger(r.log))
	for _, b := range batches {
		agg.Add(b.rels, b.tier)
	}
	rels, dropped = agg.Collect(r.opts.ConfidenceThreshold)
	if dropped > 0 {
		r.log.WithField("dropped", dropped).Debug("relationships below threshold")
	}
	return rels, dropped
}
