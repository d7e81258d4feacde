// Package aggregate merges relationship batches contributed by different
// tiers into one deduplicated, confidence-filtered set.
//
// Entries are keyed by (kind, source, target). For each key the entry from
// the highest-ranked tier wins; within a tier the higher confidence wins,
// then the entry whose canonical metadata encoding sorts first. The outcome
// never depends on the order batches were added.
package aggregate

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// DefaultThreshold is the minimum confidence kept when none is configured.
const DefaultThreshold = 0.5

type key struct {
	kind   graph.RelationshipKind
	source string
	target string
}

type entry struct {
	rel        graph.Relationship
	tier       graph.Tier
	confidence float64
	canonical  string
}

// Aggregator accumulates tier-tagged relationships for one file. It is safe
// for concurrent use, but a single file's batches should go to a single
// Aggregator that is cleared before the next file.
type Aggregator struct {
	mu      sync.Mutex
	entries map[key][]entry
	log     *logrus.Entry
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the aggregator logger.
func WithLogger(log *logrus.Entry) Option {
	return func(a *Aggregator) { a.log = log }
}

// New returns an empty Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		entries: make(map[key][]entry),
		log:     logrus.StandardLogger().WithField("component", "aggregate"),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Clear drops everything accumulated so far.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = make(map[key][]entry)
}

// Len returns the number of distinct keys accumulated.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Add records a batch of relationships under tier. A relationship whose
// metadata carries an explicit confidence keeps it; the others take the
// tier's default. Metadata maps are copied, so callers may reuse theirs.
func (a *Aggregator) Add(rels []graph.Relationship, tier graph.Tier) {
	if tier.Rank() == 0 {
		a.log.WithField("tier", tier).Warn("relationships added under unknown tier")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range rels {
		conf, ok := r.Confidence()
		if !ok {
			conf = tier.DefaultConfidence()
		}
		conf = min(max(conf, 0), 1)

		r.Metadata = cloneMeta(r.Metadata)
		if r.Location != nil {
			loc := *r.Location
			r.Location = &loc
		}
		k := key{r.Kind, r.SourceID, r.TargetID}
		a.entries[k] = append(a.entries[k], entry{
			rel:        r,
			tier:       tier,
			confidence: conf,
			canonical:  canonical(r),
		})
	}
}

// GetAll returns one relationship per key whose final confidence is at
// least threshold, sorted by id.
func (a *Aggregator) GetAll(threshold float64) []graph.Relationship {
	rels, _ := a.Collect(threshold)
	return rels
}

// Collect is GetAll that also reports how many keys fell below threshold.
func (a *Aggregator) Collect(threshold float64) (rels []graph.Relationship, dropped int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rels = make([]graph.Relationship, 0, len(a.entries))
	for k, es := range a.entries {
		merged, conf := merge(k, es)
		if conf < threshold {
			dropped++
			a.log.WithFields(logrus.Fields{
				"kind":       k.kind,
				"target":     k.target,
				"confidence": conf,
				"type":       perrors.AggregationDrop,
			}).Trace("relationship below threshold")
			continue
		}
		rels = append(rels, merged)
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].ID < rels[j].ID })
	return rels, dropped
}

// merge picks the winning entry for one key and folds the others into it.
func merge(k key, es []entry) (graph.Relationship, float64) {
	ordered := make([]entry, len(es))
	copy(ordered, es)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if ra, rb := a.tier.Rank(), b.tier.Rank(); ra != rb {
			return ra > rb
		}
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		return a.canonical < b.canonical
	})

	win := ordered[0]
	out := win.rel
	out.ID = graph.RelationshipID(k.kind, k.source, k.target)
	out.Metadata = cloneMeta(win.rel.Metadata)

	var tiers []string
	seen := make(map[graph.Tier]bool)
	for _, e := range ordered {
		if !seen[e.tier] {
			seen[e.tier] = true
			tiers = append(tiers, string(e.tier))
		}
		if e.rel.Location != nil && out.Location == nil {
			loc := *e.rel.Location
			out.Location = &loc
		}
		for mk, mv := range e.rel.Metadata {
			if _, has := out.Metadata[mk]; !has {
				out.Metadata[mk] = mv
			}
		}
	}

	out.Metadata[graph.MetaTier] = string(win.tier)
	out.Metadata[graph.MetaConfidence] = win.confidence
	out.Metadata[graph.MetaContributingTiers] = tiers
	if _, ok := out.Metadata[graph.MetaIsResolved]; !ok {
		out.Metadata[graph.MetaIsResolved] = !graph.IsPlaceholder(k.target)
	}
	return out, win.confidence
}

// canonical encodes the metadata and location of r. encoding/json sorts
// map keys, which makes the encoding stable.
func canonical(r graph.Relationship) string {
	b, err := json.Marshal(struct {
		Meta map[string]any `json:"m"`
		Loc  *graph.Location `json:"l"`
	}{r.Metadata, r.Location})
	if err != nil {
		return ""
	}
	return string(b)
}

func cloneMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+3)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Tag stamps rels with tier without merging, for pass-through results. The
// tier's default confidence fills in where no explicit confidence exists.
func Tag(rels []graph.Relationship, tier graph.Tier) []graph.Relationship {
	out := make([]graph.Relationship, len(rels))
	for i, r := range rels {
		r.Metadata = cloneMeta(r.Metadata)
		if _, ok := r.Metadata[graph.MetaTier]; !ok {
			r.Metadata[graph.MetaTier] = string(tier)
		}
		if _, ok := r.Confidence(); !ok {
			r.Metadata[graph.MetaConfidence] = tier.DefaultConfidence()
		}
		out[i] = r
	}
	return out
}
