package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dusk-indust/polyparse/internal/backend"
	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// batch is a group of relationships contributed under one tier.
type batch struct {
	rels []graph.Relationship
	tier graph.Tier
}

// extraction is the merged backend output over every block of a file.
type extraction struct {
	components  []graph.Component
	batches     []batch
	diagnostics []graph.Diagnostic
	backends    []string
	level       graph.ParsingLevel
	semantic    bool
}

func (ex *extraction) used(name string) {
	for _, b := range ex.backends {
		if b == name {
			return
		}
	}
	ex.backends = append(ex.backends, name)
}

// extract runs the backend chain of every block and folds the outputs into
// one extraction. Component ids are file-scoped, so a component emitted by
// two blocks is kept once.
func (r *run) extract(ctx context.Context, blocks []graph.Block) *extraction {
	ex := &extraction{components: []graph.Component{r.file}}
	seen := map[string]bool{r.file.ID: true}
	lines := backend.NewLines(r.content)

	for _, blk := range blocks {
		if ctx.Err() != nil {
			r.warn(stageExtract, perrors.Wrap(ctx.Err(), perrors.BackendCommunicationFailure, "extraction cancelled"), nil)
			break
		}
		chain, err := r.c.registry.Chain(blk.Language)
		if err != nil {
			r.warn(stageExtract, err, logrus.Fields{"language": blk.Language})
			continue
		}
		req := backend.Request{
			FilePath: r.path,
			Language: blk.Language,
			Content:  r.content[blk.StartByte:blk.EndByte],
		}
		b, out := r.firstSuccess(ctx, chain, req)
		if out == nil {
			continue
		}

		_, col := lines.Position(blk.StartByte)
		shift := blockShift{lines: blk.StartLine - 1, firstLine: 1, columns: col - 1}

		for _, c := range out.Components {
			if c.Kind == graph.KindFile && c.ID == r.file.ID {
				continue
			}
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			c.Location = shift.apply(c.Location)
			ex.components = append(ex.components, c)
		}

		rels := make([]graph.Relationship, 0, len(out.Relationships))
		for _, rel := range out.Relationships {
			meta := make(map[string]any, len(rel.Metadata)+1)
			for k, v := range rel.Metadata {
				meta[k] = v
			}
			if _, ok := meta[graph.MetaBackend]; !ok {
				meta[graph.MetaBackend] = b.Name()
			}
			rel.Metadata = meta
			if rel.Location != nil {
				loc := shift.apply(*rel.Location)
				rel.Location = &loc
			}
			rels = append(rels, rel)
		}
		ex.batches = append(ex.batches, batch{rels: rels, tier: b.Level().Tier()})

		for _, d := range out.Diagnostics {
			if d.Line > 0 {
				d.Line += shift.lines
			}
			if d.Backend == "" {
				d.Backend = b.Name()
			}
			ex.diagnostics = append(ex.diagnostics, d)
		}

		ex.used(b.Name())
		if b.Level().Rank() > ex.level.Rank() {
			ex.level = b.Level()
		}
		if b.Level() == graph.LevelSemantic {
			ex.semantic = true
		}
	}
	return ex
}

// firstSuccess walks chain in order and returns the first backend that
// extracts without error. Each failure is recorded as a warning.
func (r *run) firstSuccess(ctx context.Context, chain []backend.Backend, req backend.Request) (backend.Backend, *backend.Extraction) {
	for _, b := range chain {
		start := time.Now()
		out, err := r.call(ctx, b, req)
		fields := logrus.Fields{"backend": b.Name(), "language": req.Language}
		if err != nil {
			r.warn(stageExtract, fmt.Errorf("%s: %w", b.Name(), err), fields)
			continue
		}
		r.log.WithFields(fields).WithField("elapsed", time.Since(start)).Trace("block extracted")
		return b, out
	}
	return nil, nil
}

// call runs one backend with the coordinator timeout. A panic or a missed
// deadline becomes a BackendCommunicationFailure; the pipeline never waits
// on a backend past its deadline.
func (r *run) call(ctx context.Context, b backend.Backend, req backend.Request) (*backend.Extraction, error) {
	if r.c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.c.timeout)
		defer cancel()
	}

	type reply struct {
		out *backend.Extraction
		err error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- reply{err: perrors.Newf(perrors.BackendCommunicationFailure, "backend panic: %v", p)}
			}
		}()
		out, err := b.Extract(ctx, req)
		if err == nil && out == nil {
			out = &backend.Extraction{}
		}
		done <- reply{out: out, err: err}
	}()

	select {
	case rep := <-done:
		return rep.out, rep.err
	case <-ctx.Done():
		return nil, perrors.Wrap(ctx.Err(), perrors.BackendCommunicationFailure, "backend did not answer in time").
			WithContext("backend", b.Name())
	}
}

// blockShift maps block-relative positions to file positions.
type blockShift struct {
	lines     int
	firstLine int
	columns   int
}

func (s blockShift) apply(l graph.Location) graph.Location {
	if l.StartLine == s.firstLine {
		l.StartColumn += s.columns
	}
	if l.EndLine == s.firstLine {
		l.EndColumn += s.columns
	}
	return l.Shift(s.lines)
}
