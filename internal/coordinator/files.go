package coordinator

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/polyparse/internal/graph"
)

// FileResult is the outcome of one file in a ParseFiles call. Err is set
// only when the file could not be read.
type FileResult struct {
	Path   string
	Result *graph.ParseResult
	Err    error
}

// ParseFiles parses paths concurrently, at most parallelism at a time
// (GOMAXPROCS when parallelism is not positive). Results are returned in
// input order. A file that fails does not stop the others; cancelling ctx
// stops files that have not started yet.
//
// onProgress is called from worker goroutines and may be nil.
func (c *Coordinator) ParseFiles(ctx context.Context, paths []string, opts Options, parallelism int, onProgress func(ProgressEvent)) []FileResult {
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	emit := func(ev ProgressEvent) {
		if onProgress != nil {
			onProgress(ev)
		}
	}

	results := make([]FileResult, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(parallelism)

	for i, p := range paths {
		results[i].Path = p
		emit(ProgressEvent{Path: p, Status: ProgressPending})
	}
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				emit(ProgressEvent{Path: p, Status: ProgressFailed, Message: err.Error()})
				return nil
			}
			emit(ProgressEvent{Path: p, Status: ProgressWorking})
			res, err := c.ParseFile(ctx, p, opts)
			if err != nil {
				results[i].Err = err
				emit(ProgressEvent{Path: p, Status: ProgressFailed, Message: err.Error()})
				return nil
			}
			results[i].Result = res
			emit(ProgressEvent{Path: p, Status: ProgressComplete, Warnings: len(res.Metadata.Warnings)})
			return nil
		})
	}
	_ = g.Wait()
	return results
}
