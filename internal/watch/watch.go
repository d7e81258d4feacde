// Package watch re-parses workspace files as they change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"

	"github.com/dusk-indust/polyparse/internal/coordinator"
	"github.com/dusk-indust/polyparse/internal/detect"
	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// DefaultDebounce coalesces bursts of writes to one file.
const DefaultDebounce = 100 * time.Millisecond

// Config selects what is watched.
type Config struct {
	Root     string
	Exclude  []string
	Debounce time.Duration
	Parse    coordinator.Options
}

// Update is one re-parse of a changed file. Path is relative to the root.
type Update struct {
	Path    string
	Result  *graph.ParseResult
	Err     error
	Removed bool
}

// Watcher re-parses changed files under a root directory.
type Watcher struct {
	cfg      Config
	coord    *coordinator.Coordinator
	fsw      *fsnotify.Watcher
	excludes []glob.Glob
	log      *logrus.Entry

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
	timers  sync.WaitGroup
	done    chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(log *logrus.Entry) Option {
	return func(w *Watcher) { w.log = log }
}

// New validates cfg and opens an fsnotify watcher. Close releases it.
func New(coord *coordinator.Coordinator, cfg Config, opts ...Option) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.InputReadFailure, "resolve root")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.InputReadFailure, "watch root").WithContext("root", root)
	}
	if !info.IsDir() {
		return nil, perrors.Newf(perrors.Config, "watch root %s is not a directory", root)
	}
	cfg.Root = root
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	excludes := make([]glob.Glob, 0, len(cfg.Exclude))
	for _, p := range cfg.Exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, perrors.Wrap(err, perrors.Config, "invalid exclude pattern").WithContext("pattern", p)
		}
		excludes = append(excludes, g)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, perrors.Wrap(err, perrors.Internal, "create watcher")
	}
	w := &Watcher{
		cfg:      cfg,
		coord:    coord,
		fsw:      fsw,
		excludes: excludes,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
		log:      logrus.StandardLogger().WithField("component", "watch"),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Run watches until ctx is done, sending one Update per debounced change.
// The channel is closed when Run returns. Run may be called once.
func (w *Watcher) Run(ctx context.Context, updates chan<- Update) error {
	defer close(updates)
	if err := w.addRecursive(w.cfg.Root); err != nil {
		return perrors.Wrap(err, perrors.InputReadFailure, "watch workspace").WithContext("root", w.cfg.Root)
	}
	w.log.WithField("root", w.cfg.Root).Info("watching for changes")

	changed := make(chan string)
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev, changed)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watcher error")
		case rel := <-changed:
			select {
			case updates <- w.parse(ctx, rel):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event, changed chan<- string) {
	rel, ok := w.relative(ev.Name)
	if !ok || w.excluded(rel) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name)
			return
		}
	}
	if detect.Detect(rel, nil).Language == graph.LangUnknown {
		return
	}
	w.schedule(ctx, rel, changed)
}

// schedule restarts the debounce timer for rel.
func (w *Watcher) schedule(ctx context.Context, rel string, changed chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.pending[rel]; ok && t.Stop() {
		w.timers.Done()
	}
	w.timers.Add(1)
	w.pending[rel] = time.AfterFunc(w.cfg.Debounce, func() {
		defer w.timers.Done()
		w.mu.Lock()
		delete(w.pending, rel)
		w.mu.Unlock()
		select {
		case changed <- rel:
		case <-ctx.Done():
		case <-w.done:
		}
	})
}

// stopTimers cancels pending timers and waits for running callbacks.
func (w *Watcher) stopTimers() {
	w.mu.Lock()
	w.stopped = true
	close(w.done)
	for rel, t := range w.pending {
		if t.Stop() {
			w.timers.Done()
		}
		delete(w.pending, rel)
	}
	w.mu.Unlock()
	w.timers.Wait()
}

func (w *Watcher) parse(ctx context.Context, rel string) Update {
	if _, err := os.Stat(filepath.Join(w.cfg.Root, rel)); os.IsNotExist(err) {
		return Update{Path: rel, Removed: true}
	}
	opts := w.cfg.Parse
	opts.WorkspaceRoot = w.cfg.Root
	res, err := w.coord.ParseDocument(ctx, rel, nil, opts)
	return Update{Path: rel, Result: res, Err: err}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if rel, ok := w.relative(path); ok && rel != "." {
			if strings.HasPrefix(d.Name(), ".") || w.excluded(rel) {
				return filepath.SkipDir
			}
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) excluded(rel string) bool {
	for dir := rel; dir != "." && dir != "/"; dir = filepath.ToSlash(filepath.Dir(dir)) {
		base := dir[strings.LastIndex(dir, "/")+1:]
		if strings.HasPrefix(base, ".") {
			return true
		}
		for _, g := range w.excludes {
			if g.Match(dir) {
				return true
			}
		}
	}
	return false
}

// FormatUpdate renders the one-line summary printed per re-parse.
func FormatUpdate(u Update) string {
	switch {
	case u.Removed:
		return "- " + u.Path + " removed"
	case u.Err != nil:
		return "✗ " + u.Path + ": " + u.Err.Error()
	}
	m := u.Result.Metadata
	line := fmt.Sprintf("✓ %s %s %s components=%d relationships=%d %s",
		u.Path, m.Language, m.Backend, len(u.Result.Components), len(u.Result.Relationships),
		m.ProcessingTime.Round(time.Millisecond))
	if n := len(m.Warnings); n > 0 {
		line += fmt.Sprintf(" warnings=%d", n)
	}
	return line
}
