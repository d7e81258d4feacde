package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dusk-indust/polyparse/internal/bridge"
	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// Registry maps each language to an ordered chain of backend descriptors:
// one primary followed by fallbacks. Descriptors are resolved lazily on first
// use and helper transports are shared, so one helper process serves every
// language and descriptor that names it.
//
// The registry is read-mostly and safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	chains   map[graph.Language][]Descriptor
	resolved map[string]Backend       // descriptor name -> backend
	callers  map[string]bridge.Caller // helper name -> transport
	order    []string                 // helper names in start order
	log      *logrus.Entry
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(log *logrus.Entry) RegistryOption {
	return func(r *Registry) { r.log = log }
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		chains:   make(map[graph.Language][]Descriptor),
		resolved: make(map[string]Backend),
		callers:  make(map[string]bridge.Caller),
		log:      logrus.StandardLogger().WithField("component", "registry"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register sets the chain for lang, replacing any previous registration.
func (r *Registry) Register(lang graph.Language, primary Descriptor, fallbacks ...Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := make([]Descriptor, 0, 1+len(fallbacks))
	chain = append(chain, primary)
	chain = append(chain, fallbacks...)
	r.chains[lang] = chain
}

// Chain returns the resolved backends for lang, primary first. A language
// without a registration yields a NoBackendAvailable error. Descriptors that
// cannot be resolved are skipped with a warning log.
func (r *Registry) Chain(lang graph.Language) ([]Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	descs, ok := r.chains[lang]
	if !ok || len(descs) == 0 {
		return nil, perrors.Newf(perrors.NoBackendAvailable, "no backend registered for language %q", lang).
			WithContext("language", string(lang))
	}
	out := make([]Backend, 0, len(descs))
	for _, d := range descs {
		b, err := r.resolveLocked(d)
		if err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{"backend": d.Name, "language": lang}).Warn("skipping backend")
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, perrors.Newf(perrors.NoBackendAvailable, "no usable backend for language %q", lang).
			WithContext("language", string(lang))
	}
	return out, nil
}

// Primary returns the first usable backend for lang.
func (r *Registry) Primary(lang graph.Language) (Backend, error) {
	chain, err := r.Chain(lang)
	if err != nil {
		return nil, err
	}
	return chain[0], nil
}

// Languages returns every registered language, sorted.
func (r *Registry) Languages() []graph.Language {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]graph.Language, 0, len(r.chains))
	for l := range r.chains {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) resolveLocked(d Descriptor) (Backend, error) {
	if b, ok := r.resolved[d.Name]; ok {
		return b, nil
	}
	var b Backend
	switch d.Kind {
	case KindNative:
		if d.Native == nil {
			return nil, fmt.Errorf("native descriptor %q has no backend", d.Name)
		}
		b = d.Native
	case KindSubprocess:
		if d.Process == nil || d.Adapter == nil {
			return nil, fmt.Errorf("subprocess descriptor %q is incomplete", d.Name)
		}
		caller, ok := r.callers[d.Process.Name]
		if !ok {
			caller = bridge.NewProcess(*d.Process, bridge.WithLogger(r.log.WithField("helper", d.Process.Name)))
			r.callers[d.Process.Name] = caller
			r.order = append(r.order, d.Process.Name)
		}
		b = d.Adapter(caller)
	case KindRemote:
		if d.Remote == nil || d.Adapter == nil {
			return nil, fmt.Errorf("remote descriptor %q is incomplete", d.Name)
		}
		key := "remote:" + d.Remote.URL
		caller, ok := r.callers[key]
		if !ok {
			caller = bridge.NewHTTPCaller(*d.Remote)
			r.callers[key] = caller
			r.order = append(r.order, key)
		}
		b = d.Adapter(caller)
	default:
		return nil, fmt.Errorf("descriptor %q has unknown kind %d", d.Name, d.Kind)
	}
	r.resolved[d.Name] = b
	return b, nil
}

// Close shuts down every helper transport in reverse start order and returns
// the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for i := len(r.order) - 1; i >= 0; i-- {
		if err := r.callers[r.order[i]].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.callers = make(map[string]bridge.Caller)
	r.resolved = make(map[string]Backend)
	r.order = nil
	return firstErr
}
