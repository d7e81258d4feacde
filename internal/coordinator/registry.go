package coordinator

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/backend/heuristic"
	"github.com/dusk-indust/polyparse/internal/backend/pyast"
	"github.com/dusk-indust/polyparse/internal/backend/treesitter"
	"github.com/dusk-indust/polyparse/internal/bridge"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// PythonConfig selects how the Python semantic backend is reached.
type PythonConfig struct {
	// Command is the interpreter running the embedded helper.
	Command string
	// RemoteURL, when set, reaches a helper over HTTP instead of a local
	// process.
	RemoteURL   string
	Token       string
	Timeout     time.Duration
	MaxRestarts int
	// Disabled leaves Python to the tree-sitter and heuristic backends.
	Disabled bool
}

// RegistryConfig configures DefaultRegistry.
type RegistryConfig struct {
	Python PythonConfig
	Logger *logrus.Entry
}

// DefaultRegistry registers every built-in backend. Languages with a
// tree-sitter grammar use it first and fall back to the heuristic backend;
// Python puts the helper-backed semantic backend in front of both.
func DefaultRegistry(cfg RegistryConfig) *backend.Registry {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger().WithField("component", "registry")
	}
	reg := backend.NewRegistry(backend.WithLogger(log))
	h := backend.Native(heuristic.New(heuristic.WithLogger(log.WithField("backend", heuristic.Name))))

	ts := treesitter.NewTypeScript()
	reg.Register(graph.LangTypeScript, backend.Native(ts), h)
	reg.Register(graph.LangJavaScript, backend.Native(ts), h)
	reg.Register(graph.LangGo, backend.Native(treesitter.NewGo()), h)
	reg.Register(graph.LangRust, backend.Native(treesitter.NewRust()), h)
	reg.Register(graph.LangJava, backend.Native(treesitter.NewJava()), h)

	pyChain := []backend.Descriptor{backend.Native(treesitter.NewPython()), h}
	if py, ok := pythonDescriptor(cfg.Python, log); ok {
		reg.Register(graph.LangPython, py, pyChain...)
	} else {
		reg.Register(graph.LangPython, pyChain[0], pyChain[1:]...)
	}

	registered := make(map[graph.Language]bool)
	for _, lang := range reg.Languages() {
		registered[lang] = true
	}
	for _, lang := range heuristic.New().Languages() {
		if !registered[lang] {
			reg.Register(lang, h)
		}
	}
	return reg
}

func pythonDescriptor(cfg PythonConfig, log *logrus.Entry) (backend.Descriptor, bool) {
	if cfg.Disabled {
		return backend.Descriptor{}, false
	}
	if cfg.RemoteURL != "" {
		return pyast.RemoteDescriptor(bridge.HTTPConfig{URL: cfg.RemoteURL, Token: cfg.Token, Timeout: cfg.Timeout}), true
	}
	pc, err := bridge.PythonHelper(bridge.PythonOptions{
		Interpreter: cfg.Command,
		Timeout:     cfg.Timeout,
		MaxRestarts: cfg.MaxRestarts,
	})
	if err != nil {
		log.WithError(err).Info("python helper unavailable, using structural backend")
		return backend.Descriptor{}, false
	}
	return pyast.Descriptor(pc), true
}
