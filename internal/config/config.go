// Package config loads project settings from polyparse.yml and the .env
// files next to it.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/polyparse/internal/aggregate"
	"github.com/dusk-indust/polyparse/internal/cache"
	"github.com/dusk-indust/polyparse/internal/coordinator"
	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// FileNames are the config file names tried, in order.
var FileNames = []string{"polyparse.yml", "polyparse.yaml"}

// EnvFiles are loaded from the config directory before the config file is
// read. Variables already set in the process are never overridden.
var EnvFiles = []string{".env.local", ".env"}

// Config holds project-level settings.
type Config struct {
	Parse     ParseConfig     `yaml:"parse" mapstructure:"parse"`
	Python    PythonConfig    `yaml:"python" mapstructure:"python"`
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	LogLevel  string          `yaml:"logLevel,omitempty" mapstructure:"logLevel"`
}

type ParseConfig struct {
	Segmentation        bool          `yaml:"segmentation" mapstructure:"segmentation"`
	InitialLinking      bool          `yaml:"initialLinking" mapstructure:"initialLinking"`
	Aggregation         bool          `yaml:"aggregation" mapstructure:"aggregation"`
	ConfidenceThreshold float64       `yaml:"confidenceThreshold" mapstructure:"confidenceThreshold"`
	Parallelism         int           `yaml:"parallelism,omitempty" mapstructure:"parallelism"`
	Timeout             time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

type PythonConfig struct {
	Command   string        `yaml:"command,omitempty" mapstructure:"command"`
	Disabled  bool          `yaml:"disabled,omitempty" mapstructure:"disabled"`
	Timeout   time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	RemoteURL string        `yaml:"remoteURL,omitempty" mapstructure:"remoteURL"`
}

type IndexConfig struct {
	// Exclude holds glob patterns matched against workspace-relative paths.
	Exclude []string `yaml:"exclude,omitempty" mapstructure:"exclude"`
	// Languages restricts indexing to these languages when not empty.
	Languages []string `yaml:"languages,omitempty" mapstructure:"languages"`
}

type CacheConfig struct {
	Size int `yaml:"size,omitempty" mapstructure:"size"`
}

type EmbeddingConfig struct {
	URL   string `yaml:"url,omitempty" mapstructure:"url"`
	Model string `yaml:"model,omitempty" mapstructure:"model"`
	Token string `yaml:"token,omitempty" mapstructure:"token"`
}

type StoreConfig struct {
	// Path is a Kuzu database directory. Empty means an in-memory store.
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	return &Config{
		Parse: ParseConfig{
			Segmentation:        true,
			InitialLinking:      true,
			Aggregation:         true,
			ConfidenceThreshold: aggregate.DefaultThreshold,
			Timeout:             coordinator.DefaultTimeout,
		},
		Python: PythonConfig{Command: "python3"},
		Cache:  CacheConfig{Size: cache.DefaultSize},
		Embedding: EmbeddingConfig{
			URL:   "http://localhost:8000",
			Model: "nomic-embed-text",
		},
		LogLevel: "info",
	}
}

// Load reads polyparse.yml or polyparse.yaml from dir over the defaults.
// A missing file is not an error.
func Load(dir string) (*Config, error) {
	for _, name := range EnvFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return nil, perrors.Wrap(err, perrors.Config, "load env file").WithContext("path", path)
		}
	}

	cfg := Default()
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, perrors.Wrap(err, perrors.Config, "read config").WithContext("path", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, perrors.Wrap(err, perrors.Config, "parse config").WithContext("path", path)
		}
		break
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	if t := c.Parse.ConfidenceThreshold; t < 0 || t > 1 {
		return perrors.Newf(perrors.Config, "parse.confidenceThreshold %v is outside [0, 1]", t)
	}
	if c.Parse.Parallelism < 0 {
		return perrors.Newf(perrors.Config, "parse.parallelism %d is negative", c.Parse.Parallelism)
	}
	if c.Parse.Timeout < 0 || c.Python.Timeout < 0 {
		return perrors.New(perrors.Config, "timeouts must not be negative")
	}
	return nil
}

// ParseOptions converts the parse section into coordinator options.
func (c *Config) ParseOptions() coordinator.Options {
	return coordinator.Options{
		EnableSegmentation:   c.Parse.Segmentation,
		EnableInitialLinking: c.Parse.InitialLinking,
		EnableAggregation:    c.Parse.Aggregation,
		ConfidenceThreshold:  c.Parse.ConfidenceThreshold,
	}
}

// RegistryConfig converts the python section into backend registry
// settings.
func (c *Config) RegistryConfig() coordinator.RegistryConfig {
	return coordinator.RegistryConfig{Python: coordinator.PythonConfig{
		Command:   c.Python.Command,
		RemoteURL: c.Python.RemoteURL,
		Timeout:   c.Python.Timeout,
		Disabled:  c.Python.Disabled,
	}}
}

// IndexLanguages returns the configured language filter.
func (c *Config) IndexLanguages() []graph.Language {
	out := make([]graph.Language, 0, len(c.Index.Languages))
	for _, l := range c.Index.Languages {
		out = append(out, graph.Language(l))
	}
	return out
}
