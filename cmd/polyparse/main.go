package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dusk-indust/polyparse/internal/backend"
	"github.com/dusk-indust/polyparse/internal/cache"
	"github.com/dusk-indust/polyparse/internal/config"
	"github.com/dusk-indust/polyparse/internal/coordinator"
)

// version is set by goreleaser at build time.
var version = "dev"

// envPrefix prefixes every environment override, e.g.
// POLYPARSE_PARSE_CONFIDENCETHRESHOLD.
const envPrefix = "POLYPARSE"

var (
	configDir string
	logLevel  string
	verbose   bool

	// v layers flags and POLYPARSE_* variables over the config file.
	v = viper.New()
)

var rootCmd = &cobra.Command{
	Use:           "polyparse",
	Short:         "Parse mixed-language source files into a component graph",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := bindFlags(cmd); err != nil {
			return err
		}
		return setupLogging()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configDir, "config", ".", "directory holding polyparse.yml and .env files")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level debug")

	rootCmd.AddCommand(parseCmd, validateCmd, indexCmd, queryCmd, serveCmd, watchCmd, embedCmd)
}

func setupLogging() error {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	level := logLevel
	if level == "" {
		level = v.GetString("logLevel")
	}
	if level == "" {
		level = "info"
	}
	if verbose {
		level = "debug"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	return nil
}

// loadConfig reads the config file and applies every set environment
// variable or changed flag bound to v.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	overlay(cfg)
	if logLevel == "" && !verbose && cfg.LogLevel != "" {
		if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			logrus.SetLevel(lvl)
		}
	}
	return cfg, cfg.Validate()
}

func overlay(cfg *config.Config) {
	if v.IsSet("parse.segmentation") {
		cfg.Parse.Segmentation = v.GetBool("parse.segmentation")
	}
	if v.IsSet("parse.initialLinking") {
		cfg.Parse.InitialLinking = v.GetBool("parse.initialLinking")
	}
	if v.IsSet("parse.aggregation") {
		cfg.Parse.Aggregation = v.GetBool("parse.aggregation")
	}
	if v.IsSet("parse.confidenceThreshold") {
		cfg.Parse.ConfidenceThreshold = v.GetFloat64("parse.confidenceThreshold")
	}
	if v.IsSet("parse.parallelism") {
		cfg.Parse.Parallelism = v.GetInt("parse.parallelism")
	}
	if v.IsSet("parse.timeout") {
		cfg.Parse.Timeout = v.GetDuration("parse.timeout")
	}
	if v.IsSet("python.command") {
		cfg.Python.Command = v.GetString("python.command")
	}
	if v.IsSet("python.disabled") {
		cfg.Python.Disabled = v.GetBool("python.disabled")
	}
	if v.IsSet("python.remoteURL") {
		cfg.Python.RemoteURL = v.GetString("python.remoteURL")
	}
	if v.IsSet("index.exclude") {
		cfg.Index.Exclude = v.GetStringSlice("index.exclude")
	}
	if v.IsSet("index.languages") {
		cfg.Index.Languages = v.GetStringSlice("index.languages")
	}
	if v.IsSet("cache.size") {
		cfg.Cache.Size = v.GetInt("cache.size")
	}
	if v.IsSet("embedding.url") {
		cfg.Embedding.URL = v.GetString("embedding.url")
	}
	if v.IsSet("embedding.model") {
		cfg.Embedding.Model = v.GetString("embedding.model")
	}
	if v.IsSet("embedding.token") {
		cfg.Embedding.Token = v.GetString("embedding.token")
	}
	if v.IsSet("store.path") {
		cfg.Store.Path = v.GetString("store.path")
	}
}

// flagKeys routes command flags to config keys. Several commands define the
// same flag, so binding happens for the executing command only.
var flagKeys = map[string]string{
	"segmentation":     "parse.segmentation",
	"linking":          "parse.initialLinking",
	"aggregation":      "parse.aggregation",
	"threshold":        "parse.confidenceThreshold",
	"parallelism":      "parse.parallelism",
	"timeout":          "parse.timeout",
	"no-python-helper": "python.disabled",
	"python":           "python.command",
	"python-url":       "python.remoteURL",
	"exclude":          "index.exclude",
	"language":         "index.languages",
	"store":            "store.path",
	"embedding-url":    "embedding.url",
	"model":            "embedding.model",
}

func bindFlags(cmd *cobra.Command) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}
	return nil
}

// addParseFlags registers the pipeline switches shared by several commands.
func addParseFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("segmentation", true, "split mixed-language files into blocks")
	f.Bool("linking", true, "run the text-level import linker")
	f.Bool("aggregation", true, "merge relationship tiers and apply the threshold")
	f.Float64("threshold", 0.5, "minimum relationship confidence kept by aggregation")
	f.Duration("timeout", coordinator.DefaultTimeout, "time limit for one backend call")
	f.Bool("no-python-helper", false, "do not start the Python helper")
	f.String("python", "python3", "interpreter running the Python helper")
	f.String("python-url", "", "reach a remote Python helper at this URL instead")
}

// newCoordinator builds the backend registry and coordinator for cfg. The
// returned registry must be closed to stop helper processes.
func newCoordinator(cfg *config.Config) (*coordinator.Coordinator, *backend.Registry) {
	rc := cfg.RegistryConfig()
	rc.Logger = logrus.WithField("component", "registry")
	reg := coordinator.DefaultRegistry(rc)

	opts := []coordinator.Option{coordinator.WithLogger(logrus.WithField("component", "coordinator"))}
	if cfg.Parse.Timeout > 0 {
		opts = append(opts, coordinator.WithTimeout(cfg.Parse.Timeout))
	}
	if cfg.Cache.Size > 0 {
		opts = append(opts, coordinator.WithCache(cache.New(cfg.Cache.Size)))
	}
	return coordinator.New(reg, opts...), reg
}

func closeRegistry(reg *backend.Registry) {
	if err := reg.Close(); err != nil {
		logrus.WithError(err).Warn("stopping backends")
	}
}
