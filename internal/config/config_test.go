package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Parse.Segmentation)
	assert.Equal(t, 0.5, cfg.Parse.ConfidenceThreshold)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "polyparse.yml", `
parse:
  segmentation: false
  initialLinking: true
  aggregation: true
  confidenceThreshold: 0.7
  parallelism: 4
  timeout: 5s
python:
  disabled: true
index:
  exclude: ["**/*.gen.go", "dist/**"]
  languages: [go, typescript]
cache:
  size: 32
store:
  path: .polyparse/db
`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.False(t, cfg.Parse.Segmentation)
	assert.Equal(t, 0.7, cfg.Parse.ConfidenceThreshold)
	assert.Equal(t, 4, cfg.Parse.Parallelism)
	assert.Equal(t, 5*time.Second, cfg.Parse.Timeout)
	assert.True(t, cfg.Python.Disabled)
	assert.Equal(t, "python3", cfg.Python.Command, "unset keys keep their default")
	assert.Equal(t, []string{"**/*.gen.go", "dist/**"}, cfg.Index.Exclude)
	assert.Equal(t, []graph.Language{graph.LangGo, graph.LangTypeScript}, cfg.IndexLanguages())
	assert.Equal(t, 32, cfg.Cache.Size)
	assert.Equal(t, ".polyparse/db", cfg.Store.Path)

	opts := cfg.ParseOptions()
	assert.False(t, opts.EnableSegmentation)
	assert.Equal(t, 0.7, opts.ConfidenceThreshold)
	assert.True(t, cfg.RegistryConfig().Python.Disabled)
}

func TestLoad_YAMLExtension(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "polyparse.yaml", "logLevel: debug\n")
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "polyparse.yml", "parse: [unclosed\n")
	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.Config))
}

func TestLoad_ThresholdOutOfRange(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "polyparse.yml", "parse:\n  confidenceThreshold: 1.5\n")
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidenceThreshold")
}

func TestLoad_EnvFilesDoNotOverride(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, ".env", "POLYPARSE_TEST_A=from-env\nPOLYPARSE_TEST_B=from-env\n")
	write(t, dir, ".env.local", "POLYPARSE_TEST_A=from-local\n")
	t.Setenv("POLYPARSE_TEST_B", "from-process")
	t.Cleanup(func() { os.Unsetenv("POLYPARSE_TEST_A") })

	_, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-local", os.Getenv("POLYPARSE_TEST_A"), ".env.local is loaded first")
	assert.Equal(t, "from-process", os.Getenv("POLYPARSE_TEST_B"))
}
