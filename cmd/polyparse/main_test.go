package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/polyparse/internal/graph"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--config", t.TempDir()}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

const validGo = "package demo\n\nfunc Hello() string { return \"hi\" }\n"

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestValidateCommand(t *testing.T) {
	good := writeFile(t, "good.go", validGo)
	out, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+good+" (go, ")

	bad := writeFile(t, "bad.go", "package demo\n\nfunc Hello( {\n")
	out, err = execute(t, "validate", bad)
	require.Error(t, err)
	assert.Equal(t, "1 of 1 files have syntax errors", err.Error())
	assert.Contains(t, out, bad+":")
	assert.Contains(t, out, "error")
}

func TestParseCommand_Summary(t *testing.T) {
	path := writeFile(t, "hello.go", validGo)
	out, err := execute(t, "parse", "--format", "summary", path)
	require.NoError(t, err)
	assert.Contains(t, out, "language     go")
	assert.Contains(t, out, "components   ")
}

func TestParseCommand_UnknownFormat(t *testing.T) {
	path := writeFile(t, "hello.go", validGo)
	_, err := execute(t, "parse", "--format", "yaml", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "yaml"`)
}

func TestQueryCommand_RequiresStore(t *testing.T) {
	_, err := execute(t, "query", "clusters")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no store")
}

// ---------------------------------------------------------------------------
// Helpers under test
// ---------------------------------------------------------------------------

func TestComponentText(t *testing.T) {
	withCode := graph.Component{Name: "f", Kind: graph.KindFunction, Code: "func f() {}"}
	assert.Equal(t, "func f() {}", componentText(withCode))

	bare := graph.Component{
		Name:     "Run",
		Kind:     graph.KindMethod,
		Metadata: map[string]any{graph.MetaQualifiedName: "Server.Run"},
	}
	assert.Equal(t, "METHOD Server.Run", componentText(bare))
}
