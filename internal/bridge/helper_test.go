package bridge

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterialize_ReusesContentAddressedCopy(t *testing.T) {
	dir := t.TempDir()

	first, err := materialize("helpers/pyast.py", dir)
	require.NoError(t, err)
	second, err := materialize("helpers/pyast.py", dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	want, err := HelperFS.ReadFile("helpers/pyast.py")
	require.NoError(t, err)
	got, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPythonHelper_MissingInterpreter(t *testing.T) {
	_, err := PythonHelper(PythonOptions{Interpreter: "python-does-not-exist-42"})
	assert.Error(t, err)
}

// pythonProcess starts the embedded helper, skipping when no interpreter is
// installed.
func pythonProcess(t *testing.T) *Process {
	t.Helper()
	if testing.Short() {
		t.Skip("starts a python interpreter")
	}
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
	cfg, err := PythonHelper(PythonOptions{CacheDir: t.TempDir()})
	require.NoError(t, err)
	p := NewProcess(cfg)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPythonHelper_Commands(t *testing.T) {
	p := pythonProcess(t)
	ctx := context.Background()

	t.Run("parse_content", func(t *testing.T) {
		resp, err := p.Call(ctx, Request{Command: CommandParseContent, FilePath: "m.py", Content: "def f(x):\n    return b'raw'\n"})
		require.NoError(t, err)
		require.True(t, resp.OK(), resp.Message)
		var mod struct {
			Type string `json:"_type"`
			Body []struct {
				Type   string `json:"_type"`
				Name   string `json:"name"`
				Lineno int    `json:"lineno"`
			} `json:"body"`
		}
		require.NoError(t, json.Unmarshal(resp.AST, &mod))
		assert.Equal(t, "Module", mod.Type)
		require.Len(t, mod.Body, 1)
		assert.Equal(t, "FunctionDef", mod.Body[0].Type)
		assert.Equal(t, "f", mod.Body[0].Name)
		assert.Equal(t, 1, mod.Body[0].Lineno)
	})

	t.Run("syntax error", func(t *testing.T) {
		resp, err := p.Call(ctx, Request{Command: CommandParseContent, Content: "def f(:\n"})
		require.NoError(t, err)
		assert.False(t, resp.OK())
		assert.Equal(t, "SyntaxError", resp.Error)
		assert.Equal(t, 1, resp.Lineno)
	})

	t.Run("extract_imports", func(t *testing.T) {
		resp, err := p.Call(ctx, Request{Command: CommandExtractImports, Content: "import os\nfrom .pkg import a as b\n"})
		require.NoError(t, err)
		require.True(t, resp.OK(), resp.Message)
		var imports []struct {
			Type   string `json:"type"`
			Module string `json:"module"`
			Level  int    `json:"level"`
			Line   int    `json:"line"`
		}
		require.NoError(t, json.Unmarshal(resp.Imports, &imports))
		require.Len(t, imports, 2)
		assert.Equal(t, "Import", imports[0].Type)
		assert.Equal(t, "ImportFrom", imports[1].Type)
		assert.Equal(t, "pkg", imports[1].Module)
		assert.Equal(t, 1, imports[1].Level)
	})

	t.Run("resolve_module", func(t *testing.T) {
		resp, err := p.Call(ctx, Request{Command: CommandResolveModule, ModuleName: "sys"})
		require.NoError(t, err)
		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, "builtin", resp.ResolvedPath)

		resp, err = p.Call(ctx, Request{Command: CommandResolveModule, ModuleName: "no_such_module_xyz"})
		require.NoError(t, err)
		assert.False(t, resp.OK())
		assert.Equal(t, "ModuleNotFound", resp.Error)
	})
}
