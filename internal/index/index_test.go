package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/polyparse/internal/coordinator"
	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func workspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for p, content := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func newIndexer(opts ...Option) *Indexer {
	reg := coordinator.DefaultRegistry(coordinator.RegistryConfig{Python: coordinator.PythonConfig{Disabled: true}})
	return New(coordinator.New(reg), graph.NewMemStore(), opts...)
}

func fileID(path string) string { return graph.ComponentID(graph.KindFile, path, path) }

func findImport(t *testing.T, store graph.Store, from string) []graph.Relationship {
	t.Helper()
	rels, err := store.GetRelationships(context.Background(), fileID(from), graph.DirectionDownstream)
	require.NoError(t, err)
	var out []graph.Relationship
	for _, r := range rels {
		if r.Kind == graph.RelImportsFrom {
			out = append(out, r)
		}
	}
	return out
}

var tsWorkspace = map[string]string{
	"src/app.ts":              "import { helper } from \"./util\";\nimport { EventEmitter } from \"events\";\nhelper();\n",
	"src/util.ts":             "export function helper() {}\n",
	"src/gen/types.ts":        "export type Generated = string;\n",
	"node_modules/x/index.js": "module.exports = {};\n",
	"README":                  "no extension, unknown language\n",
}

// ---------------------------------------------------------------------------
// Index
// ---------------------------------------------------------------------------

func TestIndex_ResolvesWorkspaceImports(t *testing.T) {
	root := workspace(t, tsWorkspace)
	ix := newIndexer()

	sum, err := ix.Index(context.Background(), root, Options{
		Exclude: []string{"src/gen"},
		Parse:   coordinator.DefaultOptions(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 2, sum.Skipped, "src/gen and README; node_modules is never walked")
	assert.Empty(t, sum.Failed)
	assert.Equal(t, 1, sum.Resolved)

	imports := findImport(t, ix.Store(), "src/app.ts")
	require.Len(t, imports, 2)
	targets := map[string]graph.Relationship{}
	for _, r := range imports {
		targets[r.TargetID] = r
	}
	local, ok := targets[fileID("src/util.ts")]
	require.True(t, ok, "relative import rewritten to the file component: %v", targets)
	assert.Equal(t, true, local.Metadata[graph.MetaIsResolved])
	assert.Equal(t, "src/util.ts", local.Metadata[graph.MetaResolvedPath])
	_, ok = targets["RESOLVE:events"]
	assert.True(t, ok, "package import stays a placeholder")

	require.Len(t, sum.Clusters, 1)
	assert.Equal(t, []string{"src/app.ts", "src/util.ts"}, sum.Clusters[0].Members)
	assert.Equal(t, 2, sum.Stats.FileCount)
	assert.Equal(t, 1, sum.Stats.ClusterCount)
}

func TestIndex_LanguageFilter(t *testing.T) {
	root := workspace(t, map[string]string{
		"main.go":  "package main\n\nfunc main() {}\n",
		"tool.py":  "def run():\n    pass\n",
		"index.ts": "export const x = 1;\n",
	})
	ix := newIndexer()
	sum, err := ix.Index(context.Background(), root, Options{
		Languages: []graph.Language{"Go", graph.LangPython},
		Parse:     coordinator.DefaultOptions(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Files)

	files, err := ix.Store().Files(context.Background())
	require.NoError(t, err)
	var paths []string
	for _, f := range files {
		paths = append(paths, f.FilePath)
	}
	assert.ElementsMatch(t, []string{"main.go", "tool.py"}, paths)

	comps, err := ix.Store().QueryComponents(context.Background(), "main", graph.KindFunction, 10)
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, "main.go", comps[0].FilePath)
}

func TestIndex_ProgressEvents(t *testing.T) {
	root := workspace(t, map[string]string{"a.go": "package a\n", "b.go": "package b\n"})

	var mu sync.Mutex
	complete := 0
	ix := newIndexer(WithProgress(func(ev coordinator.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Status == coordinator.ProgressComplete {
			complete++
		}
	}))
	_, err := ix.Index(context.Background(), root, Options{Parallelism: 1, Parse: coordinator.DefaultOptions()})
	require.NoError(t, err)
	assert.Equal(t, 2, complete)
}

func TestIndex_InvalidExcludePattern(t *testing.T) {
	_, err := newIndexer().Index(context.Background(), t.TempDir(), Options{Exclude: []string{"[unclosed"}})
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.Config))
}

func TestIndex_MissingRoot(t *testing.T) {
	_, err := newIndexer().Index(context.Background(), filepath.Join(t.TempDir(), "nope"), Options{})
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.InputReadFailure))
}

// ---------------------------------------------------------------------------
// Selection
// ---------------------------------------------------------------------------

func TestSelector(t *testing.T) {
	s, err := newSelector(Options{Exclude: []string{"**/*.gen.go", "build"}})
	require.NoError(t, err)

	assert.True(t, s.keep("pkg/model.go"))
	assert.False(t, s.keep("pkg/model.gen.go"))
	assert.False(t, s.keep("build/out.js"), "excluded directory")
	assert.False(t, s.keep("vendor/github.com/x/y.go"))
	assert.False(t, s.keep("LICENSE"))
}
