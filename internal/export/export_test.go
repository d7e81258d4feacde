package export

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/polyparse/internal/graph"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func seededStore(t *testing.T) graph.Store {
	t.Helper()
	ctx := context.Background()
	s := graph.NewMemStore()
	app := graph.FileComponent("src/app.ts", graph.LangTypeScript, 12)
	util := graph.FileComponent("src/util.ts", graph.LangTypeScript, 4)
	lone := graph.FileComponent("scripts/build.py", graph.LangPython, 7)
	helper := graph.Component{
		ID:       graph.ComponentID(graph.KindFunction, "helper", "src/util.ts"),
		Name:     "helper",
		Kind:     graph.KindFunction,
		Language: graph.LangTypeScript,
		FilePath: "src/util.ts",
		ParentID: util.ID,
		Location: graph.Location{StartLine: 1, EndLine: 3},
	}
	for _, c := range []graph.Component{app, util, lone, helper} {
		require.NoError(t, s.AddComponent(ctx, c))
	}
	require.NoError(t, s.AddRelationship(ctx, graph.NewRelationship(graph.RelImportsFrom, app.ID, util.ID, nil, nil)))
	require.NoError(t, s.AddRelationship(ctx, graph.NewRelationship(graph.RelImports, app.ID, util.ID, nil, nil)))
	require.NoError(t, s.AddRelationship(ctx, graph.NewRelationship(graph.RelImportsFrom, app.ID, graph.ResolvePlaceholder("events"), nil, nil)))
	_, err := graph.ComputeClusters(ctx, s)
	require.NoError(t, err)
	return s
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

func TestExportGraph(t *testing.T) {
	exp, err := ExportGraph(context.Background(), seededStore(t), "/repo")
	require.NoError(t, err)

	assert.Equal(t, "/repo", exp.Root)
	assert.Equal(t, 3, exp.Stats.FileCount)
	require.Len(t, exp.Files, 3)
	assert.Equal(t, "scripts/build.py", exp.Files[0].Path, "files sorted by path")

	var util FileExport
	for _, f := range exp.Files {
		if f.Path == "src/util.ts" {
			util = f
		}
	}
	require.Len(t, util.Components, 1)
	assert.Equal(t, "helper", util.Components[0].Name)
	assert.Len(t, exp.Relationships, 3)
	require.Len(t, exp.Clusters, 1)
}

func TestWriteJSON(t *testing.T) {
	exp, err := ExportGraph(context.Background(), graph.NewMemStore(), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, exp))
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, []any{}, decoded["files"], "empty lists stay lists")
	assert.Equal(t, []any{}, decoded["clusters"])
}

// ---------------------------------------------------------------------------
// Mermaid
// ---------------------------------------------------------------------------

func TestGenerateMermaid(t *testing.T) {
	out, err := GenerateMermaid(context.Background(), seededStore(t))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "subgraph")
	assert.Contains(t, out, `["src/app.ts"]`)
	assert.Contains(t, out, `["scripts/build.py"]`, "unclustered files are still drawn")
	assert.Equal(t, 1, strings.Count(out, "-->"), "IMPORTS and IMPORTS_FROM collapse to one arrow; placeholders are skipped")
}

func TestResultMermaid(t *testing.T) {
	file := graph.FileComponent("a.py", graph.LangPython, 3)
	run := graph.Component{ID: "run", Name: "run", Kind: graph.KindFunction, FilePath: "a.py", ParentID: file.ID}
	res := &graph.ParseResult{
		Components: []graph.Component{file, run},
		Relationships: []graph.Relationship{
			graph.NewRelationship(graph.RelContains, file.ID, run.ID, nil, nil),
			graph.NewRelationship(graph.RelCalls, run.ID, graph.ResolvePlaceholder(`say"hi`), nil, nil),
		},
	}

	out := ResultMermaid(res)
	assert.True(t, strings.HasPrefix(out, "graph LR\n"))
	assert.Contains(t, out, `["function run"]`)
	assert.Contains(t, out, "N0 --- N1")
	assert.Contains(t, out, `(["say#quot;hi"])`)
	assert.Contains(t, out, "-.->|CALLS|")
	assert.NotContains(t, out, "CONTAINS")
}

func TestShortPath(t *testing.T) {
	assert.Equal(t, "a.go", shortPath("a.go"))
	assert.Equal(t, "pkg/a.go", shortPath("pkg/a.go"))
	assert.Equal(t, "graph/store.go", shortPath("internal/graph/store.go"))
}
