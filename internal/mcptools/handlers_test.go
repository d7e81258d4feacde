//go:build cgo

package mcptools

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/polyparse/internal/coordinator"
	"github.com/dusk-indust/polyparse/internal/graph"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// fixtureAbsPath returns the absolute path to the go_project test fixture
// directory. Tests run from internal/mcptools/, so the relative path is
// ../../testdata/fixtures/go_project.
func fixtureAbsPath(t *testing.T) string {
	t.Helper()
	abs, err := filepath.Abs("../../testdata/fixtures/go_project")
	require.NoError(t, err)
	return abs
}

// newTestStore creates a MemStore with an initialized schema.
func newTestStore(t *testing.T) *graph.MemStore {
	t.Helper()
	store := graph.NewMemStore()
	require.NoError(t, store.InitSchema(context.Background()))
	return store
}

func newService(store graph.Store, opts ...ServiceOption) *CodeIntelService {
	reg := coordinator.DefaultRegistry(coordinator.RegistryConfig{Python: coordinator.PythonConfig{Disabled: true}})
	return NewCodeIntelService(coordinator.New(reg), store, opts...)
}

func fileID(path string) string { return graph.ComponentID(graph.KindFile, path, path) }

func function(name, path string, line int) graph.Component {
	return graph.Component{
		ID:       graph.ComponentID(graph.KindFunction, name, path),
		Name:     name,
		Kind:     graph.KindFunction,
		Language: graph.LangGo,
		FilePath: path,
		Location: graph.Location{StartLine: line, EndLine: line + 5},
	}
}

// seedComponents populates the store with a set of known components and
// their files.
func seedComponents(t *testing.T, store *graph.MemStore) {
	t.Helper()
	ctx := context.Background()

	for _, p := range []string{"pkg/handler.go", "pkg/service.go", "pkg/model.go"} {
		require.NoError(t, store.AddComponent(ctx, graph.FileComponent(p, graph.LangGo, 100)))
	}
	comps := []graph.Component{
		function("HandleRequest", "pkg/handler.go", 10),
		function("HandleResponse", "pkg/handler.go", 32),
		function("NewUserService", "pkg/service.go", 17),
		function("validateUser", "pkg/model.go", 12),
		{ID: graph.ComponentID(graph.KindStruct, "UserService", "pkg/service.go"), Name: "UserService", Kind: graph.KindStruct, FilePath: "pkg/service.go"},
		{ID: graph.ComponentID(graph.KindStruct, "User", "pkg/model.go"), Name: "User", Kind: graph.KindStruct, FilePath: "pkg/model.go"},
	}
	for _, c := range comps {
		require.NoError(t, store.AddComponent(ctx, c))
	}
}

// seedImports stores one FILE component per path and an IMPORTS_FROM
// relationship per [from, to] pair.
func seedImports(t *testing.T, store *graph.MemStore, paths []string, edges [][2]string) {
	t.Helper()
	ctx := context.Background()
	for _, p := range paths {
		require.NoError(t, store.AddComponent(ctx, graph.FileComponent(p, graph.LangGo, 10)))
	}
	for _, e := range edges {
		r := graph.NewRelationship(graph.RelImportsFrom, fileID(e[0]), fileID(e[1]), nil, nil)
		require.NoError(t, store.AddRelationship(ctx, r))
	}
}

// seedDiamondGraph populates the store with a diamond import graph:
//
//	A -> B
//	A -> C
//	B -> D
//	C -> D
func seedDiamondGraph(t *testing.T, store *graph.MemStore) {
	seedImports(t, store, []string{"A.go", "B.go", "C.go", "D.go"},
		[][2]string{{"A.go", "B.go"}, {"A.go", "C.go"}, {"B.go", "D.go"}, {"C.go", "D.go"}})
}

// seedLinearChain populates the store with a linear chain: A -> B -> C.
func seedLinearChain(t *testing.T, store *graph.MemStore) {
	seedImports(t, store, []string{"A.go", "B.go", "C.go"},
		[][2]string{{"A.go", "B.go"}, {"B.go", "C.go"}})
}

// containsNode returns true if any chain in the slice contains the given node ID.
func containsNode(chains []graph.DependencyChain, nodeID string) bool {
	for _, chain := range chains {
		for _, n := range chain.Nodes {
			if n == nodeID {
				return true
			}
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }

// ---------------------------------------------------------------------------
// TestIndex
// ---------------------------------------------------------------------------

func TestIndex(t *testing.T) {
	t.Run("indexes go_project fixture", func(t *testing.T) {
		store := newTestStore(t)
		svc := newService(store)
		ctx := context.Background()

		_, out, err := svc.Index(ctx, nil, IndexInput{
			RepoPath:  fixtureAbsPath(t),
			Languages: []string{"Go"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Files, "fixture has 2 go files")
		assert.Equal(t, 2, out.Stats.FileCount)
		assert.Greater(t, out.Stats.ComponentCount, 2, "expected declarations besides the files")
		assert.Empty(t, out.Failed)

		comps, err := store.QueryComponents(ctx, "NewUserService", "", 0)
		require.NoError(t, err)
		require.NotEmpty(t, comps)
		assert.Equal(t, "service.go", comps[0].FilePath, "paths are workspace-relative")
	})

	t.Run("non-existent path returns error", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, _, err := svc.Index(context.Background(), nil, IndexInput{
			RepoPath: "/nonexistent/path/that/does/not/exist",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot access repoPath")
	})

	t.Run("empty repoPath returns error", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, _, err := svc.Index(context.Background(), nil, IndexInput{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "repoPath is required")
	})

	t.Run("file path returns error", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, _, err := svc.Index(context.Background(), nil, IndexInput{
			RepoPath: filepath.Join(fixtureAbsPath(t), "model.go"),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})

	t.Run("exclude pattern skips files", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, out, err := svc.Index(context.Background(), nil, IndexInput{
			RepoPath: fixtureAbsPath(t),
			Exclude:  []string{"model.go"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, out.Files)
		assert.Equal(t, 1, out.Skipped)
	})

	t.Run("persists to kuzu", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "graph")
		svc := newService(newTestStore(t), WithPersistPath(dbPath))
		_, out, err := svc.Index(context.Background(), nil, IndexInput{RepoPath: fixtureAbsPath(t)})
		require.NoError(t, err)

		ks, err := graph.NewKuzuFileStore(dbPath)
		require.NoError(t, err)
		defer ks.Close()
		files, err := ks.Files(context.Background())
		require.NoError(t, err)
		assert.Len(t, files, out.Stats.FileCount)
	})
}

// ---------------------------------------------------------------------------
// TestQueryComponents
// ---------------------------------------------------------------------------

func TestQueryComponents(t *testing.T) {
	t.Run("substring match returns matching components", func(t *testing.T) {
		store := newTestStore(t)
		seedComponents(t, store)
		svc := newService(store)

		_, out, err := svc.QueryComponents(context.Background(), nil, QueryComponentsInput{Query: "Handle"})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Total)
		names := []string{out.Components[0].Name, out.Components[1].Name}
		assert.ElementsMatch(t, []string{"HandleRequest", "HandleResponse"}, names)
	})

	t.Run("kind filter is case-insensitive", func(t *testing.T) {
		store := newTestStore(t)
		seedComponents(t, store)
		svc := newService(store)

		_, out, err := svc.QueryComponents(context.Background(), nil, QueryComponentsInput{Query: "User", Kind: "struct"})
		require.NoError(t, err)
		require.Equal(t, 2, out.Total)
		for _, c := range out.Components {
			assert.Equal(t, graph.KindStruct, c.Kind)
		}
	})

	t.Run("limit is respected", func(t *testing.T) {
		store := newTestStore(t)
		seedComponents(t, store)
		svc := newService(store)

		_, out, err := svc.QueryComponents(context.Background(), nil, QueryComponentsInput{Query: "", Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, 3, out.Total)
	})

	t.Run("default limit is 20", func(t *testing.T) {
		store := newTestStore(t)
		for i := 0; i < 25; i++ {
			require.NoError(t, store.AddComponent(context.Background(), function(fmt.Sprintf("fn%02d", i), "big.go", i+1)))
		}
		svc := newService(store)

		_, out, err := svc.QueryComponents(context.Background(), nil, QueryComponentsInput{Query: "fn"})
		require.NoError(t, err)
		assert.Equal(t, 20, out.Total)
	})

	t.Run("no matches returns empty", func(t *testing.T) {
		store := newTestStore(t)
		seedComponents(t, store)
		svc := newService(store)

		_, out, err := svc.QueryComponents(context.Background(), nil, QueryComponentsInput{Query: "zzz"})
		require.NoError(t, err)
		assert.Equal(t, 0, out.Total)
		assert.NotNil(t, out.Components)
	})
}

// ---------------------------------------------------------------------------
// TestGetRelationships
// ---------------------------------------------------------------------------

func TestGetRelationships(t *testing.T) {
	t.Run("directions", func(t *testing.T) {
		store := newTestStore(t)
		seedDiamondGraph(t, store)
		svc := newService(store)
		ctx := context.Background()

		_, out, err := svc.GetRelationships(ctx, nil, GetRelationshipsInput{ComponentID: fileID("B.go")})
		require.NoError(t, err)
		assert.Len(t, out.Relationships, 2, "default is both directions")

		_, out, err = svc.GetRelationships(ctx, nil, GetRelationshipsInput{ComponentID: fileID("B.go"), Direction: "upstream"})
		require.NoError(t, err)
		require.Len(t, out.Relationships, 1)
		assert.Equal(t, fileID("A.go"), out.Relationships[0].SourceID)
	})

	t.Run("kind filter", func(t *testing.T) {
		store := newTestStore(t)
		seedDiamondGraph(t, store)
		svc := newService(store)

		_, out, err := svc.GetRelationships(context.Background(), nil, GetRelationshipsInput{ComponentID: fileID("A.go"), Kind: "calls"})
		require.NoError(t, err)
		assert.Empty(t, out.Relationships)
	})

	t.Run("unknown direction returns error", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, _, err := svc.GetRelationships(context.Background(), nil, GetRelationshipsInput{ComponentID: "x", Direction: "sideways"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown direction")
	})

	t.Run("empty componentId returns error", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, _, err := svc.GetRelationships(context.Background(), nil, GetRelationshipsInput{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "componentId is required")
	})
}

// ---------------------------------------------------------------------------
// TestGetDependencies
// ---------------------------------------------------------------------------

func TestGetDependencies(t *testing.T) {
	t.Run("downstream from A returns chain containing B and C", func(t *testing.T) {
		store := newTestStore(t)
		seedLinearChain(t, store) // A -> B -> C
		svc := newService(store)

		_, out, err := svc.GetDependencies(context.Background(), nil, GetDependenciesInput{
			FilePath:  "A.go",
			Direction: "downstream",
		})
		require.NoError(t, err)
		assert.True(t, containsNode(out.Chains, "B.go"), "downstream from A should reach B")
		assert.True(t, containsNode(out.Chains, "C.go"), "downstream from A should reach C through B")
	})

	t.Run("upstream from C returns chain containing B and A", func(t *testing.T) {
		store := newTestStore(t)
		seedLinearChain(t, store)
		svc := newService(store)

		_, out, err := svc.GetDependencies(context.Background(), nil, GetDependenciesInput{
			FilePath:  "C.go",
			Direction: "upstream",
		})
		require.NoError(t, err)
		assert.True(t, containsNode(out.Chains, "B.go"))
		assert.True(t, containsNode(out.Chains, "A.go"))
	})

	t.Run("default direction is downstream", func(t *testing.T) {
		store := newTestStore(t)
		seedLinearChain(t, store)
		svc := newService(store)

		_, out, err := svc.GetDependencies(context.Background(), nil, GetDependenciesInput{FilePath: "A.go"})
		require.NoError(t, err)
		assert.True(t, containsNode(out.Chains, "B.go"))
	})

	t.Run("maxDepth=1 limits traversal", func(t *testing.T) {
		store := newTestStore(t)
		seedLinearChain(t, store)
		svc := newService(store)

		_, out, err := svc.GetDependencies(context.Background(), nil, GetDependenciesInput{FilePath: "A.go", MaxDepth: 1})
		require.NoError(t, err)
		assert.True(t, containsNode(out.Chains, "B.go"))
		assert.False(t, containsNode(out.Chains, "C.go"))
	})

	t.Run("empty filePath returns error", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, _, err := svc.GetDependencies(context.Background(), nil, GetDependenciesInput{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "filePath is required")
	})

	t.Run("non-existent file returns empty chains", func(t *testing.T) {
		store := newTestStore(t)
		seedLinearChain(t, store)
		svc := newService(store)

		_, out, err := svc.GetDependencies(context.Background(), nil, GetDependenciesInput{FilePath: "nonexistent.go"})
		require.NoError(t, err)
		assert.Empty(t, out.Chains)
	})
}

// ---------------------------------------------------------------------------
// TestAssessImpact
// ---------------------------------------------------------------------------

func TestAssessImpact(t *testing.T) {
	t.Run("change leaf node in diamond", func(t *testing.T) {
		// B and C import D directly; A imports D through both.
		store := newTestStore(t)
		seedDiamondGraph(t, store)
		svc := newService(store)

		_, out, err := svc.AssessImpact(context.Background(), nil, AssessImpactInput{ChangedFiles: []string{"D.go"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"B.go", "C.go"}, out.Impact.DirectlyAffected)
		assert.Equal(t, []string{"A.go", "B.go", "C.go"}, out.Impact.TransitivelyAffected)
		assert.InDelta(t, 0.75, out.Impact.RiskScore, 1e-9)
	})

	t.Run("change root node in diamond", func(t *testing.T) {
		store := newTestStore(t)
		seedDiamondGraph(t, store)
		svc := newService(store)

		_, out, err := svc.AssessImpact(context.Background(), nil, AssessImpactInput{ChangedFiles: []string{"A.go"}})
		require.NoError(t, err)
		assert.Empty(t, out.Impact.DirectlyAffected, "nothing imports A")
		assert.Zero(t, out.Impact.RiskScore)
	})

	t.Run("empty changedFiles returns error", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, _, err := svc.AssessImpact(context.Background(), nil, AssessImpactInput{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "changedFiles is required")
	})
}

// ---------------------------------------------------------------------------
// TestGetClusters
// ---------------------------------------------------------------------------

func TestGetClusters(t *testing.T) {
	t.Run("returns clusters after computing them", func(t *testing.T) {
		store := newTestStore(t)
		seedDiamondGraph(t, store)
		_, err := graph.ComputeClusters(context.Background(), store)
		require.NoError(t, err)
		svc := newService(store)

		_, out, err := svc.GetClusters(context.Background(), nil, GetClustersInput{})
		require.NoError(t, err)
		require.Len(t, out.Clusters, 1)
		assert.Equal(t, []string{"A.go", "B.go", "C.go", "D.go"}, out.Clusters[0].Members)
	})

	t.Run("empty store returns empty clusters", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, out, err := svc.GetClusters(context.Background(), nil, GetClustersInput{})
		require.NoError(t, err)
		assert.NotNil(t, out.Clusters)
		assert.Empty(t, out.Clusters)
	})
}

// ---------------------------------------------------------------------------
// TestParseFile / TestValidateSyntax
// ---------------------------------------------------------------------------

func TestParseFile(t *testing.T) {
	t.Run("parses inline content", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, out, err := svc.ParseFile(context.Background(), nil, ParseFileInput{
			FilePath: "shapes.ts",
			Content:  ptr("export class Circle {\n  area(): number { return 0; }\n}\n"),
		})
		require.NoError(t, err)
		require.NotNil(t, out.Result)
		assert.Equal(t, graph.BackendAST, out.Result.Metadata.Backend)
		var names []string
		for _, c := range out.Result.Components {
			names = append(names, c.Name)
		}
		assert.Contains(t, names, "Circle")
	})

	t.Run("reads from disk", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, out, err := svc.ParseFile(context.Background(), nil, ParseFileInput{
			FilePath: filepath.Join(fixtureAbsPath(t), "model.go"),
		})
		require.NoError(t, err)
		assert.Equal(t, graph.LangGo, out.Result.Metadata.Language)
	})

	t.Run("segmentation only", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, out, err := svc.ParseFile(context.Background(), nil, ParseFileInput{
			FilePath:         "a.go",
			Content:          ptr("package a\n\nfunc A() {}\n"),
			SegmentationOnly: true,
		})
		require.NoError(t, err)
		assert.Len(t, out.Result.Components, 1, "file component only")
	})

	t.Run("threshold out of range returns error", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, _, err := svc.ParseFile(context.Background(), nil, ParseFileInput{
			FilePath:            "a.go",
			Content:             ptr("package a\n"),
			ConfidenceThreshold: ptr(2.0),
		})
		require.Error(t, err)
	})

	t.Run("missing file returns error", func(t *testing.T) {
		svc := newService(newTestStore(t))
		_, _, err := svc.ParseFile(context.Background(), nil, ParseFileInput{FilePath: "/nonexistent/a.go"})
		require.Error(t, err)
	})
}

func TestValidateSyntax(t *testing.T) {
	svc := newService(newTestStore(t))

	_, out, err := svc.ValidateSyntax(context.Background(), nil, ValidateSyntaxInput{
		FilePath: "a.ts",
		Content:  ptr("class A {\n  foo( {\n}\n"),
	})
	require.NoError(t, err)
	assert.False(t, out.Validation.Valid)
	assert.NotEmpty(t, out.Validation.Diagnostics)

	_, out, err = svc.ValidateSyntax(context.Background(), nil, ValidateSyntaxInput{
		FilePath: "a.ts",
		Content:  ptr("const x = 1;\n"),
	})
	require.NoError(t, err)
	assert.True(t, out.Validation.Valid)

	_, _, err = svc.ValidateSyntax(context.Background(), nil, ValidateSyntaxInput{})
	require.Error(t, err)
}
