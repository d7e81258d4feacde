package graph

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileID returns the id of the FILE component for path.
func fileID(path string) string { return ComponentID(KindFile, path, path) }

// setupStore creates a MemStore holding one FILE component per path and one
// resolved IMPORTS_FROM relationship per [from, to] pair.
func setupStore(t *testing.T, paths []string, imports [][2]string) *MemStore {
	t.Helper()
	ctx := context.Background()
	store := NewMemStore()
	require.NoError(t, store.InitSchema(ctx))

	for _, p := range paths {
		require.NoError(t, store.AddComponent(ctx, FileComponent(p, LangGo, 10)))
	}
	for _, imp := range imports {
		rel := NewRelationship(RelImportsFrom, fileID(imp[0]), fileID(imp[1]), nil, map[string]any{MetaIsResolved: true})
		require.NoError(t, store.AddRelationship(ctx, rel))
	}
	return store
}

// sortedMembers returns a sorted copy of cluster members for deterministic comparison.
func sortedMembers(members []string) []string {
	out := make([]string, len(members))
	copy(out, members)
	sort.Strings(out)
	return out
}

func TestComputeClusters_NoImports(t *testing.T) {
	// Three unconnected files are singletons, so there are no clusters.
	store := setupStore(t, []string{"src/pkg/a.go", "src/pkg/b.go", "src/pkg/c.go"}, nil)
	ctx := context.Background()

	clusters, err := ComputeClusters(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, clusters)

	stored, err := store.GetClusters(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestComputeClusters_OnePair(t *testing.T) {
	store := setupStore(t,
		[]string{"src/pkg/a.go", "src/pkg/b.go", "src/pkg/c.go"},
		[][2]string{{"src/pkg/a.go", "src/pkg/b.go"}},
	)
	ctx := context.Background()

	clusters, err := ComputeClusters(ctx, store)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"src/pkg/a.go", "src/pkg/b.go"}, sortedMembers(clusters[0].Members))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ClusterCount)
}

func TestComputeClusters_PlaceholderTargetsAreIgnored(t *testing.T) {
	store := setupStore(t, []string{"src/a.ts", "src/b.ts"}, nil)
	ctx := context.Background()
	rel := NewRelationship(RelImportsFrom, fileID("src/a.ts"), ResolvePlaceholder("./b"), nil, nil)
	require.NoError(t, store.AddRelationship(ctx, rel))

	clusters, err := ComputeClusters(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestComputeClusters_TwoGroups(t *testing.T) {
	store := setupStore(t,
		[]string{
			"src/alpha/a.go", "src/alpha/b.go", "src/alpha/c.go",
			"src/beta/x.go", "src/beta/y.go", "src/beta/z.go",
		},
		[][2]string{
			{"src/alpha/a.go", "src/alpha/b.go"},
			{"src/alpha/a.go", "src/alpha/c.go"},
			{"src/alpha/b.go", "src/alpha/c.go"},
			{"src/beta/x.go", "src/beta/y.go"},
			{"src/beta/x.go", "src/beta/z.go"},
			{"src/beta/y.go", "src/beta/z.go"},
		},
	)

	clusters, err := ComputeClusters(context.Background(), store)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Name < clusters[j].Name })

	assert.Equal(t, []string{"src/alpha/a.go", "src/alpha/b.go", "src/alpha/c.go"}, sortedMembers(clusters[0].Members))
	assert.Equal(t, []string{"src/beta/x.go", "src/beta/y.go", "src/beta/z.go"}, sortedMembers(clusters[1].Members))
}

func TestComputeClusters_CohesionIsDensity(t *testing.T) {
	// A fully connected triangle has density 1; a chain of three files has
	// two of three possible pairs.
	full := setupStore(t,
		[]string{"src/a/x.go", "src/a/y.go", "src/a/z.go"},
		[][2]string{{"src/a/x.go", "src/a/y.go"}, {"src/a/x.go", "src/a/z.go"}, {"src/a/y.go", "src/a/z.go"}},
	)
	clusters, err := ComputeClusters(context.Background(), full)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, 1.0, clusters[0].CohesionScore)

	chain := setupStore(t,
		[]string{"src/b/x.go", "src/b/y.go", "src/b/z.go"},
		[][2]string{{"src/b/x.go", "src/b/y.go"}, {"src/b/y.go", "src/b/z.go"}},
	)
	clusters, err = ComputeClusters(context.Background(), chain)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.InDelta(t, 2.0/3.0, clusters[0].CohesionScore, 1e-9)
}

func TestComputeClusters_ClusterNames(t *testing.T) {
	store := setupStore(t,
		[]string{"src/alpha/foo.go", "src/alpha/bar.go", "src/beta/sub/one.go", "src/beta/sub/two.go", "main.go", "util.go"},
		[][2]string{
			{"src/alpha/foo.go", "src/alpha/bar.go"},
			{"src/beta/sub/one.go", "src/beta/sub/two.go"},
			{"main.go", "util.go"},
		},
	)

	clusters, err := ComputeClusters(context.Background(), store)
	require.NoError(t, err)
	require.Len(t, clusters, 3)

	names := make([]string, 0, len(clusters))
	for _, c := range clusters {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"root", "src/alpha", "src/beta/sub"}, names)
}
