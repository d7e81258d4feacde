//go:build e2e && cgo

package e2e

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/polyparse/internal/coordinator"
	"github.com/dusk-indust/polyparse/internal/graph"
	"github.com/dusk-indust/polyparse/internal/index"
)

func fixturesRoot() string {
	return filepath.Join("..", "..", "testdata", "fixtures")
}

// indexFixtures indexes every fixture project into a fresh MemStore. The
// Python helper stays off so the run does not depend on an interpreter.
func indexFixtures(t *testing.T) (*index.Summary, graph.Store) {
	t.Helper()
	reg := coordinator.DefaultRegistry(coordinator.RegistryConfig{
		Python: coordinator.PythonConfig{Disabled: true},
	})
	t.Cleanup(func() { _ = reg.Close() })

	store := graph.NewMemStore()
	reporter := coordinator.NewProgressReporter()
	drainDone := make(chan struct{})
	var events []coordinator.ProgressEvent
	go func() {
		defer close(drainDone)
		for ev := range reporter.Subscribe() {
			events = append(events, ev)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ix := index.New(coordinator.New(reg), store, index.WithProgress(reporter.Emit))
	sum, err := ix.Index(ctx, fixturesRoot(), index.Options{Parse: coordinator.DefaultOptions()})
	require.NoError(t, err)

	reporter.Close()
	<-drainDone
	assert.NotEmpty(t, events, "progress events reach the subscriber")
	return sum, store
}

// TestIndex_E2E_Fixtures indexes the five fixture projects end to end and
// checks that every language produced components and file nodes.
func TestIndex_E2E_Fixtures(t *testing.T) {
	sum, store := indexFixtures(t)
	ctx := context.Background()

	assert.Equal(t, 6, sum.Files)
	assert.Empty(t, sum.Failed)

	files, err := store.Files(ctx)
	require.NoError(t, err)
	langs := make(map[graph.Language]int)
	for _, f := range files {
		langs[f.Language]++
	}
	assert.Equal(t, 2, langs[graph.LangGo])
	for _, lang := range []graph.Language{graph.LangTypeScript, graph.LangPython, graph.LangJava, graph.LangRust} {
		assert.Equal(t, 1, langs[lang], "one %s file", lang)
	}

	// --- One UserService per language that declares it ---

	comps, err := store.QueryComponents(ctx, "UserService", "", 0)
	require.NoError(t, err)
	declared := make(map[graph.Language]bool)
	for _, c := range comps {
		if c.Name == "UserService" {
			declared[c.Language] = true
		}
	}
	assert.True(t, declared[graph.LangGo])
	assert.True(t, declared[graph.LangJava])
	assert.True(t, declared[graph.LangPython])

	// --- Every component hangs off a file in the store ---

	all, err := store.QueryComponents(ctx, "", "", 0)
	require.NoError(t, err)
	fileIDs := make(map[string]bool, len(files))
	for _, f := range files {
		fileIDs[f.ID] = true
	}
	for _, c := range all {
		if c.Kind == graph.KindFile {
			continue
		}
		assert.NotEmpty(t, c.ParentID, "%s has a parent", c.ID)
		assert.True(t, fileIDs[graph.ComponentID(graph.KindFile, c.FilePath, c.FilePath)], "%s belongs to a stored file", c.FilePath)
	}
}

// TestIndex_E2E_PersistRoundTrip copies the indexed graph into a Kuzu
// database on disk and reads it back.
func TestIndex_E2E_PersistRoundTrip(t *testing.T) {
	_, mem := indexFixtures(t)
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "graph")
	kz, err := graph.NewKuzuFileStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, graph.CopyStore(ctx, mem, kz))
	require.NoError(t, kz.Close())

	reopened, err := graph.NewKuzuFileStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	want, err := mem.Stats(ctx)
	require.NoError(t, err)
	got, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
