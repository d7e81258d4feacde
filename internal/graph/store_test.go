package graph

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the behaviour every Store implementation shares.
// newStore must return an empty store with an initialized schema.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("ComponentRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c := Component{
			ID:       ComponentID(KindFunction, "NewMemStore", "internal/graph/memstore.go"),
			Name:     "NewMemStore",
			Kind:     KindFunction,
			Language: LangGo,
			FilePath: "internal/graph/memstore.go",
			Location: Location{StartLine: 23, EndLine: 29},
			Metadata: map[string]any{MetaExported: true, MetaQualifiedName: "NewMemStore"},
		}
		require.NoError(t, s.AddComponent(ctx, c))

		got, err := s.GetComponent(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, c.Name, got.Name)
		assert.Equal(t, c.Kind, got.Kind)
		assert.Equal(t, c.Language, got.Language)
		assert.Equal(t, c.FilePath, got.FilePath)
		assert.Equal(t, 23, got.Location.StartLine)
		assert.Equal(t, 29, got.Location.EndLine)
		assert.Equal(t, true, got.Metadata[MetaExported])
		assert.Equal(t, "NewMemStore", got.QualifiedName())
	})

	t.Run("GetComponentNotFound", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetComponent(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("AddComponentReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c := FileComponent("a.go", LangGo, 10)
		require.NoError(t, s.AddComponent(ctx, c))
		c.Language = LangTypeScript
		require.NoError(t, s.AddComponent(ctx, c))

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.ComponentCount)
		got, err := s.GetComponent(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, LangTypeScript, got.Language)
	})

	t.Run("QueryComponents", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i, name := range []string{"UserService", "userRepo", "Order"} {
			kind := KindClass
			if i == 1 {
				kind = KindVariable
			}
			require.NoError(t, s.AddComponent(ctx, Component{
				ID: ComponentID(kind, name, "svc.ts"), Name: name, Kind: kind,
				Language: LangTypeScript, FilePath: "svc.ts", Location: Location{StartLine: i + 1, EndLine: i + 1},
			}))
		}

		got, err := s.QueryComponents(ctx, "user", "", 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "UserService", got[0].Name, "ordered by line")
		assert.Equal(t, "userRepo", got[1].Name)

		got, err = s.QueryComponents(ctx, "user", KindClass, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "UserService", got[0].Name)

		got, err = s.QueryComponents(ctx, "", "", 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("QueryComponentsFoldsCaseAndSkipsPlaceholders", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		svc := Component{
			ID: ComponentID(KindClass, "UserService", "svc.ts"), Name: "UserService", Kind: KindClass,
			Language: LangTypeScript, FilePath: "svc.ts", Location: Location{StartLine: 3, EndLine: 9},
		}
		require.NoError(t, s.AddComponent(ctx, svc))
		require.NoError(t, s.AddRelationship(ctx, NewRelationship(RelCalls, svc.ID, ResolvePlaceholder("UserRepo"), nil, nil)))

		got, err := s.QueryComponents(ctx, "USERSERV", "", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, svc.ID, got[0].ID)
		assert.Equal(t, 3, got[0].Location.StartLine)

		got, err = s.QueryComponents(ctx, "user", "", 0)
		require.NoError(t, err)
		require.Len(t, got, 1, "placeholder endpoints are not components")

		got, err = s.QueryComponents(ctx, "user", KindFunction, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("GetRelationshipsByDirection", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a, b, c := FileComponent("a.go", LangGo, 1), FileComponent("b.go", LangGo, 1), FileComponent("c.go", LangGo, 1)
		for _, f := range []Component{a, b, c} {
			require.NoError(t, s.AddComponent(ctx, f))
		}
		ab := NewRelationship(RelImportsFrom, a.ID, b.ID, nil, map[string]any{MetaTier: string(TierStructural)})
		cb := NewRelationship(RelImportsFrom, c.ID, b.ID, nil, nil)
		bExt := NewRelationship(RelCalls, b.ID, ResolvePlaceholder("fmt.Println"), nil, nil)
		for _, r := range []Relationship{ab, cb, bExt} {
			require.NoError(t, s.AddRelationship(ctx, r))
		}

		out, err := s.GetRelationships(ctx, b.ID, DirectionDownstream)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, bExt.ID, out[0].ID)
		assert.Equal(t, ResolvePlaceholder("fmt.Println"), out[0].TargetID)

		in, err := s.GetRelationships(ctx, b.ID, DirectionUpstream)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{ab.ID, cb.ID}, relIDs(in))

		both, err := s.GetRelationships(ctx, b.ID, DirectionBoth)
		require.NoError(t, err)
		assert.Len(t, both, 3)

		all, err := s.AllRelationships(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("DependenciesAndImpact", func(t *testing.T) {
		// main -> svc -> repo, and api -> svc.
		s := newStore(t)
		ctx := context.Background()
		paths := []string{"main.go", "svc.go", "repo.go", "api.go"}
		for _, p := range paths {
			require.NoError(t, s.AddComponent(ctx, FileComponent(p, LangGo, 5)))
		}
		for _, e := range [][2]string{{"main.go", "svc.go"}, {"svc.go", "repo.go"}, {"api.go", "svc.go"}} {
			require.NoError(t, s.AddRelationship(ctx, NewRelationship(RelImportsFrom, fileID(e[0]), fileID(e[1]), nil, nil)))
		}

		down, err := s.GetDependencies(ctx, "main.go", DirectionDownstream, 5)
		require.NoError(t, err)
		require.Len(t, down, 2)
		assert.Equal(t, []string{"main.go", "svc.go"}, down[0].Nodes)
		assert.Equal(t, []string{"main.go", "svc.go", "repo.go"}, down[1].Nodes)
		assert.Equal(t, 2, down[1].Depth)

		shallow, err := s.GetDependencies(ctx, "main.go", DirectionDownstream, 1)
		require.NoError(t, err)
		assert.Len(t, shallow, 1)

		impact, err := s.AssessImpact(ctx, []string{"repo.go"})
		require.NoError(t, err)
		assert.Equal(t, []string{"svc.go"}, impact.DirectlyAffected)
		assert.Equal(t, []string{"api.go", "main.go", "svc.go"}, sorted(impact.TransitivelyAffected))
		assert.InDelta(t, 0.75, impact.RiskScore, 1e-9)
	})

	t.Run("Clusters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, p := range []string{"x/a.go", "x/b.go"} {
			require.NoError(t, s.AddComponent(ctx, FileComponent(p, LangGo, 1)))
		}
		require.NoError(t, s.AddCluster(ctx, ClusterNode{Name: "x", CohesionScore: 1, Members: []string{"x/a.go", "x/b.go"}}))

		clusters, err := s.GetClusters(ctx)
		require.NoError(t, err)
		require.Len(t, clusters, 1)
		assert.Equal(t, "x", clusters[0].Name)
		assert.Equal(t, []string{"x/a.go", "x/b.go"}, sorted(clusters[0].Members))

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.FileCount)
		assert.Equal(t, 1, stats.ClusterCount)
	})
}

func relIDs(rs []Relationship) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

// sorted returns a sorted copy of ss so assertions do not depend on map order.
func sorted(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	sort.Strings(out)
	return out
}
