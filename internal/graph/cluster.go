package graph

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
)

// ComputeClusters groups files connected by resolved import relationships and
// stores each group of two or more files as a ClusterNode.
//
// Clusters are the connected components of the undirected file import graph.
// The cohesion score is the density of the component: distinct internal edges
// divided by the number of possible file pairs.
func ComputeClusters(ctx context.Context, store Store) ([]ClusterNode, error) {
	files, err := store.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	rels, err := store.AllRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}

	pathByID := make(map[string]string, len(files))
	adj := make(map[string]map[string]bool, len(files))
	for _, f := range files {
		pathByID[f.ID] = f.FilePath
		adj[f.FilePath] = make(map[string]bool)
	}
	for _, r := range rels {
		if !isImportKind(r.Kind) {
			continue
		}
		src, ok1 := pathByID[r.SourceID]
		dst, ok2 := pathByID[r.TargetID]
		if !ok1 || !ok2 || src == dst {
			continue
		}
		adj[src][dst] = true
		adj[dst][src] = true
	}

	paths := make([]string, 0, len(adj))
	for p := range adj {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	visited := make(map[string]bool, len(paths))
	usedNames := make(map[string]int)
	var clusters []ClusterNode
	for _, p := range paths {
		if visited[p] {
			continue
		}
		members := bfsComponent(p, adj, visited)
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		name := clusterName(members, usedNames)
		cluster := ClusterNode{
			Name:          name,
			CohesionScore: density(members, adj),
			Members:       members,
		}
		if err := store.AddCluster(ctx, cluster); err != nil {
			return nil, err
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

// bfsComponent returns every node reachable from start, marking them visited.
func bfsComponent(start string, adj map[string]map[string]bool, visited map[string]bool) []string {
	var component []string
	queue := []string{start}
	visited[start] = true
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		component = append(component, node)
		for nb := range adj[node] {
			if !visited[nb] {
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
	}
	return component
}

func density(members []string, adj map[string]map[string]bool) float64 {
	n := len(members)
	if n < 2 {
		return 0
	}
	edges := 0
	for i, a := range members {
		for _, b := range members[i+1:] {
			if adj[a][b] {
				edges++
			}
		}
	}
	return float64(edges) / float64(n*(n-1)/2)
}

// clusterName names a cluster after the deepest directory shared by all
// members, suffixing a counter when that name is already taken.
func clusterName(members []string, used map[string]int) string {
	name := commonDir(members)
	if name == "" || name == "." {
		name = "root"
	}
	used[name]++
	if n := used[name]; n > 1 {
		return fmt.Sprintf("%s#%d", name, n)
	}
	return name
}

func commonDir(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	prefix := strings.Split(path.Dir(paths[0]), "/")
	for _, p := range paths[1:] {
		parts := strings.Split(path.Dir(p), "/")
		n := 0
		for n < len(prefix) && n < len(parts) && prefix[n] == parts[n] {
			n++
		}
		prefix = prefix[:n]
	}
	return strings.Join(prefix, "/")
}
