package graph

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu            sync.RWMutex
	components    map[string]Component
	filesByPath   map[string]string // path -> FILE component id
	relationships map[string]Relationship
	clusters      []ClusterNode
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		components:    make(map[string]Component),
		filesByPath:   make(map[string]string),
		relationships: make(map[string]Relationship),
	}
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error {
	return nil
}

// AddComponent stores a component keyed by id.
func (m *MemStore) AddComponent(_ context.Context, c Component) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[c.ID] = c
	if c.Kind == KindFile {
		m.filesByPath[c.FilePath] = c.ID
	}
	return nil
}

// AddRelationship stores a relationship keyed by id.
func (m *MemStore) AddRelationship(_ context.Context, r Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relationships[r.ID] = r
	return nil
}

// AddCluster stores a cluster, replacing one with the same name.
func (m *MemStore) AddCluster(_ context.Context, node ClusterNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.clusters {
		if c.Name == node.Name {
			m.clusters[i] = node
			return nil
		}
	}
	m.clusters = append(m.clusters, node)
	return nil
}

// GetComponent returns the component with the given id, or nil if not found.
func (m *MemStore) GetComponent(_ context.Context, id string) (*Component, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.components[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// QueryComponents returns components whose name contains query
// (case-insensitive), optionally restricted to kind, sorted by file then line.
// A limit <= 0 returns all matches.
func (m *MemStore) QueryComponents(_ context.Context, query string, kind ComponentKind, limit int) ([]Component, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lowerQuery := strings.ToLower(query)
	var results []Component
	for _, c := range m.components {
		if kind != "" && c.Kind != kind {
			continue
		}
		if strings.Contains(strings.ToLower(c.Name), lowerQuery) {
			results = append(results, c)
		}
	}
	sortComponents(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetRelationships returns relationships touching componentID.
// Downstream selects outgoing edges, upstream incoming, both selects either.
func (m *MemStore) GetRelationships(_ context.Context, componentID string, direction Direction) ([]Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Relationship
	for _, r := range m.relationships {
		isOut := r.SourceID == componentID && direction != DirectionUpstream
		in := r.TargetID == componentID && direction != DirectionDownstream
		if isOut || in {
			out = append(out, r)
		}
	}
	sortRelationships(out)
	return out, nil
}

// AllRelationships returns every stored relationship sorted by id.
func (m *MemStore) AllRelationships(_ context.Context) ([]Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Relationship, 0, len(m.relationships))
	for _, r := range m.relationships {
		out = append(out, r)
	}
	sortRelationships(out)
	return out, nil
}

// Files returns every FILE component sorted by path.
func (m *MemStore) Files(_ context.Context) ([]Component, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Component, 0, len(m.filesByPath))
	for _, id := range m.filesByPath {
		out = append(out, m.components[id])
	}
	sortComponents(out)
	return out, nil
}

// GetDependencies performs a BFS over file import edges from filePath, up to
// maxDepth hops (10 when maxDepth <= 0). It returns one DependencyChain per
// reachable file.
func (m *MemStore) GetDependencies(_ context.Context, filePath string, direction Direction, maxDepth int) ([]DependencyChain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if maxDepth <= 0 {
		maxDepth = 10
	}
	adj := m.importAdjacency(direction)

	type bfsEntry struct {
		path []string
	}
	visited := map[string]bool{filePath: true}
	queue := []bfsEntry{{path: []string{filePath}}}
	var chains []DependencyChain

	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		var next []bfsEntry
		for _, entry := range queue {
			tip := entry.path[len(entry.path)-1]
			for _, nb := range adj[tip] {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				p := make([]string, len(entry.path), len(entry.path)+1)
				copy(p, entry.path)
				p = append(p, nb)
				chains = append(chains, DependencyChain{Nodes: p, Depth: len(p) - 1})
				next = append(next, bfsEntry{path: p})
			}
		}
		queue = next
	}
	return chains, nil
}

// importAdjacency maps file path to neighbouring file paths along resolved
// import relationships. Placeholder targets are skipped.
func (m *MemStore) importAdjacency(direction Direction) map[string][]string {
	adj := make(map[string][]string)
	for _, r := range m.relationships {
		if !isImportKind(r.Kind) {
			continue
		}
		src, ok1 := m.components[r.SourceID]
		dst, ok2 := m.components[r.TargetID]
		if !ok1 || !ok2 || src.Kind != KindFile || dst.Kind != KindFile {
			continue
		}
		switch direction {
		case DirectionDownstream:
			adj[src.FilePath] = appendUnique(adj[src.FilePath], dst.FilePath)
		case DirectionUpstream:
			adj[dst.FilePath] = appendUnique(adj[dst.FilePath], src.FilePath)
		default:
			adj[src.FilePath] = appendUnique(adj[src.FilePath], dst.FilePath)
			adj[dst.FilePath] = appendUnique(adj[dst.FilePath], src.FilePath)
		}
	}
	for k := range adj {
		sort.Strings(adj[k])
	}
	return adj
}

// AssessImpact computes the files that import the changed files, directly or
// transitively.
func (m *MemStore) AssessImpact(_ context.Context, changedFiles []string) (*ImpactResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	importers := m.importAdjacency(DirectionUpstream)
	changed := make(map[string]bool, len(changedFiles))
	for _, f := range changedFiles {
		changed[f] = true
	}

	direct := make(map[string]bool)
	for _, f := range changedFiles {
		for _, imp := range importers[f] {
			if !changed[imp] {
				direct[imp] = true
			}
		}
	}

	all := make(map[string]bool, len(direct))
	frontier := make([]string, 0, len(direct))
	for f := range direct {
		all[f] = true
		frontier = append(frontier, f)
	}
	for len(frontier) > 0 {
		var next []string
		for _, f := range frontier {
			for _, imp := range importers[f] {
				if changed[imp] || all[imp] {
					continue
				}
				all[imp] = true
				next = append(next, imp)
			}
		}
		frontier = next
	}

	var risk float64
	if n := len(m.filesByPath); n > 0 {
		risk = float64(len(all)) / float64(n)
	}
	return &ImpactResult{
		DirectlyAffected:     setToSlice(direct),
		TransitivelyAffected: setToSlice(all),
		RiskScore:            risk,
	}, nil
}

// GetClusters returns all stored clusters.
func (m *MemStore) GetClusters(_ context.Context) ([]ClusterNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ClusterNode, len(m.clusters))
	copy(out, m.clusters)
	return out, nil
}

// Stats returns counts of stored entities.
func (m *MemStore) Stats(_ context.Context) (*GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &GraphStats{
		FileCount:         len(m.filesByPath),
		ComponentCount:    len(m.components),
		RelationshipCount: len(m.relationships),
		ClusterCount:      len(m.clusters),
	}, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}

// setToSlice converts a string set to a sorted slice.
func setToSlice(s map[string]bool) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func sortComponents(cs []Component) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].FilePath != cs[j].FilePath {
			return cs[i].FilePath < cs[j].FilePath
		}
		if cs[i].Location.StartLine != cs[j].Location.StartLine {
			return cs[i].Location.StartLine < cs[j].Location.StartLine
		}
		return cs[i].ID < cs[j].ID
	})
}

func sortRelationships(rs []Relationship) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}
