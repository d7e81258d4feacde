//go:build cgo

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements the Store interface using KuzuDB as the graph backend.
// It requires CGO because the go-kuzu driver wraps KuzuDB's C library.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore persisted under dbPath. KuzuDB creates
// the leaf directory itself; the parent is created here.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	db, err := kuzu.OpenDatabase(path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database %s: %w", path, err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ---------- Schema setup ----------

// ddlStatements defines the Cypher DDL executed by InitSchema.
// Node tables must precede relationship tables. Relationship kinds are a
// property of a single LINKS table because the kind set is open-ended.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Component(
		id STRING,
		name STRING,
		kind STRING,
		language STRING,
		file_path STRING,
		parent_id STRING,
		start_line INT64,
		end_line INT64,
		metadata STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Cluster(
		name STRING,
		cohesion_score DOUBLE,
		PRIMARY KEY(name)
	)`,
	`CREATE REL TABLE IF NOT EXISTS LINKS(
		FROM Component TO Component,
		id STRING,
		kind STRING,
		tier STRING,
		confidence DOUBLE,
		metadata STRING
	)`,
	`CREATE REL TABLE IF NOT EXISTS MEMBER_OF(FROM Component TO Cluster)`,
}

// externalKind marks nodes created only to anchor placeholder endpoints.
const externalKind = "EXTERNAL"

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Write operations ----------

// AddComponent upserts a Component node.
func (s *KuzuStore) AddComponent(_ context.Context, c Component) error {
	meta, err := encodeMeta(c.Metadata)
	if err != nil {
		return err
	}
	return s.exec(
		`MERGE (c:Component {id: $id})
		 SET c.name = $name, c.kind = $kind, c.language = $lang, c.file_path = $fp,
		     c.parent_id = $parent, c.start_line = $sl, c.end_line = $el, c.metadata = $meta`,
		map[string]any{
			"id":     c.ID,
			"name":   c.Name,
			"kind":   string(c.Kind),
			"lang":   string(c.Language),
			"fp":     c.FilePath,
			"parent": c.ParentID,
			"sl":     int64(c.Location.StartLine),
			"el":     int64(c.Location.EndLine),
			"meta":   meta,
		},
	)
}

// AddRelationship upserts a LINKS edge. Endpoints that are not stored
// components (placeholders) are anchored by EXTERNAL nodes.
func (s *KuzuStore) AddRelationship(_ context.Context, r Relationship) error {
	for _, id := range []string{r.SourceID, r.TargetID} {
		if err := s.exec(
			`MERGE (n:Component {id: $id})
			 ON CREATE SET n.kind = $kind, n.name = $id`,
			map[string]any{"id": id, "kind": externalKind},
		); err != nil {
			return err
		}
	}
	meta, err := encodeMeta(r.Metadata)
	if err != nil {
		return err
	}
	conf, ok := r.Confidence()
	if !ok {
		conf = r.Tier().DefaultConfidence()
	}
	return s.exec(
		`MATCH (a:Component {id: $src}), (b:Component {id: $dst})
		 MERGE (a)-[l:LINKS {id: $id}]->(b)
		 SET l.kind = $kind, l.tier = $tier, l.confidence = $conf, l.metadata = $meta`,
		map[string]any{
			"src":  r.SourceID,
			"dst":  r.TargetID,
			"id":   r.ID,
			"kind": string(r.Kind),
			"tier": string(r.Tier()),
			"conf": conf,
			"meta": meta,
		},
	)
}

// AddCluster inserts a Cluster node and MEMBER_OF edges for its files.
func (s *KuzuStore) AddCluster(_ context.Context, node ClusterNode) error {
	if err := s.exec(
		"MERGE (c:Cluster {name: $name}) SET c.cohesion_score = $score",
		map[string]any{"name": node.Name, "score": node.CohesionScore},
	); err != nil {
		return err
	}
	for _, member := range node.Members {
		if err := s.exec(
			`MATCH (f:Component {kind: 'FILE', file_path: $fp}), (c:Cluster {name: $name})
			 MERGE (f)-[:MEMBER_OF]->(c)`,
			map[string]any{"fp": member, "name": node.Name},
		); err != nil {
			return err
		}
	}
	return nil
}

// ---------- Read operations ----------

const componentColumns = "c.id, c.name, c.kind, c.language, c.file_path, c.parent_id, c.start_line, c.end_line, c.metadata"

// GetComponent retrieves a component by id, or nil if not found.
func (s *KuzuStore) GetComponent(_ context.Context, id string) (*Component, error) {
	rows, err := s.query(
		"MATCH (c:Component {id: $id}) WHERE c.kind <> $ext RETURN "+componentColumns,
		map[string]any{"id": id, "ext": externalKind},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	c := rowToComponent(rows[0])
	return &c, nil
}

// QueryComponents returns components whose name contains query
// (case-insensitive), optionally restricted to kind, sorted by file then line.
// Kuzu only narrows by kind; matching, ordering and the limit are applied
// here so both stores agree on case folding and order.
func (s *KuzuStore) QueryComponents(_ context.Context, query string, kind ComponentKind, limit int) ([]Component, error) {
	cypher := "MATCH (c:Component) WHERE c.kind <> $ext"
	params := map[string]any{"ext": externalKind}
	if kind != "" {
		cypher += " AND c.kind = $kind"
		params["kind"] = string(kind)
	}
	rows, err := s.query(cypher+" RETURN "+componentColumns, params)
	if err != nil {
		return nil, err
	}
	lowerQuery := strings.ToLower(query)
	var out []Component
	for _, r := range rows {
		c := rowToComponent(r)
		if strings.Contains(strings.ToLower(c.Name), lowerQuery) {
			out = append(out, c)
		}
	}
	sortComponents(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

const linkColumns = "l.id, l.kind, a.id, b.id, l.metadata"

// GetRelationships returns LINKS edges touching componentID.
func (s *KuzuStore) GetRelationships(_ context.Context, componentID string, direction Direction) ([]Relationship, error) {
	var queries []string
	if direction != DirectionUpstream {
		queries = append(queries, "MATCH (a:Component {id: $id})-[l:LINKS]->(b:Component) RETURN "+linkColumns)
	}
	if direction != DirectionDownstream {
		queries = append(queries, "MATCH (a:Component)-[l:LINKS]->(b:Component {id: $id}) RETURN "+linkColumns)
	}
	seen := make(map[string]bool)
	var out []Relationship
	for _, q := range queries {
		rows, err := s.query(q, map[string]any{"id": componentID})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			rel := rowToRelationship(r)
			if !seen[rel.ID] {
				seen[rel.ID] = true
				out = append(out, rel)
			}
		}
	}
	sortRelationships(out)
	return out, nil
}

// AllRelationships returns every LINKS edge.
func (s *KuzuStore) AllRelationships(_ context.Context) ([]Relationship, error) {
	rows, err := s.query("MATCH (a:Component)-[l:LINKS]->(b:Component) RETURN "+linkColumns+" ORDER BY l.id", nil)
	if err != nil {
		return nil, err
	}
	out := make([]Relationship, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToRelationship(r))
	}
	return out, nil
}

// Files returns every FILE component.
func (s *KuzuStore) Files(_ context.Context) ([]Component, error) {
	rows, err := s.query("MATCH (c:Component) WHERE c.kind = 'FILE' RETURN "+componentColumns+" ORDER BY c.file_path", nil)
	if err != nil {
		return nil, err
	}
	out := make([]Component, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToComponent(r))
	}
	return out, nil
}

// ---------- Graph traversal ----------

// GetDependencies performs a BFS over file import edges starting from
// filePath. It returns one DependencyChain per reachable file.
func (s *KuzuStore) GetDependencies(_ context.Context, filePath string, dir Direction, maxDepth int) ([]DependencyChain, error) {
	if maxDepth <= 0 {
		maxDepth = 10
	}

	type bfsEntry struct {
		path  []string
		depth int
	}
	visited := map[string]bool{filePath: true}
	queue := []bfsEntry{{path: []string{filePath}}}
	var chains []DependencyChain

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		neighbors, err := s.fileNeighbors(cur.path[len(cur.path)-1], dir)
		if err != nil {
			return nil, err
		}
		for _, nb := range neighbors {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			p := make([]string, len(cur.path)+1)
			copy(p, cur.path)
			p[len(cur.path)] = nb
			chains = append(chains, DependencyChain{Nodes: p, Depth: cur.depth + 1})
			queue = append(queue, bfsEntry{path: p, depth: cur.depth + 1})
		}
	}
	return chains, nil
}

// fileNeighbors returns immediate file neighbors along import edges.
func (s *KuzuStore) fileNeighbors(path string, dir Direction) ([]string, error) {
	const importFilter = " WHERE l.kind IN ['IMPORTS', 'IMPORTS_FROM'] "
	var cypher []string
	switch dir {
	case DirectionDownstream:
		cypher = []string{"MATCH (a:Component {kind: 'FILE', file_path: $p})-[l:LINKS]->(b:Component {kind: 'FILE'})" + importFilter + "RETURN b.file_path"}
	case DirectionUpstream:
		cypher = []string{"MATCH (a:Component {kind: 'FILE'})-[l:LINKS]->(b:Component {kind: 'FILE', file_path: $p})" + importFilter + "RETURN a.file_path"}
	case DirectionBoth:
		up, err := s.fileNeighbors(path, DirectionUpstream)
		if err != nil {
			return nil, err
		}
		down, err := s.fileNeighbors(path, DirectionDownstream)
		if err != nil {
			return nil, err
		}
		for _, d := range down {
			up = appendUnique(up, d)
		}
		sort.Strings(up)
		return up, nil
	default:
		return nil, fmt.Errorf("kuzu: unknown direction: %s", dir)
	}
	rows, err := s.query(cypher[0], map[string]any{"p": path})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = appendUnique(out, toString(r[0]))
	}
	sort.Strings(out)
	return out, nil
}

// AssessImpact walks import edges upstream from each changed file.
func (s *KuzuStore) AssessImpact(ctx context.Context, changedFiles []string) (*ImpactResult, error) {
	totalFiles, err := s.countFiles()
	if err != nil {
		return nil, err
	}

	changed := make(map[string]bool, len(changedFiles))
	for _, f := range changedFiles {
		changed[f] = true
	}
	direct := map[string]bool{}
	transitive := map[string]bool{}
	for _, f := range changedFiles {
		chains, err := s.GetDependencies(ctx, f, DirectionUpstream, 10)
		if err != nil {
			return nil, err
		}
		for _, c := range chains {
			last := c.Nodes[len(c.Nodes)-1]
			if changed[last] {
				continue
			}
			transitive[last] = true
			if c.Depth == 1 {
				direct[last] = true
			}
		}
	}

	risk := 0.0
	if totalFiles > 0 {
		risk = math.Min(1.0, float64(len(transitive))/float64(totalFiles))
	}
	return &ImpactResult{
		DirectlyAffected:     setToSlice(direct),
		TransitivelyAffected: setToSlice(transitive),
		RiskScore:            risk,
	}, nil
}

// GetClusters returns all Cluster nodes with their member files.
func (s *KuzuStore) GetClusters(_ context.Context) ([]ClusterNode, error) {
	rows, err := s.query("MATCH (c:Cluster) RETURN c.name, c.cohesion_score ORDER BY c.name", nil)
	if err != nil {
		return nil, err
	}
	out := make([]ClusterNode, 0, len(rows))
	for _, r := range rows {
		name := toString(r[0])
		memberRows, err := s.query(
			"MATCH (f:Component)-[:MEMBER_OF]->(c:Cluster {name: $name}) RETURN f.file_path ORDER BY f.file_path",
			map[string]any{"name": name},
		)
		if err != nil {
			return nil, err
		}
		members := make([]string, 0, len(memberRows))
		for _, mr := range memberRows {
			members = append(members, toString(mr[0]))
		}
		out = append(out, ClusterNode{Name: name, CohesionScore: toFloat64(r[1]), Members: members})
	}
	return out, nil
}

// ---------- Stats ----------

// Stats returns counts of stored entities. EXTERNAL anchor nodes are not
// counted as components.
func (s *KuzuStore) Stats(_ context.Context) (*GraphStats, error) {
	files, err := s.countFiles()
	if err != nil {
		return nil, err
	}
	components, err := s.count("MATCH (c:Component) WHERE c.kind <> 'EXTERNAL' RETURN count(c)")
	if err != nil {
		return nil, err
	}
	rels, err := s.count("MATCH ()-[l:LINKS]->() RETURN count(l)")
	if err != nil {
		return nil, err
	}
	clusters, err := s.count("MATCH (c:Cluster) RETURN count(c)")
	if err != nil {
		return nil, err
	}
	return &GraphStats{
		FileCount:         files,
		ComponentCount:    components,
		RelationshipCount: rels,
		ClusterCount:      clusters,
	}, nil
}

// ---------- Internal helpers ----------

func (s *KuzuStore) countFiles() (int, error) {
	return s.count("MATCH (c:Component) WHERE c.kind = 'FILE' RETURN count(c)")
}

// exec runs a parameterized Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a Cypher statement and collects all result rows in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func (s *KuzuStore) count(cypher string) (int, error) {
	rows, err := s.query(cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

func encodeMeta(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("kuzu: encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMeta(v any) map[string]any {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || len(m) == 0 {
		return nil
	}
	return m
}

// rowToComponent converts a componentColumns row into a Component.
func rowToComponent(r []any) Component {
	return Component{
		ID:       toString(r[0]),
		Name:     toString(r[1]),
		Kind:     ComponentKind(toString(r[2])),
		Language: Language(toString(r[3])),
		FilePath: toString(r[4]),
		ParentID: toString(r[5]),
		Location: Location{StartLine: toInt(r[6]), EndLine: toInt(r[7])},
		Metadata: decodeMeta(r[8]),
	}
}

// rowToRelationship converts a linkColumns row into a Relationship.
func rowToRelationship(r []any) Relationship {
	return Relationship{
		ID:       toString(r[0]),
		Kind:     RelationshipKind(toString(r[1])),
		SourceID: toString(r[2]),
		TargetID: toString(r[3]),
		Metadata: decodeMeta(r[4]),
	}
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string).

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
