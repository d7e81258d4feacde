package graph

import (
	"context"
	"fmt"
	"io"
)

// Store is the interface for the component graph backend.
// Implementations: KuzuStore (persistent, cgo), MemStore (in-process).
type Store interface {
	io.Closer

	// Schema setup, called once before any data is inserted.
	InitSchema(ctx context.Context) error

	// Write operations. Adding an id that already exists replaces it.
	AddComponent(ctx context.Context, c Component) error
	AddRelationship(ctx context.Context, r Relationship) error
	AddCluster(ctx context.Context, node ClusterNode) error

	// Read operations.
	GetComponent(ctx context.Context, id string) (*Component, error)
	QueryComponents(ctx context.Context, query string, kind ComponentKind, limit int) ([]Component, error)
	GetRelationships(ctx context.Context, componentID string, direction Direction) ([]Relationship, error)
	AllRelationships(ctx context.Context) ([]Relationship, error)
	Files(ctx context.Context) ([]Component, error)

	// Graph traversal over file-level import relationships.
	GetDependencies(ctx context.Context, filePath string, direction Direction, maxDepth int) ([]DependencyChain, error)
	AssessImpact(ctx context.Context, changedFiles []string) (*ImpactResult, error)
	GetClusters(ctx context.Context) ([]ClusterNode, error)

	Stats(ctx context.Context) (*GraphStats, error)
}

// Direction controls traversal direction.
type Direction string

const (
	DirectionUpstream   Direction = "upstream"   // what depends on this?
	DirectionDownstream Direction = "downstream" // what does this depend on?
	DirectionBoth       Direction = "both"
)

// isImportKind reports whether k links files in the dependency graph.
func isImportKind(k RelationshipKind) bool {
	return k == RelImports || k == RelImportsFrom
}

// CopyStore writes every component, relationship and cluster of src into
// dst, initializing dst's schema first.
func CopyStore(ctx context.Context, src, dst Store) error {
	if err := dst.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	comps, err := src.QueryComponents(ctx, "", "", 0)
	if err != nil {
		return fmt.Errorf("list components: %w", err)
	}
	for _, c := range comps {
		if err := dst.AddComponent(ctx, c); err != nil {
			return fmt.Errorf("add component %s: %w", c.ID, err)
		}
	}
	rels, err := src.AllRelationships(ctx)
	if err != nil {
		return fmt.Errorf("list relationships: %w", err)
	}
	for _, r := range rels {
		if err := dst.AddRelationship(ctx, r); err != nil {
			return fmt.Errorf("add relationship %s: %w", r.ID, err)
		}
	}
	clusters, err := src.GetClusters(ctx)
	if err != nil {
		return fmt.Errorf("get clusters: %w", err)
	}
	for _, c := range clusters {
		if err := dst.AddCluster(ctx, c); err != nil {
			return fmt.Errorf("add cluster %s: %w", c.Name, err)
		}
	}
	return nil
}
