// Package export renders parse results and stored graphs as JSON documents
// and Mermaid diagrams.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/polyparse/internal/graph"
)

// GraphExport is the top-level JSON export structure of a stored graph.
type GraphExport struct {
	Root          string               `json:"root,omitempty"`
	ExportedAt    string               `json:"exportedAt"`
	Stats         graph.GraphStats     `json:"stats"`
	Files         []FileExport         `json:"files"`
	Relationships []graph.Relationship `json:"relationships"`
	Clusters      []graph.ClusterNode  `json:"clusters"`
}

// FileExport groups a file with the components declared in it.
type FileExport struct {
	Path       string            `json:"path"`
	Language   graph.Language    `json:"language"`
	LOC        any               `json:"loc,omitempty"`
	Components []graph.Component `json:"components"`
}

// ExportGraph reads every file, component, relationship and cluster from
// store.
func ExportGraph(ctx context.Context, store graph.Store, root string) (*GraphExport, error) {
	stats, err := store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	files, err := store.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	comps, err := store.QueryComponents(ctx, "", "", 0)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	rels, err := store.AllRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	clusters, err := store.GetClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("get clusters: %w", err)
	}

	export := &GraphExport{
		Root:          root,
		ExportedAt:    time.Now().UTC().Format(time.RFC3339),
		Stats:         *stats,
		Files:         make([]FileExport, 0, len(files)),
		Relationships: rels,
		Clusters:      clusters,
	}
	if export.Relationships == nil {
		export.Relationships = []graph.Relationship{}
	}
	if export.Clusters == nil {
		export.Clusters = []graph.ClusterNode{}
	}

	// Components arrive sorted by file then line.
	byFile := make(map[string][]graph.Component, len(files))
	for _, c := range comps {
		if c.Kind == graph.KindFile {
			continue
		}
		byFile[c.FilePath] = append(byFile[c.FilePath], c)
	}
	for _, f := range files {
		members := byFile[f.FilePath]
		if members == nil {
			members = []graph.Component{}
		}
		export.Files = append(export.Files, FileExport{
			Path:       f.FilePath,
			Language:   f.Language,
			LOC:        f.Metadata[graph.MetaLOC],
			Components: members,
		})
	}
	return export, nil
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
