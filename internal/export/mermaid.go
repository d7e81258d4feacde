package export

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dusk-indust/polyparse/internal/graph"
)

// GenerateMermaid produces a Mermaid graph TD diagram from a graph store.
// Files are grouped by cluster; resolved file-to-file imports become arrows.
func GenerateMermaid(ctx context.Context, store graph.Store) (string, error) {
	clusters, err := store.GetClusters(ctx)
	if err != nil {
		return "", fmt.Errorf("get clusters: %w", err)
	}
	files, err := store.Files(ctx)
	if err != nil {
		return "", fmt.Errorf("list files: %w", err)
	}
	rels, err := store.AllRelationships(ctx)
	if err != nil {
		return "", fmt.Errorf("list relationships: %w", err)
	}

	ids := newNodeIDs()
	pathByID := make(map[string]string, len(files))
	for _, f := range files {
		pathByID[f.ID] = f.FilePath
	}

	clustered := make(map[string]bool)
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	// Emit cluster subgraphs.
	for _, c := range clusters {
		if len(c.Members) == 0 {
			continue
		}
		sorted := make([]string, len(c.Members))
		copy(sorted, c.Members)
		sort.Strings(sorted)

		fmt.Fprintf(&sb, "  subgraph %s[\"%.40s\"]\n", ids.get("cluster:"+c.Name), c.Name)
		for _, member := range sorted {
			clustered[member] = true
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", ids.get(member), escape(shortPath(member)))
		}
		sb.WriteString("  end\n")
	}

	// Files outside any cluster.
	for _, f := range files {
		if !clustered[f.FilePath] {
			fmt.Fprintf(&sb, "  %s[\"%s\"]\n", ids.get(f.FilePath), escape(shortPath(f.FilePath)))
		}
	}

	// Emit import edges, once per file pair.
	seen := make(map[[2]string]bool)
	for _, r := range rels {
		if r.Kind != graph.RelImports && r.Kind != graph.RelImportsFrom {
			continue
		}
		src, ok1 := pathByID[r.SourceID]
		dst, ok2 := pathByID[r.TargetID]
		if !ok1 || !ok2 || src == dst || seen[[2]string{src, dst}] {
			continue
		}
		seen[[2]string{src, dst}] = true
		fmt.Fprintf(&sb, "  %s --> %s\n", ids.get(src), ids.get(dst))
	}

	return sb.String(), nil
}

// ResultMermaid draws one parse result: components nested under their
// parents, and non-structural relationships as labelled arrows. Placeholder
// targets are drawn as dashed external nodes.
func ResultMermaid(res *graph.ParseResult) string {
	ids := newNodeIDs()
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	known := make(map[string]bool, len(res.Components))
	for _, c := range res.Components {
		known[c.ID] = true
		fmt.Fprintf(&sb, "  %s[\"%s %s\"]\n", ids.get(c.ID), strings.ToLower(string(c.Kind)), escape(label(c)))
	}
	for _, c := range res.Components {
		if c.ParentID != "" && known[c.ParentID] {
			fmt.Fprintf(&sb, "  %s --- %s\n", ids.get(c.ParentID), ids.get(c.ID))
		}
	}

	external := make(map[string]bool)
	for _, r := range res.Relationships {
		if r.Kind.Category() == graph.CategoryStructural {
			continue
		}
		if !known[r.SourceID] {
			continue
		}
		if !known[r.TargetID] && !external[r.TargetID] {
			external[r.TargetID] = true
			name := r.TargetID
			if _, n, ok := graph.SplitPlaceholder(r.TargetID); ok {
				name = n
			}
			fmt.Fprintf(&sb, "  %s([\"%s\"])\n", ids.get(r.TargetID), escape(name))
		}
		arrow := "-->"
		if !r.IsResolved() {
			arrow = "-.->"
		}
		fmt.Fprintf(&sb, "  %s %s|%s| %s\n", ids.get(r.SourceID), arrow, r.Kind, ids.get(r.TargetID))
	}
	return sb.String()
}

// nodeIDs maps arbitrary keys to Mermaid-safe alphanumeric node ids.
type nodeIDs struct {
	ids  map[string]string
	next int
}

func newNodeIDs() *nodeIDs { return &nodeIDs{ids: make(map[string]string)} }

func (n *nodeIDs) get(key string) string {
	if id, ok := n.ids[key]; ok {
		return id
	}
	id := fmt.Sprintf("N%d", n.next)
	n.next++
	n.ids[key] = id
	return id
}

func label(c graph.Component) string {
	if c.Kind == graph.KindFile {
		return shortPath(c.FilePath)
	}
	return c.QualifiedName()
}

// escape keeps labels from closing the quoted Mermaid string.
func escape(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}

// shortPath returns the last 2 path segments for readability.
func shortPath(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= 2 {
		return path
	}
	return strings.Join(parts[len(parts)-2:], "/")
}
