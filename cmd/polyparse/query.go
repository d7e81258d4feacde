package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/polyparse/internal/export"
	"github.com/dusk-indust/polyparse/internal/graph"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query a graph written by \"polyparse index --store\"",
}

var queryComponentsCmd = &cobra.Command{
	Use:   "components [text]",
	Short: "Find components whose name contains text",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store graph.Store, w io.Writer) error {
			kind, _ := cmd.Flags().GetString("kind")
			limit, _ := cmd.Flags().GetInt("limit")
			var q string
			if len(args) > 0 {
				q = args[0]
			}
			comps, err := store.QueryComponents(ctx, q, graph.ComponentKind(strings.ToUpper(kind)), limit)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return export.WriteJSON(w, comps)
			}
			for _, c := range comps {
				fmt.Fprintf(w, "%-10s %s  %s:%d\n", c.Kind, c.QualifiedName(), c.FilePath, c.Location.StartLine)
			}
			return nil
		})
	},
}

var queryRelationshipsCmd = &cobra.Command{
	Use:   "relationships <component-id>",
	Short: "List relationships of a component",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store graph.Store, w io.Writer) error {
			dir, err := directionFlag(cmd, graph.DirectionBoth)
			if err != nil {
				return err
			}
			rels, err := store.GetRelationships(ctx, args[0], dir)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return export.WriteJSON(w, rels)
			}
			for _, r := range rels {
				line := fmt.Sprintf("%s -%s-> %s", r.SourceID, r.Kind, r.TargetID)
				if c, ok := r.Confidence(); ok {
					line += fmt.Sprintf(" (%.2f)", c)
				}
				fmt.Fprintln(w, line)
			}
			return nil
		})
	},
}

var queryDepsCmd = &cobra.Command{
	Use:   "deps <file>",
	Short: "Follow file imports from a workspace-relative path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store graph.Store, w io.Writer) error {
			dir, err := directionFlag(cmd, graph.DirectionDownstream)
			if err != nil {
				return err
			}
			depth, _ := cmd.Flags().GetInt("depth")
			chains, err := store.GetDependencies(ctx, args[0], dir, depth)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return export.WriteJSON(w, chains)
			}
			for _, c := range chains {
				fmt.Fprintln(w, strings.Join(c.Nodes, " -> "))
			}
			return nil
		})
	},
}

var queryImpactCmd = &cobra.Command{
	Use:   "impact <file>...",
	Short: "List files affected by changing the given files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store graph.Store, w io.Writer) error {
			impact, err := store.AssessImpact(ctx, args)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return export.WriteJSON(w, impact)
			}
			fmt.Fprintf(w, "risk %.2f\n", impact.RiskScore)
			fmt.Fprintf(w, "direct      %s\n", strings.Join(impact.DirectlyAffected, ", "))
			fmt.Fprintf(w, "transitive  %s\n", strings.Join(impact.TransitivelyAffected, ", "))
			return nil
		})
	},
}

var queryClustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List clusters of files connected by imports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(ctx context.Context, store graph.Store, w io.Writer) error {
			clusters, err := store.GetClusters(ctx)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return export.WriteJSON(w, clusters)
			}
			for _, c := range clusters {
				fmt.Fprintf(w, "%s (cohesion %.2f)\n", c.Name, c.CohesionScore)
				for _, m := range c.Members {
					fmt.Fprintf(w, "  %s\n", m)
				}
			}
			return nil
		})
	},
}

func init() {
	pf := queryCmd.PersistentFlags()
	pf.String("store", "", "Kuzu database directory written by index")
	pf.Bool("json", false, "print JSON")

	queryComponentsCmd.Flags().String("kind", "", "only components of this kind, e.g. function")
	queryComponentsCmd.Flags().Int("limit", 20, "maximum results, 0 for all")
	queryRelationshipsCmd.Flags().String("direction", "both", "upstream, downstream or both")
	queryDepsCmd.Flags().String("direction", "downstream", "upstream, downstream or both")
	queryDepsCmd.Flags().Int("depth", 5, "maximum chain length")

	queryCmd.AddCommand(queryComponentsCmd, queryRelationshipsCmd, queryDepsCmd, queryImpactCmd, queryClustersCmd)
}

// withStore opens the configured store read-side and runs fn against it.
func withStore(cmd *cobra.Command, fn func(context.Context, graph.Store, io.Writer) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("no store: pass --store or set store.path")
	}
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		return fmt.Errorf("open store: %w (run \"polyparse index --store %s\" first)", err, cfg.Store.Path)
	}
	store, err := graph.NewKuzuFileStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cmd.Context(), store, cmd.OutOrStdout())
}

func asJSON(cmd *cobra.Command) bool {
	b, _ := cmd.Flags().GetBool("json")
	return b
}

func directionFlag(cmd *cobra.Command, def graph.Direction) (graph.Direction, error) {
	s, _ := cmd.Flags().GetString("direction")
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case "upstream":
		return graph.DirectionUpstream, nil
	case "downstream":
		return graph.DirectionDownstream, nil
	case "both":
		return graph.DirectionBoth, nil
	}
	return "", fmt.Errorf("unknown direction %q: want upstream, downstream or both", s)
}
