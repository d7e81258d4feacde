package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/polyparse/internal/config"
	"github.com/dusk-indust/polyparse/internal/coordinator"
	"github.com/dusk-indust/polyparse/internal/export"
	"github.com/dusk-indust/polyparse/internal/graph"
	"github.com/dusk-indust/polyparse/internal/index"
)

var indexCmd = &cobra.Command{
	Use:   "index [dir]",
	Short: "Index a workspace into a component graph",
	Long: `Walk a workspace, parse every source file in parallel, store components
and relationships, resolve imports to workspace files, and compute clusters
of files connected by imports.

With --store the graph is written to a Kuzu database that "polyparse query"
reads later; without it the graph lives in memory for this run only.

Examples:
  polyparse index
  polyparse index ./repo --exclude "dist" --exclude "**/*.gen.go"
  polyparse index --language go --language python --format mermaid
  polyparse index --store .polyparse/graph`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	addParseFlags(indexCmd)
	f := indexCmd.Flags()
	f.StringSlice("exclude", nil, "glob over workspace-relative paths to skip (repeatable)")
	f.StringSlice("language", nil, "only index these languages (repeatable)")
	f.Int("parallelism", 0, "files parsed at once (default: number of CPUs)")
	f.String("store", "", "Kuzu database directory to write the graph to")
	f.String("format", "summary", "output format: summary, json, mermaid")
	f.Bool("progress", false, "print per-file progress to stderr")
}

// openStore returns a fresh store: a Kuzu database at path, replacing any
// existing one, or a MemStore when path is empty.
func openStore(path string) (graph.Store, error) {
	if path == "" {
		return graph.NewMemStore(), nil
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove old store: %w", err)
	}
	return graph.NewKuzuFileStore(path)
}

func runIndex(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	coord, reg := newCoordinator(cfg)
	defer closeRegistry(reg)

	store, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []index.Option
	opts = append(opts, index.WithLogger(logrus.WithField("component", "index")))
	if show, _ := cmd.Flags().GetBool("progress"); show {
		reporter := coordinator.NewProgressReporter()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range reporter.Subscribe() {
				fmt.Fprintln(cmd.ErrOrStderr(), coordinator.FormatProgress(ev))
			}
		}()
		defer func() {
			reporter.Close()
			<-done
		}()
		opts = append(opts, index.WithProgress(reporter.Emit))
	}

	sum, err := index.New(coord, store, opts...).Index(ctx, root, indexOptions(cfg))
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "summary":
		fmt.Fprintf(w, "indexed %s in %s\n", sum.Root, sum.Elapsed.Round(time.Millisecond))
		fmt.Fprintf(w, "  files          %d (skipped %d, failed %d)\n", sum.Files, sum.Skipped, len(sum.Failed))
		fmt.Fprintf(w, "  components     %d\n", sum.Stats.ComponentCount)
		fmt.Fprintf(w, "  relationships  %d (%d imports resolved)\n", sum.Stats.RelationshipCount, sum.Resolved)
		fmt.Fprintf(w, "  clusters       %d\n", sum.Stats.ClusterCount)
		fmt.Fprintf(w, "  warnings       %d\n", sum.Warnings)
		for _, f := range sum.Failed {
			fmt.Fprintf(w, "  ✗ %s: %s\n", f.Path, f.Error)
		}
		if cfg.Store.Path != "" {
			fmt.Fprintf(w, "  store          %s\n", cfg.Store.Path)
		}
		return nil
	case "json":
		exp, err := export.ExportGraph(ctx, store, sum.Root)
		if err != nil {
			return err
		}
		return export.WriteJSON(w, exp)
	case "mermaid":
		out, err := export.GenerateMermaid(ctx, store)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, out)
		return err
	}
	return fmt.Errorf("unknown format %q: want summary, json or mermaid", format)
}

func indexOptions(cfg *config.Config) index.Options {
	return index.Options{
		Exclude:     cfg.Index.Exclude,
		Languages:   cfg.IndexLanguages(),
		Parallelism: cfg.Parse.Parallelism,
		Parse:       cfg.ParseOptions(),
	}
}
