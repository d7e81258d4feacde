package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/polyparse/internal/graph"
	"github.com/dusk-indust/polyparse/internal/mcptools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve parse, validate and graph tools over MCP",
	Long: `Start a Model Context Protocol server exposing parse_file, validate_syntax,
index and the graph query tools.

The server speaks MCP on stdin/stdout unless --http is given. With --store,
an existing graph is loaded at startup and every index call writes the new
graph back to that directory.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	addParseFlags(serveCmd)
	f := serveCmd.Flags()
	f.String("http", "", "serve streamable HTTP on this address instead of stdio, e.g. :8090")
	f.String("store", "", "Kuzu database directory to load from and persist to")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	coord, reg := newCoordinator(cfg)
	defer closeRegistry(reg)

	store := graph.NewMemStore()
	if err := store.InitSchema(cmd.Context()); err != nil {
		return err
	}
	if cfg.Store.Path != "" {
		if err := loadPersisted(cmd.Context(), cfg.Store.Path, store); err != nil {
			return err
		}
	}

	log := logrus.WithField("component", "mcp")
	opts := []mcptools.ServiceOption{
		mcptools.WithParseOptions(cfg.ParseOptions()),
		mcptools.WithLogger(log),
	}
	if cfg.Store.Path != "" {
		opts = append(opts, mcptools.WithPersistPath(cfg.Store.Path))
	}
	svc := mcptools.NewCodeIntelService(coord, store, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr, _ := cmd.Flags().GetString("http")
	if addr != "" {
		log.WithField("addr", addr).Info("serving MCP over HTTP")
		return mcptools.RunMCPServer(ctx, svc, addr)
	}
	log.Debug("serving MCP over stdio")
	return mcptools.RunMCPServerStdio(ctx, svc)
}

// loadPersisted copies a previously written graph into dst. A missing
// directory is not an error.
func loadPersisted(ctx context.Context, path string, dst graph.Store) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	src, err := graph.NewKuzuFileStore(path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer src.Close()
	if err := graph.CopyStore(ctx, src, dst); err != nil {
		return fmt.Errorf("load store %s: %w", path, err)
	}
	return nil
}
