package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/polyparse/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Re-parse source files as they change",
	Long: `Watch a workspace and re-parse each source file shortly after it is
written, printing one summary line per file. Hidden and excluded
directories are not watched. Stop with Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	addParseFlags(watchCmd)
	f := watchCmd.Flags()
	f.StringSlice("exclude", nil, "glob over workspace-relative paths to skip (repeatable)")
	f.Duration("debounce", watch.DefaultDebounce, "quiet period before a changed file is parsed")
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	debounce, _ := cmd.Flags().GetDuration("debounce")
	w, err := watch.New(coord, watch.Config{
		Root:     root,
		Exclude:  cfg.Index.Exclude,
		Debounce: debounce,
		Parse:    cfg.ParseOptions(),
	}, watch.WithLogger(logrus.WithField("component", "watch")))
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	updates := make(chan watch.Update)
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx, updates) }()

	out := cmd.OutOrStdout()
	for u := range updates {
		fmt.Fprintln(out, watch.FormatUpdate(u))
	}
	return <-errc
}
