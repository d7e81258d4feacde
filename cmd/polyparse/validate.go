package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/polyparse/internal/export"
	"github.com/dusk-indust/polyparse/internal/graph"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check syntax with the primary backend of each file's language",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.Bool("json", false, "print diagnostics as JSON")
	f.String("force-parser", "", "validate as this language instead of detecting it")
	f.Bool("no-python-helper", false, "do not start the Python helper")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	coord, reg := newCoordinator(cfg)
	defer closeRegistry(reg)

	force, _ := cmd.Flags().GetString("force-parser")
	jsonOut, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()

	invalid := 0
	for _, path := range args {
		res, err := coord.ValidateSyntax(context.Background(), path, nil, graph.Language(strings.ToLower(force)))
		if err != nil {
			return err
		}
		if !res.Valid {
			invalid++
		}
		if jsonOut {
			if err := export.WriteJSON(w, res); err != nil {
				return err
			}
			continue
		}
		if res.Valid {
			fmt.Fprintf(w, "✓ %s (%s, %s)\n", path, res.Language, res.Backend)
		}
		for _, d := range res.Diagnostics {
			fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", path, d.Line, d.Column, d.Severity, d.Message)
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d files have syntax errors", invalid, len(args))
	}
	return nil
}
