package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/polyparse/internal/bridge"
)

var helperCmd = &cobra.Command{
	Use:   "helper",
	Short: "Run out-of-process backend helpers",
}

var helperServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the Python helper over HTTP JSON-RPC",
	Long: `Start the embedded Python AST helper and serve its commands as JSON-RPC 2.0
over HTTP, so polyparse on another host can use it with --python-url.

  polyparse helper serve --addr 0.0.0.0:8765
  polyparse parse app.py --python-url http://helper-host:8765`,
	Args: cobra.NoArgs,
	RunE: runHelperServe,
}

func init() {
	f := helperServeCmd.Flags()
	f.String("addr", "127.0.0.1:8765", "listen address")
	f.String("python", "python3", "interpreter running the Python helper")
	f.Duration("request-timeout", bridge.DefaultTimeout, "time limit for one helper request")
	helperCmd.AddCommand(helperServeCmd)
	rootCmd.AddCommand(helperCmd)
}

func runHelperServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	timeout := cfg.Python.Timeout
	if cmd.Flags().Changed("request-timeout") || timeout <= 0 {
		timeout, _ = cmd.Flags().GetDuration("request-timeout")
	}
	pc, err := bridge.PythonHelper(bridge.PythonOptions{
		Interpreter: cfg.Python.Command,
		Timeout:     timeout,
	})
	if err != nil {
		return err
	}
	log := logrus.WithField("component", "helper")
	proc := bridge.NewProcess(pc, bridge.WithLogger(log))
	defer proc.Close()

	addr, _ := cmd.Flags().GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           bridge.NewServer(proc, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logrus.Fields{"addr": addr, "interpreter": pc.Command}).Info("serving python helper")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
