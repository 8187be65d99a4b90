// Command csrf-demo serves a small form application protected by the CSRF
// guard, with sessions kept in memory, Redis or NATS.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JeanGrijp/csrfguard/internal/config"
	"github.com/JeanGrijp/csrfguard/internal/demo"
)

var (
	configFile string
	addr       string
	backend    string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "csrf-demo",
		Short:         "Serve a form application protected by single-use CSRF tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	cmd.Flags().StringVar(&backend, "session-backend", "", "session backend: memory, redis or nats")
	return cmd
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if backend != "" {
		cfg.Session.Backend = backend
	}

	logger, err := demo.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	app, err := demo.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", zap.Error(err))
		return err
	}
	defer app.Close()

	return app.Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "csrf-demo: %v\n", err)
		stop()
		os.Exit(1)
	}
}
