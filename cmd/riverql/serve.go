package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/typester/riverql"
	"github.com/typester/riverql/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for server use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// serveCmd starts the riverql server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status server",
	Long: `Start the riverql status server.

The server will:
  - Load configuration from the given YAML file, or use the defaults
  - Ingest status records from the configured source (stdin by default)
  - Serve graphql-transport-ws subscriptions and JSON point queries

When the source ends, every subscription is completed and point queries keep
answering from the last snapshot. The server runs until interrupted (Ctrl+C)
or receives SIGTERM.

Example:
  <bridge> | riverql serve
  riverql serve -c riverql.yaml
  riverql serve --listen 127.0.0.1:8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Level())

	logger.Info("config loaded",
		"listen", cfg.Listen,
		"source", cfg.Source.Type,
		"path", cfg.Source.Path,
	)

	opts, err := config.BuildOptions(cfg, cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	opts = append(opts, riverql.WithLogger(logger))

	eng, err := riverql.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serveUntilDone(ctx, eng, logger)
}

// serveUntilDone runs eng until ctx is cancelled and bounds the graceful
// shutdown.
func serveUntilDone(ctx context.Context, eng *riverql.Engine, logger *slog.Logger) error {
	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- eng.Start(ctx)
	}()

	// wait for server to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
