package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/typester/riverql/internal/client"
	"github.com/typester/riverql/internal/protocol"
)

// subscribeCmd runs one subscription and prints its payloads.
var subscribeCmd = &cobra.Command{
	Use:   "subscribe [query|@file]",
	Short: "Subscribe and print every payload as a JSON line",
	Long: `Connect to a riverql server, run one subscription, and print every
next payload as a line of JSON on stdout. Logs go to stderr.

The query is the argument, the contents of a file when the argument starts
with @, or stdin when it is piped. The command ends when the server completes
the subscription or closes the connection.

Example:
  riverql subscribe 'subscription { events(types: [SEAT_MODE]) { ... on SeatMode { name } } }'
  riverql subscribe @focused.graphql --endpoint ws://127.0.0.1:8080/graphql
  echo 'subscription { events { __typename } }' | riverql subscribe`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubscribe,
}

func init() {
	rootCmd.AddCommand(subscribeCmd)

	subscribeCmd.Flags().String("variables", "", "JSON object of subscription variables")
}

// newSubscriberLogger creates a text logger so stdout carries only payloads.
func newSubscriberLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newSubscriberLogger(cfg.Level())

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	q, err := client.ReadQuery(arg, cmd.InOrStdin())
	if err != nil {
		return err
	}

	req := protocol.SubscribePayload{Query: q}
	if raw, _ := cmd.Flags().GetString("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
			return fmt.Errorf("--variables must be a JSON object: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ep := cfg.ParsedEndpoint()
	conn, err := client.Dial(ctx, ep, cfg.WriteTimeout.Duration())
	if err != nil {
		return err
	}
	logger.Debug("connected", "endpoint", ep.String())

	return client.Run(ctx, conn, req, client.NewPrinter(cmd.OutOrStdout(), logger), logger)
}
