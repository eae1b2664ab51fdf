package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/typester/riverql"
)

func main() {
	// feed the engine from a simulated compositor (see mock_compositor.go)
	upstream, feed := io.Pipe()
	go func() {
		StartMockCompositor(feed)
		feed.Close()
	}()

	eng, err := riverql.New(
		riverql.WithStreamReader(upstream),
		riverql.WithListen("tcp", "127.0.0.1:8080"),
		riverql.WithBusCapacity(256),
		riverql.WithEventCallback(func(ev riverql.Event) {
			slog.Debug("event ingested", "kind", ev.Kind())
		}),
	)
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  riverql demo")
	fmt.Println()
	fmt.Println("  Subscribe with:")
	fmt.Println("    go run ./cmd/riverql --endpoint ws://127.0.0.1:8080/graphql \\")
	fmt.Println("      'subscription { events(types: [OUTPUT_FOCUSED_TAGS]) { ... on OutputFocusedTags { name tags } } }'")
	fmt.Println()
	fmt.Println("  Snapshot: curl http://127.0.0.1:8080/api/outputs")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		slog.Error("riverql error", "error", err)
		os.Exit(1)
	}
}
