// Standalone mock compositor bridge for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockbridge | go run ./cmd/riverql --server --listen 127.0.0.1:8080
//
// Then in another terminal:
//
//	go run ./cmd/riverql --endpoint ws://127.0.0.1:8080/graphql @example/focused.graphql
package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"os"
	"time"
)

func main() {
	// stdout carries the stream, so logs go to stderr
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("mock bridge started", "outputs", 2)

	enc := json.NewEncoder(os.Stdout)
	emit := func(rec map[string]any) {
		if err := enc.Encode(rec); err != nil {
			logger.Error("write failed, stopping", "error", err)
			os.Exit(1)
		}
	}

	names := map[string]string{"1": "eDP-1", "2": "DP-1"}
	for id, name := range names {
		emit(map[string]any{"type": "output_info", "output": id, "name": name})
	}
	emit(map[string]any{"type": "SeatMode", "name": "normal"})

	ids := []string{"1", "2"}
	for {
		time.Sleep(time.Duration(500+rand.Intn(1500)) * time.Millisecond)
		id := ids[rand.Intn(len(ids))]
		tags := uint32(1) << rand.Intn(9)
		emit(map[string]any{"type": "SeatFocusedOutput", "output": id})
		emit(map[string]any{"type": "OutputFocusedTags", "output": id, "tags": tags})
		logger.Info("tags change", "output", names[id], "tags", tags)
	}
}
