package river

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// ReplaySource plays back a fixed list of records and then ends.
//
// Fixtures are JSONC documents holding an array of [Record] objects, so they
// may carry comments and trailing commas:
//
//	[
//	  // laptop panel
//	  {"type": "output_info", "output": "1", "name": "eDP-1"},
//	  {"type": "OutputFocusedTags", "output": "1", "tags": 1},
//	]
type ReplaySource struct {
	records  []Record
	interval time.Duration
	logger   *slog.Logger
}

// ParseReplay decodes a JSONC fixture. interval paces the playback; zero
// replays as fast as the sink accepts.
func ParseReplay(data []byte, interval time.Duration, logger *slog.Logger) (*ReplaySource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var records []Record
	if err := json.Unmarshal(jsonc.ToJSON(data), &records); err != nil {
		return nil, fmt.Errorf("failed to parse replay fixture: %w", err)
	}
	for i, rec := range records {
		if rec.Type == "" {
			return nil, fmt.Errorf("records[%d]: type is required", i)
		}
		if rec.Type != recordOutputInfo {
			if _, err := rec.Event(); err != nil {
				return nil, fmt.Errorf("records[%d]: %w", i, err)
			}
		}
	}
	return &ReplaySource{records: records, interval: interval, logger: logger}, nil
}

// LoadReplay reads and parses a fixture file.
func LoadReplay(path string, interval time.Duration, logger *slog.Logger) (*ReplaySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay fixture: %w", err)
	}
	return ParseReplay(data, interval, logger)
}

// Len returns the number of records in the fixture.
func (s *ReplaySource) Len() int {
	return len(s.records)
}

// Run implements [Source].
func (s *ReplaySource) Run(ctx context.Context, sink Sink) error {
	tracker := NewTracker(sink)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for i, rec := range s.records {
		if tick != nil && i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := rec.apply(tracker); err != nil {
			s.logger.Warn("skipping replay record", "index", i, "error", err)
		}
	}
	s.logger.Info("replay finished", "records", len(s.records))
	return nil
}
