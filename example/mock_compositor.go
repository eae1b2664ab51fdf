package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"time"
)

// mockOutput tracks the tags and next change time of one simulated output.
type mockOutput struct {
	id           string
	name         string
	tags         uint32
	nextChangeAt time.Time
}

// StartMockCompositor writes a simulated river status stream to w, one JSON
// record per line. Each output moves to a random tag every 1-3 seconds and
// the seat mode toggles now and then. It returns when a write fails.
func StartMockCompositor(w io.Writer) {
	enc := json.NewEncoder(w)
	emit := func(rec map[string]any) bool {
		if err := enc.Encode(rec); err != nil {
			slog.Error("mock compositor write failed", "error", err)
			return false
		}
		return true
	}

	outputs := []*mockOutput{
		{id: "1", name: "eDP-1", tags: 1},
		{id: "2", name: "DP-1", tags: 1},
	}
	for _, o := range outputs {
		o.nextChangeAt = time.Now().Add(time.Duration(1+rand.Intn(3)) * time.Second)
		if !emit(map[string]any{"type": "output_info", "output": o.id, "name": o.name}) {
			return
		}
		if !emit(map[string]any{"type": "OutputFocusedTags", "output": o.id, "tags": o.tags}) {
			return
		}
	}
	if !emit(map[string]any{"type": "SeatMode", "name": "normal"}) {
		return
	}

	modes := []string{"normal", "passthrough"}
	modeIdx := 0
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for _, o := range outputs {
			if time.Now().Before(o.nextChangeAt) {
				continue
			}
			o.tags = 1 << rand.Intn(9)
			o.nextChangeAt = time.Now().Add(time.Duration(1+rand.Intn(3)) * time.Second)
			slog.Info("tags change", "output", o.name, "tags", o.tags)
			if !emit(map[string]any{"type": "SeatFocusedOutput", "output": o.id}) ||
				!emit(map[string]any{"type": "OutputFocusedTags", "output": o.id, "tags": o.tags}) ||
				!emit(map[string]any{"type": "OutputViewTags", "output": o.id, "tags": []uint32{o.tags}}) {
				return
			}
		}
		if rand.Intn(40) == 0 {
			modeIdx = (modeIdx + 1) % len(modes)
			if !emit(map[string]any{"type": "SeatMode", "name": modes[modeIdx]}) {
				return
			}
		}
	}
}
