package river

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
)

// maxRecordSize bounds a single line of the upstream stream.
const maxRecordSize = 1 << 20

// StreamSource reads newline-delimited JSON [Record] values from a reader.
//
// Blank lines are skipped. Malformed lines are logged and skipped; every
// well-formed record is treated as authoritative. Run returns nil at EOF.
type StreamSource struct {
	r      io.Reader
	logger *slog.Logger
}

// NewStreamSource creates a source reading from r.
func NewStreamSource(r io.Reader, logger *slog.Logger) *StreamSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamSource{r: r, logger: logger}
}

type scanResult struct {
	line []byte
	err  error
}

// Run implements [Source].
func (s *StreamSource) Run(ctx context.Context, sink Sink) error {
	tracker := NewTracker(sink)

	// the reader may block indefinitely, so scanning happens on its own
	// goroutine and records are applied here to keep a single writer
	lines := make(chan scanResult)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
		for scanner.Scan() {
			line := bytes.Clone(scanner.Bytes())
			select {
			case lines <- scanResult{line: line}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- scanResult{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-lines:
			if !ok {
				s.logger.Info("upstream stream ended", "records", lineNo)
				return nil
			}
			if res.err != nil {
				return fmt.Errorf("read upstream stream: %w", res.err)
			}
			lineNo++
			line := bytes.TrimSpace(res.line)
			if len(line) == 0 {
				continue
			}
			rec, err := decodeRecord(line)
			if err == nil {
				err = rec.apply(tracker)
			}
			if err != nil {
				s.logger.Warn("skipping upstream record", "line", lineNo, "error", err)
			}
		}
	}
}
