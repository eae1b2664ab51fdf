package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/typester/riverql/internal/protocol"
)

// Printer is a [Handler] writing each next payload to w as one compact JSON
// line. Error payloads are logged.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	buf    bytes.Buffer
	logger *slog.Logger
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer, logger *slog.Logger) *Printer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Printer{w: w, logger: logger}
}

// Next implements [Handler].
func (p *Printer) Next(payload json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Reset()
	if err := json.Compact(&p.buf, payload); err != nil {
		return fmt.Errorf("invalid next payload: %w", err)
	}
	p.buf.WriteByte('\n')
	if _, err := p.w.Write(p.buf.Bytes()); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// Error implements [Handler].
func (p *Printer) Error(payload json.RawMessage) {
	f := protocol.Frame{Type: protocol.TypeError, Payload: payload}
	msgs, err := f.Errors()
	if err != nil || len(msgs) == 0 {
		p.logger.Error("subscription error", "payload", string(payload))
		return
	}
	for _, m := range msgs {
		p.logger.Error("subscription error", "message", m.Message)
	}
}
