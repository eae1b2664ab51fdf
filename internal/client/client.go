package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/typester/riverql/internal/protocol"
)

// SubscriptionID is the id of the single subscription [Run] starts.
const SubscriptionID = "1"

// ErrClosedBeforeAck is returned when the transport closes before the server
// acknowledges connection_init.
var ErrClosedBeforeAck = errors.New("connection closed before ack")

// Handler receives the results of a subscription.
type Handler interface {
	// Next receives one next payload. An error stops the subscription.
	Next(payload json.RawMessage) error

	// Error receives one error payload. The subscription continues.
	Error(payload json.RawMessage)
}

// session is one client run. writeMu orders the subscribe frame against the
// complete sent on cancellation.
type session struct {
	conn   protocol.Conn
	logger *slog.Logger

	writeMu    sync.Mutex
	subscribed bool
}

// Run performs the handshake on conn, subscribes with req, and dispatches
// results to h until the server completes the subscription, the transport
// closes, or ctx is cancelled. conn is closed on return.
//
// Cancelling ctx sends complete for the subscription before closing and is
// not an error.
func Run(ctx context.Context, conn protocol.Conn, req protocol.SubscribePayload, h Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	s := &session{conn: conn, logger: logger}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-done:
		}
	}()

	initFrame, _ := protocol.NewFrame(protocol.TypeConnectionInit, "", map[string]any{})
	if err := s.send(initFrame); err != nil {
		return s.finish(ctx, fmt.Errorf("send connection_init: %w", err))
	}

	if err := s.awaitAck(); err != nil {
		return s.finish(ctx, err)
	}
	logger.Debug("connection acknowledged")

	sub, err := protocol.NewFrame(protocol.TypeSubscribe, SubscriptionID, req)
	if err != nil {
		return err
	}
	if err := s.subscribe(sub); err != nil {
		return s.finish(ctx, fmt.Errorf("send subscribe: %w", err))
	}

	return s.finish(ctx, s.loop(h))
}

// finish maps errors caused by cancellation to a clean return.
func (s *session) finish(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *session) awaitAck() error {
	for {
		data, err := s.conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrClosedBeforeAck
			}
			return fmt.Errorf("%w: %v", ErrClosedBeforeAck, err)
		}
		f, err := protocol.Decode(data)
		if err != nil {
			s.logger.Debug("ignoring frame before ack", "error", err)
			continue
		}
		if f.Type == protocol.TypeConnectionAck {
			return nil
		}
		s.logger.Debug("ignoring frame before ack", "type", f.Type)
	}
}

func (s *session) loop(h Handler) error {
	for {
		data, err := s.conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("connection closed by server")
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		f, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnrecognized) {
				s.logger.Warn("ignoring unrecognized frame", "error", err)
			} else {
				s.logger.Debug("ignoring undecodable frame", "error", err)
			}
			continue
		}

		switch f.Type {
		case protocol.TypeNext, protocol.TypeError, protocol.TypeComplete:
			if f.ID != SubscriptionID {
				s.logger.Debug("ignoring frame for unknown subscription", "type", f.Type, "subscription", f.ID)
				continue
			}
		}

		switch f.Type {
		case protocol.TypeNext:
			if err := h.Next(f.Payload); err != nil {
				return err
			}
		case protocol.TypeError:
			h.Error(f.Payload)
		case protocol.TypeComplete:
			s.logger.Debug("subscription completed by server")
			return nil
		case protocol.TypePing:
			pong, _ := protocol.NewFrame(protocol.TypePong, "", f.Payload)
			if err := s.send(pong); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
		default:
			s.logger.Debug("ignoring frame", "type", f.Type)
		}
	}
}

func (s *session) subscribe(f protocol.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writeLocked(f); err != nil {
		return err
	}
	s.subscribed = true
	return nil
}

func (s *session) send(f protocol.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeLocked(f)
}

func (s *session) writeLocked(f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	return s.conn.Send(data)
}

// cancel completes the subscription, if any, and closes the transport so the
// read loop returns.
func (s *session) cancel() {
	s.writeMu.Lock()
	if s.subscribed {
		complete, _ := protocol.NewFrame(protocol.TypeComplete, SubscriptionID, nil)
		if err := s.writeLocked(complete); err != nil {
			s.logger.Debug("failed to send complete", "error", err)
		}
		s.subscribed = false
	}
	s.writeMu.Unlock()
	s.conn.Close()
}
