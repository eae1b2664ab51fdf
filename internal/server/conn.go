package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/typester/riverql/internal/bus"
	"github.com/typester/riverql/internal/protocol"
	"github.com/typester/riverql/internal/query"
)

type connState int

const (
	stateAwaitingInit connState = iota
	stateAcked
	stateActive
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateAwaitingInit:
		return "awaiting_init"
	case stateAcked:
		return "acked"
	case stateActive:
		return "active"
	default:
		return "closed"
	}
}

var errCancelled = errors.New("subscription cancelled")

// subscription is one registered subscribe request. cancelled is guarded by
// the connection write lock.
type subscription struct {
	id        string
	query     *query.Subscription
	cursor    *bus.Cursor
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled bool
}

// connection is the server side of one protocol session. The read loop owns
// state; subs is shared with the forwarding goroutines.
type connection struct {
	conn   protocol.Conn
	feed   Feed
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	state  connState

	mu   sync.Mutex
	subs map[string]*subscription

	// writeMu serializes frame writes and subscription cancellation.
	writeMu sync.Mutex

	wg sync.WaitGroup
}

func newConnection(parent context.Context, conn protocol.Conn, feed Feed, logger *slog.Logger, remote string) *connection {
	ctx, cancel := context.WithCancel(parent)
	return &connection{
		conn:   conn,
		feed:   feed,
		logger: logger.With("conn", uuid.NewString(), "remote", remote),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*subscription),
	}
}

func (c *connection) run() {
	c.logger.Debug("connection opened")
	defer c.close()

	// closing the transport is the only way to unblock Receive
	go func() {
		<-c.ctx.Done()
		c.conn.Close()
	}()

	for {
		data, err := c.conn.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) && c.ctx.Err() == nil {
				c.logger.Debug("transport receive failed", "error", err)
			}
			return
		}

		f, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnrecognized) {
				c.logger.Debug("ignoring unrecognized frame", "error", err)
			} else {
				c.logger.Debug("ignoring undecodable frame", "error", err)
			}
			continue
		}

		if !c.handle(f) {
			return
		}
	}
}

// handle processes one frame. It returns false when the connection must be
// closed.
func (c *connection) handle(f protocol.Frame) bool {
	if c.state == stateAwaitingInit {
		if f.Type != protocol.TypeConnectionInit {
			c.logger.Warn("protocol violation: frame before connection_init", "type", f.Type)
			return false
		}
		ack, _ := protocol.NewFrame(protocol.TypeConnectionAck, "", nil)
		if err := c.send(ack); err != nil {
			return false
		}
		c.state = stateAcked
		return true
	}

	switch f.Type {
	case protocol.TypeConnectionInit:
		c.logger.Warn("protocol violation: duplicate connection_init")
		return false
	case protocol.TypePing:
		pong, _ := protocol.NewFrame(protocol.TypePong, "", f.Payload)
		return c.send(pong) == nil
	case protocol.TypePong:
		return true
	case protocol.TypeSubscribe:
		return c.subscribe(f)
	case protocol.TypeComplete:
		c.stop(f.ID)
		return true
	default:
		// connection_ack, next and error only flow towards clients
		c.logger.Debug("ignoring client-bound frame", "type", f.Type)
		return true
	}
}

func (c *connection) subscribe(f protocol.Frame) bool {
	c.mu.Lock()
	_, dup := c.subs[f.ID]
	c.mu.Unlock()
	if dup {
		c.logger.Warn("protocol violation: duplicate subscription id", "subscription", f.ID)
		return false
	}

	// Decode has already validated the payload
	payload, _ := f.Subscribe()
	q, err := query.Parse(payload.Query, payload.Variables)
	if err != nil {
		c.logger.Debug("rejecting subscription", "subscription", f.ID, "error", err)
		return c.send(protocol.ErrorFrame(f.ID, err.Error())) == nil
	}

	ctx, cancel := context.WithCancel(c.ctx)
	sub := &subscription{
		id:     f.ID,
		query:  q,
		cursor: c.feed.Subscribe(),
		ctx:    ctx,
		cancel: cancel,
	}

	c.mu.Lock()
	c.subs[sub.id] = sub
	c.mu.Unlock()
	c.state = stateActive

	c.logger.Debug("subscription started", "subscription", sub.id, "filter", q.Filter.String())
	c.wg.Add(1)
	go c.forward(sub)
	return true
}

// stop handles a peer complete. Unknown ids are ignored.
func (c *connection) stop(id string) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	if ok {
		delete(c.subs, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	c.writeMu.Lock()
	sub.cancelled = true
	sub.cancel()
	c.writeMu.Unlock()
	c.logger.Debug("subscription completed by peer", "subscription", id)
}

func (c *connection) forward(sub *subscription) {
	defer c.wg.Done()
	defer c.unregister(sub)

	logger := c.logger.With("subscription", sub.id)
	for {
		ev, err := sub.cursor.Next(sub.ctx)
		if err != nil {
			var lag *bus.LagError
			switch {
			case errors.As(err, &lag):
				logger.Warn("subscriber lagged", "missed", lag.Missed)
				continue
			case errors.Is(err, bus.ErrClosed):
				complete, _ := protocol.NewFrame(protocol.TypeComplete, sub.id, nil)
				if err := c.sendSub(sub, complete); err == nil {
					logger.Debug("subscription completed by server")
				}
			}
			return
		}

		if !sub.query.Filter.Accepts(ev.Kind()) {
			continue
		}

		frame, err := protocol.NewFrame(protocol.TypeNext, sub.id, sub.query.Project(ev))
		if err != nil {
			logger.Error("failed to encode event", "kind", ev.Kind(), "error", err)
			if err := c.sendSub(sub, protocol.ErrorFrame(sub.id, err.Error())); err != nil {
				return
			}
			continue
		}
		if err := c.sendSub(sub, frame); err != nil {
			return
		}
	}
}

func (c *connection) unregister(sub *subscription) {
	c.mu.Lock()
	if c.subs[sub.id] == sub {
		delete(c.subs, sub.id)
	}
	c.mu.Unlock()
	sub.cancel()
}

// sendSub writes a frame on behalf of sub unless it has been cancelled.
func (c *connection) sendSub(sub *subscription, f protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if sub.cancelled || sub.ctx.Err() != nil {
		return errCancelled
	}
	return c.writeLocked(f)
}

func (c *connection) send(f protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeLocked(f)
}

// writeLocked writes one frame. A write failure is fatal for the connection.
func (c *connection) writeLocked(f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	if err := c.conn.Send(data); err != nil {
		if c.ctx.Err() == nil {
			c.logger.Warn("transport write failed", "type", f.Type, "error", err)
		}
		c.cancel()
		return err
	}
	return nil
}

func (c *connection) close() {
	last := c.state
	c.state = stateClosed
	c.cancel()
	c.conn.Close()
	c.wg.Wait()
	c.logger.Debug("connection closed", "last_state", last.String())
}
