package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/typester/riverql/internal/river"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1024

var (
	// ErrClosed is returned by [Cursor.Next] once the bus is closed and the
	// cursor has drained every retained event.
	ErrClosed = errors.New("bus closed")

	// ErrLagged matches every [LagError] via errors.Is.
	ErrLagged = errors.New("subscriber lagged")
)

// LagError reports that a cursor was overrun by the producer.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("subscriber lagged: missed %d events", e.Missed)
}

// Is reports whether target is ErrLagged.
func (e *LagError) Is(target error) bool {
	return target == ErrLagged
}

// Bus is a bounded multi-consumer broadcast of [river.Event] values.
type Bus struct {
	mu     sync.Mutex
	ring   []river.Event
	head   uint64 // sequence number of the next published event
	closed bool

	// notify is closed and replaced on every publish and on close.
	notify chan struct{}
}

// New creates a bus retaining the most recent capacity events.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ring:   make([]river.Event, capacity),
		notify: make(chan struct{}),
	}
}

// Capacity returns the ring size.
func (b *Bus) Capacity() int {
	return len(b.ring)
}

// Published returns how many events have been published so far.
func (b *Bus) Published() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head
}

// Publish appends ev to the ring and wakes every waiting cursor. It never
// waits on subscribers. Publishing after Close is a no-op.
func (b *Bus) Publish(ev river.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.ring[b.head%uint64(len(b.ring))] = ev
	b.head++
	close(b.notify)
	b.notify = make(chan struct{})
}

// Close marks the end of the stream. It is safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Subscribe returns a cursor positioned at the next event to be published.
func (b *Bus) Subscribe() *Cursor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Cursor{bus: b, next: b.head}
}

// Cursor is one subscriber's read position. A Cursor must not be used from
// more than one goroutine at a time.
type Cursor struct {
	bus  *Bus
	next uint64
}

// Next blocks until the next event is available.
//
// It returns a *LagError when events were overwritten before the cursor read
// them; the following call continues at the oldest retained event. It
// returns ErrClosed after the bus is closed and drained, and ctx.Err() when
// ctx is done.
func (c *Cursor) Next(ctx context.Context) (river.Event, error) {
	b := c.bus
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b.mu.Lock()
		if c.next < b.head {
			size := uint64(len(b.ring))
			var oldest uint64
			if b.head > size {
				oldest = b.head - size
			}
			if c.next < oldest {
				missed := oldest - c.next
				c.next = oldest
				b.mu.Unlock()
				return nil, &LagError{Missed: missed}
			}
			ev := b.ring[c.next%size]
			c.next++
			b.mu.Unlock()
			return ev, nil
		}
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		wait := b.notify
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}
