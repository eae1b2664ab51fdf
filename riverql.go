package riverql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/typester/riverql/internal/bus"
	"github.com/typester/riverql/internal/river"
	"github.com/typester/riverql/internal/server"
	"github.com/typester/riverql/internal/store"
	"github.com/typester/riverql/schema"
)

const (
	defaultNetwork      = "tcp"
	defaultAddress      = "127.0.0.1:8080"
	defaultBusCapacity  = bus.DefaultCapacity
	defaultWriteTimeout = server.DefaultWriteTimeout
)

// Event is one status change from the upstream compositor.
type Event = river.Event

// Source is an upstream status producer. See [WithSource].
type Source = river.Source

// Sink receives the output of a [Source].
type Sink = river.Sink

// OutputState is the point-in-time status of one output.
type OutputState = store.OutputState

// SeatState is the point-in-time status of the seat.
type SeatState = store.SeatState

// Engine ingests the upstream status stream, keeps the snapshot, and serves
// subscriptions and point queries.
//
// An Engine is created using [New] with functional options and started with
// [Engine.Start]. The typical lifecycle is:
//
//	eng, err := riverql.New(
//	    riverql.WithListen("unix", "/run/user/1000/riverql.sock"),
//	    riverql.WithStreamReader(os.Stdin),
//	)
//	if err != nil {
//	    slog.Error("failed to create engine", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	eng.Start(ctx) // blocks until context cancelled
//
// The caller controls the lifecycle via the context. Cancel the context to
// trigger graceful shutdown.
type Engine struct {
	network        string
	address        string
	writeTimeout   time.Duration
	schema         []byte
	source         river.Source
	logger         *slog.Logger
	eventCallbacks []func(Event)

	store *store.Store
	bus   *bus.Bus

	started atomic.Bool
	ready   chan struct{}
	addr    net.Addr
}

// New creates a new [Engine] with the given options.
//
// A source must be configured via [WithSource], [WithStreamReader],
// [WithStreamFile], [WithReplay], or [WithReplayFile]. Other options have
// sensible defaults:
//   - Listen: tcp 127.0.0.1:8080
//   - Bus capacity: 1024 events
//   - Write timeout: 5 seconds
//
// Returns an error if no source is configured or if any option is invalid.
//
// Example:
//
//	eng, err := riverql.New(
//	    riverql.WithReplayFile("example/events.jsonc", 250*time.Millisecond),
//	    riverql.WithListen("tcp", "127.0.0.1:9090"),
//	)
func New(opts ...Option) (*Engine, error) {
	cfg := &engineConfig{
		network:      defaultNetwork,
		address:      defaultAddress,
		busCapacity:  defaultBusCapacity,
		writeTimeout: defaultWriteTimeout,
		schema:       schema.SDL,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.source == nil {
		return nil, errors.New("a source is required")
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	src, err := cfg.source(logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		network:        cfg.network,
		address:        cfg.address,
		writeTimeout:   cfg.writeTimeout,
		schema:         cfg.schema,
		source:         src,
		logger:         logger,
		eventCallbacks: cfg.eventCallbacks,
		store:          store.New(),
		bus:            bus.New(cfg.busCapacity),
		ready:          make(chan struct{}),
	}, nil
}

// Start runs ingestion and serves subscribers.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - The listener is bound and serves WebSocket subscriptions and point queries
//   - Every upstream event is applied to the snapshot, then published
//   - When the upstream ends, every subscription is completed and the last
//     snapshot keeps answering point queries
//
// Returns nil on graceful shutdown. Returns an error if the listener cannot be
// bound or if Start has already been called.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine already started")
	}

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	srv := server.NewServer(e.store, e.bus, server.Config{
		Network:      e.network,
		Address:      e.address,
		WriteTimeout: e.writeTimeout,
		Schema:       e.schema,
	}, e.logger)
	if err := srv.Start(ctx); err != nil {
		e.bus.Close()
		return fmt.Errorf("failed to start server: %w", err)
	}
	e.addr = srv.Addr()
	close(e.ready)

	e.logger.Info("riverql starting", "bus_capacity", e.bus.Capacity(), "write_timeout", e.writeTimeout.String())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.ingest(ctx)
	}()

	<-ctx.Done()
	<-srv.Done()
	wg.Wait()
	e.logger.Info("riverql stopped")
	return nil
}

// ingest is the single writer of the store and bus.
func (e *Engine) ingest(ctx context.Context) {
	sink := river.SinkFuncs{
		OnOutputInfo: e.store.SetOutputInfo,
		OnEvent: func(ev Event) {
			// store update first so a subscriber never sees an event the
			// snapshot does not reflect yet
			e.store.Apply(ev)
			e.bus.Publish(ev)
			for _, cb := range e.eventCallbacks {
				invokeCallbackSafe(cb, ev, e.logger)
			}
		},
	}

	err := e.source.Run(ctx, sink)
	e.bus.Close()

	switch {
	case ctx.Err() != nil:
		e.logger.Debug("ingestion stopped", "published", e.bus.Published())
	case err != nil:
		e.logger.Error("upstream failed; serving last known snapshot", "error", err, "published", e.bus.Published())
	default:
		e.logger.Warn("upstream disconnected; serving last known snapshot", "published", e.bus.Published())
	}
}

// Ready is closed once [Engine.Start] has bound its listener.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Addr returns the bound listener address, or nil before [Engine.Ready] is
// closed.
func (e *Engine) Addr() net.Addr {
	select {
	case <-e.ready:
		return e.addr
	default:
		return nil
	}
}

// Network returns the configured listen network, "tcp" or "unix".
func (e *Engine) Network() string {
	return e.network
}

// Address returns the configured listen address.
func (e *Engine) Address() string {
	return e.address
}

// Outputs returns a copy of every known output, ordered by identity.
func (e *Engine) Outputs() []OutputState {
	return e.store.List()
}

// Output returns the output currently owning label.
func (e *Engine) Output(label string) (OutputState, bool) {
	return e.store.GetByLabel(label)
}

// OutputByID returns the output with the given upstream identity, labelled
// or not.
func (e *Engine) OutputByID(id string) (OutputState, bool) {
	return e.store.Get(river.Identity(id))
}

// Seat returns a copy of the seat state.
func (e *Engine) Seat() SeatState {
	return e.store.Seat()
}

// invokeCallbackSafe calls an event callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Event), ev Event, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event callback panicked",
				"panic", r,
				"kind", ev.Kind(),
			)
		}
	}()
	cb(ev)
}
