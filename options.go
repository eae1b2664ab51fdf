package riverql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/typester/riverql/internal/river"
)

// maxBusCapacity keeps a typo from allocating an enormous ring.
const maxBusCapacity = 1 << 20

// engineConfig holds mutable state during Engine construction.
type engineConfig struct {
	network        string
	address        string
	busCapacity    int
	writeTimeout   time.Duration
	schema         []byte
	source         func(*slog.Logger) (river.Source, error)
	logger         *slog.Logger
	eventCallbacks []func(Event)
}

// Option is a function that configures an [Engine] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithListen], [WithBusCapacity], [WithWriteTimeout],
// [WithLogger], [WithSchema], [WithEventCallback], and the source options
// [WithSource], [WithStreamReader], [WithStreamFile], [WithReplay],
// [WithReplayFile].
type Option func(*engineConfig) error

// WithListen sets where the server accepts connections.
//
// network is "tcp" (address is host:port) or "unix" (address is a socket
// path). Defaults to tcp 127.0.0.1:8080 if not specified.
//
// Example:
//
//	eng, err := riverql.New(
//	    riverql.WithStreamReader(os.Stdin),
//	    riverql.WithListen("unix", "/run/user/1000/riverql.sock"),
//	)
//
// Returns an error for an unknown network or an empty address.
func WithListen(network, address string) Option {
	return func(cfg *engineConfig) error {
		if network != "tcp" && network != "unix" {
			return fmt.Errorf("network must be tcp or unix, got %q", network)
		}
		if address == "" {
			return errors.New("listen address cannot be empty")
		}
		cfg.network = network
		cfg.address = address
		return nil
	}
}

// WithBusCapacity sets how many recent events are retained for slow
// subscribers.
//
// A subscriber that falls further behind skips ahead to the oldest retained
// event. Defaults to 1024 if not specified.
//
// Returns an error if the value is zero, negative, or above 1048576.
func WithBusCapacity(n int) Option {
	return func(cfg *engineConfig) error {
		if n <= 0 {
			return errors.New("bus capacity must be positive")
		}
		if n > maxBusCapacity {
			return fmt.Errorf("bus capacity must not exceed %d", maxBusCapacity)
		}
		cfg.busCapacity = n
		return nil
	}
}

// WithWriteTimeout bounds every frame write to a subscriber.
//
// A write that exceeds the timeout closes that connection only. Defaults to
// 5 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithWriteTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d <= 0 {
			return errors.New("write timeout must be positive")
		}
		cfg.writeTimeout = d
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Engine.
//
// This allows SDK consumers to control where logs are written and in what
// format. If not specified, [slog.Default] is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	eng, err := riverql.New(
//	    riverql.WithStreamReader(os.Stdin),
//	    riverql.WithLogger(logger),
//	)
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithSchema replaces the SDL document served at /schema.
//
// Defaults to the embedded riverql schema. An empty document disables the
// route.
func WithSchema(sdl []byte) Option {
	return func(cfg *engineConfig) error {
		cfg.schema = sdl
		return nil
	}
}

// WithEventCallback registers a function to be called for every ingested
// event, after it has been applied to the snapshot and published.
//
// Multiple callbacks may be registered by calling WithEventCallback multiple
// times; they execute in registration order.
//
// IMPORTANT: Callbacks must be non-blocking. They run on the ingestion
// goroutine and a blocking callback delays every subscriber.
//
// Panics within callbacks are recovered and logged.
//
// Example:
//
//	eng, err := riverql.New(
//	    riverql.WithStreamReader(os.Stdin),
//	    riverql.WithEventCallback(func(ev riverql.Event) {
//	        log.Printf("event: %s", ev.Kind())
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithEventCallback(cb func(Event)) Option {
	return func(cfg *engineConfig) error {
		if cb == nil {
			return nil
		}
		cfg.eventCallbacks = append(cfg.eventCallbacks, cb)
		return nil
	}
}

// WithSource sets the upstream status source. The last source option wins.
//
// Returns an error if src is nil.
func WithSource(src Source) Option {
	return func(cfg *engineConfig) error {
		if src == nil {
			return errors.New("source cannot be nil")
		}
		cfg.source = func(*slog.Logger) (river.Source, error) { return src, nil }
		return nil
	}
}

// WithStreamReader reads newline-delimited JSON records from r.
//
// Each line is an output_info record or one status event:
//
//	{"type":"output_info","output":"1","name":"eDP-1"}
//	{"type":"OutputFocusedTags","output":"1","tags":5}
//
// Malformed lines are logged and skipped. The upstream is considered
// disconnected at EOF.
//
// Returns an error if r is nil.
func WithStreamReader(r io.Reader) Option {
	return func(cfg *engineConfig) error {
		if r == nil {
			return errors.New("stream reader cannot be nil")
		}
		cfg.source = func(logger *slog.Logger) (river.Source, error) {
			return river.NewStreamSource(r, logger), nil
		}
		return nil
	}
}

// WithStreamFile reads newline-delimited JSON records from the file at path,
// which may be a named pipe. The file is opened when [Engine.Start] runs.
//
// Returns an error if path is empty.
func WithStreamFile(path string) Option {
	return func(cfg *engineConfig) error {
		if path == "" {
			return errors.New("stream path cannot be empty")
		}
		cfg.source = func(logger *slog.Logger) (river.Source, error) {
			return fileSource{path: path, logger: logger}, nil
		}
		return nil
	}
}

// WithReplay plays back a JSONC fixture, pausing interval between records,
// then reports the upstream as disconnected.
//
// The fixture is an array of the records accepted by [WithStreamReader];
// comments and trailing commas are allowed.
//
// Returns an error if the fixture cannot be parsed or interval is negative.
func WithReplay(fixture []byte, interval time.Duration) Option {
	return func(cfg *engineConfig) error {
		if interval < 0 {
			return errors.New("replay interval cannot be negative")
		}
		cfg.source = func(logger *slog.Logger) (river.Source, error) {
			return river.ParseReplay(fixture, interval, logger)
		}
		return nil
	}
}

// WithReplayFile is [WithReplay] for a fixture on disk. The file is read by
// [New].
func WithReplayFile(path string, interval time.Duration) Option {
	return func(cfg *engineConfig) error {
		if path == "" {
			return errors.New("replay path cannot be empty")
		}
		if interval < 0 {
			return errors.New("replay interval cannot be negative")
		}
		cfg.source = func(logger *slog.Logger) (river.Source, error) {
			return river.LoadReplay(path, interval, logger)
		}
		return nil
	}
}

// fileSource opens its stream lazily so a named pipe does not block [New].
type fileSource struct {
	path   string
	logger *slog.Logger
}

type openResult struct {
	f   *os.File
	err error
}

func (s fileSource) Run(ctx context.Context, sink river.Sink) error {
	// opening a pipe blocks until a writer appears
	opened := make(chan openResult, 1)
	go func() {
		f, err := os.Open(s.path)
		opened <- openResult{f, err}
	}()

	var res openResult
	select {
	case res = <-opened:
	case <-ctx.Done():
		go func() {
			if res := <-opened; res.f != nil {
				res.f.Close()
			}
		}()
		return ctx.Err()
	}
	if res.err != nil {
		return fmt.Errorf("failed to open stream: %w", res.err)
	}
	defer res.f.Close()
	return river.NewStreamSource(res.f, s.logger).Run(ctx, sink)
}
