package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/typester/riverql/internal/bus"
	"github.com/typester/riverql/internal/protocol"
	"github.com/typester/riverql/internal/river"
	"github.com/typester/riverql/internal/store"
)

const (
	// DefaultWriteTimeout bounds a single frame write when none is configured.
	// Must be <= shutdownTimeout to ensure clean shutdown.
	DefaultWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// GraphQLPath is where WebSocket subscriptions are served.
	GraphQLPath = "/graphql"
)

// Snapshot is the read side of the status store.
type Snapshot interface {
	Get(id river.Identity) (store.OutputState, bool)
	GetByLabel(label string) (store.OutputState, bool)
	List() []store.OutputState
	Seat() store.SeatState
}

// Feed hands out independent cursors over the event stream.
type Feed interface {
	Subscribe() *bus.Cursor
}

// Config holds the listener and protocol settings of a [Server].
type Config struct {
	// Network is "tcp" or "unix".
	Network string

	// Address is host:port for tcp or a socket path for unix.
	Address string

	// WriteTimeout bounds every frame write. Zero uses DefaultWriteTimeout.
	WriteTimeout time.Duration

	// Schema is served verbatim at /schema when non-empty.
	Schema []byte
}

// Server handles HTTP requests and WebSocket subscriptions.
type Server struct {
	snapshot   Snapshot
	feed       Feed
	cfg        Config
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger

	conns atomic.Int64
	done  chan struct{}
}

// NewServer creates a new [Server].
//
// The server is not started until [Server.Start] is called.
func NewServer(snap Snapshot, feed Feed, cfg Config, logger *slog.Logger) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		snapshot: snap,
		feed:     feed,
		cfg:      cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	ws := websocket.Server{
		Handshake: negotiateSubprotocol,
		Handler:   s.serveWebSocket,
	}
	mux.Handle("GET "+GraphQLPath, ws)

	mux.HandleFunc("GET /api/outputs", s.handleOutputs)
	mux.HandleFunc("GET /api/outputs/{label}", s.handleOutput)
	mux.HandleFunc("GET /api/outputs/id/{id}", s.handleOutputByID)
	mux.HandleFunc("GET /api/seat", s.handleSeat)
	mux.HandleFunc("GET /schema", s.handleSchema)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start binds the listener and begins serving in a background goroutine.
//
// Start returns once the listener is bound. The server runs until ctx is
// cancelled, then shuts down with a 5-second timeout and, for unix sockets,
// removes the socket file. [Server.Done] is closed when that has finished.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler: s.Handler(),
		// BaseContext derives all request contexts from the server context.
		// Hijacked WebSocket connections outlive Shutdown, so their
		// cancellation comes from here.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
		if s.cfg.Network == "unix" {
			if err := os.Remove(s.cfg.Address); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Error("failed to remove socket", "path", s.cfg.Address, "error", err)
			}
		}
	}()

	s.logger.Info("server listening", "network", s.cfg.Network, "address", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Done is closed after shutdown has completed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Connections reports the number of open WebSocket connections.
func (s *Server) Connections() int64 {
	return s.conns.Load()
}

func (s *Server) listen() (net.Listener, error) {
	switch s.cfg.Network {
	case "tcp":
		ln, err := net.Listen("tcp", s.cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to %s: %w", s.cfg.Address, err)
		}
		return ln, nil
	case "unix":
		return listenUnix(s.cfg.Address)
	default:
		return nil, fmt.Errorf("unsupported network %q", s.cfg.Network)
	}
}

// listenUnix binds a unix socket, replacing a stale socket file left by a
// previous run. Anything else at path is an error.
func listenUnix(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if st, err := os.Lstat(path); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("socket path exists and is not a unix socket: %s", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat socket path: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to bind to %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return ln, nil
}

// negotiateSubprotocol echoes graphql-transport-ws when the client offers it.
// There is no origin check: the listener is local and clients are not
// browsers.
func negotiateSubprotocol(cfg *websocket.Config, _ *http.Request) error {
	for _, p := range cfg.Protocol {
		if p == protocol.Subprotocol {
			cfg.Protocol = []string{p}
			return nil
		}
	}
	cfg.Protocol = nil
	return nil
}

func (s *Server) serveWebSocket(ws *websocket.Conn) {
	req := ws.Request()
	conn := protocol.NewWebSocketConn(ws, s.cfg.WriteTimeout)
	s.ServeConn(req.Context(), conn, req.RemoteAddr)
}

// ServeConn runs the protocol on conn until the peer goes away, the
// connection fails, or ctx is cancelled. conn is closed on return.
func (s *Server) ServeConn(ctx context.Context, conn protocol.Conn, remote string) {
	s.conns.Add(1)
	defer s.conns.Add(-1)

	c := newConnection(ctx, conn, s.feed, s.logger, remote)
	c.run()
}

// handleOutputs returns every known output as JSON.
func (s *Server) handleOutputs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.snapshot.List())
}

// handleOutput returns the output currently owning the label in the path.
func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	st, ok := s.snapshot.GetByLabel(label)
	if !ok {
		http.Error(w, fmt.Sprintf("output %q not found", label), http.StatusNotFound)
		return
	}
	s.writeJSON(w, st)
}

// handleOutputByID returns an output by its upstream identity, which also
// reaches outputs that have no label yet.
func (s *Server) handleOutputByID(w http.ResponseWriter, r *http.Request) {
	id := river.Identity(r.PathValue("id"))
	st, ok := s.snapshot.Get(id)
	if !ok {
		http.Error(w, fmt.Sprintf("output id %q not found", id), http.StatusNotFound)
		return
	}
	s.writeJSON(w, st)
}

// handleSeat returns the seat state as JSON.
func (s *Server) handleSeat(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.snapshot.Seat())
}

// handleSchema serves the SDL document.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if len(s.cfg.Schema) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write(s.cfg.Schema); err != nil {
		s.logger.Error("failed to write schema response", "error", err)
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int64  `json:"connections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, healthResponse{Status: "ok", Connections: s.conns.Load()})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
