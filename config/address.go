package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultPath is the HTTP path of the subscription endpoint.
	DefaultPath = "/graphql"

	socketName = "riverql.sock"
)

// Listen is a parsed server listen address.
type Listen struct {
	// Network is "tcp" or "unix".
	Network string

	// Address is host:port for tcp or a socket path for unix.
	Address string
}

// String renders the address in the form accepted by [ParseListen].
func (l Listen) String() string {
	return l.Network + "://" + l.Address
}

// Endpoint returns the subscription endpoint a client uses to reach l.
func (l Listen) Endpoint() Endpoint {
	if l.Network == "unix" {
		return Endpoint{URL: &url.URL{Scheme: "ws", Host: "localhost", Path: DefaultPath}, Socket: l.Address}
	}
	host := l.Address
	if h, port, err := net.SplitHostPort(l.Address); err == nil && (h == "" || h == "0.0.0.0" || h == "::") {
		host = net.JoinHostPort("127.0.0.1", port)
	}
	return Endpoint{URL: &url.URL{Scheme: "ws", Host: host, Path: DefaultPath}}
}

// ParseListen parses a listen address.
//
// Accepted forms are unix://path, tcp://host:port, a bare host:port, and a
// bare filesystem path, which is taken as a unix socket.
func ParseListen(value string) (Listen, error) {
	if rest, ok := strings.CutPrefix(value, "unix://"); ok {
		if rest == "" {
			return Listen{}, errors.New("unix listen path cannot be empty")
		}
		return Listen{Network: "unix", Address: rest}, nil
	}
	if rest, ok := strings.CutPrefix(value, "tcp://"); ok {
		if err := validateHostPort(rest); err != nil {
			return Listen{}, fmt.Errorf("invalid tcp listen address %q: %w", value, err)
		}
		return Listen{Network: "tcp", Address: rest}, nil
	}
	if strings.Contains(value, "://") {
		return Listen{}, fmt.Errorf("unsupported listen scheme in %q", value)
	}
	if isHostPort(value) {
		return Listen{Network: "tcp", Address: value}, nil
	}
	if value == "" {
		return Listen{}, errors.New("listen address cannot be empty")
	}
	return Listen{Network: "unix", Address: value}, nil
}

// Endpoint is a parsed client endpoint.
type Endpoint struct {
	// URL is the WebSocket URL. For unix endpoints its host is localhost
	// and only the path is meaningful.
	URL *url.URL

	// Socket is the unix socket path, empty for network endpoints.
	Socket string
}

// String renders the endpoint in the form accepted by [ParseEndpoint].
func (e Endpoint) String() string {
	if e.Socket != "" {
		return "unix://" + e.Socket + "#" + e.URL.Path
	}
	return e.URL.String()
}

// Origin returns the origin sent during the WebSocket handshake.
func (e Endpoint) Origin() string {
	scheme := "http"
	if e.URL.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + e.URL.Host
}

// ParseEndpoint parses a client endpoint.
//
// Accepted forms are unix://socket[#/path], ws://, wss://, tcp:// (as ws),
// http:// (as ws), https:// (as wss), and a bare host:port. A missing path
// defaults to /graphql.
func ParseEndpoint(value string) (Endpoint, error) {
	if rest, ok := strings.CutPrefix(value, "unix://"); ok {
		socket, path, _ := strings.Cut(rest, "#")
		if socket == "" {
			return Endpoint{}, errors.New("unix endpoint must include socket path")
		}
		return Endpoint{
			URL:    &url.URL{Scheme: "ws", Host: "localhost", Path: normalizePath(path)},
			Socket: socket,
		}, nil
	}

	var raw string
	switch {
	case strings.HasPrefix(value, "ws://"), strings.HasPrefix(value, "wss://"):
		raw = value
	case strings.HasPrefix(value, "tcp://"):
		raw = "ws://" + strings.TrimPrefix(value, "tcp://")
	case strings.HasPrefix(value, "http://"):
		raw = "ws://" + strings.TrimPrefix(value, "http://")
	case strings.HasPrefix(value, "https://"):
		raw = "wss://" + strings.TrimPrefix(value, "https://")
	case strings.Contains(value, "//"):
		return Endpoint{}, fmt.Errorf("unsupported endpoint scheme in %q", value)
	default:
		raw = "ws://" + value
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", value, err)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: missing host", value)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultPath
	}
	return Endpoint{URL: u}, nil
}

// DefaultListen returns the default listen address: riverql.sock in
// $XDG_RUNTIME_DIR, or in /run/user/<euid> when that is unset.
func DefaultListen() string {
	return defaultListen(os.LookupEnv, os.Geteuid())
}

func defaultListen(lookup func(string) (string, bool), euid int) string {
	if dir, ok := lookup("XDG_RUNTIME_DIR"); ok && dir != "" {
		return "unix://" + filepath.Join(dir, socketName)
	}
	return "unix://" + filepath.Join("/run/user", strconv.Itoa(euid), socketName)
}

// DefaultEndpoint returns the endpoint matching [DefaultListen].
func DefaultEndpoint() string {
	l, err := ParseListen(DefaultListen())
	if err != nil {
		return "ws://127.0.0.1:8080" + DefaultPath
	}
	return l.Endpoint().String()
}

func normalizePath(p string) string {
	switch {
	case p == "":
		return DefaultPath
	case strings.HasPrefix(p, "/"):
		return p
	default:
		return "/" + p
	}
}

func validateHostPort(s string) error {
	_, port, err := net.SplitHostPort(s)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// isHostPort reports whether s looks like host:port rather than a path.
func isHostPort(s string) bool {
	host, _, err := net.SplitHostPort(s)
	if err != nil || strings.Contains(host, "/") {
		return false
	}
	return validateHostPort(s) == nil
}
