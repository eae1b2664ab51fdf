package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/websocket"

	"github.com/typester/riverql/config"
	"github.com/typester/riverql/internal/protocol"
)

// Dial opens a WebSocket offering graphql-transport-ws to ep. Unix endpoints
// dial the socket and run the handshake over it. writeTimeout bounds each
// frame write; zero disables the deadline.
func Dial(ctx context.Context, ep config.Endpoint, writeTimeout time.Duration) (protocol.Conn, error) {
	cfg, err := websocket.NewConfig(ep.URL.String(), ep.Origin())
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %s: %w", ep, err)
	}
	cfg.Protocol = []string{protocol.Subprotocol}

	var ws *websocket.Conn
	if ep.Socket == "" {
		ws, err = cfg.DialContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("websocket handshake failed; ensure server is at %s and supports %s: %w",
				ep, protocol.Subprotocol, err)
		}
	} else {
		ws, err = dialUnix(ctx, cfg, ep.Socket)
		if err != nil {
			return nil, err
		}
	}

	return protocol.NewWebSocketConn(ws, writeTimeout), nil
}

func dialUnix(ctx context.Context, cfg *websocket.Config, socket string) (*websocket.Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("unix connect %s: %w", socket, err)
	}

	// NewClient has no context, so the handshake is bounded by a deadline
	if deadline, ok := ctx.Deadline(); ok {
		nc.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { nc.SetDeadline(time.Now()) })
	ws, err := websocket.NewClient(cfg, nc)
	stop()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("websocket handshake failed; ensure unix socket %s accepts %s: %w",
			socket, protocol.Subprotocol, err)
	}
	nc.SetDeadline(time.Time{})
	return ws, nil
}
