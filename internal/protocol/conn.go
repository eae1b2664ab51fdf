package protocol

import (
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// Conn is a bidirectional message transport.
//
// Receive blocks until a message arrives and returns io.EOF once the peer
// has closed. Send may be called concurrently with Receive but not with
// another Send. Close unblocks a pending Receive.
type Conn interface {
	Receive() ([]byte, error)
	Send(data []byte) error
	Close() error
}

// WebSocketConn adapts a WebSocket connection to [Conn]. Messages are sent
// as text frames.
type WebSocketConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketConn wraps ws. A positive writeTimeout bounds every Send.
func NewWebSocketConn(ws *websocket.Conn, writeTimeout time.Duration) *WebSocketConn {
	return &WebSocketConn{ws: ws, writeTimeout: writeTimeout}
}

// Receive implements [Conn].
func (c *WebSocketConn) Receive() ([]byte, error) {
	var data []byte
	if err := websocket.Message.Receive(c.ws, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// Send implements [Conn].
func (c *WebSocketConn) Send(data []byte) error {
	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return websocket.Message.Send(c.ws, string(data))
}

// Close implements [Conn].
func (c *WebSocketConn) Close() error {
	return c.ws.Close()
}

// ErrPipeClosed is returned by Send on a closed [Pipe] end.
var ErrPipeClosed = errors.New("pipe closed")

// Pipe returns two connected in-memory [Conn] ends. Closing either end
// closes both directions.
func Pipe() (Conn, Conn) {
	done := make(chan struct{})
	once := &sync.Once{}
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a := &pipeConn{in: ba, out: ab, done: done, once: once}
	b := &pipeConn{in: ab, out: ba, done: done, once: once}
	return a, b
}

type pipeConn struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

func (p *pipeConn) Receive() ([]byte, error) {
	// drain queued messages before reporting the close
	select {
	case msg := <-p.in:
		return msg, nil
	default:
	}
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		select {
		case msg := <-p.in:
			return msg, nil
		default:
			return nil, io.EOF
		}
	}
}

func (p *pipeConn) Send(data []byte) error {
	select {
	case <-p.done:
		return ErrPipeClosed
	default:
	}
	msg := append([]byte(nil), data...)
	select {
	case p.out <- msg:
		return nil
	case <-p.done:
		return ErrPipeClosed
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
