// Package protocol implements the graphql-transport-ws message layer.
//
// Frames are JSON objects carried one per WebSocket text message. [Decode]
// is strict: a frame whose type is known but whose shape is wrong fails with
// [ErrMalformed], and a well-formed object with an unknown type fails with
// [ErrUnrecognized] so callers can ignore it for forward compatibility.
//
// [Conn] abstracts the message transport. [NewWebSocketConn] adapts a
// golang.org/x/net/websocket connection and [Pipe] provides an in-memory
// pair.
package protocol
