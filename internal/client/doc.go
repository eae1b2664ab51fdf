// Package client is the subscriber side of graphql-transport-ws.
//
// [Dial] opens a WebSocket to a riverql server over TCP or a unix socket.
// [Run] then drives one subscription on that connection:
//
//	Connecting -> SentInit -> WaitAck -> Subscribed -> Done | Failed
//
// Every next payload is handed to a [Handler]; [Printer] writes them as JSON
// lines, which is what the riverql command does with them.
package client
