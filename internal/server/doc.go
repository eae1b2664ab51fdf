// Package server provides the HTTP and WebSocket surface of riverql.
//
// This package is internal to riverql and handles all network concerns:
//
//   - Subscriptions: graphql-transport-ws over WebSocket at "/graphql"
//   - REST API: JSON snapshots at "/api/outputs", "/api/outputs/{label}",
//     "/api/outputs/id/{id}" and "/api/seat"
//   - Schema: the SDL document at "/schema"
//   - Health: "/healthz"
//
// Each WebSocket connection runs its own protocol state machine with one
// forwarding goroutine per subscription. The server listens on TCP or a unix
// socket and shuts down gracefully on context cancellation, with a 5-second
// timeout for in-flight requests.
//
// Users of the riverql library should not need to interact with this package
// directly. The server is started by [riverql.Engine.Start].
package server
