// Package riverql distributes live status from the river Wayland compositor
// to any number of subscribers.
//
// riverql ingests one upstream stream of status changes (focused tags, view
// tags, urgent tags, layout names, seat focus, and mode), keeps a consistent
// snapshot of the latest state, and fans every change out over WebSocket
// using the graphql-transport-ws sub-protocol. Point-in-time state is served
// as JSON.
//
// # Quick Start
//
// Feed events from a bridge on stdin and serve them on a unix socket:
//
//	eng, _ := riverql.New(
//	    riverql.WithStreamReader(os.Stdin),
//	    riverql.WithListen("unix", "/run/user/1000/riverql.sock"),
//	)
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	eng.Start(ctx) // blocks until context is cancelled
//
// A subscriber then sends, for example:
//
//	subscription {
//	  events(types: [OUTPUT_FOCUSED_TAGS]) {
//	    __typename
//	    ... on OutputFocusedTags { name tags }
//	  }
//	}
//
// and receives one next frame per matching event:
//
//	{"type":"next","id":"1","payload":{"__typename":"OutputFocusedTags","name":"eDP-1","tags":5}}
//
// # Sources
//
// The upstream Wayland client lives outside this module. Any [Source] can be
// plugged in with [WithSource]; two are built in:
//
//   - [WithStreamReader], [WithStreamFile]: newline-delimited JSON records
//   - [WithReplay], [WithReplayFile]: a JSONC fixture, played back once
//
// When a source ends every subscription receives a complete frame and the
// last snapshot stays available to point queries.
//
// # Delivery
//
// Each subscriber reads from its own cursor over a bounded event ring (see
// [WithBusCapacity]). A subscriber that falls behind skips the events it
// missed; the ingestion path never waits for subscribers.
//
// # HTTP Routes
//
//   - GET /graphql: WebSocket subscriptions (graphql-transport-ws)
//   - GET /api/outputs: JSON list of every output
//   - GET /api/outputs/{label}: JSON of one output by label
//   - GET /api/outputs/id/{id}: JSON of one output by upstream identity
//   - GET /api/seat: JSON seat state
//   - GET /schema: the GraphQL SDL
//   - GET /healthz: liveness and open connection count
//
// # Architecture
//
// riverql consists of several internal packages (under internal/):
//
//   - river: event model, label resolution, and upstream sources
//   - store: the snapshot, single writer and concurrent readers
//   - bus: lag-aware broadcast ring
//   - query: the GraphQL subscription subset
//   - protocol: graphql-transport-ws frames and the message transport
//   - server: HTTP routes and the per-connection protocol state machine
//   - client: the subscriber side used by the riverql command
//
// The config package reads YAML configuration for the riverql command.
package riverql
