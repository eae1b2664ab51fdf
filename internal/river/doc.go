// Package river models the status stream published by the river compositor.
//
// The package defines the domain vocabulary shared by every other part of
// riverql:
//
//   - [Identity]: opaque handle for an upstream output
//   - [OutputInfo]: the naming fields an output advertises, and its label
//   - [Event]: closed set of nine status-change variants
//   - [Source] and [Sink]: the contract between an upstream adapter and the
//     ingestion path
//
// Two sources ship with the package. [StreamSource] reads line-delimited JSON
// records from any reader, typically a pipe fed by a compositor bridge.
// [ReplaySource] plays back a JSONC fixture and then ends, which is handy for
// demos and for exercising the upstream-disconnected path.
package river
