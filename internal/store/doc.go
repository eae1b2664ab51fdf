// Package store holds the aggregated river status snapshot.
//
// The main components are:
//
//   - [Store]: the snapshot, written by the single ingestion goroutine and
//     read concurrently by query handlers
//   - [OutputState]: per-output tags, layout and label
//   - [SeatState]: focused output, focused view and mode of the seat
//
// Every write is one critical section under a read-write lock, so a reader
// never observes a half-applied event. The label index (label to output) is
// maintained in the same critical section as the output it points to.
//
// The store has no notion of subscribers; fan-out lives in the bus package.
// The ingestion path applies an event here before publishing it, so anyone
// who received an event and then queries the store sees at least its effect.
package store
