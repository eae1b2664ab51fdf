// Package bus provides the bounded broadcast channel between ingestion and
// subscribers.
//
// A single producer calls [Bus.Publish], which never blocks. Each subscriber
// owns an independent [Cursor] into a shared ring of the most recent events.
// A cursor that falls more than the ring capacity behind receives a
// [LagError] reporting how many events it missed, then resumes at the oldest
// retained event. A slow subscriber never affects the producer or any other
// subscriber.
//
// [Bus.Close] is the terminal signal: cursors drain what is still retained
// and then return [ErrClosed].
package bus
