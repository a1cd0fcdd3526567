// Package broadcast fans real-time events out to WebSocket connections.
//
// The Hub owns one clientWriter per connection; each writer drains a bounded FIFO buffer on its own goroutine,
// so a frame enqueued before another for the same connection is always written first. Publishing never blocks:
// a client whose buffer is full is evicted. Presence and Edits shape room events on top of any Publisher.
package broadcast
