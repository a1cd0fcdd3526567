// Package room groups connections into per-document rooms.
//
// Each room is an actor: a single goroutine owns its members and content cache and
// processes commands one at a time, so every fan-out a room triggers is enqueued in the
// same order its state changed. The Manager owns the room table and a per-connection
// seat that serializes a connection's own join, leave and disconnect.
package room
