// Package app provides the session coordinator.
//
// The Coordinator handles every real-time event a connection can send: identification,
// document creation, room joins, edits, saves, cursor moves and disconnects. It sits between
// the WebSocket transport and the registry, room manager and document store, and depends on
// their interfaces rather than concrete implementations.
package app
