// Package websocket is the real-time transport: it admits connections, upgrades
// them, decodes inbound event envelopes and hands them to the coordinator.
// Outbound frames go through the broadcast hub.
package websocket
