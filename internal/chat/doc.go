// Package chat implements the real-time engine: the registry of live
// WebSocket connections, per-connection heartbeat liveness, presence
// broadcasting, and two-party message routing.
package chat
