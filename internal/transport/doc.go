// Package transport maintains the outbound WebSocket connection to the
// downstream code consumer.
//
// # Lifecycle
//
//	Disconnected ──dial ok──▶ Connecting ──identify sent──▶ Identified
//	      ▲                                                     │
//	      └──────── read/write error, remote close, ping fail ──┘
//
// Run retries forever with a fixed, interruptible reconnect delay. Every
// connection error is contained here and never terminates the process.
//
// # Sending
//
// Send is non-blocking with respect to connection availability: outside the
// Identified state it returns ErrNotConnected without touching the network.
// A failed write returns ErrSendFailed and drops the connection so the next
// Run iteration reconnects. Writes are serialized, one in flight at a time.
package transport
