// Package eventstream keeps a long-lived subscription to the openHAB
// server-sent events feed (GET /rest/events) and turns item events into
// "data may be stale" signals.
//
// Connection lifecycle:
//
//	Disconnected → Connecting → Streaming
//	                   ↑            │ end of stream, transport error
//	                   └── backoff ─┘ or non-200 status
//
//	any state ── ctx cancelled ──→ Stopping → Stopped
//
// The reconnect delay is a fixed interval, not exponential: the controller
// is on the local network and is expected back within seconds of a restart.
//
// Failures never leave this package. Transport failures are logged at warn
// level and retried; malformed frames are logged at debug level and dropped
// without ending the stream.
package eventstream
