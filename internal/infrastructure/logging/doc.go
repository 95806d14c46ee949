// Package logging provides structured logging for habsync.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for production, text for development
//   - Default fields (service=habsync, version) on every entry
//   - Level-based filtering, adjustable at runtime with SetLevel
//   - Output to stdout, stderr or an append-only file
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file: ""           # path when output is "file"
//
// # Levels used by the sync engine
//
//   - warn: event stream transport failures, failed polls
//   - debug: malformed event frames, item commands seen on the stream
//   - info: lifecycle (stream connected/stopped, coordinator stopped)
//
// Never log the openHAB token, MQTT password or JWT secret.
package logging
