package eventstream

import "errors"

// Domain errors for the event stream client. They are logged, never returned
// to callers of Run.
var (
	// ErrTransport covers connection failures and broken reads.
	ErrTransport = errors.New("eventstream: transport error")

	// ErrStatus is returned when the feed answers with a non-200 status.
	ErrStatus = errors.New("eventstream: unexpected status")

	// ErrEndOfStream is returned when the server closes the feed.
	ErrEndOfStream = errors.New("eventstream: end of stream")

	// ErrProtocol marks a frame fragment that could not be decoded.
	ErrProtocol = errors.New("eventstream: malformed frame")

	// ErrReadTimeout is returned when the feed goes silent for too long.
	ErrReadTimeout = errors.New("eventstream: read timeout")
)
