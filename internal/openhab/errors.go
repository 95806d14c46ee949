package openhab

import "errors"

// Domain errors for the openHAB client.
var (
	// ErrAPI is returned when a REST call fails at transport or HTTP level.
	ErrAPI = errors.New("openhab: api error")

	// ErrInvalidAuth is returned when the auth configuration is unusable.
	ErrInvalidAuth = errors.New("openhab: invalid auth configuration")

	// ErrInvalidBaseURL is returned when the base URL cannot be parsed.
	ErrInvalidBaseURL = errors.New("openhab: invalid base URL")
)
