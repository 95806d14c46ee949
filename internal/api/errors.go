package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/habsync/internal/entity"
)

// ErrTokenInvalid is returned when a bearer token fails validation.
var ErrTokenInvalid = errors.New("api: invalid token")

// Error is the JSON body of every non-2xx response.
type Error struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeUpstream     = "upstream_error"
)

// defaultCodes maps a status to the code used when none is given.
var defaultCodes = map[int]string{
	http.StatusBadRequest:          ErrCodeBadRequest,
	http.StatusUnauthorized:        ErrCodeUnauthorized,
	http.StatusNotFound:            ErrCodeNotFound,
	http.StatusBadGateway:          ErrCodeUpstream,
	http.StatusServiceUnavailable:  ErrCodeUnavailable,
	http.StatusInternalServerError: ErrCodeInternal,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
	}
}

// writeError writes an Error body. An empty code falls back to the
// status default.
func writeError(w http.ResponseWriter, status int, code, message string) {
	if code == "" {
		code = defaultCodes[status]
	}
	writeJSON(w, status, Error{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get(middleware.RequestIDHeader),
	})
}

func fail(w http.ResponseWriter, status int, message string) {
	writeError(w, status, "", message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	fail(w, http.StatusUnauthorized, message)
}

// writeCommandError maps an entity command failure to a response.
// Lookup and translation errors are the caller's fault; anything else
// came from openHAB.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		fail(w, http.StatusNotFound, "entity not found")
	case errors.Is(err, entity.ErrUnsupportedAction), errors.Is(err, entity.ErrInvalidCommand):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		fail(w, http.StatusBadGateway, "openHAB rejected the command")
	}
}
