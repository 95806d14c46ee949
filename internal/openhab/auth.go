package openhab

import (
	"fmt"
	"net/http"
)

// AuthMode selects how requests are authenticated.
type AuthMode string

// Supported auth modes.
const (
	AuthToken AuthMode = "token"
	AuthBasic AuthMode = "basic"
)

// TokenHeader is the header openHAB reads API tokens from.
const TokenHeader = "X-OPENHAB-TOKEN"

// Auth holds the credentials for one mode. Only the fields of the selected
// mode are used.
type Auth struct {
	Mode     AuthMode
	Token    string
	Username string
	Password string
}

// Validate checks that the selected mode has what it needs.
func (a Auth) Validate() error {
	switch a.Mode {
	case AuthToken:
		if a.Token == "" {
			return fmt.Errorf("%w: token mode requires a token", ErrInvalidAuth)
		}
	case AuthBasic:
		if a.Username == "" {
			return fmt.Errorf("%w: basic mode requires a username", ErrInvalidAuth)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidAuth, a.Mode)
	}
	return nil
}

// Apply sets the credentials on req.
func (a Auth) Apply(req *http.Request) {
	switch a.Mode {
	case AuthToken:
		if a.Token != "" {
			req.Header.Set(TokenHeader, a.Token)
		}
	case AuthBasic:
		if a.Username != "" {
			req.SetBasicAuth(a.Username, a.Password)
		}
	}
}
