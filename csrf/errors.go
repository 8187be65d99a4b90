package csrf

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is matched by every *ConfigError.
	ErrConfiguration = errors.New("csrf: invalid configuration")

	// ErrMissingToken is returned when a mutating request carries no token.
	ErrMissingToken = errors.New("csrf: missing token")

	// ErrInvalidToken is returned when the presented token was never issued to
	// the session, was evicted, or has already been consumed.
	ErrInvalidToken = errors.New("csrf: invalid token")

	// ErrBadOrigin is returned by the optional Origin/Referer check.
	ErrBadOrigin = errors.New("csrf: bad origin")

	// ErrNoSession is returned when the protector cannot resolve a session for a request.
	ErrNoSession = errors.New("csrf: no session")
)

// ConfigError reports a guard that cannot be constructed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("csrf: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// rejectReason maps a request-time error to a short label for logs and metrics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing"
	case errors.Is(err, ErrInvalidToken):
		return "invalid"
	case errors.Is(err, ErrBadOrigin):
		return "origin"
	case errors.Is(err, ErrNoSession):
		return "session"
	default:
		return "internal"
	}
}
