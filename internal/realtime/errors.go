package realtime

import "errors"

// Errors surfaced to the connection that caused them. None of them close the
// connection or affect other sessions.
var (
	ErrUnauthenticated      = errors.New("authentication required")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrPersistence          = errors.New("message could not be saved")
	ErrAccessDenied         = errors.New("access denied")
	ErrAlreadyAuthenticated = errors.New("connection already authenticated")
	ErrRateLimited          = errors.New("too many events")
)

// ErrorCode maps an error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrPersistence):
		return "persistence_error"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrAlreadyAuthenticated):
		return "already_authenticated"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal_error"
	}
}
