package live

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned when sending on a closed session.
	ErrSessionClosed = errors.New("live session closed")
	// ErrMissingAPIKey is returned by Connect when no key is configured.
	ErrMissingAPIKey = errors.New("live API key is not configured")
)

// ConnectionError reports a failure to reach or talk to the live service.
type ConnectionError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("live %s failed (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("live %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
