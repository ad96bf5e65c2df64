package upstream

import (
	"errors"
	"fmt"

	"github.com/proctorix/examgate/internal/token"
)

// ErrRateLimited signals an upstream 429. Surfaced to the user verbatim as a
// rate-limit notice; never retried automatically.
var ErrRateLimited = errors.New("too many tries, please try again later")

// ErrAuthRejected signals that the upstream authentication service refused
// the presented credentials (login or biometric hard failure).
var ErrAuthRejected = errors.New("authentication rejected by upstream")

// ValidationError carries an upstream 400 response. Detail is the
// server-provided message verbatim when present.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "the request is not valid, please verify the input data"
	}
	return e.Detail
}

// StatusError propagates any other non-success upstream status unchanged.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// TransientError wraps a transport-level failure (connection refused, DNS,
// timeout). Callers may surface it for a manual retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("upstream unreachable: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsAuthExpired reports whether err means the session was terminated and the
// caller must redirect to the unauthenticated entry point.
func IsAuthExpired(err error) bool {
	return errors.Is(err, token.ErrSessionExpired)
}

// IsTransient reports whether err is a transport-level failure worth a
// manual retry.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
