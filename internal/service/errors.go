package service

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy for the registration core. Every failure a caller can act on
// is one of these; raw store errors never cross the service boundary.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSessionNotFound   = errors.New("no verification session found")
	ErrCodeAlreadyUsed   = errors.New("verification code already used")
	ErrCodeExpired       = errors.New("verification code expired")
	ErrCodeMismatch      = errors.New("verification code mismatch")
	ErrTooManyAttempts   = errors.New("too many verification attempts")
	ErrGatewayFailure    = errors.New("sms gateway failure")
	ErrNotAuthorized     = errors.New("identifier not on the authorized roster")
	ErrAlreadyRegistered = errors.New("roster entry already registered")
	ErrInfrastructure    = errors.New("infrastructure failure")
)

// RateLimitedError is returned when a phone number has exhausted its request
// window. It carries the reset time so the caller can tell the user when to
// retry; it is not retried automatically.
type RateLimitedError struct {
	ResetTime time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.ResetTime.UTC().Format(time.RFC3339))
}

// AsRateLimited unwraps err into a RateLimitedError if it is one.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// infraError wraps a store failure so callers can distinguish "denied" from
// "broken" with errors.Is(err, ErrInfrastructure) while logs keep the cause.
func infraError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInfrastructure, op, err)
}
