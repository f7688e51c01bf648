package matching

import (
	"errors"
	"fmt"
)

// ErrUnknownRequest is returned when an operation targets a request the
// engine has no state for (never seen, or already evicted). Retrying may
// succeed if the request event simply has not been processed yet.
var ErrUnknownRequest = errors.New("matching: unknown request")

// ValidationError rejects malformed input synchronously, before any state
// mutation or side effect. It is permanent: redelivering the same input can
// never succeed, so event-driven callers should ack and drop it.
type ValidationError struct {
	msg string
}

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.msg }

// Permanent marks the error as non-retryable for the subscriber's ack/nack
// decision.
func (e *ValidationError) Permanent() bool { return true }
