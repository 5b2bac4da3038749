package outbox

import (
	"errors"
	"fmt"
	"time"
)

// ErrNonPositiveMaxAttempts is returned constructing a RetryOptions whose
// MaxAttempts is zero or negative.
var ErrNonPositiveMaxAttempts = errors.New("max attempts must be positive")

// RetryOptions bounds Nack's behaviour: the fixed backoff applied before
// the next attempt, and the attempt count past which a record is
// dead-lettered regardless of whether the failure was transient.
type RetryOptions struct {
	Backoff     time.Duration
	MaxAttempts int64
}

// NewRetryOptions validates MaxAttempts is positive. Backoff of zero is
// legal and means "retry immediately".
func NewRetryOptions(backoff time.Duration, maxAttempts int64) (RetryOptions, error) {
	if maxAttempts <= 0 {
		return RetryOptions{}, fmt.Errorf("%w: %d", ErrNonPositiveMaxAttempts, maxAttempts)
	}
	return RetryOptions{Backoff: backoff, MaxAttempts: maxAttempts}, nil
}
