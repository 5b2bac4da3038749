// Package outbox implements the shared Outbox Record state machine of
// spec.md §3/§4.6: the Pending/Leased/Published lifecycle, lease
// acquisition and extension, and the ack/nack transitions with their
// dead-letter discipline. It is generic over the envelope payload
// (event or command) so the event and command outboxes share one
// implementation of the machine, per spec.md §9's first acceptable option.
package outbox

import (
	"errors"
	"fmt"
	"math"
)

// ErrNegativeAttemptCount is returned when constructing an AttemptCount
// from a negative value.
var ErrNegativeAttemptCount = errors.New("attempt count cannot be negative")

// ErrAttemptCountOverflow is returned when incrementing an AttemptCount
// already at math.MaxInt64 (spec.md §7 AttemptCountOverflow).
var ErrAttemptCountOverflow = errors.New("attempt count overflow")

// AttemptCount is the number of publish attempts made for one outbox
// record. It never goes negative and increments are overflow-checked.
type AttemptCount int64

// ZeroAttempts is the initial attempt count for a freshly-written record.
const ZeroAttempts AttemptCount = 0

// NewAttemptCount validates a non-negative attempt count.
func NewAttemptCount(value int64) (AttemptCount, error) {
	if value < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeAttemptCount, value)
	}

	return AttemptCount(value), nil
}

// Increment returns count+1, or ErrAttemptCountOverflow if count is already
// math.MaxInt64.
func (c AttemptCount) Increment() (AttemptCount, error) {
	if int64(c) == math.MaxInt64 {
		return 0, ErrAttemptCountOverflow
	}

	return c + 1, nil
}

// Value returns the underlying int64.
func (c AttemptCount) Value() int64 { return int64(c) }
