package query

import (
	"errors"
	"fmt"
)

// ErrUnknownMessageID is returned when After names a message that never
// caused any event (spec.md §7's Query.UnknownMessageId).
var ErrUnknownMessageID = errors.New("query: unknown message id")

// TimeoutError is spec.md §7's Query.Timeout: naming the projector,
// the target sequence it never reached, and the last checkpoint observed
// before the dispatcher gave up.
type TimeoutError struct {
	Projector      string
	Target         int64
	LastCheckpoint int64
	Timeout        string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"query: projector %s did not reach sequence %d within %s (last checkpoint %d)",
		e.Projector, e.Target, e.Timeout, e.LastCheckpoint,
	)
}
