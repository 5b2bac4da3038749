// Package event defines the wire-level types shared by every component of
// the outbox framework: the domain Event itself, the envelopes that carry
// events and commands across the transactional/transport boundary, and the
// value types (ordering key, aggregate id, payload) those envelopes are
// built from.
package event

import (
	"errors"
	"time"

	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
)

// ErrNonPositiveVersion is returned when an aggregate version is < 1.
var ErrNonPositiveVersion = errors.New("aggregate version must be >= 1")

// Event is a single committed domain event, per spec.md §3. EventSequence
// is assigned by the store and is strictly increasing but not necessarily
// gap-free; AggregateVersion is dense per aggregate starting at 1.
type Event struct {
	EventSequence    int64
	EventId          ids.EventId
	AggregateType    names.AggregateType
	AggregateId      AggregateId
	AggregateVersion int64
	EventName        names.EventName
	Payload          Payload
	OccurredAt       time.Time
	CorrelationId    ids.CorrelationId
	CausationId      ids.CausationId
	Context          RequestContext
}

// Validate enforces the invariants spec.md §3 places directly on Event
// (version positivity; everything else is enforced by the field types
// themselves at construction).
func (e Event) Validate() error {
	if e.AggregateVersion < 1 {
		return ErrNonPositiveVersion
	}

	return nil
}

// OrderingKey derives the event's transport ordering key.
func (e Event) OrderingKey() (OrderingKey, error) {
	return EventOrderingKey(e.AggregateType, e.AggregateId)
}
