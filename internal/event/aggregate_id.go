package event

import "errors"

// ErrEmptyAggregateId is returned when an aggregate id would be empty.
var ErrEmptyAggregateId = errors.New("aggregate id cannot be empty")

// AggregateId is the domain-supplied identifier of an aggregate instance.
// Unlike the framework's own identifiers (internal/ids), aggregate ids are
// not required to be UUIDv7: the aggregate/event domain model is an
// external collaborator (spec.md §1) and may key its aggregates however it
// likes. The framework only requires non-emptiness.
type AggregateId string

// NewAggregateId validates and constructs an AggregateId.
func NewAggregateId(value string) (AggregateId, error) {
	if value == "" {
		return "", ErrEmptyAggregateId
	}

	return AggregateId(value), nil
}

func (a AggregateId) String() string { return string(a) }
