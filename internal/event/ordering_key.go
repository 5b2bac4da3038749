package event

import (
	"errors"
	"fmt"

	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
)

// ErrEmptyOrderingKey is returned when an ordering key would be empty.
var ErrEmptyOrderingKey = errors.New("ordering key cannot be empty")

// OrderingKey is the string whose equality defines a FIFO lane on the
// transport (spec.md §3, §6). Event envelopes derive it from
// "{aggregate_type}:{aggregate_id}"; command envelopes derive it from the
// originating correlation id.
type OrderingKey string

// EventOrderingKey builds the ordering key for an event envelope.
func EventOrderingKey(aggregateType names.AggregateType, aggregateID AggregateId) (OrderingKey, error) {
	if aggregateType == "" || aggregateID == "" {
		return "", ErrEmptyOrderingKey
	}

	return OrderingKey(fmt.Sprintf("%s:%s", aggregateType, aggregateID)), nil
}

// CommandOrderingKey builds the ordering key for a command envelope.
func CommandOrderingKey(correlationID ids.CorrelationId) OrderingKey {
	return OrderingKey(correlationID.String())
}

func (k OrderingKey) String() string { return string(k) }
