package transport

import (
	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/names"
)

// EventSelector matches events by (aggregate_type, event_name), per
// spec.md §4.10. A zero-value field matches any value for that field, so
// EventSelector{AggregateType: "order"} matches every order event.
type EventSelector struct {
	AggregateType names.AggregateType
	EventName     names.EventName
}

// Matches implements Selector[event.Event].
func (s EventSelector) Matches(ev event.Event) bool {
	if s.AggregateType != "" && ev.AggregateType != s.AggregateType {
		return false
	}

	if s.EventName != "" && ev.EventName != s.EventName {
		return false
	}

	return true
}

// CommandSelector matches commands by command_name, per spec.md §4.10.
type CommandSelector struct {
	CommandName names.CommandName
}

// Matches implements Selector[event.CommandEnvelope].
func (s CommandSelector) Matches(cmd event.CommandEnvelope) bool {
	return s.CommandName == "" || cmd.CommandName == s.CommandName
}
