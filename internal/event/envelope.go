package event

import (
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
)

// EventEnvelope is what the event outbox carries to the transport: the
// committed Event plus transport-addressing fields (spec.md §3, §6).
type EventEnvelope struct {
	MessageId     ids.MessageId
	CorrelationId ids.CorrelationId
	CausationId   ids.CausationId
	OrderingKey   OrderingKey
	Event         Event
	Context       RequestContext
}

// CommandEnvelope is what the command outbox carries to the transport.
type CommandEnvelope struct {
	MessageId     ids.MessageId
	CorrelationId ids.CorrelationId
	CausationId   ids.CausationId
	OrderingKey   OrderingKey
	CommandName   names.CommandName
	Payload       Payload
	Context       RequestContext
}
