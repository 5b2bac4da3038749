package pgoutbox

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
)

// ScanEvent scans one row of the events table (event_sequence, id,
// aggregate_type, aggregate_id, aggregate_version, event_name, payload,
// occurred_at, correlation_id, causation_id, context — in that column
// order) into an event.Event. Exported so internal/projection/pgcheckpoint's
// Rebuilder feed, which reads the event log directly rather than the
// outbox, can reuse the same field parsing as the outbox fetchers.
func ScanEvent(rows *sql.Rows) (event.Event, error) {
	var (
		eventSequence, aggregateVersion          int64
		eventID, aggregateType, aggregateID      string
		eventName, correlationID, causationID    string
		payloadRaw, contextRaw                    []byte
		occurredAt                                time.Time
	)

	if err := rows.Scan(
		&eventSequence, &eventID, &aggregateType, &aggregateID, &aggregateVersion,
		&eventName, &payloadRaw, &occurredAt, &correlationID, &causationID, &contextRaw,
	); err != nil {
		return event.Event{}, err
	}

	eid, err := ids.ParseEventId(eventID)
	if err != nil {
		return event.Event{}, fmt.Errorf("parse event id: %w", err)
	}

	aggType, err := names.NewAggregateType(aggregateType)
	if err != nil {
		return event.Event{}, fmt.Errorf("parse aggregate type: %w", err)
	}

	aggID, err := event.NewAggregateId(aggregateID)
	if err != nil {
		return event.Event{}, fmt.Errorf("parse aggregate id: %w", err)
	}

	name, err := names.NewEventName(eventName)
	if err != nil {
		return event.Event{}, fmt.Errorf("parse event name: %w", err)
	}

	payload, err := event.NewPayload(payloadRaw)
	if err != nil {
		return event.Event{}, fmt.Errorf("parse event payload: %w", err)
	}

	corrID, err := ids.ParseCorrelationId(correlationID)
	if err != nil {
		return event.Event{}, fmt.Errorf("parse correlation id: %w", err)
	}

	causeID, err := ids.ParseCausationId(causationID)
	if err != nil {
		return event.Event{}, fmt.Errorf("parse causation id: %w", err)
	}

	var reqCtx event.RequestContext
	if err := json.Unmarshal(contextRaw, &reqCtx); err != nil {
		return event.Event{}, fmt.Errorf("unmarshal request context: %w", err)
	}

	return event.Event{
		EventSequence:    eventSequence,
		EventId:          eid,
		AggregateType:    aggType,
		AggregateId:      aggID,
		AggregateVersion: aggregateVersion,
		EventName:        name,
		Payload:          payload,
		OccurredAt:       occurredAt,
		CorrelationId:    corrID,
		CausationId:      causeID,
		Context:          reqCtx,
	}, nil
}
