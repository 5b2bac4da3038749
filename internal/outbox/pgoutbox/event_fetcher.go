// Package pgoutbox implements the Postgres-backed Outbox Fetcher and
// Outbox Writer (spec.md §3 components D and E) for both the event and
// command outboxes, grounded in the teacher's internal/storage
// query-by-query style (database/sql, $N placeholders, fmt.Errorf
// wrapping) over github.com/lib/pq.
package pgoutbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/outbox"
)

// EventFetcher selects batches of ready event_outbox rows and leases them
// to a relay instance, honoring the per-aggregate gap-block predicate of
// spec.md §4.3.
type EventFetcher struct {
	tx *sql.Tx
}

// NewEventFetcher wraps the transaction the relay's Unit of Work opened;
// fetch and lease-acquire must happen in the same transaction that will
// later persist the ack/nack so SKIP LOCKED rows stay invisible to other
// relay instances until commit.
func NewEventFetcher(tx *sql.Tx) *EventFetcher {
	return &EventFetcher{tx: tx}
}

const eventFetchQuery = `
SELECT eo.id, eo.sequence, eo.event_sequence, eo.event_id, eo.aggregate_type, eo.aggregate_id,
	eo.aggregate_version, eo.event_name, eo.payload, eo.occurred_at,
	eo.correlation_id, eo.causation_id, eo.context, eo.message_id,
	eo.ordering_key, eo.attempt_count, eo.next_attempt_after
FROM event_outbox eo
WHERE eo.published_at IS NULL
	AND eo.next_attempt_after <= now()
	AND (eo.lease_until IS NULL OR eo.lease_until <= now())
	AND NOT EXISTS (
		SELECT 1 FROM event_outbox eo2
		WHERE eo2.published_at IS NULL
			AND eo2.aggregate_type = eo.aggregate_type
			AND eo2.aggregate_id = eo.aggregate_id
			AND eo2.aggregate_version < eo.aggregate_version
	)
ORDER BY eo.next_attempt_after ASC, eo.sequence ASC
LIMIT $1
FOR UPDATE OF eo SKIP LOCKED
`

// FetchBatch returns up to batchSize ready rows, already leased to owner
// for leaseFor. Rows held by another live lease, not yet due, or blocked
// behind an earlier unpublished version of the same aggregate are not
// returned.
func (f *EventFetcher) FetchBatch(
	ctx context.Context,
	batchSize int,
	owner outbox.RelayInstance,
	leaseFor time.Duration,
) ([]outbox.Record[event.EventEnvelope], error) {
	rows, err := f.tx.QueryContext(ctx, eventFetchQuery, batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch event outbox batch: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []outbox.Record[event.EventEnvelope]

	for rows.Next() {
		record, err := scanEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event outbox row: %w", err)
		}

		if err := record.AcquireLease(owner, leaseFor); err != nil {
			return nil, fmt.Errorf("lease event outbox row %s: %w", record.ID, err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event outbox rows: %w", err)
	}

	if err := persistLeases(ctx, f.tx, "event_outbox", records); err != nil {
		return nil, err
	}

	return records, nil
}

func scanEventRow(rows *sql.Rows) (outbox.Record[event.EventEnvelope], error) {
	var (
		outboxID, eventID, correlationID, causationID, messageID string
		aggregateType, aggregateID, eventName, orderingKey        string
		aggregateVersion                                          int64
		payloadRaw, contextRaw                                    []byte
		occurredAt, nextAttemptAfter                              time.Time
		sequence, eventSequence                                   int64
		attemptCount                                               int64
	)

	if err := rows.Scan(
		&outboxID, &sequence, &eventSequence, &eventID, &aggregateType, &aggregateID,
		&aggregateVersion, &eventName, &payloadRaw, &occurredAt,
		&correlationID, &causationID, &contextRaw, &messageID,
		&orderingKey, &attemptCount, &nextAttemptAfter,
	); err != nil {
		return outbox.Record[event.EventEnvelope]{}, err
	}

	envelope, err := buildEventEnvelope(
		eventSequence, eventID, aggregateType, aggregateID, aggregateVersion, eventName,
		payloadRaw, occurredAt, correlationID, causationID, contextRaw,
		messageID, orderingKey,
	)
	if err != nil {
		return outbox.Record[event.EventEnvelope]{}, err
	}

	id, err := ids.ParseOutboxId(outboxID)
	if err != nil {
		return outbox.Record[event.EventEnvelope]{}, fmt.Errorf("parse outbox id: %w", err)
	}

	count, err := outbox.NewAttemptCount(attemptCount)
	if err != nil {
		return outbox.Record[event.EventEnvelope]{}, err
	}

	record := outbox.NewRecord(id, sequence, envelope)
	record.State = outbox.PendingState(count, nextAttemptAfter)

	return record, nil
}

func buildEventEnvelope(
	eventSequence int64,
	eventID, aggregateType, aggregateID string,
	aggregateVersion int64,
	eventName string,
	payloadRaw []byte,
	occurredAt time.Time,
	correlationID, causationID string,
	contextRaw []byte,
	messageID, orderingKeyRaw string,
) (event.EventEnvelope, error) {
	eid, err := ids.ParseEventId(eventID)
	if err != nil {
		return event.EventEnvelope{}, fmt.Errorf("parse event id: %w", err)
	}

	aggType, err := names.NewAggregateType(aggregateType)
	if err != nil {
		return event.EventEnvelope{}, fmt.Errorf("parse aggregate type: %w", err)
	}

	aggID, err := event.NewAggregateId(aggregateID)
	if err != nil {
		return event.EventEnvelope{}, fmt.Errorf("parse aggregate id: %w", err)
	}

	name, err := names.NewEventName(eventName)
	if err != nil {
		return event.EventEnvelope{}, fmt.Errorf("parse event name: %w", err)
	}

	payload, err := event.NewPayload(payloadRaw)
	if err != nil {
		return event.EventEnvelope{}, fmt.Errorf("parse event payload: %w", err)
	}

	corrID, err := ids.ParseCorrelationId(correlationID)
	if err != nil {
		return event.EventEnvelope{}, fmt.Errorf("parse correlation id: %w", err)
	}

	causeID, err := ids.ParseCausationId(causationID)
	if err != nil {
		return event.EventEnvelope{}, fmt.Errorf("parse causation id: %w", err)
	}

	msgID, err := ids.ParseMessageId(messageID)
	if err != nil {
		return event.EventEnvelope{}, fmt.Errorf("parse message id: %w", err)
	}

	var reqCtx event.RequestContext
	if err := json.Unmarshal(contextRaw, &reqCtx); err != nil {
		return event.EventEnvelope{}, fmt.Errorf("unmarshal request context: %w", err)
	}

	return event.EventEnvelope{
		MessageId:     msgID,
		CorrelationId: corrID,
		CausationId:   causeID,
		OrderingKey:   event.OrderingKey(orderingKeyRaw),
		Context:       reqCtx,
		Event: event.Event{
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
		},
	}, nil
}

func persistLeases(ctx context.Context, tx *sql.Tx, table string, records []outbox.Record[event.EventEnvelope]) error {
	for _, record := range records {
		owner, err := record.State.LeaseOwner()
		if err != nil {
			return err
		}

		until, err := record.State.LeaseUntil()
		if err != nil {
			return err
		}

		query := fmt.Sprintf(
			`UPDATE %s SET lease_owner = $1, lease_until = $2 WHERE id = $3`,
			table,
		)

		if _, err := tx.ExecContext(ctx, query, owner.String(), until, record.ID.String()); err != nil {
			return fmt.Errorf("persist lease for %s row %s: %w", table, record.ID, err)
		}
	}

	return nil
}
