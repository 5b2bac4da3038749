// Package eventwriter implements the atomic event-plus-outbox-row append
// of spec.md §3 component C: for every event committed to the event log,
// exactly one Pending event_outbox row is written in the same
// transaction, so a publish failure can never lose or duplicate the
// append itself.
package eventwriter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/ids"
)

// Writer appends events to the log and enqueues their outbox rows within
// a caller-supplied transaction (the relay/command-handler's Unit of
// Work; see internal/uow).
type Writer struct{}

// New builds a Writer. It carries no state: every method takes the
// transaction it must run in, matching the teacher's per-call *sql.Tx
// style for operations that must share a caller's Unit of Work.
func New() *Writer { return &Writer{} }

// Append inserts ev into events and a matching Pending row into
// event_outbox, deriving the outbox row's ordering_key from the event
// and assigning it a fresh message_id.
func (w *Writer) Append(ctx context.Context, tx *sql.Tx, ev event.Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	contextJSON, err := json.Marshal(ev.Context)
	if err != nil {
		return fmt.Errorf("marshal event context: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (
			id, aggregate_type, aggregate_id, aggregate_version, event_name,
			payload, occurred_at, correlation_id, causation_id, context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		ev.EventId.String(), ev.AggregateType.String(), ev.AggregateId.String(),
		ev.AggregateVersion, ev.EventName.String(), ev.Payload.Bytes(), ev.OccurredAt,
		ev.CorrelationId.String(), ev.CausationId.String(), contextJSON,
	); err != nil {
		return fmt.Errorf("insert event %s: %w", ev.EventId, err)
	}

	var eventSequence int64
	if err := tx.QueryRowContext(ctx, `SELECT event_sequence FROM events WHERE id = $1`, ev.EventId.String()).
		Scan(&eventSequence); err != nil {
		return fmt.Errorf("read assigned event_sequence for %s: %w", ev.EventId, err)
	}

	orderingKey, err := ev.OrderingKey()
	if err != nil {
		return fmt.Errorf("derive ordering key for event %s: %w", ev.EventId, err)
	}

	outboxID, err := ids.NewOutboxId()
	if err != nil {
		return fmt.Errorf("generate outbox id: %w", err)
	}

	messageID, err := ids.NewMessageId()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_outbox (
			id, event_sequence, event_id, aggregate_type, aggregate_id,
			aggregate_version, event_name, payload, occurred_at, correlation_id,
			causation_id, context, message_id, ordering_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		outboxID.String(), eventSequence, ev.EventId.String(), ev.AggregateType.String(),
		ev.AggregateId.String(), ev.AggregateVersion, ev.EventName.String(), ev.Payload.Bytes(),
		ev.OccurredAt, ev.CorrelationId.String(), ev.CausationId.String(), contextJSON,
		messageID.String(), orderingKey.String(),
	); err != nil {
		return fmt.Errorf("insert event_outbox row for event %s: %w", ev.EventId, err)
	}

	return nil
}
