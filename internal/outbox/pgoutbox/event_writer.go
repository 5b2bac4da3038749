package pgoutbox

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/outbox"
)

// EventWriter persists the outcome of a publish attempt against
// event_outbox, moving dead-lettered rows to event_dead_letters in the
// same statement group (spec.md §3 component E).
type EventWriter struct {
	tx *sql.Tx
}

// NewEventWriter wraps the transaction used to fetch and lease the batch
// being acknowledged.
func NewEventWriter(tx *sql.Tx) *EventWriter {
	return &EventWriter{tx: tx}
}

// Persist writes the post-transition state of record back to event_outbox,
// or moves it to event_dead_letters and deletes it from event_outbox when
// its Lifecycle became DeadLettered.
func (w *EventWriter) Persist(ctx context.Context, record outbox.Record[event.EventEnvelope]) error {
	if record.Lifecycle.IsDeadLettered() {
		return w.moveToDeadLetters(ctx, record)
	}

	switch record.State.Status() {
	case outbox.StatusPublished:
		publishedAt, err := record.State.PublishedAt()
		if err != nil {
			return err
		}

		_, err = w.tx.ExecContext(ctx, `
			UPDATE event_outbox
			SET published_at = $1, attempt_count = $2, lease_owner = NULL, lease_until = NULL,
				last_error_kind = NULL, last_error_code = NULL, last_error_message = NULL
			WHERE id = $3
		`, publishedAt, record.State.AttemptCount().Value(), record.ID.String())
		if err != nil {
			return fmt.Errorf("persist published event outbox row %s: %w", record.ID, err)
		}

		return nil
	case outbox.StatusPending:
		nextAttemptAfter, err := record.State.NextAttemptAfter()
		if err != nil {
			return err
		}

		var kind, code, message string
		if record.LastError != nil {
			kind, code, message = string(record.LastError.Kind), record.LastError.Code, record.LastError.Message
		}

		_, err = w.tx.ExecContext(ctx, `
			UPDATE event_outbox
			SET attempt_count = $1, next_attempt_after = $2, lease_owner = NULL, lease_until = NULL,
				last_error_kind = NULLIF($3, ''), last_error_code = NULLIF($4, ''), last_error_message = NULLIF($5, '')
			WHERE id = $6
		`, record.State.AttemptCount().Value(), nextAttemptAfter, kind, code, message, record.ID.String())
		if err != nil {
			return fmt.Errorf("persist pending event outbox row %s: %w", record.ID, err)
		}

		return nil
	default:
		return fmt.Errorf("persist event outbox row %s: unexpected status %s", record.ID, record.State.Status())
	}
}

func (w *EventWriter) moveToDeadLetters(ctx context.Context, record outbox.Record[event.EventEnvelope]) error {
	var kind, code, message string
	if record.LastError != nil {
		kind, code, message = string(record.LastError.Kind), record.LastError.Code, record.LastError.Message
	}

	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO event_dead_letters (
			id, sequence, event_sequence, event_id, aggregate_type, aggregate_id,
			aggregate_version, event_name, payload, occurred_at, correlation_id,
			causation_id, context, message_id, ordering_key, attempt_count,
			last_error_kind, last_error_code, last_error_message, dead_lettered_at
		)
		SELECT id, sequence, event_sequence, event_id, aggregate_type, aggregate_id,
			aggregate_version, event_name, payload, occurred_at, correlation_id,
			causation_id, context, message_id, ordering_key, $1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5
		FROM event_outbox
		WHERE id = $6
	`, record.State.AttemptCount().Value(), kind, code, message, record.Lifecycle.DeadLetteredAt(), record.ID.String())
	if err != nil {
		return fmt.Errorf("insert event dead letter %s: %w", record.ID, err)
	}

	if _, err := w.tx.ExecContext(ctx, `DELETE FROM event_outbox WHERE id = $1`, record.ID.String()); err != nil {
		return fmt.Errorf("delete dead-lettered event outbox row %s: %w", record.ID, err)
	}

	return nil
}
