package pgoutbox

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/outbox"
)

// CommandWriter persists the outcome of a publish attempt against
// command_outbox, moving dead-lettered rows to command_dead_letters.
type CommandWriter struct {
	tx *sql.Tx
}

// NewCommandWriter wraps the transaction used to fetch and lease the
// batch being acknowledged.
func NewCommandWriter(tx *sql.Tx) *CommandWriter {
	return &CommandWriter{tx: tx}
}

// Persist writes the post-transition state of record back to
// command_outbox, or moves it to command_dead_letters when its Lifecycle
// became DeadLettered.
func (w *CommandWriter) Persist(ctx context.Context, record outbox.Record[event.CommandEnvelope]) error {
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
			UPDATE command_outbox
			SET published_at = $1, attempt_count = $2, lease_owner = NULL, lease_until = NULL,
				last_error_kind = NULL, last_error_code = NULL, last_error_message = NULL
			WHERE id = $3
		`, publishedAt, record.State.AttemptCount().Value(), record.ID.String())
		if err != nil {
			return fmt.Errorf("persist published command outbox row %s: %w", record.ID, err)
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
			UPDATE command_outbox
			SET attempt_count = $1, next_attempt_after = $2, lease_owner = NULL, lease_until = NULL,
				last_error_kind = NULLIF($3, ''), last_error_code = NULLIF($4, ''), last_error_message = NULLIF($5, '')
			WHERE id = $6
		`, record.State.AttemptCount().Value(), nextAttemptAfter, kind, code, message, record.ID.String())
		if err != nil {
			return fmt.Errorf("persist pending command outbox row %s: %w", record.ID, err)
		}

		return nil
	default:
		return fmt.Errorf("persist command outbox row %s: unexpected status %s", record.ID, record.State.Status())
	}
}

func (w *CommandWriter) moveToDeadLetters(ctx context.Context, record outbox.Record[event.CommandEnvelope]) error {
	var kind, code, message string
	if record.LastError != nil {
		kind, code, message = string(record.LastError.Kind), record.LastError.Code, record.LastError.Message
	}

	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO command_dead_letters (
			id, sequence, message_id, correlation_id, causation_id, ordering_key,
			command_name, payload, context, attempt_count, last_error_kind,
			last_error_code, last_error_message, dead_lettered_at
		)
		SELECT id, sequence, message_id, correlation_id, causation_id, ordering_key,
			command_name, payload, context, $1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5
		FROM command_outbox
		WHERE id = $6
	`, record.State.AttemptCount().Value(), kind, code, message, record.Lifecycle.DeadLetteredAt(), record.ID.String())
	if err != nil {
		return fmt.Errorf("insert command dead letter %s: %w", record.ID, err)
	}

	if _, err := w.tx.ExecContext(ctx, `DELETE FROM command_outbox WHERE id = $1`, record.ID.String()); err != nil {
		return fmt.Errorf("delete dead-lettered command outbox row %s: %w", record.ID, err)
	}

	return nil
}
