package pgsaga

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// Enqueuer is the Postgres-backed saga.CommandEnqueuer, inserting one
// fresh row into command_outbox per drafted command, in the same
// transaction as the saga state advance (spec.md §4.9 step 6).
type Enqueuer struct{}

// NewEnqueuer builds an Enqueuer. It carries no state, matching the
// teacher's per-call *sql.Tx style.
func NewEnqueuer() *Enqueuer { return &Enqueuer{} }

// Enqueue inserts cmd into command_outbox.
func (e *Enqueuer) Enqueue(ctx context.Context, work uow.UnitOfWork, cmd event.CommandEnvelope) error {
	tx := work.Tx()
	if tx == nil {
		return ErrNotInTransaction
	}

	outboxID, err := ids.NewOutboxId()
	if err != nil {
		return fmt.Errorf("generate command outbox id: %w", err)
	}

	contextJSON, err := json.Marshal(cmd.Context)
	if err != nil {
		return fmt.Errorf("marshal command context: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO command_outbox (
			id, message_id, correlation_id, causation_id, ordering_key,
			command_name, payload, context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		outboxID.String(), cmd.MessageId.String(), cmd.CorrelationId.String(), cmd.CausationId.String(),
		cmd.OrderingKey.String(), cmd.CommandName.String(), cmd.Payload.Bytes(), contextJSON,
	); err != nil {
		return fmt.Errorf("insert command outbox row for message %s: %w", cmd.MessageId, err)
	}

	return nil
}
