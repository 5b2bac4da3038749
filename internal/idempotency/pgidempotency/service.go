// Package pgidempotency is the Postgres-backed Idempotency Service
// (spec.md §4.7), grounded in pgoutbox's query-by-query style over
// github.com/lib/pq.
package pgidempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/correlator-io/outboxkit/internal/idempotency"
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// lockNotAvailable is Postgres SQLSTATE 55P03, raised by SELECT ... FOR
// UPDATE NOWAIT when the row is held by another transaction. spec.md §4.7
// requires this be mapped to InProgress, same as a fresh in-flight row.
const lockNotAvailable = "55P03"

// Service implements idempotency.Service against the idempotency table.
type Service struct{}

// New builds a Service. It carries no state; every method runs against the
// caller-supplied Unit of Work's transaction.
func New() *Service { return &Service{} }

var _ idempotency.Service = (*Service)(nil)

func (s *Service) Begin(
	ctx context.Context,
	work uow.UnitOfWork,
	messageID ids.MessageId,
	commandName names.CommandName,
	commandHash string,
) (idempotency.Outcome, error) {
	tx := work.Tx()
	if tx == nil {
		return idempotency.Outcome{}, fmt.Errorf("idempotency begin: %w", uow.ErrNotInTransaction)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency (message_id, command_name, command_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id) DO NOTHING
	`, messageID.String(), string(commandName), commandHash)
	if err != nil {
		return idempotency.Outcome{}, fmt.Errorf("insert idempotency row %s: %w", messageID, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return idempotency.Outcome{}, fmt.Errorf("insert idempotency row %s: rows affected: %w", messageID, err)
	}

	if inserted == 1 {
		return idempotency.NewOutcome(), nil
	}

	return s.resolveExisting(ctx, tx, messageID, commandName, commandHash)
}

// resolveExisting loads the row that caused the insert conflict and
// classifies it per spec.md §4.7's Begin contract.
func (s *Service) resolveExisting(
	ctx context.Context,
	tx *sql.Tx,
	messageID ids.MessageId,
	commandName names.CommandName,
	commandHash string,
) (idempotency.Outcome, error) {
	var (
		existingName, existingHash string
		completedAt                sql.NullTime
		output, failure            []byte
	)

	err := tx.QueryRowContext(ctx, `
		SELECT command_name, command_hash, completed_at, output, error
		FROM idempotency
		WHERE message_id = $1
		FOR UPDATE NOWAIT
	`, messageID.String()).Scan(&existingName, &existingHash, &completedAt, &output, &failure)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == lockNotAvailable {
			return idempotency.InProgressOutcome(), nil
		}

		return idempotency.Outcome{}, fmt.Errorf("read conflicting idempotency row %s: %w", messageID, err)
	}

	if existingName != string(commandName) || existingHash != commandHash {
		return idempotency.Outcome{}, fmt.Errorf("%w: %s", idempotency.ErrConflict, messageID)
	}

	if !completedAt.Valid {
		return idempotency.InProgressOutcome(), nil
	}

	if failure != nil {
		return idempotency.FailedOutcome(json.RawMessage(failure)), nil
	}

	return idempotency.SucceededOutcome(json.RawMessage(output)), nil
}

func (s *Service) CompleteSuccess(ctx context.Context, work uow.UnitOfWork, messageID ids.MessageId, output json.RawMessage) error {
	return s.complete(ctx, work, messageID, output, nil)
}

func (s *Service) CompleteFailure(ctx context.Context, work uow.UnitOfWork, messageID ids.MessageId, failure json.RawMessage) error {
	return s.complete(ctx, work, messageID, nil, failure)
}

func (s *Service) complete(ctx context.Context, work uow.UnitOfWork, messageID ids.MessageId, output, failure json.RawMessage) error {
	tx := work.Tx()
	if tx == nil {
		return fmt.Errorf("idempotency complete: %w", uow.ErrNotInTransaction)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE idempotency
		SET completed_at = now(), output = $2, error = $3
		WHERE message_id = $1 AND completed_at IS NULL
	`, messageID.String(), output, failure)
	if err != nil {
		return fmt.Errorf("complete idempotency row %s: %w", messageID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete idempotency row %s: %w", messageID, err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", idempotency.ErrInvalidStateTransition, messageID)
	}

	return nil
}
