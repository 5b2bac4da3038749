// Package pgsaga is the Postgres-backed Store and CommandEnqueuer for
// internal/saga, persisting saga_instances and saga_processed_events
// (migrations/007_sagas.up.sql) and enqueuing into command_outbox
// (migrations/003_command_outbox.up.sql).
package pgsaga

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/saga"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// ErrNotInTransaction is returned when a caller passes a UnitOfWork with
// no active transaction.
var ErrNotInTransaction = errors.New("saga store: unit of work is not in a transaction")

// Store is the Postgres-backed saga.Store.
type Store struct{}

// New builds a Store. It carries no state, matching the teacher's
// per-call *sql.Tx style for components sharing a caller's Unit of Work.
func New() *Store { return &Store{} }

// LoadOrCreate loads the (name, correlationID) saga_instances row
// FOR UPDATE, creating a fresh in_progress row with nil state on first
// touch (spec.md §4.9 step 1).
func (s *Store) LoadOrCreate(
	ctx context.Context, work uow.UnitOfWork, name names.SagaName, correlationID ids.CorrelationId,
) (*saga.Instance, error) {
	tx := work.Tx()
	if tx == nil {
		return nil, ErrNotInTransaction
	}

	instance, found, err := load(ctx, tx, name, correlationID)
	if err != nil {
		return nil, err
	}

	if found {
		return instance, nil
	}

	return create(ctx, tx, name, correlationID)
}

func load(
	ctx context.Context, tx *sql.Tx, name names.SagaName, correlationID ids.CorrelationId,
) (*saga.Instance, bool, error) {
	var (
		instanceID          string
		status              string
		state, lastError    sql.NullString
		stateVersion        int64
		succeededAt         sql.NullTime
		failedAt            sql.NullTime
	)

	err := tx.QueryRowContext(ctx, `
		SELECT saga_instance_id, status, state, state_version, succeeded_at, failed_at, last_error
		FROM saga_instances
		WHERE saga_name = $1 AND correlation_id = $2
		FOR UPDATE
	`, string(name), correlationID.String()).Scan(
		&instanceID, &status, &state, &stateVersion, &succeededAt, &failedAt, &lastError,
	)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("load saga instance %s/%s: %w", name, correlationID, err)
	}

	id, err := ids.ParseSagaInstanceId(instanceID)
	if err != nil {
		return nil, false, fmt.Errorf("parse saga instance id: %w", err)
	}

	instance := &saga.Instance{
		SagaInstanceId: id,
		SagaName:       name,
		CorrelationId:  correlationID,
		Status:         saga.Status(status),
		StateVersion:   stateVersion,
	}

	if state.Valid {
		instance.State = json.RawMessage(state.String)
	}

	if lastError.Valid {
		instance.LastError = json.RawMessage(lastError.String)
	}

	if succeededAt.Valid {
		instance.SucceededAt = succeededAt.Time
	}

	if failedAt.Valid {
		instance.FailedAt = failedAt.Time
	}

	return instance, true, nil
}

func create(ctx context.Context, tx *sql.Tx, name names.SagaName, correlationID ids.CorrelationId) (*saga.Instance, error) {
	instanceID, err := ids.NewSagaInstanceId()
	if err != nil {
		return nil, fmt.Errorf("generate saga instance id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO saga_instances (saga_instance_id, saga_name, correlation_id, status, state_version)
		VALUES ($1, $2, $3, $4, 0)
	`, instanceID.String(), string(name), correlationID.String(), string(saga.StatusInProgress)); err != nil {
		return nil, fmt.Errorf("create saga instance %s/%s: %w", name, correlationID, err)
	}

	return &saga.Instance{
		SagaInstanceId: instanceID,
		SagaName:       name,
		CorrelationId:  correlationID,
		Status:         saga.StatusInProgress,
	}, nil
}

// ErrOptimisticLock is returned by Save when instance.StateVersion no
// longer matches the persisted row, meaning a concurrent writer advanced
// it first.
var ErrOptimisticLock = errors.New("saga store: state_version conflict")

// Save persists instance's state, status, and timestamps, incrementing
// state_version as an optimistic lock against concurrent advances of the
// same saga instance (spec.md §4.9 step 5). The caller's LoadOrCreate
// already took FOR UPDATE, so under normal operation this never
// conflicts; it guards the case of a caller reusing a stale Instance.
func (s *Store) Save(ctx context.Context, work uow.UnitOfWork, instance *saga.Instance) error {
	tx := work.Tx()
	if tx == nil {
		return ErrNotInTransaction
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE saga_instances
		SET status = $1, state = $2, state_version = state_version + 1,
			succeeded_at = $3, failed_at = $4, last_error = $5
		WHERE saga_instance_id = $6 AND state_version = $7
	`,
		string(instance.Status), nullableJSON(instance.State), nullableTime(instance.SucceededAt),
		nullableTime(instance.FailedAt), nullableJSON(instance.LastError),
		instance.SagaInstanceId.String(), instance.StateVersion,
	)
	if err != nil {
		return fmt.Errorf("save saga instance %s: %w", instance.SagaInstanceId, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save saga instance %s: rows affected: %w", instance.SagaInstanceId, err)
	}

	if rows == 0 {
		return ErrOptimisticLock
	}

	instance.StateVersion++

	return nil
}

// MarkProcessed inserts (name, correlationID, eventID) into
// saga_processed_events, reporting true if it already existed
// (spec.md §4.9 step 3).
func (s *Store) MarkProcessed(
	ctx context.Context, work uow.UnitOfWork, name names.SagaName, correlationID ids.CorrelationId, eventID ids.EventId,
) (bool, error) {
	tx := work.Tx()
	if tx == nil {
		return false, ErrNotInTransaction
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO saga_processed_events (saga_name, correlation_id, event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, string(name), correlationID.String(), eventID.String())
	if err != nil {
		return false, fmt.Errorf("mark saga event processed %s/%s/%s: %w", name, correlationID, eventID, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark saga event processed %s/%s/%s: rows affected: %w", name, correlationID, eventID, err)
	}

	return inserted == 0, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}

	return []byte(raw)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t
}
