// Package pgcheckpoint is the Postgres-backed CheckpointStore and
// ProcessedEventRecorder for internal/projection (spec.md §4.8), plus an
// EventFeed reading the events table directly for the Rebuilder.
package pgcheckpoint

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/outbox/pgoutbox"
	"github.com/correlator-io/outboxkit/internal/projection"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// Store implements projection.CheckpointStore and
// projection.ProcessedEventRecorder against projection_checkpoints and
// projector_processed_events.
type Store struct{}

// New builds a Store.
func New() *Store { return &Store{} }

var (
	_ projection.CheckpointStore        = (*Store)(nil)
	_ projection.ProcessedEventRecorder = (*Store)(nil)
)

func (s *Store) Load(ctx context.Context, work uow.UnitOfWork, name names.ProjectorName) (int64, bool, error) {
	tx := work.Tx()
	if tx == nil {
		return 0, false, fmt.Errorf("load checkpoint: %w", uow.ErrNotInTransaction)
	}

	var sequence int64

	err := tx.QueryRowContext(ctx, `
		SELECT last_event_sequence FROM projection_checkpoints WHERE projector_name = $1
	`, string(name)).Scan(&sequence)

	switch {
	case err == nil:
		return sequence, true, nil
	case err == sql.ErrNoRows: //nolint:errorlint // sentinel comparison is the documented contract
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("load checkpoint %s: %w", name, err)
	}
}

func (s *Store) Save(ctx context.Context, work uow.UnitOfWork, name names.ProjectorName, sequence int64) error {
	tx := work.Tx()
	if tx == nil {
		return fmt.Errorf("save checkpoint: %w", uow.ErrNotInTransaction)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projection_checkpoints (projector_name, last_event_sequence, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (projector_name)
		DO UPDATE SET last_event_sequence = EXCLUDED.last_event_sequence, updated_at = now()
	`, string(name), sequence)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", name, err)
	}

	return nil
}

func (s *Store) Reset(ctx context.Context, work uow.UnitOfWork, name names.ProjectorName) error {
	tx := work.Tx()
	if tx == nil {
		return fmt.Errorf("reset checkpoint: %w", uow.ErrNotInTransaction)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM projection_checkpoints WHERE projector_name = $1`, string(name)); err != nil {
		return fmt.Errorf("reset checkpoint %s: %w", name, err)
	}

	return nil
}

// MarkProcessed inserts (name, eventID) into projector_processed_events,
// reporting true when the row already existed. The conflict is absorbed by
// ON CONFLICT DO NOTHING, so the transaction stays usable and can commit.
func (s *Store) MarkProcessed(ctx context.Context, work uow.UnitOfWork, name names.ProjectorName, eventID ids.EventId) (bool, error) {
	tx := work.Tx()
	if tx == nil {
		return false, fmt.Errorf("mark processed: %w", uow.ErrNotInTransaction)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO projector_processed_events (projector_name, event_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, string(name), eventID.String())
	if err != nil {
		return false, fmt.Errorf("mark processed %s/%s: %w", name, eventID, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processed %s/%s: rows affected: %w", name, eventID, err)
	}

	return inserted == 0, nil
}

// EventFeed reads the events table directly, ordered by event_sequence,
// for Rebuilder replay.
type EventFeed struct {
	db *sql.DB
}

// NewEventFeed builds an EventFeed over db (not a Unit of Work: the
// Rebuilder's reads are not transactionally tied to the checkpoint writes
// that follow each event, per spec.md §4.8).
func NewEventFeed(db *sql.DB) *EventFeed { return &EventFeed{db: db} }

var _ projection.EventFeed = (*EventFeed)(nil)

func (f *EventFeed) FetchAfter(ctx context.Context, afterSequence int64, batchSize int) ([]event.Event, error) {
	rows, err := f.db.QueryContext(ctx, `
		SELECT event_sequence, id, aggregate_type, aggregate_id, aggregate_version,
			event_name, payload, occurred_at, correlation_id, causation_id, context
		FROM events
		WHERE event_sequence > $1
		ORDER BY event_sequence ASC
		LIMIT $2
	`, afterSequence, batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch events after %d: %w", afterSequence, err)
	}
	defer func() { _ = rows.Close() }()

	var events []event.Event

	for rows.Next() {
		ev, err := pgoutbox.ScanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}
