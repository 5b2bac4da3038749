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

// CommandFetcher selects batches of ready command_outbox rows. Unlike the
// event outbox, commands carry no gap-block predicate: ordering is the
// transport's job, partitioning by ordering_key (spec.md §4.3, §6).
type CommandFetcher struct {
	tx *sql.Tx
}

// NewCommandFetcher wraps the transaction the relay's Unit of Work opened.
func NewCommandFetcher(tx *sql.Tx) *CommandFetcher {
	return &CommandFetcher{tx: tx}
}

const commandFetchQuery = `
SELECT id, sequence, message_id, correlation_id, causation_id, ordering_key,
	command_name, payload, context, attempt_count, next_attempt_after
FROM command_outbox
WHERE published_at IS NULL
	AND next_attempt_after <= now()
	AND (lease_until IS NULL OR lease_until < now())
ORDER BY next_attempt_after ASC, sequence ASC
LIMIT $1
FOR UPDATE SKIP LOCKED
`

// FetchBatch returns up to batchSize ready rows, already leased to owner.
func (f *CommandFetcher) FetchBatch(
	ctx context.Context,
	batchSize int,
	owner outbox.RelayInstance,
	leaseFor time.Duration,
) ([]outbox.Record[event.CommandEnvelope], error) {
	rows, err := f.tx.QueryContext(ctx, commandFetchQuery, batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch command outbox batch: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []outbox.Record[event.CommandEnvelope]

	for rows.Next() {
		record, err := scanCommandRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan command outbox row: %w", err)
		}

		if err := record.AcquireLease(owner, leaseFor); err != nil {
			return nil, fmt.Errorf("lease command outbox row %s: %w", record.ID, err)
		}

		leaseOwner, err := record.State.LeaseOwner()
		if err != nil {
			return nil, err
		}

		until, err := record.State.LeaseUntil()
		if err != nil {
			return nil, err
		}

		if _, err := f.tx.ExecContext(ctx, `
			UPDATE command_outbox SET lease_owner = $1, lease_until = $2 WHERE id = $3
		`, leaseOwner.String(), until, record.ID.String()); err != nil {
			return nil, fmt.Errorf("persist lease for command outbox row %s: %w", record.ID, err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command outbox rows: %w", err)
	}

	return records, nil
}

func scanCommandRow(rows *sql.Rows) (outbox.Record[event.CommandEnvelope], error) {
	var (
		outboxID, messageID, correlationID, causationID string
		orderingKey, commandName                        string
		payloadRaw, contextRaw                           []byte
		sequence, attemptCount                           int64
		nextAttemptAfter                                 time.Time
	)

	if err := rows.Scan(
		&outboxID, &sequence, &messageID, &correlationID, &causationID,
		&orderingKey, &commandName, &payloadRaw, &contextRaw,
		&attemptCount, &nextAttemptAfter,
	); err != nil {
		return outbox.Record[event.CommandEnvelope]{}, err
	}

	id, err := ids.ParseOutboxId(outboxID)
	if err != nil {
		return outbox.Record[event.CommandEnvelope]{}, fmt.Errorf("parse outbox id: %w", err)
	}

	msgID, err := ids.ParseMessageId(messageID)
	if err != nil {
		return outbox.Record[event.CommandEnvelope]{}, fmt.Errorf("parse message id: %w", err)
	}

	corrID, err := ids.ParseCorrelationId(correlationID)
	if err != nil {
		return outbox.Record[event.CommandEnvelope]{}, fmt.Errorf("parse correlation id: %w", err)
	}

	causeID, err := ids.ParseCausationId(causationID)
	if err != nil {
		return outbox.Record[event.CommandEnvelope]{}, fmt.Errorf("parse causation id: %w", err)
	}

	name, err := names.NewCommandName(commandName)
	if err != nil {
		return outbox.Record[event.CommandEnvelope]{}, fmt.Errorf("parse command name: %w", err)
	}

	payload, err := event.NewPayload(payloadRaw)
	if err != nil {
		return outbox.Record[event.CommandEnvelope]{}, fmt.Errorf("parse command payload: %w", err)
	}

	var reqCtx event.RequestContext
	if err := json.Unmarshal(contextRaw, &reqCtx); err != nil {
		return outbox.Record[event.CommandEnvelope]{}, fmt.Errorf("unmarshal request context: %w", err)
	}

	envelope := event.CommandEnvelope{
		MessageId:     msgID,
		CorrelationId: corrID,
		CausationId:   causeID,
		OrderingKey:   event.OrderingKey(orderingKey),
		CommandName:   name,
		Payload:       payload,
		Context:       reqCtx,
	}

	count, err := outbox.NewAttemptCount(attemptCount)
	if err != nil {
		return outbox.Record[event.CommandEnvelope]{}, err
	}

	record := outbox.NewRecord(id, sequence, envelope)
	record.State = outbox.PendingState(count, nextAttemptAfter)

	return record, nil
}
