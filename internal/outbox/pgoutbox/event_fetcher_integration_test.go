package pgoutbox_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/eventwriter"
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/outbox"
	"github.com/correlator-io/outboxkit/internal/outbox/pgoutbox"
	"github.com/correlator-io/outboxkit/internal/pgtest"
	"github.com/correlator-io/outboxkit/internal/uow"
)

func appendOrderEvent(t *testing.T, ctx context.Context, factory *uow.Factory, aggregateID string, version int64) {
	t.Helper()

	aggType, err := names.NewAggregateType("order")
	require.NoError(t, err)
	aggID, err := event.NewAggregateId(aggregateID)
	require.NoError(t, err)
	eventName, err := names.NewEventName("order_placed")
	require.NoError(t, err)
	eventID, err := ids.NewEventId()
	require.NoError(t, err)
	correlationID, err := ids.NewCorrelationId()
	require.NoError(t, err)
	causationID, err := ids.NewCausationId()
	require.NoError(t, err)
	payload, err := event.NewPayload([]byte(`{"total":10}`))
	require.NoError(t, err)

	ev := event.Event{
		EventId:          eventID,
		AggregateType:    aggType,
		AggregateId:      aggID,
		AggregateVersion: version,
		EventName:        eventName,
		Payload:          payload,
		OccurredAt:       time.Now().UTC(),
		CorrelationId:    correlationID,
		CausationId:      causationID,
	}

	work := factory.New()
	require.NoError(t, work.Begin(ctx))

	writer := eventwriter.New()
	require.NoError(t, writer.Append(ctx, work.Tx(), ev))
	require.NoError(t, work.Commit())
}

func countRows(t *testing.T, ctx context.Context, db *sql.DB, table, aggregateID string) int {
	t.Helper()

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT count(*) FROM "+table+" WHERE aggregate_id = $1", aggregateID).Scan(&count))

	return count
}

func TestEventFetcher_AtomicWrite(t *testing.T) {
	db := pgtest.Open(t)
	factory := uow.NewFactory(db)
	ctx := context.Background()

	appendOrderEvent(t, ctx, factory, "order-atomic", 1)

	assert.Equal(t, 1, countRows(t, ctx, db, "events", "order-atomic"))
	assert.Equal(t, 1, countRows(t, ctx, db, "event_outbox", "order-atomic"))
}

func TestEventFetcher_NoGapPublication(t *testing.T) {
	db := pgtest.Open(t)
	factory := uow.NewFactory(db)
	ctx := context.Background()

	appendOrderEvent(t, ctx, factory, "order-gap", 1)
	appendOrderEvent(t, ctx, factory, "order-gap", 2)

	owner, err := outbox.NewRelayInstance("test-instance", 1)
	require.NoError(t, err)

	work := factory.New()
	require.NoError(t, work.Begin(ctx))

	fetcher := pgoutbox.NewEventFetcher(work.Tx())
	batch, err := fetcher.FetchBatch(ctx, 10, owner, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1, "version 2 must stay blocked behind unpublished version 1")
	assert.Equal(t, int64(1), batch[0].Payload.Event.AggregateVersion)

	writer := pgoutbox.NewEventWriter(work.Tx())
	require.NoError(t, batch[0].Ack())
	require.NoError(t, writer.Persist(ctx, batch[0]))
	require.NoError(t, work.Commit())

	work2 := factory.New()
	require.NoError(t, work2.Begin(ctx))

	fetcher2 := pgoutbox.NewEventFetcher(work2.Tx())
	batch2, err := fetcher2.FetchBatch(ctx, 10, owner, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch2, 1, "version 2 is fetchable once version 1 is published")
	assert.Equal(t, int64(2), batch2[0].Payload.Event.AggregateVersion)
	require.NoError(t, work2.Rollback())
}

func TestEventFetcher_NoGapPublication_BlockedByBackoff(t *testing.T) {
	db := pgtest.Open(t)
	factory := uow.NewFactory(db)
	ctx := context.Background()

	appendOrderEvent(t, ctx, factory, "order-gap-backoff", 1)
	appendOrderEvent(t, ctx, factory, "order-gap-backoff", 2)

	owner, err := outbox.NewRelayInstance("test-instance", 1)
	require.NoError(t, err)

	work := factory.New()
	require.NoError(t, work.Begin(ctx))

	fetcher := pgoutbox.NewEventFetcher(work.Tx())
	batch, err := fetcher.FetchBatch(ctx, 10, owner, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1, "only version 1 is due on the first fetch")
	assert.Equal(t, int64(1), batch[0].Payload.Event.AggregateVersion)

	retry, err := outbox.NewRetryOptions(time.Hour, 5)
	require.NoError(t, err)
	require.NoError(t, batch[0].Nack(outbox.TransientDispatchError("broker_temporary_error", "timeout"), retry))
	assert.False(t, batch[0].Lifecycle.IsDeadLettered())

	writer := pgoutbox.NewEventWriter(work.Tx())
	require.NoError(t, writer.Persist(ctx, batch[0]))
	require.NoError(t, work.Commit())

	work2 := factory.New()
	require.NoError(t, work2.Begin(ctx))

	fetcher2 := pgoutbox.NewEventFetcher(work2.Tx())
	batch2, err := fetcher2.FetchBatch(ctx, 10, owner, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, batch2,
		"version 2 must stay blocked while version 1 is unpublished, even though version 1 is in backoff and not ready itself")
	require.NoError(t, work2.Rollback())
}

func TestEventFetcher_MutualExclusionByLease(t *testing.T) {
	db := pgtest.Open(t)
	factory := uow.NewFactory(db)
	ctx := context.Background()

	appendOrderEvent(t, ctx, factory, "order-lease", 1)

	ownerA, err := outbox.NewRelayInstance("relay-a", 1)
	require.NoError(t, err)
	ownerB, err := outbox.NewRelayInstance("relay-b", 2)
	require.NoError(t, err)

	workA := factory.New()
	require.NoError(t, workA.Begin(ctx))

	fetcherA := pgoutbox.NewEventFetcher(workA.Tx())
	batchA, err := fetcherA.FetchBatch(ctx, 10, ownerA, time.Minute)
	require.NoError(t, err)
	require.Len(t, batchA, 1)
	require.NoError(t, workA.Commit())

	workB := factory.New()
	require.NoError(t, workB.Begin(ctx))

	fetcherB := pgoutbox.NewEventFetcher(workB.Tx())
	batchB, err := fetcherB.FetchBatch(ctx, 10, ownerB, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, batchB, "a row leased by relay A must not be returned to relay B before lease_until")
	require.NoError(t, workB.Rollback())
}

func TestEventWriter_MovesDeadLettersOnPermanentNack(t *testing.T) {
	db := pgtest.Open(t)
	factory := uow.NewFactory(db)
	ctx := context.Background()

	appendOrderEvent(t, ctx, factory, "order-dlq", 1)

	owner, err := outbox.NewRelayInstance("test-instance", 1)
	require.NoError(t, err)

	work := factory.New()
	require.NoError(t, work.Begin(ctx))

	fetcher := pgoutbox.NewEventFetcher(work.Tx())
	batch, err := fetcher.FetchBatch(ctx, 10, owner, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	retry, err := outbox.NewRetryOptions(time.Second, 3)
	require.NoError(t, err)
	require.NoError(t, batch[0].Nack(outbox.PermanentDispatchError("invalid_topic", "invalid topic"), retry))
	assert.True(t, batch[0].Lifecycle.IsDeadLettered())

	writer := pgoutbox.NewEventWriter(work.Tx())
	require.NoError(t, writer.Persist(ctx, batch[0]))
	require.NoError(t, work.Commit())

	assert.Equal(t, 0, countRows(t, ctx, db, "event_outbox", "order-dlq"))
	assert.Equal(t, 1, countRows(t, ctx, db, "event_dead_letters", "order-dlq"))
}
