package relay_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/outbox"
	"github.com/correlator-io/outboxkit/internal/relay"
	"github.com/correlator-io/outboxkit/internal/uow"
)

type payload struct{ value string }

type fakeUnitOfWork struct{ active bool }

func (f *fakeUnitOfWork) Begin(context.Context) error                  { f.active = true; return nil }
func (f *fakeUnitOfWork) InTransaction() bool                          { return f.active }
func (f *fakeUnitOfWork) Commit() error                                { f.active = false; return nil }
func (f *fakeUnitOfWork) Rollback() error                              { f.active = false; return nil }
func (f *fakeUnitOfWork) RollbackWithOperationError(opErr error) error { _ = f.Rollback(); return opErr }
func (f *fakeUnitOfWork) Tx() *sql.Tx                                  { return nil }

type fakeFactory struct{}

func (fakeFactory) New() uow.UnitOfWork { return &fakeUnitOfWork{} }

type fakeFetcher struct {
	batches [][]outbox.Record[payload]
	calls   int
}

func (f *fakeFetcher) FetchBatch(
	context.Context, int, outbox.RelayInstance, time.Duration,
) ([]outbox.Record[payload], error) {
	if f.calls >= len(f.batches) {
		return nil, nil
	}

	batch := f.batches[f.calls]
	f.calls++

	return batch, nil
}

type fakeWriter struct {
	persisted []outbox.Record[payload]
}

func (w *fakeWriter) Persist(_ context.Context, record outbox.Record[payload]) error {
	w.persisted = append(w.persisted, record)

	return nil
}

type fakePublisher struct {
	outcomes []relay.PublishOutcome
}

func (p *fakePublisher) Publish(context.Context, []outbox.Record[payload]) ([]relay.PublishOutcome, error) {
	return p.outcomes, nil
}

func newTestRecord(t *testing.T) outbox.Record[payload] {
	t.Helper()

	id, err := ids.NewOutboxId()
	require.NoError(t, err)

	record := outbox.NewRecord(id, 1, payload{value: "hello"})
	owner, err := outbox.NewRelayInstance("relay-1", 1)
	require.NoError(t, err)
	require.NoError(t, record.AcquireLease(owner, time.Minute))

	return record
}

func testOptions() relay.Options {
	retry, _ := outbox.NewRetryOptions(time.Second, 5)
	multiplier, _ := outbox.NewBackoffMultiplier(2.0)
	jitter, _ := outbox.NewJitterRatio(0)
	poll, _ := outbox.NewPollingOptions(time.Millisecond, 10*time.Millisecond, multiplier, jitter)

	return relay.Options{BatchSize: 10, LeaseFor: time.Minute, Retry: retry, Poll: poll}
}

func TestRelay_RunOnceAcksSuccessfulPublish(t *testing.T) {
	record := newTestRecord(t)
	fetcher := &fakeFetcher{batches: [][]outbox.Record[payload]{{record}}}
	writer := &fakeWriter{}
	publisher := &fakePublisher{outcomes: []relay.PublishOutcome{{Success: true}}}
	owner, err := outbox.NewRelayInstance("relay-1", 1)
	require.NoError(t, err)

	r := relay.New[payload](
		fakeFactory{},
		func(*sql.Tx) relay.Fetcher[payload] { return fetcher },
		func(*sql.Tx) relay.Writer[payload] { return writer },
		publisher, owner, testOptions(), nil,
	)

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Idle)
	assert.Equal(t, 1, report.Count)
	require.Len(t, writer.persisted, 1)
	assert.Equal(t, outbox.StatusPublished, writer.persisted[0].State.Status())
}

func TestRelay_RunOnceNacksFailedPublish(t *testing.T) {
	record := newTestRecord(t)
	fetcher := &fakeFetcher{batches: [][]outbox.Record[payload]{{record}}}
	writer := &fakeWriter{}
	publisher := &fakePublisher{
		outcomes: []relay.PublishOutcome{{Success: false, Cause: outbox.TransientDispatchError("timeout", "timeout")}},
	}
	owner, err := outbox.NewRelayInstance("relay-1", 1)
	require.NoError(t, err)

	r := relay.New[payload](
		fakeFactory{},
		func(*sql.Tx) relay.Fetcher[payload] { return fetcher },
		func(*sql.Tx) relay.Writer[payload] { return writer },
		publisher, owner, testOptions(), nil,
	)

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count)
	require.Len(t, writer.persisted, 1)
	assert.Equal(t, outbox.StatusPending, writer.persisted[0].State.Status())
}

func TestRelay_RunOnceReportsIdleOnEmptyBatch(t *testing.T) {
	fetcher := &fakeFetcher{}
	writer := &fakeWriter{}
	publisher := &fakePublisher{}
	owner, err := outbox.NewRelayInstance("relay-1", 1)
	require.NoError(t, err)

	r := relay.New[payload](
		fakeFactory{},
		func(*sql.Tx) relay.Fetcher[payload] { return fetcher },
		func(*sql.Tx) relay.Writer[payload] { return writer },
		publisher, owner, testOptions(), nil,
	)

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Idle)
}

func TestRelay_RunStopsWhenRequested(t *testing.T) {
	fetcher := &fakeFetcher{}
	writer := &fakeWriter{}
	publisher := &fakePublisher{}
	owner, err := outbox.NewRelayInstance("relay-1", 1)
	require.NoError(t, err)

	r := relay.New[payload](
		fakeFactory{},
		func(*sql.Tx) relay.Fetcher[payload] { return fetcher },
		func(*sql.Tx) relay.Writer[payload] { return writer },
		publisher, owner, testOptions(), nil,
	)

	stopped := false
	err = r.Run(context.Background(), func() bool {
		alreadyStopped := stopped
		stopped = true

		return alreadyStopped
	})
	require.NoError(t, err)
}
