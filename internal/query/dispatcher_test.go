package query_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/query"
	"github.com/correlator-io/outboxkit/internal/uow"
)

type fakeUnitOfWork struct{ active bool }

func (f *fakeUnitOfWork) Begin(context.Context) error                  { f.active = true; return nil }
func (f *fakeUnitOfWork) InTransaction() bool                          { return f.active }
func (f *fakeUnitOfWork) Commit() error                                { f.active = false; return nil }
func (f *fakeUnitOfWork) Rollback() error                              { f.active = false; return nil }
func (f *fakeUnitOfWork) RollbackWithOperationError(opErr error) error { _ = f.Rollback(); return opErr }
func (f *fakeUnitOfWork) Tx() *sql.Tx                                  { return nil }

type fakeFactory struct{}

func (fakeFactory) New() uow.UnitOfWork { return &fakeUnitOfWork{} }

type fakeResolver struct {
	sequence int64
	ok       bool
}

func (r fakeResolver) ResolveTarget(context.Context, uow.UnitOfWork, ids.MessageId) (int64, bool, error) {
	return r.sequence, r.ok, nil
}

type fakeCheckpointStore struct {
	sequences []int64
	calls     int
}

func (s *fakeCheckpointStore) Load(context.Context, uow.UnitOfWork, names.ProjectorName) (int64, bool, error) {
	idx := s.calls
	if idx >= len(s.sequences) {
		idx = len(s.sequences) - 1
	}

	s.calls++

	return s.sequences[idx], true, nil
}

func (s *fakeCheckpointStore) Save(context.Context, uow.UnitOfWork, names.ProjectorName, int64) error {
	return nil
}

func (s *fakeCheckpointStore) Reset(context.Context, uow.UnitOfWork, names.ProjectorName) error {
	return nil
}

func TestDispatcher_EventualRunsImmediately(t *testing.T) {
	dispatcher := query.New(fakeFactory{}, fakeResolver{}, &fakeCheckpointStore{})

	ran := false
	result, err := dispatcher.Run(context.Background(), query.Eventual{}, func(context.Context) (any, error) {
		ran = true
		return "ok", nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, "ok", result)
}

func TestDispatcher_ReadYourWritesWaitsForCheckpoint(t *testing.T) {
	messageID, err := ids.NewMessageId()
	require.NoError(t, err)

	resolver := fakeResolver{sequence: 10, ok: true}
	checkpoint := &fakeCheckpointStore{sequences: []int64{5, 7, 10}}
	dispatcher := query.New(fakeFactory{}, resolver, checkpoint)

	result, err := dispatcher.Run(context.Background(), query.ReadYourWrites{
		Projector:    "order_summary",
		After:        messageID,
		Timeout:      time.Second,
		PollInterval: time.Millisecond,
	}, func(context.Context) (any, error) {
		return "caught up", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "caught up", result)
	assert.GreaterOrEqual(t, checkpoint.calls, 3)
}

func TestDispatcher_ReadYourWritesTimesOut(t *testing.T) {
	messageID, err := ids.NewMessageId()
	require.NoError(t, err)

	resolver := fakeResolver{sequence: 99, ok: true}
	checkpoint := &fakeCheckpointStore{sequences: []int64{1}}
	dispatcher := query.New(fakeFactory{}, resolver, checkpoint)

	_, err = dispatcher.Run(context.Background(), query.ReadYourWrites{
		Projector:    "order_summary",
		After:        messageID,
		Timeout:      20 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}, func(context.Context) (any, error) {
		t.Fatal("fn should not run before the projector catches up")
		return nil, nil
	})

	require.Error(t, err)
	assert.True(t, query.IsTimeout(err))

	var timeoutErr *query.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "order_summary", timeoutErr.Projector)
	assert.Equal(t, int64(99), timeoutErr.Target)
}

func TestDispatcher_UnknownMessageID(t *testing.T) {
	messageID, err := ids.NewMessageId()
	require.NoError(t, err)

	resolver := fakeResolver{ok: false}
	checkpoint := &fakeCheckpointStore{sequences: []int64{0}}
	dispatcher := query.New(fakeFactory{}, resolver, checkpoint)

	_, err = dispatcher.Run(context.Background(), query.ReadYourWrites{
		Projector:    "order_summary",
		After:        messageID,
		Timeout:      time.Second,
		PollInterval: time.Millisecond,
	}, func(context.Context) (any, error) {
		t.Fatal("fn should not run when the causing message is unknown")
		return nil, nil
	})

	require.ErrorIs(t, err, query.ErrUnknownMessageID)
}
