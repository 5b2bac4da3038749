package command_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/outboxkit/internal/command"
	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// fakeUnitOfWork is an in-memory uow.UnitOfWork used to test the Dispatcher
// without a real database connection.
type fakeUnitOfWork struct {
	active       bool
	committed    bool
	rolledBack   bool
	commitErr    error
	rollbackErr  error
}

func (f *fakeUnitOfWork) Begin(context.Context) error {
	f.active = true
	return nil
}

func (f *fakeUnitOfWork) InTransaction() bool { return f.active }

func (f *fakeUnitOfWork) Commit() error {
	f.active = false
	f.committed = true
	return f.commitErr
}

func (f *fakeUnitOfWork) Rollback() error {
	f.active = false
	f.rolledBack = true
	return f.rollbackErr
}

func (f *fakeUnitOfWork) RollbackWithOperationError(opErr error) error {
	if err := f.Rollback(); err != nil {
		return errors.Join(opErr, err)
	}
	return opErr
}

func (f *fakeUnitOfWork) Tx() *sql.Tx { return nil }

type fakeFactory struct {
	unit *fakeUnitOfWork
}

func (f *fakeFactory) New() uow.UnitOfWork { return f.unit }

func testCommandEnvelope(t *testing.T) event.CommandEnvelope {
	t.Helper()

	name, err := names.NewCommandName("place_order")
	require.NoError(t, err)

	return event.CommandEnvelope{CommandName: name}
}

func TestDispatcher_CommitsOnSuccess(t *testing.T) {
	unit := &fakeUnitOfWork{}
	dispatcher := command.NewDispatcher(&fakeFactory{unit: unit})

	handler := command.HandlerFunc(func(_ context.Context, _ uow.UnitOfWork, _ event.CommandEnvelope) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})

	output, err := dispatcher.Dispatch(context.Background(), handler, testCommandEnvelope(t))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(output))
	assert.True(t, unit.committed)
	assert.False(t, unit.rolledBack)
}

func TestDispatcher_RollsBackOnHandlerError(t *testing.T) {
	unit := &fakeUnitOfWork{}
	dispatcher := command.NewDispatcher(&fakeFactory{unit: unit})

	boom := errors.New("boom")
	handler := command.HandlerFunc(func(_ context.Context, _ uow.UnitOfWork, _ event.CommandEnvelope) (json.RawMessage, error) {
		return nil, boom
	})

	_, err := dispatcher.Dispatch(context.Background(), handler, testCommandEnvelope(t))
	require.Error(t, err)
	assert.True(t, unit.rolledBack)
	assert.False(t, unit.committed)
	assert.ErrorIs(t, err, boom)
}

func TestDispatcher_ComposesRollbackFailureWithOperationError(t *testing.T) {
	rollbackErr := errors.New("rollback failed")
	unit := &fakeUnitOfWork{rollbackErr: rollbackErr}
	dispatcher := command.NewDispatcher(&fakeFactory{unit: unit})

	boom := errors.New("boom")
	handler := command.HandlerFunc(func(_ context.Context, _ uow.UnitOfWork, _ event.CommandEnvelope) (json.RawMessage, error) {
		return nil, boom
	})

	_, err := dispatcher.Dispatch(context.Background(), handler, testCommandEnvelope(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, rollbackErr)
}
