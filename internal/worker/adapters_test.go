package worker_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/outboxkit/internal/command"
	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/idempotency"
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/projection"
	"github.com/correlator-io/outboxkit/internal/saga"
	"github.com/correlator-io/outboxkit/internal/uow"
	"github.com/correlator-io/outboxkit/internal/worker"
)

type adapterUnitOfWork struct{ active bool }

func (u *adapterUnitOfWork) Begin(context.Context) error { u.active = true; return nil }
func (u *adapterUnitOfWork) InTransaction() bool          { return u.active }
func (u *adapterUnitOfWork) Commit() error                { u.active = false; return nil }
func (u *adapterUnitOfWork) Rollback() error               { u.active = false; return nil }
func (u *adapterUnitOfWork) RollbackWithOperationError(opErr error) error {
	_ = u.Rollback()

	return opErr
}
func (u *adapterUnitOfWork) Tx() *sql.Tx { return nil }

type adapterFactory struct{}

func (adapterFactory) New() uow.UnitOfWork { return &adapterUnitOfWork{} }

func adapterEvent(t *testing.T) event.Event {
	t.Helper()

	eventID, err := ids.NewEventId()
	require.NoError(t, err)

	correlationID, err := ids.NewCorrelationId()
	require.NoError(t, err)

	aggType, err := names.NewAggregateType("order")
	require.NoError(t, err)

	aggID, err := event.NewAggregateId("order-1")
	require.NoError(t, err)

	eventName, err := names.NewEventName("order_placed")
	require.NoError(t, err)

	return event.Event{
		EventId: eventID, AggregateType: aggType, AggregateId: aggID,
		EventName: eventName, AggregateVersion: 1, CorrelationId: correlationID,
	}
}

type adapterRecorder struct{}

func (adapterRecorder) MarkProcessed(context.Context, uow.UnitOfWork, names.ProjectorName, ids.EventId) (bool, error) {
	return false, nil
}

func TestProjectionHandleFunc_AppliesEvent(t *testing.T) {
	applied := false
	def := projection.Definition{
		Name: "order_summary",
		Project: func(context.Context, uow.UnitOfWork, event.Event) error {
			applied = true

			return nil
		},
	}

	runner := projection.NewRunner(adapterFactory{}, adapterRecorder{})
	handle := worker.ProjectionHandleFunc(runner, def)

	require.NoError(t, handle(context.Background(), adapterEvent(t)))
	assert.True(t, applied)
}

type adapterSagaStore struct{}

func (adapterSagaStore) LoadOrCreate(
	_ context.Context, _ uow.UnitOfWork, name names.SagaName, correlationID ids.CorrelationId,
) (*saga.Instance, error) {
	return &saga.Instance{SagaName: name, CorrelationId: correlationID, Status: saga.StatusInProgress}, nil
}

func (adapterSagaStore) Save(context.Context, uow.UnitOfWork, *saga.Instance) error { return nil }

func (adapterSagaStore) MarkProcessed(
	context.Context, uow.UnitOfWork, names.SagaName, ids.CorrelationId, ids.EventId,
) (bool, error) {
	return false, nil
}

type adapterEnqueuer struct{ enqueued int }

func (e *adapterEnqueuer) Enqueue(context.Context, uow.UnitOfWork, event.CommandEnvelope) error {
	e.enqueued++

	return nil
}

func TestSagaHandleFunc_RunsOnEvent(t *testing.T) {
	onEventCalled := false
	def := saga.Definition{
		Name: "order_fulfillment",
		OnEvent: func(context.Context, uow.UnitOfWork, *saga.Instance, event.Event) error {
			onEventCalled = true

			return nil
		},
	}

	runner := saga.NewRunner(adapterFactory{}, adapterSagaStore{}, &adapterEnqueuer{})
	handle := worker.SagaHandleFunc(runner, def)

	require.NoError(t, handle(context.Background(), adapterEvent(t)))
	assert.True(t, onEventCalled)
}

type adapterIdempotency struct{ outcome idempotency.Outcome }

func (a adapterIdempotency) Begin(
	context.Context, uow.UnitOfWork, ids.MessageId, names.CommandName, string,
) (idempotency.Outcome, error) {
	return a.outcome, nil
}

func (adapterIdempotency) CompleteSuccess(context.Context, uow.UnitOfWork, ids.MessageId, json.RawMessage) error {
	return nil
}

func (adapterIdempotency) CompleteFailure(context.Context, uow.UnitOfWork, ids.MessageId, json.RawMessage) error {
	return nil
}

func TestCommandHandleFunc_AppliesNewCommand(t *testing.T) {
	name, err := names.NewCommandName("charge_payment")
	require.NoError(t, err)

	messageID, err := ids.NewMessageId()
	require.NoError(t, err)

	payload, err := event.NewPayload([]byte(`{"amount":1}`))
	require.NoError(t, err)

	pipeline := command.NewPipeline(adapterFactory{}, adapterIdempotency{outcome: idempotency.NewOutcome()})
	pipeline.Register(name, command.HandlerFunc(
		func(context.Context, uow.UnitOfWork, event.CommandEnvelope) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	))

	handle := worker.CommandHandleFunc(pipeline)
	require.NoError(t, handle(context.Background(), event.CommandEnvelope{MessageId: messageID, CommandName: name, Payload: payload}))
}

func TestCommandHandleFunc_InProgressRequestsRedelivery(t *testing.T) {
	name, err := names.NewCommandName("charge_payment")
	require.NoError(t, err)

	payload, err := event.NewPayload([]byte(`{"amount":1}`))
	require.NoError(t, err)

	pipeline := command.NewPipeline(adapterFactory{}, adapterIdempotency{outcome: idempotency.InProgressOutcome()})
	pipeline.Register(name, command.HandlerFunc(
		func(context.Context, uow.UnitOfWork, event.CommandEnvelope) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	))

	handle := worker.CommandHandleFunc(pipeline)
	err = handle(context.Background(), event.CommandEnvelope{CommandName: name, Payload: payload})
	require.ErrorIs(t, err, worker.ErrRedeliveryRequested)
}
