package saga_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/saga"
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

type fakeStore struct {
	instances map[string]*saga.Instance
	processed map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{instances: map[string]*saga.Instance{}, processed: map[string]bool{}}
}

func (s *fakeStore) LoadOrCreate(
	_ context.Context, _ uow.UnitOfWork, name names.SagaName, correlationID ids.CorrelationId,
) (*saga.Instance, error) {
	key := string(name) + ":" + correlationID.String()
	if inst, ok := s.instances[key]; ok {
		return inst, nil
	}

	instanceID, err := ids.NewSagaInstanceId()
	if err != nil {
		return nil, err
	}

	inst := &saga.Instance{
		SagaInstanceId: instanceID,
		SagaName:       name,
		CorrelationId:  correlationID,
		Status:         saga.StatusInProgress,
	}
	s.instances[key] = inst

	return inst, nil
}

func (s *fakeStore) Save(_ context.Context, _ uow.UnitOfWork, instance *saga.Instance) error {
	instance.StateVersion++
	key := string(instance.SagaName) + ":" + instance.CorrelationId.String()
	s.instances[key] = instance

	return nil
}

func (s *fakeStore) MarkProcessed(
	_ context.Context, _ uow.UnitOfWork, name names.SagaName, correlationID ids.CorrelationId, eventID ids.EventId,
) (bool, error) {
	key := string(name) + ":" + correlationID.String() + ":" + eventID.String()
	if s.processed[key] {
		return true, nil
	}

	s.processed[key] = true

	return false, nil
}

type fakeEnqueuer struct {
	enqueued []event.CommandEnvelope
}

func (e *fakeEnqueuer) Enqueue(_ context.Context, _ uow.UnitOfWork, cmd event.CommandEnvelope) error {
	e.enqueued = append(e.enqueued, cmd)

	return nil
}

func testEvent(t *testing.T) event.Event {
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
		EventId:          eventID,
		CorrelationId:    correlationID,
		AggregateType:    aggType,
		AggregateId:      aggID,
		EventName:        eventName,
		AggregateVersion: 1,
	}
}

func TestRunner_AppliesAndEnqueuesCommands(t *testing.T) {
	store := newFakeStore()
	enqueuer := &fakeEnqueuer{}

	commandName, err := names.NewCommandName("charge_payment")
	require.NoError(t, err)

	def := saga.Definition{
		Name: "order_fulfillment",
		OnEvent: func(_ context.Context, _ uow.UnitOfWork, instance *saga.Instance, _ event.Event) error {
			instance.Emit(commandName, json.RawMessage(`{"amount":100}`))

			return nil
		},
	}

	runner := saga.NewRunner(fakeFactory{}, store, enqueuer)
	ev := testEvent(t)

	outcome, err := runner.Handle(context.Background(), def, ev)
	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeApplied, outcome)
	require.Len(t, enqueuer.enqueued, 1)
	assert.Equal(t, commandName, enqueuer.enqueued[0].CommandName)
	assert.Equal(t, ev.CorrelationId, enqueuer.enqueued[0].CorrelationId)
}

func TestRunner_SkipsRedeliveryWithoutReapplying(t *testing.T) {
	store := newFakeStore()
	enqueuer := &fakeEnqueuer{}
	applied := 0

	def := saga.Definition{
		Name: "order_fulfillment",
		OnEvent: func(context.Context, uow.UnitOfWork, *saga.Instance, event.Event) error {
			applied++

			return nil
		},
	}

	runner := saga.NewRunner(fakeFactory{}, store, enqueuer)
	ev := testEvent(t)

	_, err := runner.Handle(context.Background(), def, ev)
	require.NoError(t, err)

	outcome, err := runner.Handle(context.Background(), def, ev)
	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeAlreadyProcessed, outcome)
	assert.Equal(t, 1, applied)
}

func TestRunner_SkipsTerminalInstance(t *testing.T) {
	store := newFakeStore()
	enqueuer := &fakeEnqueuer{}
	applied := 0

	def := saga.Definition{
		Name: "order_fulfillment",
		OnEvent: func(_ context.Context, _ uow.UnitOfWork, instance *saga.Instance, _ event.Event) error {
			applied++
			instance.Succeed(time.Now().UTC())

			return nil
		},
	}

	runner := saga.NewRunner(fakeFactory{}, store, enqueuer)
	firstEvent := testEvent(t)

	outcome, err := runner.Handle(context.Background(), def, firstEvent)
	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeApplied, outcome)

	secondEvent := firstEvent
	secondEvent.EventId, err = ids.NewEventId()
	require.NoError(t, err)

	outcome, err = runner.Handle(context.Background(), def, secondEvent)
	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeSkippedSucceeded, outcome)
	assert.Equal(t, 1, applied)
}
