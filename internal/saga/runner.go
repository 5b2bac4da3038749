package saga

import (
	"context"
	"fmt"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// Definition is the domain-supplied side of a saga: its name and the
// OnEvent callback that mutates an Instance's state, optionally
// transitioning it to Succeeded/Failed, and queues commands via
// Instance.Emit (spec.md §4.9 step 4).
type Definition struct {
	Name    names.SagaName
	OnEvent func(ctx context.Context, work uow.UnitOfWork, instance *Instance, ev event.Event) error
}

// Store persists saga instances and their processed-events dedupe rows.
type Store interface {
	// LoadOrCreate loads the (name, correlationID) instance FOR UPDATE,
	// inserting a fresh InProgress row with nil State on first touch
	// (spec.md §4.9 step 1).
	LoadOrCreate(ctx context.Context, work uow.UnitOfWork, name names.SagaName, correlationID ids.CorrelationId) (*Instance, error)
	// Save writes instance's state, status, and timestamps, incrementing
	// StateVersion as an optimistic lock. A concurrent modification
	// surfaces as a persistence error for the caller to retry (spec.md §4.9
	// step 5).
	Save(ctx context.Context, work uow.UnitOfWork, instance *Instance) error
	// MarkProcessed inserts (name, correlationID, eventID) into the
	// processed-events table, reporting true if it already existed.
	MarkProcessed(ctx context.Context, work uow.UnitOfWork, name names.SagaName, correlationID ids.CorrelationId, eventID ids.EventId) (alreadyProcessed bool, err error)
}

// CommandEnqueuer writes one drafted command into the command outbox in
// the same Unit of Work as the saga state advance (spec.md §4.9 step 6).
type CommandEnqueuer interface {
	Enqueue(ctx context.Context, work uow.UnitOfWork, cmd event.CommandEnvelope) error
}

// UnitOfWorkFactory is the subset of *uow.Factory the Runner needs.
type UnitOfWorkFactory interface {
	New() uow.UnitOfWork
}

// Runner processes one EventEnvelope against one saga Definition, per
// spec.md §4.9's seven-step protocol.
type Runner struct {
	factory  UnitOfWorkFactory
	store    Store
	enqueuer CommandEnqueuer
}

// NewRunner builds a Runner.
func NewRunner(factory UnitOfWorkFactory, store Store, enqueuer CommandEnqueuer) *Runner {
	return &Runner{factory: factory, store: store, enqueuer: enqueuer}
}

// Handle runs def.OnEvent against ev for the (def.Name, ev.CorrelationId)
// saga instance, all inside one Unit of Work.
func (r *Runner) Handle(ctx context.Context, def Definition, ev event.Event) (Outcome, error) {
	work := r.factory.New()

	if err := work.Begin(ctx); err != nil {
		return "", fmt.Errorf("saga %s: begin transaction: %w", def.Name, err)
	}

	instance, err := r.store.LoadOrCreate(ctx, work, def.Name, ev.CorrelationId)
	if err != nil {
		return "", work.RollbackWithOperationError(fmt.Errorf("saga %s: load instance: %w", def.Name, err))
	}

	if instance.IsTerminal() {
		if err := work.Commit(); err != nil {
			return "", fmt.Errorf("saga %s: commit terminal skip: %w", def.Name, err)
		}

		if instance.Status == StatusSucceeded {
			return OutcomeSkippedSucceeded, nil
		}

		return OutcomeSkippedFailed, nil
	}

	alreadyProcessed, err := r.store.MarkProcessed(ctx, work, def.Name, ev.CorrelationId, ev.EventId)
	if err != nil {
		return "", work.RollbackWithOperationError(fmt.Errorf("saga %s: mark processed: %w", def.Name, err))
	}

	if alreadyProcessed {
		if err := work.Commit(); err != nil {
			return "", fmt.Errorf("saga %s: commit already-processed: %w", def.Name, err)
		}

		return OutcomeAlreadyProcessed, nil
	}

	if err := def.OnEvent(ctx, work, instance, ev); err != nil {
		return "", work.RollbackWithOperationError(fmt.Errorf("saga %s: on_event: %w", def.Name, err))
	}

	if err := r.store.Save(ctx, work, instance); err != nil {
		return "", work.RollbackWithOperationError(fmt.Errorf("saga %s: save instance: %w", def.Name, err))
	}

	if err := r.enqueueCommands(ctx, work, instance, ev); err != nil {
		return "", work.RollbackWithOperationError(fmt.Errorf("saga %s: enqueue commands: %w", def.Name, err))
	}

	if err := work.Commit(); err != nil {
		return "", fmt.Errorf("saga %s: commit: %w", def.Name, err)
	}

	return OutcomeApplied, nil
}

// enqueueCommands builds a full CommandEnvelope for each draft queued by
// OnEvent, assigning a fresh message_id, the same correlation_id,
// causation_id = ev.EventId, and ordering_key = correlation_id (spec.md
// §4.9 step 6).
func (r *Runner) enqueueCommands(ctx context.Context, work uow.UnitOfWork, instance *Instance, ev event.Event) error {
	for _, draft := range instance.UncommittedCommands() {
		messageID, err := ids.NewMessageId()
		if err != nil {
			return fmt.Errorf("generate message id: %w", err)
		}

		payload, err := event.NewPayload(draft.Payload)
		if err != nil {
			return fmt.Errorf("command %s payload: %w", draft.CommandName, err)
		}

		causationID, err := ids.ParseCausationId(ev.EventId.String())
		if err != nil {
			return fmt.Errorf("derive causation id: %w", err)
		}

		cmd := event.CommandEnvelope{
			MessageId:     messageID,
			CorrelationId: ev.CorrelationId,
			CausationId:   causationID,
			OrderingKey:   event.CommandOrderingKey(ev.CorrelationId),
			CommandName:   draft.CommandName,
			Payload:       payload,
			Context:       ev.Context,
		}

		if err := r.enqueuer.Enqueue(ctx, work, cmd); err != nil {
			return fmt.Errorf("enqueue command %s: %w", draft.CommandName, err)
		}
	}

	return nil
}
