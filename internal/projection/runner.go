package projection

import (
	"context"
	"fmt"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// Result reports what Runner.Handle did with one event.
type Result string

const (
	// ResultApplied means Project ran in the committed transaction.
	ResultApplied Result = "applied"
	// ResultSkippedAlreadyProcessed means this (projector, event_id) pair
	// was already applied by a previous delivery; Project did not run.
	ResultSkippedAlreadyProcessed Result = "skipped_already_processed"
)

// Definition is the domain-supplied side of a projector: its name, a
// subscription filter (applied by the Worker Loop before Handle is ever
// called), and the Project callback that mutates the read model.
type Definition struct {
	Name    names.ProjectorName
	Project func(ctx context.Context, work uow.UnitOfWork, ev event.Event) error
}

// ProcessedEventRecorder enforces the "at most once committed transaction
// per (projector, event_id)" invariant of spec.md §4.8 by inserting into
// projector_processed_events and reporting whether the insert collided
// with a row already there.
type ProcessedEventRecorder interface {
	MarkProcessed(ctx context.Context, work uow.UnitOfWork, name names.ProjectorName, eventID ids.EventId) (alreadyProcessed bool, err error)
}

// UnitOfWorkFactory is the subset of *uow.Factory the Runner needs.
type UnitOfWorkFactory interface {
	New() uow.UnitOfWork
}

// Runner applies one EventEnvelope to one ProjectorDefinition, per
// spec.md §4.8's four-step protocol.
type Runner struct {
	factory  UnitOfWorkFactory
	recorder ProcessedEventRecorder
}

// NewRunner builds a Runner.
func NewRunner(factory UnitOfWorkFactory, recorder ProcessedEventRecorder) *Runner {
	return &Runner{factory: factory, recorder: recorder}
}

// Handle runs def.Project against ev in a single Unit of Work, preceded by
// the processed-events dedupe insert. If the insert collides,
// ResultSkippedAlreadyProcessed is returned and Project never runs; the
// Unit of Work is still committed either way (the dedupe insert itself
// must be durable even when nothing else happens).
func (r *Runner) Handle(ctx context.Context, def Definition, ev event.Event) (Result, error) {
	work := r.factory.New()

	if err := work.Begin(ctx); err != nil {
		return "", fmt.Errorf("project %s: begin transaction: %w", def.Name, err)
	}

	alreadyProcessed, err := r.recorder.MarkProcessed(ctx, work, def.Name, ev.EventId)
	if err != nil {
		return "", work.RollbackWithOperationError(fmt.Errorf("project %s: mark processed: %w", def.Name, err))
	}

	if alreadyProcessed {
		if err := work.Commit(); err != nil {
			return "", fmt.Errorf("project %s: commit skip: %w", def.Name, err)
		}

		return ResultSkippedAlreadyProcessed, nil
	}

	if err := def.Project(ctx, work, ev); err != nil {
		return "", work.RollbackWithOperationError(fmt.Errorf("project %s: apply: %w", def.Name, err))
	}

	if err := work.Commit(); err != nil {
		return "", fmt.Errorf("project %s: commit: %w", def.Name, err)
	}

	return ResultApplied, nil
}
