package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// Handler executes one CommandEnvelope's business logic against a Unit of
// Work already begun by the Dispatcher. It must not begin or commit uow
// itself (spec.md §4.1).
type Handler interface {
	Handle(ctx context.Context, work uow.UnitOfWork, cmd event.CommandEnvelope) (json.RawMessage, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, work uow.UnitOfWork, cmd event.CommandEnvelope) (json.RawMessage, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, work uow.UnitOfWork, cmd event.CommandEnvelope) (json.RawMessage, error) {
	return f(ctx, work, cmd)
}

// UnitOfWorkFactory is the subset of *uow.Factory the Dispatcher needs;
// satisfied by *uow.Factory itself, and fakeable in tests.
type UnitOfWorkFactory interface {
	New() uow.UnitOfWork
}

// Dispatcher wraps a single Handler invocation in a Unit of Work: begin,
// handle, commit on success, rollback on failure (spec.md §4.7). It does
// not consult the idempotency store itself; that is the job of a
// middleware layered in front of Dispatch (Pipeline, backed by an
// idempotency.Service).
type Dispatcher struct {
	factory UnitOfWorkFactory
}

// NewDispatcher builds a Dispatcher over factory.
func NewDispatcher(factory UnitOfWorkFactory) *Dispatcher {
	return &Dispatcher{factory: factory}
}

// Dispatch runs handler against cmd inside a fresh Unit of Work.
func (d *Dispatcher) Dispatch(ctx context.Context, handler Handler, cmd event.CommandEnvelope) (json.RawMessage, error) {
	work := d.factory.New()

	if err := work.Begin(ctx); err != nil {
		return nil, fmt.Errorf("dispatch %s: begin transaction: %w", cmd.CommandName, err)
	}

	output, err := handler.Handle(ctx, work, cmd)
	if err != nil {
		return nil, work.RollbackWithOperationError(fmt.Errorf("dispatch %s: handler failed: %w", cmd.CommandName, err))
	}

	if err := work.Commit(); err != nil {
		return nil, fmt.Errorf("dispatch %s: commit: %w", cmd.CommandName, err)
	}

	return output, nil
}
