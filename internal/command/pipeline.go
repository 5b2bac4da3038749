package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/idempotency"
	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
)

// ErrNoHandlerRegistered is returned by Handle when no Handler is
// registered for the command's CommandName.
var ErrNoHandlerRegistered = errors.New("command pipeline: no handler registered for command")

// Result reports what Pipeline.Handle did with one CommandEnvelope, so a
// Worker Loop knows whether to ack or nack the delivery.
type Result string

const (
	// ResultApplied means the handler ran and its output (or failure) was
	// durably recorded.
	ResultApplied Result = "applied"
	// ResultAlreadyCompleted means a previous delivery already ran this
	// message_id to completion (success or failure); the handler did not
	// run again.
	ResultAlreadyCompleted Result = "already_completed"
	// ResultInProgress means another worker currently holds this
	// message_id; the delivery should be redelivered later, not treated
	// as a failure.
	ResultInProgress Result = "in_progress"
)

// Pipeline is the Command Pipeline's middleware (spec.md §4.7): it wraps
// Dispatcher with the Idempotency Service, so a Worker Loop can hand it a
// CommandEnvelope and get back a Result without knowing about either piece
// directly. The idempotency Begin/Complete calls and the handler's own
// Dispatch each run in their own Unit of Work, matching the Dispatcher's
// documented contract that it does not invoke the Idempotency Service
// itself.
type Pipeline struct {
	dispatcher  *Dispatcher
	idempotency idempotency.Service
	factory     UnitOfWorkFactory
	handlers    map[names.CommandName]Handler
}

// NewPipeline builds a Pipeline. Handlers are registered with Register
// before Handle is called.
func NewPipeline(factory UnitOfWorkFactory, svc idempotency.Service) *Pipeline {
	return &Pipeline{
		dispatcher:  NewDispatcher(factory),
		idempotency: svc,
		factory:     factory,
		handlers:    make(map[names.CommandName]Handler),
	}
}

// Register binds handler to every CommandEnvelope whose CommandName is
// name.
func (p *Pipeline) Register(name names.CommandName, handler Handler) {
	p.handlers[name] = handler
}

// Handle runs cmd through the idempotent command pipeline: Begin against
// the Idempotency Service, Dispatch the registered Handler on a New
// outcome, then CompleteSuccess/CompleteFailure. spec.md §4.7's Command
// Failure Report is what gets recorded on a failed Dispatch.
func (p *Pipeline) Handle(ctx context.Context, cmd event.CommandEnvelope) (Result, error) {
	handler, ok := p.handlers[cmd.CommandName]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoHandlerRegistered, cmd.CommandName)
	}

	hash, err := CanonicalHash(cmd.Payload.Bytes())
	if err != nil {
		return "", fmt.Errorf("command pipeline: hash payload: %w", err)
	}

	outcome, err := p.begin(ctx, cmd, hash)
	if err != nil {
		return "", err
	}

	switch outcome.Kind {
	case idempotency.OutcomeInProgress:
		return ResultInProgress, nil
	case idempotency.OutcomeExisting:
		return ResultAlreadyCompleted, nil
	}

	output, handleErr := p.dispatcher.Dispatch(ctx, handler, cmd)
	if handleErr != nil {
		report := NewFailureReport(handleErr)

		payload, marshalErr := json.Marshal(report)
		if marshalErr != nil {
			return "", fmt.Errorf("command pipeline: marshal failure report: %w", marshalErr)
		}

		if err := p.completeFailure(ctx, cmd.MessageId, payload); err != nil {
			return "", err
		}

		return "", fmt.Errorf("command pipeline: handler %s failed: %w", cmd.CommandName, handleErr)
	}

	if err := p.completeSuccess(ctx, cmd.MessageId, output); err != nil {
		return "", err
	}

	return ResultApplied, nil
}

func (p *Pipeline) begin(ctx context.Context, cmd event.CommandEnvelope, hash string) (idempotency.Outcome, error) {
	work := p.factory.New()

	if err := work.Begin(ctx); err != nil {
		return idempotency.Outcome{}, fmt.Errorf("command pipeline: begin idempotency transaction: %w", err)
	}

	outcome, err := p.idempotency.Begin(ctx, work, cmd.MessageId, cmd.CommandName, hash)
	if err != nil {
		return idempotency.Outcome{}, work.RollbackWithOperationError(
			fmt.Errorf("command pipeline: idempotency begin: %w", err),
		)
	}

	if err := work.Commit(); err != nil {
		return idempotency.Outcome{}, fmt.Errorf("command pipeline: commit idempotency begin: %w", err)
	}

	return outcome, nil
}

func (p *Pipeline) completeSuccess(ctx context.Context, messageID ids.MessageId, output json.RawMessage) error {
	work := p.factory.New()

	if err := work.Begin(ctx); err != nil {
		return fmt.Errorf("command pipeline: begin complete-success transaction: %w", err)
	}

	if err := p.idempotency.CompleteSuccess(ctx, work, messageID, output); err != nil {
		return work.RollbackWithOperationError(fmt.Errorf("command pipeline: complete success: %w", err))
	}

	if err := work.Commit(); err != nil {
		return fmt.Errorf("command pipeline: commit complete-success: %w", err)
	}

	return nil
}

func (p *Pipeline) completeFailure(ctx context.Context, messageID ids.MessageId, failure json.RawMessage) error {
	work := p.factory.New()

	if err := work.Begin(ctx); err != nil {
		return fmt.Errorf("command pipeline: begin complete-failure transaction: %w", err)
	}

	if err := p.idempotency.CompleteFailure(ctx, work, messageID, failure); err != nil {
		return work.RollbackWithOperationError(fmt.Errorf("command pipeline: complete failure: %w", err))
	}

	if err := work.Commit(); err != nil {
		return fmt.Errorf("command pipeline: commit complete-failure: %w", err)
	}

	return nil
}
