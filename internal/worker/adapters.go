package worker

import (
	"context"
	"errors"

	"github.com/correlator-io/outboxkit/internal/command"
	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/projection"
	"github.com/correlator-io/outboxkit/internal/saga"
)

// ErrRedeliveryRequested is the sentinel HandleFunc error for outcomes
// that want the delivery nacked without being a processing failure (spec.md
// §4.7's InProgress: another worker is processing this message_id right
// now). Run still logs it like any other nack; callers that want quieter
// logging can filter on errors.Is(err, ErrRedeliveryRequested).
var ErrRedeliveryRequested = errors.New("worker: redelivery requested")

// ProjectionHandleFunc adapts a projection.Runner bound to one
// projection.Definition into a HandleFunc[event.Event].
func ProjectionHandleFunc(runner *projection.Runner, def projection.Definition) HandleFunc[event.Event] {
	return func(ctx context.Context, ev event.Event) error {
		_, err := runner.Handle(ctx, def, ev)

		return err
	}
}

// SagaHandleFunc adapts a saga.Runner bound to one saga.Definition into a
// HandleFunc[event.Event]. Every saga.Outcome short of an error is a
// terminal, already-durable disposition for this delivery, so it acks.
func SagaHandleFunc(runner *saga.Runner, def saga.Definition) HandleFunc[event.Event] {
	return func(ctx context.Context, ev event.Event) error {
		_, err := runner.Handle(ctx, def, ev)

		return err
	}
}

// CommandHandleFunc adapts a command.Pipeline into a
// HandleFunc[event.CommandEnvelope]. ResultInProgress nacks via
// ErrRedeliveryRequested so another delivery attempt finds the command
// either still in progress (nack again) or completed (ack).
func CommandHandleFunc(pipeline *command.Pipeline) HandleFunc[event.CommandEnvelope] {
	return func(ctx context.Context, cmd event.CommandEnvelope) error {
		result, err := pipeline.Handle(ctx, cmd)
		if err != nil {
			return err
		}

		if result == command.ResultInProgress {
			return ErrRedeliveryRequested
		}

		return nil
	}
}
