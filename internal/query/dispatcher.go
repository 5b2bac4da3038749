package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/projection"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// TargetResolver maps a causing message id to the event_sequence it
// produced, per spec.md §6's "max(event_sequence) WHERE causation_id =
// after" lookup. ok is false when after caused no event (yet, or ever).
type TargetResolver interface {
	ResolveTarget(ctx context.Context, work uow.UnitOfWork, after ids.MessageId) (sequence int64, ok bool, err error)
}

const defaultPollInterval = 50 * time.Millisecond

// UnitOfWorkFactory is the subset of *uow.Factory the Dispatcher needs,
// matching the pattern internal/relay.UnitOfWorkFactory establishes.
type UnitOfWorkFactory interface {
	New() uow.UnitOfWork
}

// Dispatcher executes a read either immediately (Eventual) or after
// waiting for a named projector to observe the effects of a prior write
// (ReadYourWrites), per spec.md §6.
type Dispatcher struct {
	factory    UnitOfWorkFactory
	resolver   TargetResolver
	checkpoint projection.CheckpointStore
}

// New builds a Dispatcher. factory opens the read-only units of work used
// to resolve targets and poll checkpoints; resolver and checkpoint back
// those two lookups.
func New(factory UnitOfWorkFactory, resolver TargetResolver, checkpoint projection.CheckpointStore) *Dispatcher {
	return &Dispatcher{factory: factory, resolver: resolver, checkpoint: checkpoint}
}

// Run executes fn under the consistency guarantee mode describes. For
// Eventual, fn runs immediately. For ReadYourWrites, Run blocks until
// the named projector's checkpoint has caught up to the target sequence
// caused by mode.After, then runs fn; it returns a *TimeoutError if the
// projector never catches up within mode.Timeout, or ErrUnknownMessageID
// if mode.After caused no event.
func (d *Dispatcher) Run(ctx context.Context, mode Mode, fn func(ctx context.Context) (any, error)) (any, error) {
	switch m := mode.(type) {
	case Eventual:
		return fn(ctx)
	case ReadYourWrites:
		if err := d.await(ctx, m); err != nil {
			return nil, err
		}

		return fn(ctx)
	default:
		return nil, fmt.Errorf("query: unsupported mode %T", mode)
	}
}

func (d *Dispatcher) await(ctx context.Context, m ReadYourWrites) error {
	projectorName, err := names.NewProjectorName(m.Projector)
	if err != nil {
		return fmt.Errorf("query: invalid projector name %q: %w", m.Projector, err)
	}

	target, err := d.resolveTarget(ctx, m.After)
	if err != nil {
		return err
	}

	pollInterval := m.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	deadline := time.Now().Add(m.Timeout)
	ticker := time.NewTicker(pollInterval)

	defer ticker.Stop()

	var lastCheckpoint int64

	for {
		sequence, caughtUp, err := d.checkCheckpoint(ctx, projectorName, target)
		if err != nil {
			return err
		}

		if caughtUp {
			return nil
		}

		lastCheckpoint = sequence

		if time.Now().After(deadline) {
			return &TimeoutError{
				Projector:      m.Projector,
				Target:         target,
				LastCheckpoint: lastCheckpoint,
				Timeout:        m.Timeout.String(),
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) resolveTarget(ctx context.Context, after ids.MessageId) (int64, error) {
	work := d.factory.New()
	if err := work.Begin(ctx); err != nil {
		return 0, fmt.Errorf("query: begin resolve target: %w", err)
	}

	target, ok, err := d.resolver.ResolveTarget(ctx, work, after)
	if err != nil {
		return 0, work.RollbackWithOperationError(fmt.Errorf("query: resolve target: %w", err))
	}

	if commitErr := work.Commit(); commitErr != nil {
		return 0, fmt.Errorf("query: commit resolve target: %w", commitErr)
	}

	if !ok {
		return 0, ErrUnknownMessageID
	}

	return target, nil
}

func (d *Dispatcher) checkCheckpoint(ctx context.Context, projectorName names.ProjectorName, target int64) (int64, bool, error) {
	work := d.factory.New()
	if err := work.Begin(ctx); err != nil {
		return 0, false, fmt.Errorf("query: begin checkpoint poll: %w", err)
	}

	sequence, ok, err := d.checkpoint.Load(ctx, work, projectorName)
	if err != nil {
		return 0, false, work.RollbackWithOperationError(fmt.Errorf("query: load checkpoint: %w", err))
	}

	if commitErr := work.Commit(); commitErr != nil {
		return 0, false, fmt.Errorf("query: commit checkpoint poll: %w", commitErr)
	}

	if !ok {
		return 0, false, nil
	}

	return sequence, sequence >= target, nil
}

// IsTimeout reports whether err is (or wraps) a *TimeoutError.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError

	return errors.As(err, &timeoutErr)
}
