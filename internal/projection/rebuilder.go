package projection

import (
	"context"
	"fmt"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/names"
)

// EventFeed reads committed events directly from the event store, ordered
// by event_sequence, bypassing the message bus entirely (spec.md §4.8
// Rebuilder).
type EventFeed interface {
	FetchAfter(ctx context.Context, afterSequence int64, batchSize int) ([]event.Event, error)
}

// RebuildResult reports how many events a rebuild cycle applied.
type RebuildResult struct {
	ProcessedEventCount int64
}

// Rebuilder replays the full event feed against a projector, advancing its
// checkpoint after every processed event, for cold-start or disaster
// recovery rebuilds (spec.md §4.8).
type Rebuilder struct {
	runner      *Runner
	feed        EventFeed
	checkpoints CheckpointStore
	factory     UnitOfWorkFactory
	batchSize   int
}

// NewRebuilder builds a Rebuilder. batchSize bounds how many events are
// read from the feed per round-trip.
func NewRebuilder(runner *Runner, feed EventFeed, checkpoints CheckpointStore, factory UnitOfWorkFactory, batchSize int) *Rebuilder {
	return &Rebuilder{runner: runner, feed: feed, checkpoints: checkpoints, factory: factory, batchSize: batchSize}
}

// Run replays events after the projector's current checkpoint until a
// batch comes back empty or stopRequested reports true between batches.
func (rb *Rebuilder) Run(ctx context.Context, def Definition, stopRequested func() bool) (RebuildResult, error) {
	after, err := rb.loadCheckpoint(ctx, def.Name)
	if err != nil {
		return RebuildResult{}, err
	}

	var result RebuildResult

	for {
		if stopRequested != nil && stopRequested() {
			return result, nil
		}

		batch, err := rb.feed.FetchAfter(ctx, after, rb.batchSize)
		if err != nil {
			return result, fmt.Errorf("rebuild %s: fetch batch after %d: %w", def.Name, after, err)
		}

		if len(batch) == 0 {
			return result, nil
		}

		for _, ev := range batch {
			if _, err := rb.runner.Handle(ctx, def, ev); err != nil {
				return result, fmt.Errorf("rebuild %s: %w", def.Name, err)
			}

			after = ev.EventSequence
			result.ProcessedEventCount++

			if err := rb.saveCheckpoint(ctx, def.Name, after); err != nil {
				return result, err
			}
		}
	}
}

func (rb *Rebuilder) loadCheckpoint(ctx context.Context, name names.ProjectorName) (int64, error) {
	work := rb.factory.New()
	if err := work.Begin(ctx); err != nil {
		return 0, fmt.Errorf("load checkpoint: begin transaction: %w", err)
	}

	seq, ok, err := rb.checkpoints.Load(ctx, work, name)
	if err != nil {
		return 0, work.RollbackWithOperationError(fmt.Errorf("load checkpoint: %w", err))
	}

	if err := work.Commit(); err != nil {
		return 0, fmt.Errorf("load checkpoint: commit: %w", err)
	}

	if !ok {
		return 0, nil
	}

	return seq, nil
}

func (rb *Rebuilder) saveCheckpoint(ctx context.Context, name names.ProjectorName, sequence int64) error {
	work := rb.factory.New()
	if err := work.Begin(ctx); err != nil {
		return fmt.Errorf("save checkpoint: begin transaction: %w", err)
	}

	if err := rb.checkpoints.Save(ctx, work, name, sequence); err != nil {
		return work.RollbackWithOperationError(fmt.Errorf("save checkpoint: %w", err))
	}

	if err := work.Commit(); err != nil {
		return fmt.Errorf("save checkpoint: commit: %w", err)
	}

	return nil
}
