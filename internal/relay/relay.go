// Package relay implements the Outbox Relay (spec.md §3 component G,
// §4.6): the fetch → lease → publish → ack/nack → persist cycle that
// drains an outbox table to the transport, with backoff-controlled idle
// polling and cooperative graceful stop. It is generic over the outbox
// envelope payload so one implementation drives both the event and
// command outboxes (spec.md §9's preferred single-generic-core option).
package relay

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/correlator-io/outboxkit/internal/outbox"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// Fetcher selects and leases a batch of ready outbox rows, per envelope
// payload type P (event.EventEnvelope or event.CommandEnvelope).
type Fetcher[P any] interface {
	FetchBatch(ctx context.Context, batchSize int, owner outbox.RelayInstance, leaseFor time.Duration) ([]outbox.Record[P], error)
}

// Writer persists the post-transition state of one record (spec.md §4.4).
type Writer[P any] interface {
	Persist(ctx context.Context, record outbox.Record[P]) error
}

// PublishOutcome is one batch element's publish result (spec.md §4.5).
type PublishOutcome struct {
	Success bool
	Cause   outbox.DispatchError
}

// Publisher adapts a leased batch to the transport, preserving
// per-ordering-key order, and reports one PublishOutcome per input index.
type Publisher[P any] interface {
	Publish(ctx context.Context, batch []outbox.Record[P]) ([]PublishOutcome, error)
}

// UnitOfWorkFactory is the subset of *uow.Factory the Relay needs.
type UnitOfWorkFactory interface {
	New() uow.UnitOfWork
}

// CycleReport is what one Relay cycle produced, for logging/metrics.
type CycleReport struct {
	Idle  bool
	Count int
}

// Options configures one Relay's batch size, lease duration, retry
// budget, and idle-poll backoff schedule.
type Options struct {
	BatchSize int
	LeaseFor  time.Duration
	Retry     outbox.RetryOptions
	Poll      outbox.PollingOptions
}

// Relay drains one outbox table to its transport, per spec.md §4.6.
type Relay[P any] struct {
	factory     UnitOfWorkFactory
	newFetcher  func(tx *sql.Tx) Fetcher[P]
	newWriter   func(tx *sql.Tx) Writer[P]
	publisher   Publisher[P]
	owner       outbox.RelayInstance
	opts        Options
	logger      *slog.Logger
	pollCurrent time.Duration
}

// New builds a Relay. newFetcher/newWriter bind the store adapters
// (internal/outbox/pgoutbox.NewEventFetcher, etc.) to the transaction the
// Relay opens each cycle.
func New[P any](
	factory UnitOfWorkFactory,
	newFetcher func(tx *sql.Tx) Fetcher[P],
	newWriter func(tx *sql.Tx) Writer[P],
	publisher Publisher[P],
	owner outbox.RelayInstance,
	opts Options,
	logger *slog.Logger,
) *Relay[P] {
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay[P]{
		factory:     factory,
		newFetcher:  newFetcher,
		newWriter:   newWriter,
		publisher:   publisher,
		owner:       owner,
		opts:        opts,
		logger:      logger,
		pollCurrent: opts.Poll.Base,
	}
}

// Run loops cycles until stopRequested reports true, sleeping between
// idle cycles per the backoff schedule. A cycle already in progress
// completes before the stop flag is checked again (spec.md §4.6
// "Graceful stop").
func (r *Relay[P]) Run(ctx context.Context, stopRequested func() bool) error {
	r.logger.Info("relay started", slog.Int("batch_size", r.opts.BatchSize))

	for !stopRequested() {
		report, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("relay cycle failed", slog.String("error", err.Error()))

			return err
		}

		if report.Idle {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.pollCurrent):
			}

			r.pollCurrent = outbox.Next(r.pollCurrent, r.opts.Poll)
		} else {
			r.pollCurrent = r.opts.Poll.Base
		}
	}

	r.logger.Info("relay stopped")

	return nil
}

// RunOnce executes exactly one fetch → lease → publish → ack/nack →
// persist cycle (spec.md §4.6).
func (r *Relay[P]) RunOnce(ctx context.Context) (CycleReport, error) {
	batch, err := r.fetchAndLease(ctx)
	if err != nil {
		return CycleReport{}, err
	}

	if len(batch) == 0 {
		r.logger.Debug("relay cycle idle")

		return CycleReport{Idle: true}, nil
	}

	outcomes, pubErr := r.publisher.Publish(ctx, batch)
	if pubErr != nil {
		return CycleReport{}, fmt.Errorf("publish batch: %w", pubErr)
	}

	if err := r.ackNackAndPersist(ctx, batch, outcomes); err != nil {
		return CycleReport{}, err
	}

	r.logger.Info("relay cycle progress", slog.Int("count", len(batch)))

	return CycleReport{Count: len(batch)}, nil
}

func (r *Relay[P]) fetchAndLease(ctx context.Context) ([]outbox.Record[P], error) {
	work := r.factory.New()

	if err := work.Begin(ctx); err != nil {
		return nil, fmt.Errorf("relay fetch: begin transaction: %w", err)
	}

	fetcher := r.newFetcher(work.Tx())

	batch, err := fetcher.FetchBatch(ctx, r.opts.BatchSize, r.owner, r.opts.LeaseFor)
	if err != nil {
		return nil, work.RollbackWithOperationError(fmt.Errorf("relay fetch batch: %w", err))
	}

	if err := work.Commit(); err != nil {
		return nil, fmt.Errorf("relay fetch: commit: %w", err)
	}

	return batch, nil
}

func (r *Relay[P]) ackNackAndPersist(ctx context.Context, batch []outbox.Record[P], outcomes []PublishOutcome) error {
	if len(outcomes) != len(batch) {
		return fmt.Errorf("relay publish returned %d outcomes for %d records", len(outcomes), len(batch))
	}

	work := r.factory.New()

	if err := work.Begin(ctx); err != nil {
		return fmt.Errorf("relay persist: begin transaction: %w", err)
	}

	writer := r.newWriter(work.Tx())

	for i := range batch {
		record := &batch[i]

		if outcomes[i].Success {
			if err := record.Ack(); err != nil {
				return work.RollbackWithOperationError(fmt.Errorf("ack record %s: %w", record.ID, err))
			}
		} else if err := record.Nack(outcomes[i].Cause, r.opts.Retry); err != nil {
			return work.RollbackWithOperationError(fmt.Errorf("nack record %s: %w", record.ID, err))
		}

		if err := writer.Persist(ctx, *record); err != nil {
			return work.RollbackWithOperationError(fmt.Errorf("persist record %s: %w", record.ID, err))
		}
	}

	if err := work.Commit(); err != nil {
		return fmt.Errorf("relay persist: commit: %w", err)
	}

	return nil
}
