package outbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/correlator-io/outboxkit/internal/ids"
)

// ErrAckOnDeadLettered is returned by Ack on a dead-lettered record.
var ErrAckOnDeadLettered = errors.New("cannot acknowledge a dead-lettered outbox record")

// ErrNackOnDeadLettered is returned by Nack on a dead-lettered record.
var ErrNackOnDeadLettered = errors.New("cannot negatively acknowledge a dead-lettered outbox record")

// ErrExtendLeaseOnDeadLettered is returned by ExtendLease on a
// dead-lettered record.
var ErrExtendLeaseOnDeadLettered = errors.New("cannot extend lease on a dead-lettered outbox record")

// ErrAcquireLeaseOnDeadLettered is returned by AcquireLease on a
// dead-lettered record.
var ErrAcquireLeaseOnDeadLettered = errors.New("cannot acquire lease on a dead-lettered outbox record")

// ErrExtendLeaseOnNonLeased is returned by ExtendLease when the record's
// State is not Leased.
var ErrExtendLeaseOnNonLeased = errors.New("extend_lease is only valid in leased state")

// ErrAcquireLeaseOnNonPending is returned by AcquireLease when the
// record's State is not Pending.
var ErrAcquireLeaseOnNonPending = errors.New("acquire_lease is only valid in pending state")

// Record is one row of an outbox table: an envelope payload plus the
// state machine that governs its delivery. It is generic over the
// envelope payload type so the event outbox and command outbox (spec.md
// §3, §6) share this one implementation, per spec.md §9's guidance to
// prefer a single generic outbox core over duplicated event/command
// variants.
type Record[P any] struct {
	ID        ids.OutboxId
	Sequence  int64
	Payload   P
	State     State
	LastError *DispatchError
	Lifecycle Lifecycle
}

// NewRecord builds a freshly-written, Pending, Active outbox record.
func NewRecord[P any](id ids.OutboxId, sequence int64, payload P) Record[P] {
	return Record[P]{
		ID:        id,
		Sequence:  sequence,
		Payload:   payload,
		State:     PendingState(ZeroAttempts, time.Now().UTC()),
		Lifecycle: ActiveLifecycle(),
	}
}

// Ack marks the record Published, clears LastError and leaves Lifecycle
// Active. Attempt count is carried over from whichever state preceded it.
func (r *Record[P]) Ack() error {
	if r.Lifecycle.IsDeadLettered() {
		return fmt.Errorf("%w: %s", ErrAckOnDeadLettered, r.Lifecycle.Status())
	}

	r.State = PublishedState(r.State.AttemptCount(), time.Now().UTC())
	r.LastError = nil
	r.Lifecycle = ActiveLifecycle()

	return nil
}

// Nack records a failed publish attempt. A Permanent cause, or a
// Transient cause that has now exhausted opts.MaxAttempts, dead-letters
// the record; otherwise it returns to Pending after opts.Backoff.
func (r *Record[P]) Nack(cause DispatchError, opts RetryOptions) error {
	if r.Lifecycle.IsDeadLettered() {
		return fmt.Errorf("%w: %s", ErrNackOnDeadLettered, r.Lifecycle.Status())
	}

	r.LastError = &cause

	nextAttemptCount, err := r.State.AttemptCount().Increment()
	if err != nil {
		return err
	}

	exhausted := nextAttemptCount.Value() > opts.MaxAttempts

	if exhausted || cause.Kind == DispatchPermanent {
		r.Lifecycle = DeadLetteredLifecycle(time.Now().UTC())
		return nil
	}

	r.State = PendingState(nextAttemptCount, time.Now().UTC().Add(opts.Backoff))
	r.Lifecycle = ActiveLifecycle()

	return nil
}

// AcquireLease transitions a Pending record to Leased under owner, for
// leaseFor from now.
func (r *Record[P]) AcquireLease(owner RelayInstance, leaseFor time.Duration) error {
	if r.Lifecycle.IsDeadLettered() {
		return fmt.Errorf("%w: %s", ErrAcquireLeaseOnDeadLettered, r.Lifecycle.Status())
	}

	if r.State.Status() != StatusPending {
		return fmt.Errorf("%w: got %s", ErrAcquireLeaseOnNonPending, r.State.Status())
	}

	nextAttemptAfter, _ := r.State.NextAttemptAfter()
	r.State = LeasedState(r.State.AttemptCount(), nextAttemptAfter, owner, time.Now().UTC().Add(leaseFor))

	return nil
}

// ExtendLease pushes a Leased record's lease expiry out by leaseFor from
// now, re-assigning ownership to owner.
func (r *Record[P]) ExtendLease(owner RelayInstance, leaseFor time.Duration) error {
	if r.Lifecycle.IsDeadLettered() {
		return fmt.Errorf("%w: %s", ErrExtendLeaseOnDeadLettered, r.Lifecycle.Status())
	}

	if r.State.Status() != StatusLeased {
		return fmt.Errorf("%w: got %s", ErrExtendLeaseOnNonLeased, r.State.Status())
	}

	nextAttemptAfter, _ := r.State.NextAttemptAfter()
	r.State = LeasedState(r.State.AttemptCount(), nextAttemptAfter, owner, time.Now().UTC().Add(leaseFor))

	return nil
}
