package outbox

import (
	"errors"
	"fmt"
	"time"
)

// Status names the three positions an outbox record occupies on the
// Pending/Leased/Published lifecycle (spec.md §4.6). It never appears on
// its own: a State always carries the fields for its Status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusLeased    Status = "leased"
	StatusPublished Status = "published"
)

// ErrWrongStatusForField is returned by a State accessor when called on a
// Status that does not carry the requested field, e.g. LeaseOwner() on a
// Pending state.
var ErrWrongStatusForField = errors.New("field not present for this outbox status")

// State is the outbox record's position in the Pending/Leased/Published
// lifecycle, mirroring the Rust original's OutboxState enum. Go has no
// tagged union, so State is a flat struct guarded by Status: only the
// fields documented for the current Status are meaningful.
type State struct {
	status           Status
	attemptCount     AttemptCount
	nextAttemptAfter time.Time
	leaseOwner       RelayInstance
	leaseUntil       time.Time
	publishedAt      time.Time
}

// PendingState builds a State awaiting its next publish attempt.
func PendingState(attemptCount AttemptCount, nextAttemptAfter time.Time) State {
	return State{
		status:           StatusPending,
		attemptCount:     attemptCount,
		nextAttemptAfter: nextAttemptAfter,
	}
}

// LeasedState builds a State currently held by a relay instance.
func LeasedState(attemptCount AttemptCount, nextAttemptAfter time.Time, owner RelayInstance, leaseUntil time.Time) State {
	return State{
		status:           StatusLeased,
		attemptCount:     attemptCount,
		nextAttemptAfter: nextAttemptAfter,
		leaseOwner:       owner,
		leaseUntil:       leaseUntil,
	}
}

// PublishedState builds a State that has been durably published.
func PublishedState(attemptCount AttemptCount, publishedAt time.Time) State {
	return State{
		status:       StatusPublished,
		attemptCount: attemptCount,
		publishedAt:  publishedAt,
	}
}

// Status reports which of Pending, Leased or Published this State is in.
func (s State) Status() Status { return s.status }

// AttemptCount is defined for every Status, matching the Rust original's
// attempt_count() being common across all three enum variants.
func (s State) AttemptCount() AttemptCount { return s.attemptCount }

// NextAttemptAfter is only meaningful when Status is Pending or Leased.
func (s State) NextAttemptAfter() (time.Time, error) {
	if s.status != StatusPending && s.status != StatusLeased {
		return time.Time{}, fmt.Errorf("%w: NextAttemptAfter on %s", ErrWrongStatusForField, s.status)
	}
	return s.nextAttemptAfter, nil
}

// LeaseOwner is only meaningful when Status is Leased.
func (s State) LeaseOwner() (RelayInstance, error) {
	if s.status != StatusLeased {
		return RelayInstance{}, fmt.Errorf("%w: LeaseOwner on %s", ErrWrongStatusForField, s.status)
	}
	return s.leaseOwner, nil
}

// LeaseUntil is only meaningful when Status is Leased.
func (s State) LeaseUntil() (time.Time, error) {
	if s.status != StatusLeased {
		return time.Time{}, fmt.Errorf("%w: LeaseUntil on %s", ErrWrongStatusForField, s.status)
	}
	return s.leaseUntil, nil
}

// PublishedAt is only meaningful when Status is Published.
func (s State) PublishedAt() (time.Time, error) {
	if s.status != StatusPublished {
		return time.Time{}, fmt.Errorf("%w: PublishedAt on %s", ErrWrongStatusForField, s.status)
	}
	return s.publishedAt, nil
}
