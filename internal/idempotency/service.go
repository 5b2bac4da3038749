package idempotency

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// ErrConflict is returned by Begin when message_id was already registered
// under a different (command_name, command_hash) pair — a client bug
// reusing an idempotency key for a different command (spec.md §4.7).
var ErrConflict = errors.New("idempotency conflict: message_id reused for a different command")

// ErrInvalidStateTransition is returned by CompleteSuccess/CompleteFailure
// when the record is already completed (spec.md §7).
var ErrInvalidStateTransition = errors.New("idempotency record already completed")

// Service is the Idempotency Service contract of spec.md §4.7. All
// methods run against a caller-supplied, already-begun Unit of Work.
type Service interface {
	// Begin attempts to register message_id for (commandName, commandHash).
	// See Outcome's doc comments for the three possible results.
	Begin(ctx context.Context, work uow.UnitOfWork, messageID ids.MessageId, commandName names.CommandName, commandHash string) (Outcome, error)
	// CompleteSuccess records a successful completion's output.
	CompleteSuccess(ctx context.Context, work uow.UnitOfWork, messageID ids.MessageId, output json.RawMessage) error
	// CompleteFailure records a failed completion's error payload.
	CompleteFailure(ctx context.Context, work uow.UnitOfWork, messageID ids.MessageId, failure json.RawMessage) error
}
