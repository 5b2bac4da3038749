// Package saga implements the Saga Runner of spec.md §3/§4.9: a
// long-running workflow keyed by correlation_id that reacts to events,
// mutates its own state, and issues further commands via the command
// outbox — all inside the event delivery's Unit of Work.
package saga

import (
	"encoding/json"
	"time"

	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/names"
)

// Status is the saga instance's position in its lifecycle.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Instance is one running (saga_name, correlation_id) workflow (spec.md
// §3). State is domain-owned opaque JSON; the runner never interprets it.
type Instance struct {
	SagaInstanceId ids.SagaInstanceId
	SagaName       names.SagaName
	CorrelationId  ids.CorrelationId
	Status         Status
	State          json.RawMessage
	StateVersion   int64
	SucceededAt    time.Time
	FailedAt       time.Time
	LastError      json.RawMessage

	// uncommittedCommands accumulates the CommandEnvelopes a Definition's
	// OnEvent callback wants enqueued once this cycle commits.
	uncommittedCommands []CommandDraft
}

// IsTerminal reports whether the instance has reached Succeeded or Failed,
// at which point no further events are applied to it (spec.md §4.9 step 2).
func (i *Instance) IsTerminal() bool {
	return i.Status == StatusSucceeded || i.Status == StatusFailed
}

// Succeed transitions the instance to Succeeded as of now.
func (i *Instance) Succeed(now time.Time) {
	i.Status = StatusSucceeded
	i.SucceededAt = now
}

// Fail transitions the instance to Failed as of now, recording lastError.
func (i *Instance) Fail(now time.Time, lastError json.RawMessage) {
	i.Status = StatusFailed
	i.FailedAt = now
	i.LastError = lastError
}

// Emit queues a command for enqueue into the command outbox once this
// cycle's Unit of Work commits (spec.md §4.9 step 6). payload is the
// command's opaque JSON body.
func (i *Instance) Emit(commandName names.CommandName, payload json.RawMessage) {
	i.uncommittedCommands = append(i.uncommittedCommands, CommandDraft{CommandName: commandName, Payload: payload})
}

// UncommittedCommands returns the commands queued by Emit this cycle.
func (i *Instance) UncommittedCommands() []CommandDraft {
	return i.uncommittedCommands
}

// CommandDraft is a not-yet-enveloped command a saga wants issued; the
// Runner fills in message_id, correlation_id, causation_id and
// ordering_key per spec.md §4.9 step 6.
type CommandDraft struct {
	CommandName names.CommandName
	Payload     json.RawMessage
}
