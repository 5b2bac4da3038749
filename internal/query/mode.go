// Package query implements the Query Dispatcher of spec.md §6: a thin
// read-side gate that lets a caller request either eventual consistency
// (run now) or read-your-writes consistency (block until a named
// projector's checkpoint has caught up to the event caused by a prior
// write).
package query

import (
	"time"

	"github.com/correlator-io/outboxkit/internal/ids"
)

// Mode selects how a Dispatcher satisfies a read.
type Mode interface {
	isMode()
}

// Eventual executes immediately against whatever state the projector
// currently holds.
type Eventual struct{}

func (Eventual) isMode() {}

// ReadYourWrites blocks until Projector's checkpoint has reached the
// event caused by After, polling every PollInterval, up to Timeout.
type ReadYourWrites struct {
	Projector    string
	After        ids.MessageId
	Timeout      time.Duration
	PollInterval time.Duration
}

func (ReadYourWrites) isMode() {}
