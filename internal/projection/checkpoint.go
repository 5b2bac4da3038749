// Package projection implements the Projection Runner and Rebuilder of
// spec.md §3/§4.8: per-event idempotent application of a read-model
// projector, with checkpoint advancement for the event-feed rebuild path.
package projection

import (
	"context"

	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// CheckpointStore persists a projector's progress through the event feed
// (spec.md §4.8). Load returns ok=false when the projector has never run.
type CheckpointStore interface {
	Load(ctx context.Context, work uow.UnitOfWork, name names.ProjectorName) (sequence int64, ok bool, err error)
	Save(ctx context.Context, work uow.UnitOfWork, name names.ProjectorName, sequence int64) error
	Reset(ctx context.Context, work uow.UnitOfWork, name names.ProjectorName) error
}
