// Package pgquery is the Postgres-backed query.TargetResolver: it resolves
// a read-your-writes target sequence by looking up the events table
// directly (spec.md §6).
package pgquery

import (
	"context"
	"fmt"

	"github.com/correlator-io/outboxkit/internal/ids"
	"github.com/correlator-io/outboxkit/internal/query"
	"github.com/correlator-io/outboxkit/internal/uow"
)

// Resolver implements query.TargetResolver against the events table.
type Resolver struct{}

// New builds a Resolver.
func New() *Resolver { return &Resolver{} }

var _ query.TargetResolver = (*Resolver)(nil)

func (r *Resolver) ResolveTarget(ctx context.Context, work uow.UnitOfWork, after ids.MessageId) (int64, bool, error) {
	tx := work.Tx()
	if tx == nil {
		return 0, false, fmt.Errorf("resolve target: %w", uow.ErrNotInTransaction)
	}

	var (
		count    int64
		sequence int64
	)

	err := tx.QueryRowContext(ctx, `
		SELECT count(*), coalesce(max(event_sequence), 0) FROM events WHERE causation_id = $1
	`, after.String()).Scan(&count, &sequence)
	if err != nil {
		return 0, false, fmt.Errorf("resolve target for %s: %w", after, err)
	}

	if count == 0 {
		return 0, false, nil
	}

	return sequence, true, nil
}
