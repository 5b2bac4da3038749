// Package uow implements the Unit of Work component of spec.md §4.1: a
// scoped transaction handle shared across store operations in one logical
// action. All store-facing components accept a UnitOfWork and must not
// begin or commit it themselves unless documented otherwise.
package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrAlreadyInTransaction reports a Unit that is already active.
	// Begin never returns it (Begin on an active Unit is a no-op), and no
	// code in this module returns it (spec.md §4.1).
	ErrAlreadyInTransaction = errors.New("unit of work already in transaction")

	// ErrNotInTransaction is returned by Commit/Rollback when Begin has
	// not been called.
	ErrNotInTransaction = errors.New("unit of work is not in a transaction")

	// ErrCommitFailed wraps a failure to commit the underlying transaction.
	ErrCommitFailed = errors.New("commit failed")

	// ErrRollbackFailed wraps a failure to roll back the underlying transaction.
	ErrRollbackFailed = errors.New("rollback failed")
)

// OperationAndRollbackFailedError composes an operation error with a
// rollback failure, per spec.md §7's OperationAndRollbackFailed{op, rb}.
// It preserves both errors as distinct chain links via Unwrap() []error
// rather than concatenating messages by hand.
type OperationAndRollbackFailedError struct {
	OperationError error
	RollbackError  error
}

func (e *OperationAndRollbackFailedError) Error() string {
	return fmt.Sprintf("operation failed and rollback also failed: operation=%v rollback=%v",
		e.OperationError, e.RollbackError)
}

// Unwrap exposes both underlying errors to errors.Is/errors.As.
func (e *OperationAndRollbackFailedError) Unwrap() []error {
	return []error{e.OperationError, e.RollbackError}
}

// UnitOfWork is a scoped transaction handle. Begin is idempotent if
// already begun. Tx exposes the underlying *sql.Tx so store components can
// issue queries bound to the same transaction boundary — the Go stand-in
// for the associated-type pattern spec.md §9 describes for store adapters
// (this framework targets one persistence engine, Postgres, so a single
// concrete transaction type is sufficient; a second engine would introduce
// a second UnitOfWork implementation behind the same interface).
type UnitOfWork interface {
	// Begin starts a transaction. Calling Begin while already active is a
	// no-op that returns nil (idempotent, per spec.md §4.1). Callers that
	// must detect reentrant use check InTransaction() themselves — Begin
	// itself never returns ErrAlreadyInTransaction.
	Begin(ctx context.Context) error
	// InTransaction reports whether a transaction is currently active.
	InTransaction() bool
	// Commit commits the active transaction.
	Commit() error
	// Rollback rolls back the active transaction. Safe to call on a
	// committed or not-yet-begun Unit (returns ErrNotInTransaction in
	// both cases).
	Rollback() error
	// RollbackWithOperationError attempts Rollback and composes the
	// result with opErr per spec.md §4.1.
	RollbackWithOperationError(opErr error) error
	// Tx returns the active *sql.Tx, or nil if not in a transaction.
	Tx() *sql.Tx
}

// Factory creates fresh Units of Work bound to a *sql.DB.
type Factory struct {
	db *sql.DB
}

// NewFactory constructs a Factory over an existing connection pool.
func NewFactory(db *sql.DB) *Factory {
	return &Factory{db: db}
}

// New returns a fresh, not-yet-begun UnitOfWork.
func (f *Factory) New() UnitOfWork {
	return &postgresUnitOfWork{db: f.db}
}

type postgresUnitOfWork struct {
	db     *sql.DB
	tx     *sql.Tx
	active bool
}

func (u *postgresUnitOfWork) Begin(ctx context.Context) error {
	if u.active {
		return nil
	}

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	u.tx = tx
	u.active = true

	return nil
}

func (u *postgresUnitOfWork) Commit() error {
	if !u.active {
		return ErrNotInTransaction
	}

	u.active = false

	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	return nil
}

func (u *postgresUnitOfWork) Rollback() error {
	if !u.active {
		return ErrNotInTransaction
	}

	u.active = false

	if err := u.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			// The transaction was already committed/rolled back by the
			// driver (e.g. due to a prior fatal error); nothing to do.
			return nil
		}

		return fmt.Errorf("%w: %w", ErrRollbackFailed, err)
	}

	return nil
}

func (u *postgresUnitOfWork) RollbackWithOperationError(opErr error) error {
	if rbErr := u.Rollback(); rbErr != nil {
		return &OperationAndRollbackFailedError{OperationError: opErr, RollbackError: rbErr}
	}

	return opErr
}

func (u *postgresUnitOfWork) InTransaction() bool {
	return u.active
}

func (u *postgresUnitOfWork) Tx() *sql.Tx {
	if !u.active {
		return nil
	}

	return u.tx
}

// IsUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505). The store adapters in this module do not call it:
// their conflict-prone inserts use ON CONFLICT DO NOTHING instead, which
// keeps the transaction usable.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// IsConnectionError reports whether err indicates the Postgres connection
// itself was lost (SQLSTATE class 08), matching the classification
// internal/storage/lineage_store.go performs in isDatabaseConnectionError.
func IsConnectionError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return len(pqErr.Code) >= 2 && pqErr.Code[:2] == "08"
	}

	return errors.Is(err, sql.ErrConnDone)
}
