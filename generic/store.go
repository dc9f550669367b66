/*
store.go - Persistence interface for the vacation ledger

PURPOSE:
  Defines the interface between the ledger components and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:   Row-level reads and writes for employees, accrual records,
           consumptions, and adjustments
  TxStore: Store plus WithTx (atomic multi-row writes)

MUTABILITY CONTRACT:
  - AccrualRecord rows are upserted by (EmployeeID, Year).
  - Consumption rows are appended, and deleted only by reversal.
  - Adjustment rows are append-only. No update, no delete.

SERIALIZATION:
  Every read-modify-write of one employee's rows runs inside WithTx and calls
  LockEmployee first. Memory and SQLite serialize whole transactions, so the
  lock is a no-op there; PostgreSQL takes a transaction-scoped advisory lock.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: Embedded SQLite
  - store/postgres/postgres.go: PostgreSQL via pgx

EXAMPLE:
  err := store.WithTx(ctx, func(tx generic.Store) error {
      if err := tx.LockEmployee(ctx, empID); err != nil {
          return err
      }
      rec, err := tx.GetAccrual(ctx, empID, 2024)
      ...
      return tx.SaveAccrual(ctx, rec)
  })

SEE ALSO:
  - ledger.go: The row types
  - vacation/engine.go: Main consumer of WithTx
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for ledger persistence
// =============================================================================

type Store interface {
	// Employees
	SaveEmployee(ctx context.Context, emp Employee) error
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error) // ErrEmployeeNotFound
	ListEmployees(ctx context.Context) ([]Employee, error)

	// LockEmployee serializes writers of one employee's rows until the
	// enclosing transaction ends.
	LockEmployee(ctx context.Context, id EmployeeID) error

	// Accrual records
	GetAccrual(ctx context.Context, id EmployeeID, year int) (*AccrualRecord, error) // ErrAccrualNotFound
	// ListAccruals returns every row of the employee ordered by Year ascending.
	ListAccruals(ctx context.Context, id EmployeeID) ([]AccrualRecord, error)
	// SaveAccrual inserts or replaces the row keyed by (EmployeeID, Year).
	SaveAccrual(ctx context.Context, rec AccrualRecord) error

	// Consumptions
	AddConsumption(ctx context.Context, c Consumption) error
	ConsumptionsByOrigin(ctx context.Context, origin Origin) ([]Consumption, error)
	// ConsumptionsByEmployee returns rows ordered by ConsumedAt ascending.
	ConsumptionsByEmployee(ctx context.Context, id EmployeeID) ([]Consumption, error)
	// ConsumptionsInRange returns rows with ConsumedAt in [from, to], any origin.
	ConsumptionsInRange(ctx context.Context, id EmployeeID, from, to time.Time) ([]Consumption, error)
	DeleteConsumption(ctx context.Context, id ConsumptionID) error

	// Adjustments (append-only)
	AddAdjustment(ctx context.Context, adj Adjustment) error
	// AdjustmentsByEmployee returns rows ordered by CreatedAt ascending.
	AdjustmentsByEmployee(ctx context.Context, id EmployeeID) ([]Adjustment, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
