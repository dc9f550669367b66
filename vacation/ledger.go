package vacation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/vacation-ledger/generic"
)

// =============================================================================
// LEDGER - Entry point for every ledger mutation
// =============================================================================

// Invalidator is notified after a mutation commits.
// store/cache.ReportCache implements it by bumping its version key.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Ledger wires the ledger components to a transactional store.
type Ledger struct {
	Store      generic.TxStore
	Policy     Policy
	Calculator Calculator
	Logger     *slog.Logger

	// Now stamps consumptions, adjustments and row updates.
	Now func() time.Time
	// NewID generates consumption and adjustment identifiers.
	NewID func() string

	Invalidator Invalidator // optional

	// RecalcConcurrency bounds RecalculateAll fan-out.
	RecalcConcurrency int
}

// NewLedger returns a Ledger with wall-clock time and UUID identifiers.
func NewLedger(store generic.TxStore, policy Policy, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		Store:             store,
		Policy:            policy,
		Calculator:        Calculator{Policy: policy},
		Logger:            logger,
		Now:               func() time.Time { return time.Now().UTC() },
		NewID:             uuid.NewString,
		RecalcConcurrency: 4,
	}
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now().UTC()
}

func (l *Ledger) newID() string {
	if l.NewID == nil {
		return uuid.NewString()
	}
	return l.NewID()
}

func (l *Ledger) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// withEmployee runs fn in one transaction after locking the employee and
// loading their row.
func (l *Ledger) withEmployee(ctx context.Context, id generic.EmployeeID, fn func(tx generic.Store, emp *generic.Employee) error) error {
	return l.Store.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.LockEmployee(ctx, id); err != nil {
			return fmt.Errorf("lock employee %s: %w", id, err)
		}
		emp, err := tx.GetEmployee(ctx, id)
		if err != nil {
			return err
		}
		return fn(tx, emp)
	})
}

// changed notifies the invalidator. Failures are logged, not returned: the
// ledger write already committed.
func (l *Ledger) changed(ctx context.Context) {
	if l.Invalidator == nil {
		return
	}
	if err := l.Invalidator.Bump(ctx); err != nil {
		l.logger().Warn("report cache invalidation failed", slog.Any("error", err))
	}
}
