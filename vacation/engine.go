/*
engine.go - FIFO consumption and reversal

PURPOSE:
  Applies approved requests to the period rows:
  - Consume: split N days across periods oldest-first, write one Consumption
    row per period drawn from, and decrement the period balances.
  - Reverse: give back every day a request consumed and delete its rows.
  - AvailableBalance: per-period balances for pre-validation.

SHORTFALL:
  Consume never fails for lack of balance. It places what it can and reports
  the rest as Shortfall; the caller decides whether that is acceptable.
  Callers should pre-validate with AvailableBalance/AvailableCashOut. The
  check and the consume are two transactions, so a concurrent request can
  still win the race; the shortfall field is how that surfaces.

ATOMICITY:
  Each call is one store transaction with the employee locked. A storage
  failure halfway through rolls back every allocation.

EXAMPLE:
  periods 2022=5, 2023=10, 2024=20, consume 12
    -> 2022: 5, 2023: 7; leaves 2022=0, 2023=3, 2024=20

SEE ALSO:
  - generic/allocation.go: Distribute
  - cashout.go: Per-period cash-out ceilings
*/
package vacation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-ledger/generic"
)

// =============================================================================
// RESULTS
// =============================================================================

// ConsumeResult describes how a request was placed.
type ConsumeResult struct {
	EmployeeID    generic.EmployeeID
	Origin        generic.Origin
	Requested     decimal.Decimal
	Allocations   []generic.Allocation
	TotalConsumed decimal.Decimal
	Shortfall     decimal.Decimal
}

// ReverseResult lists what a reversal gave back. Empty for a no-op.
type ReverseResult struct {
	Origin        generic.Origin
	Restored      []generic.Allocation
	TotalRestored decimal.Decimal
}

// PeriodBalance is one row of AvailableBalance.
type PeriodBalance struct {
	Year      int
	Start     time.Time
	End       time.Time
	Accrued   decimal.Decimal
	Consumed  decimal.Decimal
	Remaining decimal.Decimal
}

// Balance is the employee's total with its per-period breakdown, oldest first.
type Balance struct {
	EmployeeID     generic.EmployeeID
	TotalAvailable decimal.Decimal
	ByPeriod       []PeriodBalance
}

// =============================================================================
// CONSUME
// =============================================================================

// Consume draws days for a leave request.
func (l *Ledger) Consume(ctx context.Context, id generic.EmployeeID, request generic.RequestID, days decimal.Decimal) (*ConsumeResult, error) {
	return l.ConsumeFor(ctx, id, generic.LeaveOrigin(request), days)
}

// ConsumeFor draws days for any origin. Cash-out origins are limited by the
// per-period cash-out ceiling instead of the raw remaining balance.
func (l *Ledger) ConsumeFor(ctx context.Context, id generic.EmployeeID, origin generic.Origin, days decimal.Decimal) (*ConsumeResult, error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	if days.IsNegative() {
		return nil, fmt.Errorf("%w: cannot consume %s days", generic.ErrInvalidAmount, days)
	}
	if !generic.ValidScale(days) {
		return nil, fmt.Errorf("%w: %s has more than %d decimal places", generic.ErrInvalidAmount, days, generic.DayScale)
	}

	var result *ConsumeResult
	err := l.withEmployee(ctx, id, func(tx generic.Store, _ *generic.Employee) error {
		existing, err := tx.ConsumptionsByOrigin(ctx, origin)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: %s", generic.ErrRequestAlreadyConsumed, origin)
		}

		records, err := tx.ListAccruals(ctx, id)
		if err != nil {
			return err
		}
		buckets, err := l.buckets(ctx, tx, id, origin.Kind, records)
		if err != nil {
			return err
		}

		dist := generic.Distribute(buckets, days)
		if err := l.apply(ctx, tx, id, origin, records, dist.Allocations); err != nil {
			return err
		}

		result = &ConsumeResult{
			EmployeeID:    id,
			Origin:        origin,
			Requested:     days,
			Allocations:   dist.Allocations,
			TotalConsumed: dist.Allocated,
			Shortfall:     dist.Shortfall,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("consume %s for %s: %w", origin, id, err)
	}

	log := l.logger().With(
		slog.String("employee_id", string(id)),
		slog.String("origin", origin.String()),
		slog.String("days", days.String()),
		slog.String("consumed", result.TotalConsumed.String()))
	if result.Shortfall.IsPositive() {
		log.Warn("consumption short of request", slog.String("shortfall", result.Shortfall.String()))
	} else {
		log.Info("consumption recorded")
	}
	if result.TotalConsumed.IsPositive() {
		l.changed(ctx)
	}
	return result, nil
}

// buckets returns the per-period ceilings for the origin kind.
func (l *Ledger) buckets(ctx context.Context, tx generic.Store, id generic.EmployeeID, kind generic.OriginKind, records []generic.AccrualRecord) ([]generic.Bucket, error) {
	switch kind {
	case generic.OriginCashOut:
		consumptions, err := tx.ConsumptionsByEmployee(ctx, id)
		if err != nil {
			return nil, err
		}
		periods := cashOutPeriods(records, consumptions, l.Policy.CashOutCap)
		buckets := make([]generic.Bucket, 0, len(periods))
		for _, p := range periods {
			buckets = append(buckets, generic.Bucket{Year: p.Year, Ceiling: p.CashOutAvailable})
		}
		return buckets, nil
	case generic.OriginLeave:
		buckets := make([]generic.Bucket, 0, len(records))
		for _, r := range records {
			buckets = append(buckets, generic.Bucket{Year: r.Year, Ceiling: r.Remaining})
		}
		return buckets, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", generic.ErrInvalidOrigin, kind)
}

// apply writes the allocations: one row update and one Consumption per period.
func (l *Ledger) apply(ctx context.Context, tx generic.Store, id generic.EmployeeID, origin generic.Origin, records []generic.AccrualRecord, allocs []generic.Allocation) error {
	byYear := make(map[int]*generic.AccrualRecord, len(records))
	for i := range records {
		byYear[records[i].Year] = &records[i]
	}

	now := l.now()
	for _, alloc := range allocs {
		rec, ok := byYear[alloc.Year]
		if !ok {
			return fmt.Errorf("%w: %s/%d", generic.ErrAccrualNotFound, id, alloc.Year)
		}
		if taken := rec.Consume(alloc.Amount); !taken.Equal(alloc.Amount) {
			return &generic.InvariantError{EmployeeID: id, Year: alloc.Year, Reason: "allocation exceeds remaining"}
		}
		rec.UpdatedAt = now
		if err := tx.SaveAccrual(ctx, *rec); err != nil {
			return err
		}
		if err := tx.AddConsumption(ctx, generic.Consumption{
			ID:          generic.ConsumptionID(l.newID()),
			EmployeeID:  id,
			AccrualYear: alloc.Year,
			Origin:      origin,
			Days:        alloc.Amount,
			ConsumedAt:  now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// REVERSE
// =============================================================================

// Reverse gives back every day the request consumed and deletes its
// Consumption rows. A request with no rows left is a successful no-op.
func (l *Ledger) Reverse(ctx context.Context, origin generic.Origin) (*ReverseResult, error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}

	result := &ReverseResult{Origin: origin, TotalRestored: decimal.Zero}
	err := l.Store.WithTx(ctx, func(tx generic.Store) error {
		result.Restored, result.TotalRestored = nil, decimal.Zero

		found, err := tx.ConsumptionsByOrigin(ctx, origin)
		if err != nil || len(found) == 0 {
			return err
		}
		for _, emp := range employeesOf(found) {
			if err := tx.LockEmployee(ctx, emp); err != nil {
				return err
			}
		}
		// Re-read under the locks: a concurrent reversal may have won.
		rows, err := tx.ConsumptionsByOrigin(ctx, origin)
		if err != nil {
			return err
		}

		for _, c := range rows {
			rec, err := tx.GetAccrual(ctx, c.EmployeeID, c.AccrualYear)
			if err != nil {
				return fmt.Errorf("restore %s/%d: %w", c.EmployeeID, c.AccrualYear, err)
			}
			rec.Restore(c.Days)
			rec.UpdatedAt = l.now()
			if err := tx.SaveAccrual(ctx, *rec); err != nil {
				return err
			}
			if err := tx.DeleteConsumption(ctx, c.ID); err != nil {
				return err
			}
			result.Restored = append(result.Restored, generic.Allocation{Year: c.AccrualYear, Amount: c.Days})
			result.TotalRestored = result.TotalRestored.Add(c.Days)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reverse %s: %w", origin, err)
	}

	if len(result.Restored) == 0 {
		l.logger().Debug("reversal found nothing to restore", slog.String("origin", origin.String()))
		return result, nil
	}
	l.logger().Info("consumption reversed",
		slog.String("origin", origin.String()),
		slog.String("restored", result.TotalRestored.String()))
	l.changed(ctx)
	return result, nil
}

func employeesOf(cs []generic.Consumption) []generic.EmployeeID {
	seen := make(map[generic.EmployeeID]bool)
	var ids []generic.EmployeeID
	for _, c := range cs {
		if !seen[c.EmployeeID] {
			seen[c.EmployeeID] = true
			ids = append(ids, c.EmployeeID)
		}
	}
	// Fixed lock order across concurrent reversals.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// =============================================================================
// AVAILABLE BALANCE
// =============================================================================

// AvailableBalance sums remaining days across every period of the employee.
func (l *Ledger) AvailableBalance(ctx context.Context, id generic.EmployeeID) (*Balance, error) {
	if _, err := l.Store.GetEmployee(ctx, id); err != nil {
		return nil, err
	}
	records, err := l.Store.ListAccruals(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list accruals %s: %w", id, err)
	}

	bal := &Balance{EmployeeID: id, TotalAvailable: decimal.Zero, ByPeriod: make([]PeriodBalance, 0, len(records))}
	for _, r := range records {
		bal.ByPeriod = append(bal.ByPeriod, PeriodBalance{
			Year:      r.Year,
			Start:     r.StartDate,
			End:       r.EndDate,
			Accrued:   r.TotalAccrued,
			Consumed:  r.TotalConsumed,
			Remaining: r.Remaining,
		})
		bal.TotalAvailable = bal.TotalAvailable.Add(r.Remaining)
	}
	return bal, nil
}
