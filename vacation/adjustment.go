package vacation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-ledger/generic"
)

// =============================================================================
// ADJUSTMENT RECORDER - Manual override of a period's accrued total
// =============================================================================

// AdjustInput is one override request. Reason length and actor identity are
// checked by the caller.
type AdjustInput struct {
	EmployeeID generic.EmployeeID
	Year       int
	NewAccrued decimal.Decimal
	Type       generic.AdjustmentType
	Reason     string
	Actor      string
}

type AdjustResult struct {
	Record     generic.AccrualRecord
	Adjustment generic.Adjustment
	Created    bool // the period row did not exist before
}

// Adjust sets a period's accrued total and appends the audit entry.
//
//   - missing row: created for the hire-anniversary window of Year, with
//     remaining = NewAccrued and previous value 0
//   - existing row: delta = new - previous, remaining = max(0, accrued - consumed)
//
// Days discarded by the clamp are returned on Adjustment.Spillover. On a row
// that was already clamped this is not remaining + delta: remaining is
// recomputed from the preserved consumed total, so a later upward adjustment
// does not give back days the earlier clamp discarded.
func (l *Ledger) Adjust(ctx context.Context, in AdjustInput) (*AdjustResult, error) {
	if in.NewAccrued.IsNegative() {
		return nil, fmt.Errorf("%w: accrued total cannot be negative (%s)", generic.ErrInvalidAmount, in.NewAccrued)
	}
	if !generic.ValidScale(in.NewAccrued) {
		return nil, fmt.Errorf("%w: %s has more than %d decimal places", generic.ErrInvalidAmount, in.NewAccrued, generic.DayScale)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", generic.ErrInvalidAdjustmentType, in.Type)
	}

	var result *AdjustResult
	err := l.withEmployee(ctx, in.EmployeeID, func(tx generic.Store, emp *generic.Employee) error {
		now := l.now()
		created := false

		rec, err := tx.GetAccrual(ctx, in.EmployeeID, in.Year)
		if errors.Is(err, generic.ErrAccrualNotFound) {
			fresh := generic.NewAccrualRecord(in.EmployeeID, generic.AnniversaryPeriod(emp.HireDate, in.Year), l.Policy.MonthlyRate, now)
			rec, created = &fresh, true
		} else if err != nil {
			return err
		}

		previous := rec.TotalAccrued
		spill := rec.SetAccrued(in.NewAccrued, l.Policy.MonthsFor(in.NewAccrued))
		rec.UpdatedAt = now
		if err := tx.SaveAccrual(ctx, *rec); err != nil {
			return err
		}

		adj := generic.Adjustment{
			ID:            generic.AdjustmentID(l.newID()),
			EmployeeID:    in.EmployeeID,
			AccrualYear:   in.Year,
			Type:          in.Type,
			PreviousValue: previous,
			NewValue:      in.NewAccrued,
			Delta:         in.NewAccrued.Sub(previous),
			Spillover:     spill,
			Reason:        in.Reason,
			Actor:         in.Actor,
			CreatedAt:     now,
		}
		if err := tx.AddAdjustment(ctx, adj); err != nil {
			return err
		}

		result = &AdjustResult{Record: *rec, Adjustment: adj, Created: created}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("adjust %s/%d: %w", in.EmployeeID, in.Year, err)
	}

	log := l.logger().With(
		slog.String("employee_id", string(in.EmployeeID)),
		slog.Int("year", in.Year),
		slog.String("type", string(in.Type)),
		slog.String("actor", in.Actor),
		slog.String("delta", result.Adjustment.Delta.String()))
	if result.Adjustment.Spillover.IsPositive() {
		log.Warn("adjustment clamped remaining balance at zero",
			slog.String("spillover", result.Adjustment.Spillover.String()))
	} else {
		log.Info("accrual adjusted")
	}
	l.changed(ctx)
	return result, nil
}

// Adjustments returns the employee's audit trail, oldest first.
func (l *Ledger) Adjustments(ctx context.Context, id generic.EmployeeID) ([]generic.Adjustment, error) {
	if _, err := l.Store.GetEmployee(ctx, id); err != nil {
		return nil, err
	}
	return l.Store.AdjustmentsByEmployee(ctx, id)
}
