/*
accrual.go - Time-based accrual of vacation periods

PURPOSE:
  Calculator answers: as of a given date, how many days has the employee
  earned in each anniversary period since hire? It is pure; the as-of date
  is always a parameter.

  Ledger.Recalculate writes the answer into the period rows, creating rows
  that do not exist yet. Consumed totals are never touched.

MONTH COUNTING:
  Only the calendar month matters, not the day:
    months = (asOf.year - start.year) x 12 + asOf.month - start.month
  clamped to [0, 12]; a period whose window has ended counts 12.

  Hired 2023-01-10:
    as of 2023-07-10 -> period 2023: 6 months, 15 days
    as of 2024-01-10 -> period 2023: 12 months, 30 days

TERMINATION:
  The as-of date is capped at the termination date, so nothing accrues after
  an employee leaves. Periods of the as-of year that start later get a row
  with 0 months.

SEE ALSO:
  - generic/period.go: Anniversary windows and MonthsElapsed
  - jobs/tasks.go: Nightly RecalculateAll task
*/
package vacation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-ledger/generic"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// CALCULATOR - Pure accrual math
// =============================================================================

// PeriodAccrual is the time-based accrual of one period.
type PeriodAccrual struct {
	Period        generic.Period
	MonthsAccrued int
	TotalAccrued  decimal.Decimal
}

type Calculator struct {
	Policy Policy
}

// Calculate returns one entry per anniversary year from the hire year to
// the year of asOf, ascending. Nothing is returned when asOf precedes hire.
func (c Calculator) Calculate(hire time.Time, termination *time.Time, asOf time.Time) []PeriodAccrual {
	hire = generic.Truncate(hire)
	asOf = generic.Truncate(asOf)
	if termination != nil && termination.Before(asOf) {
		asOf = generic.Truncate(*termination)
	}
	if asOf.Before(hire) {
		return nil
	}

	var result []PeriodAccrual
	for year := hire.Year(); year <= asOf.Year(); year++ {
		period := generic.AnniversaryPeriod(hire, year)
		result = append(result, c.ForPeriod(period, asOf))
	}
	return result
}

// ForPeriod evaluates a single period at asOf.
func (c Calculator) ForPeriod(period generic.Period, asOf time.Time) PeriodAccrual {
	months := period.MonthsElapsed(asOf)
	return PeriodAccrual{
		Period:        period,
		MonthsAccrued: months,
		TotalAccrued:  c.Policy.AccruedFor(months),
	}
}

// =============================================================================
// RECALCULATE - Upsert period rows from the calculator
// =============================================================================

// Recalculate refreshes every period row of the employee as of asOf (zero
// means now). Safe to call repeatedly: a second call with the same asOf
// writes nothing.
func (l *Ledger) Recalculate(ctx context.Context, id generic.EmployeeID, asOf time.Time) ([]generic.AccrualRecord, error) {
	if asOf.IsZero() {
		asOf = l.now()
	}

	var (
		records []generic.AccrualRecord
		dirty   bool
	)
	err := l.withEmployee(ctx, id, func(tx generic.Store, emp *generic.Employee) error {
		records, dirty = nil, false
		for _, pa := range l.Calculator.Calculate(emp.HireDate, emp.TerminationDate, asOf) {
			rec, changed, err := l.upsertAccrual(ctx, tx, id, pa)
			if err != nil {
				return err
			}
			dirty = dirty || changed
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recalculate %s: %w", id, err)
	}

	if dirty {
		l.logger().Info("accruals recalculated",
			slog.String("employee_id", string(id)),
			slog.String("as_of", generic.Truncate(asOf).Format(generic.DateLayout)),
			slog.Int("periods", len(records)))
		l.changed(ctx)
	}
	return records, nil
}

func (l *Ledger) upsertAccrual(ctx context.Context, tx generic.Store, id generic.EmployeeID, pa PeriodAccrual) (generic.AccrualRecord, bool, error) {
	now := l.now()

	existing, err := tx.GetAccrual(ctx, id, pa.Period.Year)
	switch {
	case errors.Is(err, generic.ErrAccrualNotFound):
		rec := generic.NewAccrualRecord(id, pa.Period, l.Policy.MonthlyRate, now)
		rec.SetAccrued(pa.TotalAccrued, pa.MonthsAccrued)
		if err := tx.SaveAccrual(ctx, rec); err != nil {
			return rec, false, err
		}
		return rec, true, nil
	case err != nil:
		return generic.AccrualRecord{}, false, err
	}

	rec := *existing
	if rec.TotalAccrued.Equal(pa.TotalAccrued) && rec.MonthsAccrued == pa.MonthsAccrued {
		return rec, false, nil
	}

	spill := rec.SetAccrued(pa.TotalAccrued, pa.MonthsAccrued)
	rec.MonthlyRate = l.Policy.MonthlyRate
	rec.UpdatedAt = now
	if spill.IsPositive() {
		l.logger().Warn("recalculated accrual below consumed total, remaining clamped",
			slog.String("employee_id", string(id)),
			slog.Int("year", rec.Year),
			slog.String("spillover", spill.String()))
	}
	if err := tx.SaveAccrual(ctx, rec); err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// =============================================================================
// RECALCULATE ALL - Periodic sweep over every employee
// =============================================================================

// RecalcSummary counts what a sweep did.
type RecalcSummary struct {
	AsOf       time.Time `json:"as_of"`
	Employees  int       `json:"employees"`
	Skipped    int       `json:"skipped"` // terminated before asOf
	Recomputed int       `json:"recomputed"`
}

// RecalculateAll recalculates every employee still employed at asOf,
// RecalcConcurrency at a time. The first failure cancels the rest.
func (l *Ledger) RecalculateAll(ctx context.Context, asOf time.Time) (RecalcSummary, error) {
	if asOf.IsZero() {
		asOf = l.now()
	}
	asOf = generic.Truncate(asOf)
	summary := RecalcSummary{AsOf: asOf}

	employees, err := l.Store.ListEmployees(ctx)
	if err != nil {
		return summary, fmt.Errorf("list employees: %w", err)
	}
	summary.Employees = len(employees)

	limit := l.RecalcConcurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, emp := range employees {
		if emp.TerminationDate != nil && generic.Truncate(*emp.TerminationDate).Before(asOf) {
			summary.Skipped++
			continue
		}
		summary.Recomputed++
		id := emp.ID
		g.Go(func() error {
			_, err := l.Recalculate(gctx, id, asOf)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	l.logger().Info("recalculation sweep finished",
		slog.String("as_of", asOf.Format(generic.DateLayout)),
		slog.Int("employees", summary.Employees),
		slog.Int("recomputed", summary.Recomputed),
		slog.Int("skipped", summary.Skipped))
	return summary, nil
}
