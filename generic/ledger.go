/*
ledger.go - Persisted ledger entities

PURPOSE:
  Defines the rows the ledger is made of:
  - Employee:      identity, hire/termination dates, supervisor
  - AccrualRecord: one row per (employee, accrual year) with running totals
  - Consumption:   days one request drew from one accrual row
  - Adjustment:    immutable audit entry for a manual override

CRITICAL INVARIANTS (AccrualRecord):
  1. remaining == max(0, accrued - consumed)
  2. remaining >= 0 and consumed >= 0
  3. (EmployeeID, Year) is unique

  Every mutation goes through the methods below (Consume, Restore, SetAccrued),
  which keep the invariants by construction. Validate() re-checks them before
  a row is written.

LIFECYCLE:
  AccrualRecord rows are created lazily (first recalculation or first
  adjustment) and never deleted. Consumption rows are deleted on reversal.
  Adjustment rows are never mutated or deleted.

SEE ALSO:
  - store.go: Persistence of these rows
  - vacation/engine.go: The only writer of Consumption rows
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	ID              EmployeeID
	Name            string
	Email           string
	HireDate        time.Time
	TerminationDate *time.Time
	CostCenter      string
	SupervisorID    *EmployeeID
}

// ActiveDuring reports whether the employee was employed at any point in [from, to].
func (e Employee) ActiveDuring(from, to time.Time) bool {
	if Truncate(e.HireDate).After(to) {
		return false
	}
	if e.TerminationDate != nil && Truncate(*e.TerminationDate).Before(from) {
		return false
	}
	return true
}

// AccrualCutoff caps asOf at the termination date: no accrual after leaving.
func (e Employee) AccrualCutoff(asOf time.Time) time.Time {
	asOf = Truncate(asOf)
	if e.TerminationDate != nil && e.TerminationDate.Before(asOf) {
		return Truncate(*e.TerminationDate)
	}
	return asOf
}

// =============================================================================
// ACCRUAL RECORD - The per-employee-per-year ledger entry
// =============================================================================

type AccrualRecord struct {
	EmployeeID EmployeeID
	Year       int
	StartDate  time.Time
	EndDate    time.Time

	MonthlyRate   decimal.Decimal
	MonthsAccrued int // informational; see SetAccrued

	TotalAccrued  decimal.Decimal
	TotalConsumed decimal.Decimal
	Remaining     decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccrualRecord opens an empty row for the period.
func NewAccrualRecord(employeeID EmployeeID, period Period, rate decimal.Decimal, now time.Time) AccrualRecord {
	return AccrualRecord{
		EmployeeID:    employeeID,
		Year:          period.Year,
		StartDate:     period.Start,
		EndDate:       period.End,
		MonthlyRate:   rate,
		TotalAccrued:  decimal.Zero,
		TotalConsumed: decimal.Zero,
		Remaining:     decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Consume draws up to amount from the row and returns what was taken.
// Never drives Remaining below zero.
func (r *AccrualRecord) Consume(amount decimal.Decimal) decimal.Decimal {
	take := MinDays(FloorZero(amount), r.Remaining)
	if !take.IsPositive() {
		return decimal.Zero
	}
	r.Remaining = r.Remaining.Sub(take)
	r.TotalConsumed = r.TotalConsumed.Add(take)
	return take
}

// Restore gives back days previously drawn by Consume.
func (r *AccrualRecord) Restore(amount decimal.Decimal) {
	r.Remaining = r.Remaining.Add(amount)
	r.TotalConsumed = r.TotalConsumed.Sub(amount)
	if r.TotalConsumed.IsNegative() {
		r.TotalConsumed = decimal.Zero
	}
	r.rebalance()
}

// SetAccrued replaces the accrued total and recomputes Remaining against the
// preserved consumed total. It returns the spillover: the days discarded
// because consumption already exceeds the new accrued value.
func (r *AccrualRecord) SetAccrued(accrued decimal.Decimal, months int) decimal.Decimal {
	r.TotalAccrued = accrued
	r.MonthsAccrued = months
	return r.rebalance()
}

func (r *AccrualRecord) rebalance() decimal.Decimal {
	diff := r.TotalAccrued.Sub(r.TotalConsumed)
	r.Remaining = FloorZero(diff)
	if diff.IsNegative() {
		return diff.Neg()
	}
	return decimal.Zero
}

// Validate checks the row invariants.
func (r AccrualRecord) Validate() error {
	switch {
	case r.Remaining.IsNegative():
		return &InvariantError{EmployeeID: r.EmployeeID, Year: r.Year, Reason: "remaining is negative"}
	case r.TotalConsumed.IsNegative():
		return &InvariantError{EmployeeID: r.EmployeeID, Year: r.Year, Reason: "consumed is negative"}
	case !r.Remaining.Equal(FloorZero(r.TotalAccrued.Sub(r.TotalConsumed))):
		return &InvariantError{EmployeeID: r.EmployeeID, Year: r.Year, Reason: "remaining != accrued - consumed"}
	}
	return nil
}

// Period returns the window of this row.
func (r AccrualRecord) Period() Period {
	return Period{Year: r.Year, Start: r.StartDate, End: r.EndDate}
}

// =============================================================================
// CONSUMPTION - Days one request drew from one accrual row
// =============================================================================

type Consumption struct {
	ID          ConsumptionID
	EmployeeID  EmployeeID
	AccrualYear int
	Origin      Origin
	Days        decimal.Decimal
	ConsumedAt  time.Time
}

// =============================================================================
// ADJUSTMENT - Immutable audit entry
// =============================================================================

type Adjustment struct {
	ID            AdjustmentID
	EmployeeID    EmployeeID
	AccrualYear   int
	Type          AdjustmentType
	PreviousValue decimal.Decimal
	NewValue      decimal.Decimal
	Delta         decimal.Decimal
	Spillover     decimal.Decimal // days discarded by the remaining-balance clamp
	Reason        string
	Actor         string
	CreatedAt     time.Time
}
