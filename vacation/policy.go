/*
Package vacation implements the vacation accrual ledger.

PURPOSE:
  Employees earn vacation days monthly inside yearly periods anchored at their
  hire-date anniversary. Days are consumed by leave requests and cash-out
  requests, oldest period first, and given back when a request is withdrawn.

COMPONENTS:
  policy.go:     Rates and ceilings (2.5 days/month, 30/year, 15 cash-out/period)
  accrual.go:    Calculator (pure) and Ledger.Recalculate (upsert of periods)
  engine.go:     Ledger.Consume, Ledger.Reverse, Ledger.AvailableBalance
  cashout.go:    Cash-out ceilings and Ledger.AvailableCashOut
  adjustment.go: Ledger.Adjust (manual override with audit trail)
  report.go:     Reporter.GenerateMonthlyReport (read-only month view)

SERIALIZATION:
  Every mutation runs in one store transaction that locks the employee
  before reading their rows. Either every allocation is written or none is.

SEE ALSO:
  - generic/allocation.go: FIFO split
  - generic/ledger.go: AccrualRecord invariants
*/
package vacation

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-ledger/generic"
)

// =============================================================================
// POLICY - Rates and ceilings
// =============================================================================

type Policy struct {
	MonthlyRate decimal.Decimal // days earned per elapsed month
	YearlyCap   decimal.Decimal // max accrued per period
	CashOutCap  decimal.Decimal // max cash-out consumption per period
}

// DefaultPolicy: 2.5 days per month, 30 per year, 15 cashable per period.
func DefaultPolicy() Policy {
	return Policy{
		MonthlyRate: generic.Days(2.5),
		YearlyCap:   generic.DaysFromInt(30),
		CashOutCap:  generic.DaysFromInt(15),
	}
}

// Validate rejects non-positive rates and ceilings, and values finer than
// generic.DayScale.
func (p Policy) Validate() error {
	if !p.MonthlyRate.IsPositive() || !p.YearlyCap.IsPositive() || !p.CashOutCap.IsPositive() {
		return fmt.Errorf("%w: policy values must be positive (rate=%s cap=%s cashout=%s)",
			generic.ErrInvalidAmount, p.MonthlyRate, p.YearlyCap, p.CashOutCap)
	}
	if !generic.ValidScale(p.MonthlyRate) || !generic.ValidScale(p.YearlyCap) || !generic.ValidScale(p.CashOutCap) {
		return fmt.Errorf("%w: policy values carry at most %d decimal places (rate=%s cap=%s cashout=%s)",
			generic.ErrInvalidAmount, generic.DayScale, p.MonthlyRate, p.YearlyCap, p.CashOutCap)
	}
	return nil
}

// AccruedFor returns min(YearlyCap, months x MonthlyRate).
func (p Policy) AccruedFor(months int) decimal.Decimal {
	return generic.MinDays(p.YearlyCap, p.MonthlyRate.Mul(decimal.NewFromInt(int64(months))))
}

// MonthsFor derives the display month count of an accrued total: round(accrued / rate).
func (p Policy) MonthsFor(accrued decimal.Decimal) int {
	if !p.MonthlyRate.IsPositive() {
		return 0
	}
	return int(accrued.Div(p.MonthlyRate).Round(0).IntPart())
}
