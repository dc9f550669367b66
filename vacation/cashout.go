package vacation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-ledger/generic"
)

// =============================================================================
// CASH-OUT CAP GUARD
// =============================================================================
//
// A period may pay out at most Policy.CashOutCap days in cash, counted over
// the surviving cash-out Consumption rows recorded against it:
//
//	cashOutAvailable = max(0, min(remaining, cap - cashOutUsed))
//
// Leave requests are unaffected: a period with remaining 20 and 15 already
// cashed out still serves 20 days of leave.

// CashOutPeriod is one row of AvailableCashOut.
type CashOutPeriod struct {
	Year             int
	Remaining        decimal.Decimal
	CashOutUsed      decimal.Decimal
	CashOutAvailable decimal.Decimal
}

type CashOutBalance struct {
	EmployeeID     generic.EmployeeID
	TotalAvailable decimal.Decimal
	ByPeriod       []CashOutPeriod
}

// CashOut draws days for a cash-out request.
func (l *Ledger) CashOut(ctx context.Context, id generic.EmployeeID, request generic.RequestID, days decimal.Decimal) (*ConsumeResult, error) {
	return l.ConsumeFor(ctx, id, generic.CashOutOrigin(request), days)
}

// AvailableCashOut reports the cashable days per period, oldest first.
func (l *Ledger) AvailableCashOut(ctx context.Context, id generic.EmployeeID) (*CashOutBalance, error) {
	if _, err := l.Store.GetEmployee(ctx, id); err != nil {
		return nil, err
	}
	records, err := l.Store.ListAccruals(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list accruals %s: %w", id, err)
	}
	consumptions, err := l.Store.ConsumptionsByEmployee(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list consumptions %s: %w", id, err)
	}

	periods := cashOutPeriods(records, consumptions, l.Policy.CashOutCap)
	total := decimal.Zero
	for _, p := range periods {
		total = total.Add(p.CashOutAvailable)
	}
	return &CashOutBalance{EmployeeID: id, TotalAvailable: total, ByPeriod: periods}, nil
}

func cashOutPeriods(records []generic.AccrualRecord, consumptions []generic.Consumption, limit decimal.Decimal) []CashOutPeriod {
	used := make(map[int]decimal.Decimal)
	for _, c := range consumptions {
		if c.Origin.Kind == generic.OriginCashOut {
			used[c.AccrualYear] = used[c.AccrualYear].Add(c.Days)
		}
	}

	periods := make([]CashOutPeriod, 0, len(records))
	for _, r := range records {
		u := used[r.Year]
		periods = append(periods, CashOutPeriod{
			Year:             r.Year,
			Remaining:        r.Remaining,
			CashOutUsed:      u,
			CashOutAvailable: generic.FloorZero(generic.MinDays(r.Remaining, limit.Sub(u))),
		})
	}
	return periods
}
