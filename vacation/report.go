/*
report.go - Monthly reconstruction report

PURPOSE:
  For a calendar month, shows per employee and per period:
  - the days accrued inside that month (time-based increment)
  - every consumption stamped in the month, split leave / cash-out
  - every adjustment created in the month
  - the closing position at month end
  grouped by supervisor email (case-insensitive). A supervisor without an
  email is grouped by id; employees with no supervisor share one group.

  It is read-only. Stored consumptions and adjustments are trusted as the
  history; nothing is replayed from scratch.

MONTH BOUNDARIES:
  opening = last day of the previous month
  closing = last day of the target month
  increment = max(0, accrued(closing) - accrued(opening))

CLOSING ACCRUED:
  The NewValue of the latest adjustment created on or before month end for
  that period, else the time-based accrual at month end. Adjustments only
  count while the row still carries the latest adjustment's value; once a
  recalculation has overwritten it the time-based accrual is reported.

OMISSION:
  Employees not employed at any point in the month are skipped. Periods with
  no window overlap, no movement, and nothing left at month end are skipped.
  An employee left with no periods is omitted.

CACHING:
  Months that ended before today are cached through ReportCache. The cache
  key carries a version that every ledger mutation bumps.

SEE ALSO:
  - store/cache/report.go: Redis implementation of ReportCache
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
	"golang.org/x/text/cases"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

type SupervisorReport struct {
	SupervisorID    *generic.EmployeeID `json:"supervisor_id,omitempty"`
	SupervisorName  string              `json:"supervisor_name"`
	SupervisorEmail string              `json:"supervisor_email"`
	Employees       []EmployeeMonth     `json:"employees"`
}

type EmployeeMonth struct {
	EmployeeID     generic.EmployeeID `json:"employee_id"`
	Name           string             `json:"name"`
	Email          string             `json:"email"`
	CostCenter     string             `json:"cost_center"`
	Periods        []PeriodMonth      `json:"periods"`
	TotalIncrement decimal.Decimal    `json:"total_increment"`
	TotalLeave     decimal.Decimal    `json:"total_leave"`
	TotalCashOut   decimal.Decimal    `json:"total_cash_out"`
	ClosingBalance decimal.Decimal    `json:"closing_balance"`
}

type PeriodMonth struct {
	Year             int                `json:"year"`
	Start            time.Time          `json:"start"`
	End              time.Time          `json:"end"`
	AccruedAtStart   decimal.Decimal    `json:"accrued_at_start"`
	AccruedAtEnd     decimal.Decimal    `json:"accrued_at_end"`
	Increment        decimal.Decimal    `json:"increment"`
	LeaveConsumed    decimal.Decimal    `json:"leave_consumed"`
	CashOutConsumed  decimal.Decimal    `json:"cash_out_consumed"`
	Consumptions     []ConsumptionEntry `json:"consumptions"`
	Adjustments      []AdjustmentEntry  `json:"adjustments"`
	ClosingAccrued   decimal.Decimal    `json:"closing_accrued"`
	ClosingConsumed  decimal.Decimal    `json:"closing_consumed"`
	ClosingRemaining decimal.Decimal    `json:"closing_remaining"`
}

type ConsumptionEntry struct {
	Kind       generic.OriginKind `json:"kind"`
	RequestID  generic.RequestID  `json:"request_id"`
	Days       decimal.Decimal    `json:"days"`
	ConsumedAt time.Time          `json:"consumed_at"`
}

type AdjustmentEntry struct {
	Type      generic.AdjustmentType `json:"type"`
	Previous  decimal.Decimal        `json:"previous"`
	New       decimal.Decimal        `json:"new"`
	Delta     decimal.Decimal        `json:"delta"`
	Spillover decimal.Decimal        `json:"spillover"`
	Reason    string                 `json:"reason"`
	Actor     string                 `json:"actor"`
	CreatedAt time.Time              `json:"created_at"`
}

// =============================================================================
// REPORTER
// =============================================================================

// ReportCache is a versioned JSON cache.
type ReportCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

type Reporter struct {
	Store      generic.Store
	Calculator Calculator
	Cache      ReportCache // optional
	Logger     *slog.Logger
	Now        func() time.Time
}

func NewReporter(store generic.Store, policy Policy, cache ReportCache, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		Store:      store,
		Calculator: Calculator{Policy: policy},
		Cache:      cache,
		Logger:     logger,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// GenerateMonthlyReport builds the report for year/month.
func (r *Reporter) GenerateMonthlyReport(ctx context.Context, year int, month time.Month) ([]SupervisorReport, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: %d", generic.ErrInvalidMonth, month)
	}

	if r.Cache == nil || !r.closed(year, month) {
		return r.build(ctx, year, month)
	}

	key, err := r.Cache.BuildKey(ctx, "vacation", "report", ReportMonthKey(year, month))
	if err != nil {
		r.Logger.Warn("report cache unavailable", slog.Any("error", err))
		return r.build(ctx, year, month)
	}
	var reports []SupervisorReport
	err = r.Cache.FetchJSON(ctx, key, &reports, func(ctx context.Context) (any, error) {
		return r.build(ctx, year, month)
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *Reporter) closed(year int, month time.Month) bool {
	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now()
	}
	return generic.EndOfMonth(year, month).Before(generic.Truncate(now))
}

// monthWindow holds the boundaries of one report month.
type monthWindow struct {
	first   time.Time // first day
	last    time.Time // last day
	opening time.Time // last day of previous month
	until   time.Time // last instant of the month
}

func newMonthWindow(year int, month time.Month) monthWindow {
	return monthWindow{
		first:   generic.StartOfMonth(year, month),
		last:    generic.EndOfMonth(year, month),
		opening: generic.EndOfPreviousMonth(year, month),
		until:   generic.StartOfMonth(year, month+1).Add(-time.Nanosecond),
	}
}

func (w monthWindow) contains(t time.Time) bool {
	return generic.AfterOrEqual(t, w.first) && generic.BeforeOrEqual(t, w.until)
}

func (r *Reporter) build(ctx context.Context, year int, month time.Month) ([]SupervisorReport, error) {
	w := newMonthWindow(year, month)

	employees, err := r.Store.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	byID := make(map[generic.EmployeeID]generic.Employee, len(employees))
	for _, e := range employees {
		byID[e.ID] = e
	}

	fold := cases.Fold()
	groups := make(map[string]*SupervisorReport)
	for _, emp := range employees {
		if !emp.ActiveDuring(w.first, w.last) {
			continue
		}
		row, err := r.employeeMonth(ctx, emp, w)
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}

		sup := supervisorOf(emp, byID)
		key := groupKey(sup, fold)
		group, ok := groups[key]
		if !ok {
			group = &sup
			groups[key] = group
		}
		group.Employees = append(group.Employees, *row)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	reports := make([]SupervisorReport, 0, len(groups))
	for _, k := range keys {
		g := groups[k]
		sort.Slice(g.Employees, func(i, j int) bool { return g.Employees[i].EmployeeID < g.Employees[j].EmployeeID })
		reports = append(reports, *g)
	}
	return reports, nil
}

// groupKey is the folded supervisor email, else the supervisor id.
// The empty key is the group of employees without a supervisor.
func groupKey(sup SupervisorReport, fold cases.Caser) string {
	if email := fold.String(sup.SupervisorEmail); email != "" {
		return "email:" + email
	}
	if sup.SupervisorID != nil {
		return "id:" + string(*sup.SupervisorID)
	}
	return ""
}

func supervisorOf(emp generic.Employee, byID map[generic.EmployeeID]generic.Employee) SupervisorReport {
	if emp.SupervisorID == nil {
		return SupervisorReport{}
	}
	sup, ok := byID[*emp.SupervisorID]
	if !ok {
		id := *emp.SupervisorID
		return SupervisorReport{SupervisorID: &id}
	}
	id := sup.ID
	return SupervisorReport{SupervisorID: &id, SupervisorName: sup.Name, SupervisorEmail: sup.Email}
}

func (r *Reporter) employeeMonth(ctx context.Context, emp generic.Employee, w monthWindow) (*EmployeeMonth, error) {
	records, err := r.Store.ListAccruals(ctx, emp.ID)
	if err != nil {
		return nil, fmt.Errorf("list accruals %s: %w", emp.ID, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	consumptions, err := r.Store.ConsumptionsInRange(ctx, emp.ID, time.Time{}, w.until)
	if err != nil {
		return nil, fmt.Errorf("list consumptions %s: %w", emp.ID, err)
	}
	adjustments, err := r.Store.AdjustmentsByEmployee(ctx, emp.ID)
	if err != nil {
		return nil, fmt.Errorf("list adjustments %s: %w", emp.ID, err)
	}

	row := &EmployeeMonth{
		EmployeeID:     emp.ID,
		Name:           emp.Name,
		Email:          emp.Email,
		CostCenter:     emp.CostCenter,
		TotalIncrement: decimal.Zero,
		TotalLeave:     decimal.Zero,
		TotalCashOut:   decimal.Zero,
		ClosingBalance: decimal.Zero,
	}
	for _, rec := range records {
		pm, ok := r.periodMonth(emp, rec, consumptions, adjustments, w)
		if !ok {
			continue
		}
		row.Periods = append(row.Periods, pm)
		row.TotalIncrement = row.TotalIncrement.Add(pm.Increment)
		row.TotalLeave = row.TotalLeave.Add(pm.LeaveConsumed)
		row.TotalCashOut = row.TotalCashOut.Add(pm.CashOutConsumed)
		row.ClosingBalance = row.ClosingBalance.Add(pm.ClosingRemaining)
	}
	if len(row.Periods) == 0 {
		return nil, nil
	}
	return row, nil
}

func (r *Reporter) periodMonth(emp generic.Employee, rec generic.AccrualRecord, consumptions []generic.Consumption, adjustments []generic.Adjustment, w monthWindow) (PeriodMonth, bool) {
	period := rec.Period()
	if period.Start.After(w.last) {
		return PeriodMonth{}, false
	}

	atStart := r.Calculator.ForPeriod(period, emp.AccrualCutoff(w.opening)).TotalAccrued
	atEnd := r.Calculator.ForPeriod(period, emp.AccrualCutoff(w.last)).TotalAccrued

	pm := PeriodMonth{
		Year:            rec.Year,
		Start:           period.Start,
		End:             period.End,
		AccruedAtStart:  atStart,
		AccruedAtEnd:    atEnd,
		Increment:       generic.FloorZero(atEnd.Sub(atStart)),
		LeaveConsumed:   decimal.Zero,
		CashOutConsumed: decimal.Zero,
		ClosingAccrued:  atEnd,
		ClosingConsumed: decimal.Zero,
	}

	for _, c := range consumptions {
		if c.AccrualYear != rec.Year || c.ConsumedAt.After(w.until) {
			continue
		}
		pm.ClosingConsumed = pm.ClosingConsumed.Add(c.Days)
		if !w.contains(c.ConsumedAt) {
			continue
		}
		pm.Consumptions = append(pm.Consumptions, ConsumptionEntry{
			Kind:       c.Origin.Kind,
			RequestID:  c.Origin.RequestID,
			Days:       c.Days,
			ConsumedAt: c.ConsumedAt,
		})
		switch c.Origin.Kind {
		case generic.OriginCashOut:
			pm.CashOutConsumed = pm.CashOutConsumed.Add(c.Days)
		case generic.OriginLeave:
			pm.LeaveConsumed = pm.LeaveConsumed.Add(c.Days)
		}
	}

	// Adjustments arrive oldest first; the last one on or before month end wins
	// unless a recalculation has since replaced the adjusted value.
	inForce := adjustmentInForce(rec, adjustments)
	for _, a := range adjustments {
		if a.AccrualYear != rec.Year || a.CreatedAt.After(w.until) {
			continue
		}
		if inForce {
			pm.ClosingAccrued = a.NewValue
		}
		if w.contains(a.CreatedAt) {
			pm.Adjustments = append(pm.Adjustments, AdjustmentEntry{
				Type:      a.Type,
				Previous:  a.PreviousValue,
				New:       a.NewValue,
				Delta:     a.Delta,
				Spillover: a.Spillover,
				Reason:    a.Reason,
				Actor:     a.Actor,
				CreatedAt: a.CreatedAt,
			})
		}
	}
	pm.ClosingRemaining = generic.FloorZero(pm.ClosingAccrued.Sub(pm.ClosingConsumed))

	overlaps := period.Overlaps(w.first, w.last)
	moved := len(pm.Consumptions) > 0 || len(pm.Adjustments) > 0 || pm.Increment.IsPositive()
	if !overlaps && !moved && !pm.ClosingRemaining.IsPositive() {
		return PeriodMonth{}, false
	}
	return pm, true
}

// adjustmentInForce reports whether the row still holds the value written by
// its latest adjustment.
func adjustmentInForce(rec generic.AccrualRecord, adjustments []generic.Adjustment) bool {
	for i := len(adjustments) - 1; i >= 0; i-- {
		if adjustments[i].AccrualYear == rec.Year {
			return adjustments[i].NewValue.Equal(rec.TotalAccrued)
		}
	}
	return false
}

// ReportMonthKey formats the month part of a cache key: YYYY-MM.
func ReportMonthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}
