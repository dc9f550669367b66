package vacation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-ledger/generic"
	"github.com/warp/vacation-ledger/vacation"
)

func TestAdjust_CreatesMissingPeriod(t *testing.T) {
	// GIVEN: no row for 2021
	// WHEN: an initial load sets 12 days
	// THEN: the row is created on the anniversary window with remaining 12
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2020, time.June, 15))

	res, err := f.ledger.Adjust(context.Background(), vacation.AdjustInput{
		EmployeeID: emp.ID,
		Year:       2021,
		NewAccrued: d(12),
		Type:       generic.AdjustmentInitialLoad,
		Reason:     "opening balance from payroll export",
		Actor:      "hr@example.com",
	})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, date(2021, time.June, 15), res.Record.StartDate)
	assert.Equal(t, date(2022, time.June, 15), res.Record.EndDate)
	requireDays(t, 12, res.Record.TotalAccrued)
	requireDays(t, 12, res.Record.Remaining)
	assert.Equal(t, 5, res.Record.MonthsAccrued)

	requireDays(t, 0, res.Adjustment.PreviousValue)
	requireDays(t, 12, res.Adjustment.Delta)
	assert.Equal(t, f.clock.Now(), res.Adjustment.CreatedAt)
}

func TestAdjust_DeltaAppliedToRemaining(t *testing.T) {
	// GIVEN: accrued 30, consumed 10
	// WHEN: accrued is set to 22.5
	// THEN: delta -7.5, remaining 12.5, one audit row
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 30, 10)
	ctx := context.Background()

	res, err := f.ledger.Adjust(ctx, vacation.AdjustInput{
		EmployeeID: emp.ID, Year: 2022, NewAccrued: d(22.5),
		Type: generic.AdjustmentCorrection, Reason: "unpaid leave months", Actor: "admin",
	})
	require.NoError(t, err)

	assert.False(t, res.Created)
	requireDays(t, 30, res.Adjustment.PreviousValue)
	requireDays(t, 22.5, res.Adjustment.NewValue)
	requireDays(t, -7.5, res.Adjustment.Delta)
	requireDays(t, 0, res.Adjustment.Spillover)
	requireDays(t, 12.5, res.Record.Remaining)
	requireDays(t, 10, res.Record.TotalConsumed)
	assert.Equal(t, 9, res.Record.MonthsAccrued)

	trail, err := f.ledger.Adjustments(ctx, emp.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, res.Adjustment, trail[0])
	requireBalanced(t, f.store, emp.ID)
}

func TestAdjust_ClampReportsSpillover(t *testing.T) {
	// GIVEN: accrued 20, consumed 18
	// WHEN: accrued is lowered to 15
	// THEN: remaining floors at 0, the 3 discarded days are recorded
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 20, 18)

	res, err := f.ledger.Adjust(context.Background(), vacation.AdjustInput{
		EmployeeID: emp.ID, Year: 2022, NewAccrued: d(15),
		Type: generic.AdjustmentManual, Reason: "policy change", Actor: "admin",
	})
	require.NoError(t, err)
	requireDays(t, 0, res.Record.Remaining)
	requireDays(t, 3, res.Adjustment.Spillover)
	requireDays(t, -5, res.Adjustment.Delta)
	requireBalanced(t, f.store, emp.ID)
}

func TestAdjust_ClampedRowRecomputesFromConsumed(t *testing.T) {
	// GIVEN: accrued 10, consumed 10
	// WHEN: accrued is lowered to 5 and then raised to 20
	// THEN: remaining is 20 - 10, the 5 days discarded by the first clamp
	//       are not handed back
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 10, 10)
	ctx := context.Background()

	res, err := f.ledger.Adjust(ctx, vacation.AdjustInput{
		EmployeeID: emp.ID, Year: 2022, NewAccrued: d(5),
		Type: generic.AdjustmentCorrection, Reason: "overcredited", Actor: "admin",
	})
	require.NoError(t, err)
	requireDays(t, 0, res.Record.Remaining)
	requireDays(t, 5, res.Adjustment.Spillover)

	res, err = f.ledger.Adjust(ctx, vacation.AdjustInput{
		EmployeeID: emp.ID, Year: 2022, NewAccrued: d(20),
		Type: generic.AdjustmentManual, Reason: "transfer credit", Actor: "admin",
	})
	require.NoError(t, err)
	requireDays(t, 15, res.Adjustment.Delta)
	requireDays(t, 10, res.Record.Remaining)
	requireDays(t, 10, res.Record.TotalConsumed)
	requireBalanced(t, f.store, emp.ID)
}

func TestAdjust_EveryCallAppendsOneRecord(t *testing.T) {
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	ctx := context.Background()

	values := []float64{10, 14, 14, 9.5}
	for i, v := range values {
		f.clock.Set(date(2024, time.January, 1+i))
		_, err := f.ledger.Adjust(ctx, vacation.AdjustInput{
			EmployeeID: emp.ID, Year: 2023, NewAccrued: d(v),
			Type: generic.AdjustmentManual, Reason: "step", Actor: "admin",
		})
		require.NoError(t, err)
	}

	trail, err := f.ledger.Adjustments(ctx, emp.ID)
	require.NoError(t, err)
	require.Len(t, trail, len(values))
	previous := 0.0
	for i, adj := range trail {
		requireDays(t, values[i]-previous, adj.Delta)
		assert.True(t, adj.Delta.Equal(adj.NewValue.Sub(adj.PreviousValue)))
		previous = values[i]
	}
	assert.Equal(t, len(values), f.bumps.Count())
}

func TestAdjust_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	ctx := context.Background()

	_, err := f.ledger.Adjust(ctx, vacation.AdjustInput{EmployeeID: emp.ID, Year: 2022, NewAccrued: d(-1), Type: generic.AdjustmentManual})
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)

	_, err = f.ledger.Adjust(ctx, vacation.AdjustInput{EmployeeID: emp.ID, Year: 2022, NewAccrued: d(10.125), Type: generic.AdjustmentManual})
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)

	_, err = f.ledger.Adjust(ctx, vacation.AdjustInput{EmployeeID: emp.ID, Year: 2022, NewAccrued: d(1), Type: "bonus"})
	assert.ErrorIs(t, err, generic.ErrInvalidAdjustmentType)

	_, err = f.ledger.Adjust(ctx, vacation.AdjustInput{EmployeeID: "ghost", Year: 2022, NewAccrued: d(1), Type: generic.AdjustmentManual})
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)

	trail, err := f.ledger.Adjustments(ctx, emp.ID)
	require.NoError(t, err)
	assert.Empty(t, trail)
}
