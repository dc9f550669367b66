package vacation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-ledger/generic"
)

// =============================================================================
// FIFO CONSUMPTION
// =============================================================================

func TestConsume_FIFOAcrossPeriods(t *testing.T) {
	// GIVEN: periods 2022=5, 2023=10, 2024=20
	// WHEN: consume 12 days
	// THEN: 5 from 2022, 7 from 2023, nothing from 2024
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 5, 0)
	f.period(t, emp, 2023, 10, 0)
	f.period(t, emp, 2024, 20, 0)

	result, err := f.ledger.Consume(context.Background(), emp.ID, "req-1", d(12))
	require.NoError(t, err)

	require.Len(t, result.Allocations, 2)
	assert.Equal(t, 2022, result.Allocations[0].Year)
	requireDays(t, 5, result.Allocations[0].Amount)
	assert.Equal(t, 2023, result.Allocations[1].Year)
	requireDays(t, 7, result.Allocations[1].Amount)
	requireDays(t, 12, result.TotalConsumed)
	requireDays(t, 0, result.Shortfall)

	left := f.remaining(t, emp.ID)
	requireDays(t, 0, left[2022])
	requireDays(t, 3, left[2023])
	requireDays(t, 20, left[2024])
	requireBalanced(t, f.store, emp.ID)

	rows, err := f.store.ConsumptionsByOrigin(context.Background(), generic.LeaveOrigin("req-1"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, c := range rows {
		assert.Equal(t, emp.ID, c.EmployeeID)
		assert.Equal(t, generic.OriginLeave, c.Origin.Kind)
		assert.True(t, c.Days.IsPositive())
		assert.Equal(t, f.clock.Now(), c.ConsumedAt)
	}
}

func TestConsume_SkipsEmptyPeriods(t *testing.T) {
	// GIVEN: the oldest period is exhausted
	// WHEN: consume 4 days
	// THEN: allocation starts at the next period with balance
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 30, 30)
	f.period(t, emp, 2023, 10, 0)

	result, err := f.ledger.Consume(context.Background(), emp.ID, "req-1", d(4))
	require.NoError(t, err)
	require.Len(t, result.Allocations, 1)
	assert.Equal(t, 2023, result.Allocations[0].Year)
}

func TestConsume_ShortfallIsReportedNotFailed(t *testing.T) {
	// GIVEN: 8 days available across two periods
	// WHEN: consume 11 days
	// THEN: 8 allocated, shortfall 3, every period drained to zero
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 3, 0)
	f.period(t, emp, 2023, 5, 0)

	result, err := f.ledger.Consume(context.Background(), emp.ID, "req-1", d(11))
	require.NoError(t, err)
	requireDays(t, 8, result.TotalConsumed)
	requireDays(t, 3, result.Shortfall)

	for year, left := range f.remaining(t, emp.ID) {
		assert.Truef(t, left.IsZero(), "period %d should be empty, has %s", year, left)
	}
	requireBalanced(t, f.store, emp.ID)
}

func TestConsume_AllocationsPlusShortfallEqualRequest(t *testing.T) {
	for _, requested := range []float64{0, 0.5, 4, 15, 35, 36.5, 80} {
		t.Run(fmt.Sprintf("%v days", requested), func(t *testing.T) {
			f := newFixture(t)
			emp := f.employee(t, "emp-1", date(2022, time.February, 1))
			f.period(t, emp, 2022, 5, 0)
			f.period(t, emp, 2023, 10, 0)
			f.period(t, emp, 2024, 20, 0)

			result, err := f.ledger.Consume(context.Background(), emp.ID, "req", d(requested))
			require.NoError(t, err)

			sum := generic.SumAllocations(result.Allocations)
			requireDays(t, requested, sum.Add(result.Shortfall))
			requireBalanced(t, f.store, emp.ID)
		})
	}
}

func TestConsume_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	ctx := context.Background()

	_, err := f.ledger.Consume(ctx, emp.ID, "req-1", d(-1))
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)

	_, err = f.ledger.Consume(ctx, emp.ID, "", d(1))
	assert.ErrorIs(t, err, generic.ErrInvalidOrigin)

	_, err = f.ledger.Consume(ctx, "ghost", "req-1", d(1))
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
}

func TestConsume_RejectsAmountsFinerThanHundredths(t *testing.T) {
	// GIVEN: 30 days in one period
	// WHEN: 0.125 days are requested
	// THEN: the request is rejected and the row is untouched; 0.12 is accepted
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 30, 0)
	ctx := context.Background()

	_, err := f.ledger.Consume(ctx, emp.ID, "req-1", d(0.125))
	require.ErrorIs(t, err, generic.ErrInvalidAmount)
	requireDays(t, 30, f.remaining(t, emp.ID)[2022])

	_, err = f.ledger.CashOut(ctx, emp.ID, "cash-1", d(0.001))
	require.ErrorIs(t, err, generic.ErrInvalidAmount)

	_, err = f.ledger.Consume(ctx, emp.ID, "req-2", d(0.12))
	require.NoError(t, err)
	requireDays(t, 29.88, f.remaining(t, emp.ID)[2022])
	requireBalanced(t, f.store, emp.ID)
}

func TestConsume_SameRequestTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 30, 0)
	ctx := context.Background()

	_, err := f.ledger.Consume(ctx, emp.ID, "req-1", d(2))
	require.NoError(t, err)

	_, err = f.ledger.Consume(ctx, emp.ID, "req-1", d(2))
	assert.ErrorIs(t, err, generic.ErrRequestAlreadyConsumed)
	requireDays(t, 28, f.remaining(t, emp.ID)[2022])
}

func TestConsume_BumpsReportCacheOnlyWhenSomethingMoved(t *testing.T) {
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	ctx := context.Background()

	_, err := f.ledger.Consume(ctx, emp.ID, "req-empty", d(3))
	require.NoError(t, err)
	assert.Equal(t, 0, f.bumps.Count())

	f.period(t, emp, 2022, 10, 0)
	_, err = f.ledger.Consume(ctx, emp.ID, "req-1", d(3))
	require.NoError(t, err)
	assert.Equal(t, 1, f.bumps.Count())
}

// =============================================================================
// REVERSAL
// =============================================================================

func TestReverse_RoundTripRestoresEveryPeriod(t *testing.T) {
	// GIVEN: three periods with balance
	// WHEN: consume then reverse the same request
	// THEN: total and per-period balances match the starting point
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 5, 1)
	f.period(t, emp, 2023, 10, 0)
	f.period(t, emp, 2024, 20, 0)
	ctx := context.Background()

	before, err := f.ledger.AvailableBalance(ctx, emp.ID)
	require.NoError(t, err)

	_, err = f.ledger.Consume(ctx, emp.ID, "req-1", d(17.5))
	require.NoError(t, err)

	result, err := f.ledger.Reverse(ctx, generic.LeaveOrigin("req-1"))
	require.NoError(t, err)
	requireDays(t, 17.5, result.TotalRestored)

	after, err := f.ledger.AvailableBalance(ctx, emp.ID)
	require.NoError(t, err)
	assert.True(t, before.TotalAvailable.Equal(after.TotalAvailable))
	require.Len(t, after.ByPeriod, len(before.ByPeriod))
	for i := range before.ByPeriod {
		assert.True(t, before.ByPeriod[i].Remaining.Equal(after.ByPeriod[i].Remaining), "year %d", before.ByPeriod[i].Year)
		assert.True(t, before.ByPeriod[i].Consumed.Equal(after.ByPeriod[i].Consumed), "year %d", before.ByPeriod[i].Year)
	}

	rows, err := f.store.ConsumptionsByOrigin(ctx, generic.LeaveOrigin("req-1"))
	require.NoError(t, err)
	assert.Empty(t, rows)
	requireBalanced(t, f.store, emp.ID)
}

func TestReverse_SecondCallIsNoOp(t *testing.T) {
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 10, 0)
	ctx := context.Background()

	_, err := f.ledger.Consume(ctx, emp.ID, "req-1", d(4))
	require.NoError(t, err)

	_, err = f.ledger.Reverse(ctx, generic.LeaveOrigin("req-1"))
	require.NoError(t, err)

	again, err := f.ledger.Reverse(ctx, generic.LeaveOrigin("req-1"))
	require.NoError(t, err)
	assert.Empty(t, again.Restored)
	requireDays(t, 0, again.TotalRestored)
	requireDays(t, 10, f.remaining(t, emp.ID)[2022])
}

func TestReverse_OnlyTouchesTheMatchingOrigin(t *testing.T) {
	// GIVEN: a leave and a cash-out request share the same request id
	// WHEN: the leave is reversed
	// THEN: the cash-out rows survive
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 30, 0)
	ctx := context.Background()

	_, err := f.ledger.Consume(ctx, emp.ID, "42", d(3))
	require.NoError(t, err)
	_, err = f.ledger.CashOut(ctx, emp.ID, "42", d(5))
	require.NoError(t, err)

	_, err = f.ledger.Reverse(ctx, generic.LeaveOrigin("42"))
	require.NoError(t, err)

	requireDays(t, 25, f.remaining(t, emp.ID)[2022])
	cash, err := f.store.ConsumptionsByOrigin(ctx, generic.CashOutOrigin("42"))
	require.NoError(t, err)
	require.Len(t, cash, 1)
}

func TestReverse_RejectsInvalidOrigin(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Reverse(context.Background(), generic.Origin{Kind: "BONUS", RequestID: "1"})
	assert.ErrorIs(t, err, generic.ErrInvalidOrigin)
}

// =============================================================================
// AVAILABLE BALANCE
// =============================================================================

func TestAvailableBalance_OrderedBreakdown(t *testing.T) {
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2024, 5, 0)
	f.period(t, emp, 2022, 30, 28)
	f.period(t, emp, 2023, 30, 10)

	bal, err := f.ledger.AvailableBalance(context.Background(), emp.ID)
	require.NoError(t, err)

	requireDays(t, 27, bal.TotalAvailable)
	require.Len(t, bal.ByPeriod, 3)
	assert.Equal(t, []int{2022, 2023, 2024}, []int{bal.ByPeriod[0].Year, bal.ByPeriod[1].Year, bal.ByPeriod[2].Year})
	requireDays(t, 28, bal.ByPeriod[0].Consumed)
	requireDays(t, 30, bal.ByPeriod[1].Accrued)
}

func TestAvailableBalance_UnknownEmployee(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.AvailableBalance(context.Background(), "ghost")
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestConsume_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	// GIVEN: 20 days available
	// WHEN: 30 goroutines each consume 1 day, 10 of them then reverse
	// THEN: exactly 20 placed in total, balance stays consistent
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 8, 0)
	f.period(t, emp, 2023, 12, 0)
	ctx := context.Background()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		placed = d(0)
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := generic.RequestID(fmt.Sprintf("req-%d", i))
			res, err := f.ledger.Consume(ctx, emp.ID, req, d(1))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			placed = placed.Add(res.TotalConsumed)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	requireDays(t, 20, placed)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.ledger.Reverse(ctx, generic.LeaveOrigin(generic.RequestID(fmt.Sprintf("req-%d", i))))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	bal, err := f.ledger.AvailableBalance(ctx, emp.ID)
	require.NoError(t, err)
	rows, err := f.store.ConsumptionsByEmployee(ctx, emp.ID)
	require.NoError(t, err)

	consumed := d(0)
	for _, c := range rows {
		consumed = consumed.Add(c.Days)
	}
	requireDays(t, 20, bal.TotalAvailable.Add(consumed))
	requireBalanced(t, f.store, emp.ID)
}
