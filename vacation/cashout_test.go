package vacation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-ledger/generic"
)

func TestAvailableCashOut_CapLimitsBelowRemaining(t *testing.T) {
	// GIVEN: a period with remaining 20 after 15 days already cashed out
	// WHEN: cash-out availability is computed
	// THEN: 0 is cashable even though leave could still draw 20
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 35, 0)
	ctx := context.Background()

	res, err := f.ledger.CashOut(ctx, emp.ID, "cash-1", d(15))
	require.NoError(t, err)
	requireDays(t, 15, res.TotalConsumed)

	cash, err := f.ledger.AvailableCashOut(ctx, emp.ID)
	require.NoError(t, err)
	require.Len(t, cash.ByPeriod, 1)
	requireDays(t, 20, cash.ByPeriod[0].Remaining)
	requireDays(t, 15, cash.ByPeriod[0].CashOutUsed)
	requireDays(t, 0, cash.ByPeriod[0].CashOutAvailable)
	requireDays(t, 0, cash.TotalAvailable)

	bal, err := f.ledger.AvailableBalance(ctx, emp.ID)
	require.NoError(t, err)
	requireDays(t, 20, bal.TotalAvailable)
}

func TestCashOut_ScenarioWithPartialCap(t *testing.T) {
	// GIVEN: 2022 remaining 0, 2023 remaining 8 with 10 already cashed out
	// WHEN: availability is checked and 8 days are cashed out anyway
	// THEN: 5 available, 5 consumed from 2023, shortfall 3
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 30, 30)
	f.period(t, emp, 2023, 18, 0)
	ctx := context.Background()

	_, err := f.ledger.CashOut(ctx, emp.ID, "earlier", d(10))
	require.NoError(t, err)
	requireDays(t, 8, f.remaining(t, emp.ID)[2023])

	cash, err := f.ledger.AvailableCashOut(ctx, emp.ID)
	require.NoError(t, err)
	requireDays(t, 5, cash.TotalAvailable)
	require.Len(t, cash.ByPeriod, 2)
	requireDays(t, 0, cash.ByPeriod[0].CashOutAvailable)
	requireDays(t, 10, cash.ByPeriod[1].CashOutUsed)
	requireDays(t, 5, cash.ByPeriod[1].CashOutAvailable)

	res, err := f.ledger.CashOut(ctx, emp.ID, "cash-2", d(8))
	require.NoError(t, err)
	requireDays(t, 5, res.TotalConsumed)
	requireDays(t, 3, res.Shortfall)
	require.Len(t, res.Allocations, 1)
	assert.Equal(t, 2023, res.Allocations[0].Year)
	requireDays(t, 3, f.remaining(t, emp.ID)[2023])
	requireBalanced(t, f.store, emp.ID)
}

func TestCashOut_FIFOUsesCashOutCeilings(t *testing.T) {
	// GIVEN: 2022 has 10 remaining but is already at the cash-out cap
	// WHEN: 6 days are cashed out
	// THEN: 2022 is skipped and 2023 pays
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 25, 0)
	ctx := context.Background()

	_, err := f.ledger.CashOut(ctx, emp.ID, "first", d(15))
	require.NoError(t, err)
	f.period(t, emp, 2023, 30, 0)

	res, err := f.ledger.CashOut(ctx, emp.ID, "second", d(6))
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)
	assert.Equal(t, 2023, res.Allocations[0].Year)

	left := f.remaining(t, emp.ID)
	requireDays(t, 10, left[2022])
	requireDays(t, 24, left[2023])
}

func TestCashOut_LeaveDoesNotCountAgainstCap(t *testing.T) {
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 30, 0)
	ctx := context.Background()

	_, err := f.ledger.Consume(ctx, emp.ID, "leave-1", d(12))
	require.NoError(t, err)

	cash, err := f.ledger.AvailableCashOut(ctx, emp.ID)
	require.NoError(t, err)
	requireDays(t, 0, cash.ByPeriod[0].CashOutUsed)
	requireDays(t, 15, cash.TotalAvailable)
}

func TestCashOut_ReversalFreesCap(t *testing.T) {
	f := newFixture(t)
	emp := f.employee(t, "emp-1", date(2022, time.February, 1))
	f.period(t, emp, 2022, 30, 0)
	ctx := context.Background()

	_, err := f.ledger.CashOut(ctx, emp.ID, "cash-1", d(15))
	require.NoError(t, err)
	_, err = f.ledger.Reverse(ctx, generic.CashOutOrigin("cash-1"))
	require.NoError(t, err)

	cash, err := f.ledger.AvailableCashOut(ctx, emp.ID)
	require.NoError(t, err)
	requireDays(t, 15, cash.TotalAvailable)
	requireDays(t, 30, cash.ByPeriod[0].Remaining)
}
