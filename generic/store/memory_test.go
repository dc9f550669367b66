package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-ledger/generic"
	"github.com/warp/vacation-ledger/generic/store"
)

var hire = generic.Date(2022, time.March, 1)

func seedEmployee(t *testing.T, s *store.TxMemory) {
	t.Helper()
	require.NoError(t, s.SaveEmployee(context.Background(), generic.Employee{ID: "emp-1", Name: "Ana", HireDate: hire}))
}

func record(year int, accrued float64) generic.AccrualRecord {
	rec := generic.NewAccrualRecord("emp-1", generic.AnniversaryPeriod(hire, year), generic.Days(2.5), hire)
	rec.SetAccrued(generic.Days(accrued), int(accrued/2.5))
	return rec
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	// GIVEN: A stored accrual row
	// WHEN: A transaction updates it and then fails
	// THEN: The row and the consumption log are as before
	s := store.NewTxMemory()
	ctx := context.Background()
	seedEmployee(t, s)
	require.NoError(t, s.SaveAccrual(ctx, record(2022, 30)))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx generic.Store) error {
		rec, err := tx.GetAccrual(ctx, "emp-1", 2022)
		require.NoError(t, err)
		rec.Consume(generic.Days(10))
		require.NoError(t, tx.SaveAccrual(ctx, *rec))
		require.NoError(t, tx.AddConsumption(ctx, generic.Consumption{
			ID: "c-1", EmployeeID: "emp-1", AccrualYear: 2022,
			Origin: generic.LeaveOrigin("req-1"), Days: generic.Days(10), ConsumedAt: hire,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	rec, err := s.GetAccrual(ctx, "emp-1", 2022)
	require.NoError(t, err)
	assert.True(t, rec.Remaining.Equal(generic.Days(30)))
	consumed, err := s.ConsumptionsByEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, consumed)
}

func TestTxMemory_CommitKeepsWrites(t *testing.T) {
	s := store.NewTxMemory()
	ctx := context.Background()
	seedEmployee(t, s)

	err := s.WithTx(ctx, func(tx generic.Store) error {
		require.NoError(t, tx.LockEmployee(ctx, "emp-1"))
		return tx.SaveAccrual(ctx, record(2023, 12.5))
	})
	require.NoError(t, err)

	rec, err := s.GetAccrual(ctx, "emp-1", 2023)
	require.NoError(t, err)
	assert.True(t, rec.TotalAccrued.Equal(generic.Days(12.5)))
}

func TestMemory_ListAccrualsOrderedByYear(t *testing.T) {
	s := store.NewTxMemory()
	ctx := context.Background()
	seedEmployee(t, s)
	for _, year := range []int{2024, 2022, 2023} {
		require.NoError(t, s.SaveAccrual(ctx, record(year, 5)))
	}

	recs, err := s.ListAccruals(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []int{2022, 2023, 2024}, []int{recs[0].Year, recs[1].Year, recs[2].Year})
}

func TestMemory_RejectsInvalidRows(t *testing.T) {
	s := store.NewTxMemory()
	ctx := context.Background()

	err := s.AddConsumption(ctx, generic.Consumption{
		ID: "c-1", EmployeeID: "emp-1", Origin: generic.LeaveOrigin("req-1"), Days: generic.Days(0), ConsumedAt: hire,
	})
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)

	_, err = s.GetEmployee(ctx, "nobody")
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
}

func TestMemory_Reset(t *testing.T) {
	s := store.NewTxMemory()
	ctx := context.Background()
	seedEmployee(t, s)
	require.NoError(t, s.SaveAccrual(ctx, record(2022, 30)))

	require.NoError(t, s.Reset(ctx))

	emps, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, emps)
	_, err = s.GetAccrual(ctx, "emp-1", 2022)
	assert.ErrorIs(t, err, generic.ErrAccrualNotFound)
}
