package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-ledger/generic"
	"github.com/warp/vacation-ledger/store/postgres"
)

func newMock(t *testing.T) (*postgres.Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return postgres.New(mock), mock
}

func TestGetEmployee_NotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(`SELECT (.+) FROM employees WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetEmployee(context.Background(), "ghost")

	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAccruals_ParsesNumericText(t *testing.T) {
	st, mock := newMock(t)
	created := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"employee_id", "year", "start_date", "end_date", "monthly_rate", "months_accrued",
		"total_accrued", "total_consumed", "remaining", "created_at", "updated_at",
	}).
		AddRow("emp-1", 2023, generic.Date(2023, time.January, 10), generic.Date(2024, time.January, 10),
			"2.50", 12, "30.00", "7.50", "22.50", created, created).
		AddRow("emp-1", 2024, generic.Date(2024, time.January, 10), generic.Date(2025, time.January, 10),
			"2.50", 1, "2.50", "0", "2.50", created, created)
	mock.ExpectQuery(`SELECT (.+)remaining::text(.+) FROM accruals WHERE employee_id = \$1 ORDER BY year ASC`).
		WithArgs("emp-1").
		WillReturnRows(rows)

	got, err := st.ListAccruals(context.Background(), "emp-1")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2023, got[0].Year)
	assert.True(t, got[0].Remaining.Equal(generic.Days(22.5)))
	assert.True(t, got[0].TotalConsumed.Equal(generic.Days(7.5)))
	assert.NoError(t, got[0].Validate())
	assert.Equal(t, 1, got[1].MonthsAccrued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAccrual_UpsertsWithNumericCasts(t *testing.T) {
	st, mock := newMock(t)
	hire := generic.Date(2023, time.January, 10)
	rec := generic.NewAccrualRecord("emp-1", generic.AnniversaryPeriod(hire, 2023), generic.Days(2.5), hire)
	rec.SetAccrued(generic.Days(30), 12)

	mock.ExpectExec(`INSERT INTO accruals (.+) ON CONFLICT \(employee_id, year\) DO UPDATE`).
		WithArgs("emp-1", 2023, rec.StartDate, rec.EndDate, "2.5", 12, "30", "0", "30", rec.CreatedAt, rec.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.SaveAccrual(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAccrual_RejectsInvalidRecordWithoutQuery(t *testing.T) {
	st, mock := newMock(t)
	hire := generic.Date(2023, time.January, 10)
	rec := generic.NewAccrualRecord("emp-1", generic.AnniversaryPeriod(hire, 2023), generic.Days(2.5), hire)
	rec.SetAccrued(generic.Days(30), 12)
	rec.Remaining = generic.Days(31)

	assert.ErrorIs(t, st.SaveAccrual(context.Background(), rec), generic.ErrInvariantViolated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumptionsByOrigin_FiltersByKindAndRequest(t *testing.T) {
	st, mock := newMock(t)
	at := time.Date(2024, time.March, 12, 10, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "employee_id", "accrual_year", "origin_kind", "request_id", "days", "consumed_at"}).
		AddRow("c1", "emp-1", 2022, "CASHOUT", "r9", "5.00", at).
		AddRow("c2", "emp-1", 2023, "CASHOUT", "r9", "2.50", at)
	mock.ExpectQuery(`SELECT (.+) FROM consumptions WHERE origin_kind = \$1 AND request_id = \$2 ORDER BY consumed_at, accrual_year`).
		WithArgs("CASHOUT", "r9").
		WillReturnRows(rows)

	got, err := st.ConsumptionsByOrigin(context.Background(), generic.CashOutOrigin("r9"))

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, generic.CashOutOrigin("r9"), got[0].Origin)
	assert.True(t, got[1].Days.Equal(generic.Days(2.5)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddAdjustment_UniqueViolationIsConflict(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO adjustments`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := st.AddAdjustment(context.Background(), generic.Adjustment{
		ID: "a1", EmployeeID: "emp-1", AccrualYear: 2023, Type: generic.AdjustmentManual,
		NewValue: generic.Days(10), Delta: generic.Days(10), CreatedAt: time.Now(),
	})

	assert.True(t, generic.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_LocksAndCommits(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("emp-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`DELETE FROM consumptions WHERE id = \$1`).
		WithArgs("c1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := st.WithTx(context.Background(), func(tx generic.Store) error {
		if err := tx.LockEmployee(context.Background(), "emp-1"); err != nil {
			return err
		}
		return tx.DeleteConsumption(context.Background(), "c1")
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	st, mock := newMock(t)
	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := st.WithTx(context.Background(), func(generic.Store) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
