package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-ledger/generic"
)

func newRecord(accrued float64) generic.AccrualRecord {
	hire := generic.Date(2022, time.March, 1)
	rec := generic.NewAccrualRecord("emp-1", generic.AnniversaryPeriod(hire, 2022), days(2.5), hire)
	rec.SetAccrued(days(accrued), 12)
	return rec
}

// =============================================================================
// ACCRUAL RECORD INVARIANTS
// =============================================================================

func TestAccrualRecord_ConsumeNeverOverdraws(t *testing.T) {
	rec := newRecord(10)

	taken := rec.Consume(days(4))
	assert.True(t, taken.Equal(days(4)))

	taken = rec.Consume(days(8))
	assert.True(t, taken.Equal(days(6)))
	assert.True(t, rec.Remaining.IsZero())
	assert.True(t, rec.TotalConsumed.Equal(days(10)))
	require.NoError(t, rec.Validate())

	assert.True(t, rec.Consume(days(1)).IsZero())
	assert.True(t, rec.Consume(days(-1)).IsZero())
}

func TestAccrualRecord_RestoreUndoesConsume(t *testing.T) {
	rec := newRecord(10)
	rec.Consume(days(7.5))
	rec.Restore(days(7.5))

	assert.True(t, rec.Remaining.Equal(days(10)))
	assert.True(t, rec.TotalConsumed.IsZero())
	require.NoError(t, rec.Validate())
}

func TestAccrualRecord_SetAccruedReturnsSpillover(t *testing.T) {
	// GIVEN: accrued 20, consumed 18
	// WHEN: accrued drops to 15
	// THEN: remaining clamps to 0 and 3 days spill over
	rec := newRecord(20)
	rec.Consume(days(18))

	spill := rec.SetAccrued(days(15), 6)

	assert.True(t, spill.Equal(days(3)))
	assert.True(t, rec.Remaining.IsZero())
	assert.Equal(t, 6, rec.MonthsAccrued)
	require.NoError(t, rec.Validate())

	// Raising accrued again gives the balance back.
	spill = rec.SetAccrued(days(25), 10)
	assert.True(t, spill.IsZero())
	assert.True(t, rec.Remaining.Equal(days(7)))
}

func TestAccrualRecord_ValidateCatchesDrift(t *testing.T) {
	rec := newRecord(10)
	rec.Remaining = days(9)

	err := rec.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrInvariantViolated))

	var inv *generic.InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, 2022, inv.Year)

	rec = newRecord(10)
	rec.Remaining = days(-1)
	assert.ErrorIs(t, rec.Validate(), generic.ErrInvariantViolated)
}

// =============================================================================
// EMPLOYEE
// =============================================================================

func TestEmployee_ActiveDuringAndCutoff(t *testing.T) {
	left := generic.Date(2023, time.June, 15)
	emp := generic.Employee{ID: "e", HireDate: generic.Date(2022, time.February, 10), TerminationDate: &left}

	assert.False(t, emp.ActiveDuring(generic.Date(2022, time.January, 1), generic.Date(2022, time.January, 31)))
	assert.True(t, emp.ActiveDuring(generic.Date(2022, time.February, 1), generic.Date(2022, time.February, 28)))
	assert.True(t, emp.ActiveDuring(generic.Date(2023, time.June, 1), generic.Date(2023, time.June, 30)))
	assert.False(t, emp.ActiveDuring(generic.Date(2023, time.July, 1), generic.Date(2023, time.July, 31)))

	assert.Equal(t, left, emp.AccrualCutoff(generic.Date(2025, time.January, 1)))
	assert.Equal(t, generic.Date(2023, time.May, 1), emp.AccrualCutoff(time.Date(2023, time.May, 1, 17, 30, 0, 0, time.UTC)))
}

// =============================================================================
// ORIGIN AND ENUMS
// =============================================================================

func TestOrigin_Validate(t *testing.T) {
	assert.NoError(t, generic.LeaveOrigin("r1").Validate())
	assert.NoError(t, generic.CashOutOrigin("r1").Validate())
	assert.ErrorIs(t, generic.LeaveOrigin("").Validate(), generic.ErrInvalidOrigin)
	assert.ErrorIs(t, generic.Origin{Kind: "BONUS", RequestID: "r1"}.Validate(), generic.ErrInvalidOrigin)
	assert.Equal(t, "CASHOUT:r1", generic.CashOutOrigin("r1").String())
}

func TestParseOriginKind(t *testing.T) {
	for in, want := range map[string]generic.OriginKind{
		"leave": generic.OriginLeave, "LEAVE": generic.OriginLeave,
		"cashout": generic.OriginCashOut, "cash_out": generic.OriginCashOut, "CASHOUT": generic.OriginCashOut,
	} {
		got, err := generic.ParseOriginKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := generic.ParseOriginKind("bonus")
	assert.ErrorIs(t, err, generic.ErrInvalidOrigin)
}

func TestParseAdjustmentType(t *testing.T) {
	got, err := generic.ParseAdjustmentType("initial_load")
	require.NoError(t, err)
	assert.Equal(t, generic.AdjustmentInitialLoad, got)

	_, err = generic.ParseAdjustmentType("bonus")
	assert.ErrorIs(t, err, generic.ErrInvalidAdjustmentType)
	assert.True(t, generic.IsClientError(err))
}
