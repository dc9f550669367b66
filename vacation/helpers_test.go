package vacation_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-ledger/generic"
	"github.com/warp/vacation-ledger/generic/store"
	"github.com/warp/vacation-ledger/vacation"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(v float64) decimal.Decimal { return generic.Days(v) }

func date(y int, m time.Month, day int) time.Time { return generic.Date(y, m, day) }

// fixedClock returns a clock that can be moved by tests.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return fmt.Sprintf("id-%03d", c.n)
}

type bumpCounter struct {
	mu    sync.Mutex
	bumps int
}

func (b *bumpCounter) Bump(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bumps++
	return nil
}

func (b *bumpCounter) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bumps
}

type fixture struct {
	store  *store.TxMemory
	ledger *vacation.Ledger
	clock  *fixedClock
	bumps  *bumpCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewTxMemory()
	clock := &fixedClock{now: time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC)}
	ids := &counter{}
	bumps := &bumpCounter{}

	ledger := vacation.NewLedger(st, vacation.DefaultPolicy(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ledger.Now = clock.Now
	ledger.NewID = ids.Next
	ledger.Invalidator = bumps

	return &fixture{store: st, ledger: ledger, clock: clock, bumps: bumps}
}

func (f *fixture) employee(t *testing.T, id string, hire time.Time) generic.Employee {
	t.Helper()
	emp := generic.Employee{
		ID:       generic.EmployeeID(id),
		Name:     "Employee " + id,
		Email:    id + "@example.com",
		HireDate: hire,
	}
	require.NoError(t, f.store.SaveEmployee(context.Background(), emp))
	return emp
}

// period seeds an accrual row with the given accrued and consumed totals.
func (f *fixture) period(t *testing.T, emp generic.Employee, year int, accrued, consumed float64) {
	t.Helper()
	rec := generic.NewAccrualRecord(emp.ID, generic.AnniversaryPeriod(emp.HireDate, year), d(2.5), f.clock.Now())
	rec.SetAccrued(d(accrued), 12)
	rec.TotalConsumed = d(consumed)
	rec.Remaining = generic.FloorZero(d(accrued - consumed))
	require.NoError(t, f.store.SaveAccrual(context.Background(), rec))
}

func (f *fixture) remaining(t *testing.T, id generic.EmployeeID) map[int]decimal.Decimal {
	t.Helper()
	records, err := f.store.ListAccruals(context.Background(), id)
	require.NoError(t, err)
	out := make(map[int]decimal.Decimal, len(records))
	for _, r := range records {
		out[r.Year] = r.Remaining
	}
	return out
}

func requireDays(t *testing.T, expected float64, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, d(expected).Equal(actual), "expected %v days, got %s", expected, actual)
}

func requireBalanced(t *testing.T, st generic.Store, id generic.EmployeeID) {
	t.Helper()
	records, err := st.ListAccruals(context.Background(), id)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, r.Validate())
		require.False(t, r.Remaining.IsNegative())
	}
}
