package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-ledger/vacation"
)

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSweeper) RecalculateAll(_ context.Context, asOf time.Time) (vacation.RecalcSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return vacation.RecalcSummary{AsOf: asOf, Employees: 3, Recomputed: 3}, f.err
}

func (f *fakeSweeper) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietScheduler(s Sweeper) *RecalcScheduler {
	return NewRecalcScheduler(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRecalcScheduler_RunNowRecordsSummary(t *testing.T) {
	sweeper := &fakeSweeper{}
	rs := quietScheduler(sweeper)

	_, ok := rs.LastRun()
	assert.False(t, ok)

	rs.RunNow()

	summary, ok := rs.LastRun()
	require.True(t, ok)
	assert.Equal(t, 3, summary.Recomputed)
	assert.Equal(t, 1, sweeper.Calls())
}

func TestRecalcScheduler_FailureKeepsPreviousSummary(t *testing.T) {
	sweeper := &fakeSweeper{}
	rs := quietScheduler(sweeper)
	rs.RunNow()

	sweeper.mu.Lock()
	sweeper.err = errors.New("store down")
	sweeper.mu.Unlock()
	rs.RunNow()

	_, ok := rs.LastRun()
	assert.True(t, ok)
	assert.Equal(t, 2, sweeper.Calls())
}

func TestRecalcScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	sweeper := &fakeSweeper{}
	rs := quietScheduler(sweeper)
	rs.Interval = time.Hour

	rs.Start()
	require.Eventually(t, func() bool { return sweeper.Calls() >= 1 }, time.Second, 10*time.Millisecond)
	rs.Stop()
	rs.Stop()

	assert.Equal(t, 1, sweeper.Calls())
}

func TestRecalcScheduler_Disabled(t *testing.T) {
	sweeper := &fakeSweeper{}
	rs := quietScheduler(sweeper)
	rs.Enabled = false

	rs.Start()
	rs.Stop()

	assert.Zero(t, sweeper.Calls())
}
