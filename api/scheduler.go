/*
scheduler.go - In-process recalculation scheduler

PURPOSE:
  Periodically refreshes every employee's accrual rows so balances follow
  the calendar without anyone calling recalculate. Used when no Redis is
  configured; with Redis the asynq worker (cmd/worker) runs the same sweep
  on a cron schedule instead.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Runs once immediately on start
  - A sweep that fails is logged and retried on the next tick

CONFIGURATION:
  - Interval: How often to sweep (default: 24 hours)
  - Enabled:  Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRecalcScheduler(ledger, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RecalculateAll endpoint (manual sweep)
  - jobs/tasks.go: Queue-backed sweep
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/vacation-ledger/vacation"
)

// Sweeper runs a recalculation over every employee.
type Sweeper interface {
	RecalculateAll(ctx context.Context, asOf time.Time) (vacation.RecalcSummary, error)
}

// RecalcScheduler handles automated recalculation.
type RecalcScheduler struct {
	Ledger   Sweeper
	Logger   *slog.Logger
	Interval time.Duration
	Timeout  time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	last   *vacation.RecalcSummary
}

// NewRecalcScheduler creates a new scheduler.
func NewRecalcScheduler(ledger Sweeper, logger *slog.Logger) *RecalcScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecalcScheduler{
		Ledger:   ledger,
		Logger:   logger,
		Interval: 24 * time.Hour,
		Timeout:  10 * time.Minute,
		Enabled:  true,
	}
}

// Start begins the scheduler.
func (rs *RecalcScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("recalc scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	rs.Logger.Info("recalc scheduler started", slog.Duration("interval", rs.Interval))
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (rs *RecalcScheduler) Stop() {
	rs.mu.Lock()
	if rs.ticker == nil {
		rs.mu.Unlock()
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.ticker = nil
	rs.mu.Unlock()

	rs.wg.Wait()
	rs.Logger.Info("recalc scheduler stopped")
}

func (rs *RecalcScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow()

	for {
		select {
		case <-ticker.C:
			rs.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow sweeps once, synchronously.
func (rs *RecalcScheduler) RunNow() {
	ctx := context.Background()
	if rs.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rs.Timeout)
		defer cancel()
	}

	summary, err := rs.Ledger.RecalculateAll(ctx, time.Time{})
	if err != nil {
		rs.Logger.Error("scheduled recalculation failed", slog.Any("error", err))
		return
	}

	rs.mu.Lock()
	rs.last = &summary
	rs.mu.Unlock()
}

// LastRun returns the summary of the last successful sweep, if any.
func (rs *RecalcScheduler) LastRun() (vacation.RecalcSummary, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.last == nil {
		return vacation.RecalcSummary{}, false
	}
	return *rs.last, true
}

