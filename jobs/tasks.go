package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/warp/vacation-ledger/generic"
	"github.com/warp/vacation-ledger/vacation"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecalculate recalculates every active employee's accrual rows.
	TaskRecalculate = "ledger:recalculate"
)

// RecalculatePayload carries the optional as-of date (YYYY-MM-DD).
// Empty means the date the task runs.
type RecalculatePayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewRecalculateTask constructs an Asynq task.
func NewRecalculateTask(asOf time.Time) (*asynq.Task, error) {
	var payload RecalculatePayload
	if !asOf.IsZero() {
		payload.AsOf = asOf.Format(generic.DateLayout)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecalculate, data), nil
}

// Recalculator is the part of vacation.Ledger the job needs.
type Recalculator interface {
	RecalculateAll(ctx context.Context, asOf time.Time) (vacation.RecalcSummary, error)
}

// RecalculateJob runs the nightly accrual sweep.
type RecalculateJob struct {
	Ledger  Recalculator
	Logger  *slog.Logger
	Timeout time.Duration
}

// NewRecalculateJob wires dependencies for the recalculation handler.
func NewRecalculateJob(ledger Recalculator, logger *slog.Logger) *RecalculateJob {
	return &RecalculateJob{Ledger: ledger, Logger: logger, Timeout: 10 * time.Minute}
}

// Handle processes TaskRecalculate tasks. Malformed payloads are not retried.
func (j *RecalculateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("recalculate: handler not configured")
	}
	var payload RecalculatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("recalculate: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	var asOf time.Time
	if payload.AsOf != "" {
		parsed, err := generic.ParseDate(payload.AsOf)
		if err != nil {
			return fmt.Errorf("recalculate: as_of %q: %v: %w", payload.AsOf, err, asynq.SkipRetry)
		}
		asOf = parsed
	}

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	logger := j.logger().With(slog.String("task", TaskRecalculate), slog.String("as_of", payload.AsOf))
	started := time.Now()
	logger.Info("starting accrual recalculation")

	summary, err := j.Ledger.RecalculateAll(ctx, asOf)
	if err != nil {
		logger.Error("accrual recalculation failed", slog.Any("error", err))
		return err
	}

	logger.Info("completed accrual recalculation",
		slog.Int("employees", summary.Employees),
		slog.Int("recomputed", summary.Recomputed),
		slog.Int("skipped", summary.Skipped),
		slog.Duration("duration", time.Since(started)))
	return nil
}

func (j *RecalculateJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
