// Command worker runs the asynq queue: it executes recalculation sweeps
// enqueued by the server and schedules the nightly sweep on RECALC_CRON.
// Requires REDIS_ADDR.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/warp/vacation-ledger/app"
	"github.com/warp/vacation-ledger/config"
	"github.com/warp/vacation-ledger/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)

	if !cfg.CacheEnabled() {
		logger.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("memory store is private to this process; sweeps will not reach the server")
	}

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open app", slog.Any("error", err))
		os.Exit(1)
	}
	defer a.Close()

	recalcTask, err := jobs.NewRecalculateTask(time.Time{})
	if err != nil {
		logger.Error("build recalculate task", slog.Any("error", err))
		os.Exit(1)
	}
	recalcJob := jobs.NewRecalculateJob(a.Ledger, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:       asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:          logger,
		ShutdownTimeout: cfg.AppShutdownTimeout,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecalculate, Handler: recalcJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecalcCron, Task: recalcTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("cron", cfg.RecalcCron), slog.String("store", cfg.StoreDriver))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
