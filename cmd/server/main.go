/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the vacation ledger HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment (flags override)
  2. Open the store selected by STORE_DRIVER
  3. Connect Redis when REDIS_ADDR is set (report cache, job queue)
  4. Start the in-process recalculation scheduler when there is no queue
  5. Configure HTTP router and serve

COMMAND-LINE FLAGS:
  -addr    Listen address (overrides APP_ADDR)
  -store   memory | sqlite | postgres (overrides STORE_DRIVER)
  -db      SQLite database path (overrides SQLITE_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (APP_SHUTDOWN_TIMEOUT)
  3. Stop the scheduler, close the job client, Redis and the store
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/vacation.db"

  # Run with in-memory store
  ./server -store=memory

  # Postgres with Redis-backed cache and queue
  STORE_DRIVER=postgres PG_DSN=postgres://... REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - cmd/worker/main.go: Queue worker and cron
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/warp/vacation-ledger/api"
	"github.com/warp/vacation-ledger/app"
	"github.com/warp/vacation-ledger/config"
	"github.com/warp/vacation-ledger/jobs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Flags
	flag.StringVar(&cfg.AppAddr, "addr", cfg.AppAddr, "HTTP listen address")
	flag.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "store driver: memory, sqlite or postgres")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		slog.Default().Error("invalid flags", slog.Any("error", err))
		os.Exit(1)
	}

	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(a.Store, a.Ledger, a.Reporter, logger)

	// With Redis the worker owns the sweep; otherwise run it in-process.
	if a.Redis != nil {
		queue := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer queue.Close()
		handler.Queue = queue
	} else {
		scheduler := api.NewRecalcScheduler(a.Ledger, logger)
		scheduler.Interval = cfg.RecalcInterval
		scheduler.Start()
		defer scheduler.Stop()
	}

	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RequestTimeout:     cfg.AppWriteTimeout,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
