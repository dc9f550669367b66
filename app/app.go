// Package app assembles the ledger from configuration: the store selected
// by STORE_DRIVER, the ledger and reporter over it, and the optional Redis
// report cache. The server and the worker share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/warp/vacation-ledger/api"
	"github.com/warp/vacation-ledger/config"
	"github.com/warp/vacation-ledger/factory"
	"github.com/warp/vacation-ledger/generic/store"
	"github.com/warp/vacation-ledger/store/cache"
	"github.com/warp/vacation-ledger/store/postgres"
	"github.com/warp/vacation-ledger/store/sqlite"
	"github.com/warp/vacation-ledger/vacation"
)

// App holds the wired ledger components.
type App struct {
	Store    api.Store
	Ledger   *vacation.Ledger
	Reporter *vacation.Reporter

	// Redis is nil when REDIS_ADDR is empty or unreachable.
	Redis *redis.Client

	closers []func() error
	logger  *slog.Logger
}

// Open builds the application. Close releases what it opened.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger}

	st, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = st

	policy := cfg.Policy()
	if cfg.PolicyFile != "" {
		policy, err = factory.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("policy loaded", slog.String("file", cfg.PolicyFile))
	}
	a.Ledger = vacation.NewLedger(st, policy, logger)
	a.Ledger.RecalcConcurrency = cfg.RecalcConcurrency
	a.Reporter = vacation.NewReporter(st, policy, nil, logger)

	if cfg.CacheEnabled() {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			// The ledger works without Redis; reports are just uncached.
			logger.Warn("redis unavailable, report cache disabled",
				slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
		} else {
			a.Redis = client
			a.closers = append(a.closers, client.Close)

			rc := cache.NewReportCache(client, cfg.ReportCacheTTL)
			a.Ledger.Invalidator = rc
			a.Reporter.Cache = rc
			logger.Info("report cache enabled", slog.String("addr", cfg.RedisAddr))
		}
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (api.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		a.logger.Info("using in-memory store")
		return store.NewTxMemory(), nil

	case config.DriverSQLite:
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		a.logger.Info("using sqlite store", slog.String("path", cfg.SQLitePath))
		return st, nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		st := postgres.New(pool)
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		a.logger.Info("using postgres store", slog.Int("max_conns", int(cfg.PGMaxConns)))
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", slog.Any("error", err))
		}
	}
	a.closers = nil
}
