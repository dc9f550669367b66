package jobs_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-ledger/jobs"
)

// syncBuffer guards the log buffer; asynq logs from its own goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewWorker_RejectsMalformedCron(t *testing.T) {
	// GIVEN: a cron entry with an unparsable expression
	// WHEN: the worker is built
	// THEN: construction fails and names the expression
	task, err := jobs.NewRecalculateTask(time.Time{})
	require.NoError(t, err)

	_, err = jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Logger:    quietLogger(),
		Cron:      []jobs.CronRegistration{{Spec: "every night", Task: task}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every night")
}

func TestNewWorker_SkipsIncompleteCron(t *testing.T) {
	task, err := jobs.NewRecalculateTask(time.Time{})
	require.NoError(t, err)

	w, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Logger:    quietLogger(),
		Cron: []jobs.CronRegistration{
			{Spec: "", Task: task},
			{Spec: "0 2 * * *"},
		},
	})
	require.NoError(t, err)
	assert.NotNil(t, w)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	// GIVEN: a worker with a nightly sweep against a local Redis
	// WHEN: its context is cancelled
	// THEN: Run returns nil after logging the registered entry and the stop
	mr := miniredis.RunT(t)
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelInfo}))

	task, err := jobs.NewRecalculateTask(time.Time{})
	require.NoError(t, err)
	w, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:       asynq.RedisClientOpt{Addr: mr.Addr()},
		Logger:          logger,
		ShutdownTimeout: time.Second,
		Cron:            []jobs.CronRegistration{{Spec: "0 2 * * *", Task: task}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "worker started")
	}, 5*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not stop")
	}
	out := logs.String()
	assert.Contains(t, out, "cron registered")
	assert.Contains(t, out, `spec="0 2 * * *"`)
	assert.Contains(t, out, "worker stopped")
	assert.Contains(t, out, "component=worker")
}
