package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"mbook/internal/activities"
	"mbook/internal/config"
	"mbook/internal/logging"
	"mbook/internal/storage"
	"mbook/internal/util"
	"mbook/internal/workflows"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	fatal := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	render, err := config.LoadRenderConfig(cfg.RenderConfigPath, cfg.Render)
	if err != nil {
		fatal("load render config", "error", err)
	}
	cfg.Render = render

	// working directories are keyed by title only, so one worker owns the scratch root
	if err := util.EnsureDir(cfg.ScratchRoot); err != nil {
		fatal("create scratch root", "error", err)
	}
	lock := flock.New(filepath.Join(cfg.ScratchRoot, ".worker.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		fatal("lock scratch root", "error", err)
	}
	if !locked {
		fatal("scratch root is owned by another worker", "scratch_root", cfg.ScratchRoot)
	}
	defer func() { _ = lock.Unlock() }()

	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalAddress,
		Logger:   tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		fatal("dial temporal", "address", cfg.TemporalAddress, "error", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ledger, err := storage.OpenLedger(ctx, cfg.LedgerDSN)
	if err != nil {
		fatal("open ledger", "error", err)
	}
	defer ledger.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.WorkerMaxActivities,
	})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, ledger, activities.NewEngine(cfg), logger))

	logger.Info("mbook worker listening",
		"address", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue,
		"max_activities", cfg.WorkerMaxActivities, "jupyter", cfg.JupyterBin)
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}
