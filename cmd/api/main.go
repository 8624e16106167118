package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"mbook/internal/api"
	"mbook/internal/config"
	"mbook/internal/logging"
	"mbook/internal/storage"
	"mbook/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ledger, err := storage.OpenLedger(ctx, cfg.LedgerDSN)
	if err != nil {
		logger.Error("open ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalAddress,
		Logger:   tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		logger.Error("dial temporal", "address", cfg.TemporalAddress, "error", err)
		os.Exit(1)
	}
	defer c.Close()

	launcher := workflows.NewTemporalLauncher(c, cfg.TemporalTaskQueue, cfg.ExecuteTimeout)
	h := api.NewServer(cfg, ledger, launcher, logger)
	logger.Info("mbook api listening", "addr", cfg.APIAddr, "books_root", cfg.BooksRoot, "queue", cfg.TemporalTaskQueue)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}
