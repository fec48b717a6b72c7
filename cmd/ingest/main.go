// Command ingest runs a single reconciliation pass over the configured
// symbols and exits non-zero when the run is aborted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cryptoquotes-service/internal/bootstrap"
	"cryptoquotes-service/internal/config"
	"cryptoquotes-service/internal/domain"
	"cryptoquotes-service/internal/infrastructure/logx"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	os.Exit(run())
}

func run() int {
	log := logx.L()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", zap.Error(err))
		return 2
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := bootstrap.Build(ctx, cfg, log)
	defer cleanup()
	if err != nil {
		log.Error("bootstrap", zap.Error(err))
		return 1
	}

	report, err := app.Ingest.Run(ctx, cfg.Symbols)
	for _, o := range report.Outcomes {
		log.Info("ingest.outcome",
			zap.String("symbol", string(o.Symbol)),
			zap.String("status", string(o.Status)),
			zap.Int64("written", o.Written),
			zap.String("reason", o.Reason),
		)
	}
	if err != nil {
		log.Error("ingest.aborted", zap.Error(err))
		return 1
	}
	if _, err := app.ReloadSnapshots(report); err != nil {
		log.Error("ingest.snapshot_reload_failed", zap.Error(err))
		return 1
	}
	if report.Count(domain.OutcomeFailed) > 0 {
		log.Warn("ingest.completed_with_failures", zap.Int("failed", report.Count(domain.OutcomeFailed)))
	}
	return 0
}
