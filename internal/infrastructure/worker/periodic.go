package worker

import (
	"context"
	"errors"
	"time"

	"cryptoquotes-service/internal/application"
	"cryptoquotes-service/internal/domain"
	infraconfig "cryptoquotes-service/internal/infrastructure/config"

	"go.uber.org/zap"
)

var _ application.Worker = (*PeriodicWorker)(nil)

type runner interface {
	Run(ctx context.Context, symbols []domain.Symbol) (domain.RunReport, error)
}

// PeriodicWorker runs an ingestion once at start and then every Every until
// the context is canceled. A failed run is logged and retried on the next tick.
type PeriodicWorker struct {
	Ingest  runner
	Symbols []domain.Symbol
	Every   time.Duration
	Log     *zap.Logger
}

func (w *PeriodicWorker) Start(ctx context.Context) {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	if w.Every <= 0 {
		w.Every = infraconfig.DefaultIngestEvery
	}

	log.Info("worker.started", zap.Duration("every", w.Every), zap.Int("symbols", len(w.Symbols)))
	w.tick(ctx, log)

	t := time.NewTicker(w.Every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("worker.stopped")
			return
		case <-t.C:
			w.tick(ctx, log)
		}
	}
}

func (w *PeriodicWorker) tick(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	report, err := w.Ingest.Run(ctx, w.Symbols)
	switch {
	case errors.Is(err, context.Canceled):
		log.Info("worker.run_canceled", zap.String("run_id", report.ID))
	case err != nil:
		log.Error("worker.run_failed", zap.String("run_id", report.ID), zap.Error(err))
	default:
		log.Info("worker.run_done",
			zap.String("run_id", report.ID),
			zap.Int("fetched", report.Count(domain.OutcomeFetched)),
			zap.Int("failed", report.Count(domain.OutcomeFailed)),
		)
	}
}
