package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cryptoquotes-service/internal/application"
	"cryptoquotes-service/internal/config"
	"cryptoquotes-service/internal/domain"
	"cryptoquotes-service/internal/infrastructure/memstore"
	"cryptoquotes-service/internal/infrastructure/pg"
	"cryptoquotes-service/internal/infrastructure/provider"
	redisstore "cryptoquotes-service/internal/infrastructure/redis"
	"cryptoquotes-service/internal/infrastructure/snapshot"
	"cryptoquotes-service/internal/infrastructure/worker"

	"go.uber.org/zap"
)

var ErrMissingDBURL = errors.New("DATABASE_URL is required with STORAGE=pg")

// App holds the wired components shared by the entry points.
type App struct {
	Config    config.Config
	Log       *zap.Logger
	Store     application.QuoteStore
	Ingest    *application.IngestionService
	Analytics *application.AnalyticsService
	// Snapshots is nil when PARQUET_DIR is unset.
	Snapshots *snapshot.Sink
	// Ping probes the store; nil for the in-memory store.
	Ping func(ctx context.Context) error
}

type storeDeps struct {
	store application.QuoteStore
	uow   application.UnitOfWork
	ping  func(ctx context.Context) error
}

// Build wires every component from cfg. The returned cleanup releases pools
// and clients in reverse order and is safe to call after an error.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	sd, closeStore, err := ProvideStore(ctx, log, cfg)
	if err != nil {
		return nil, cleanup, err
	}
	cleanups = append(cleanups, closeStore)

	idem, closeIdem, err := ProvideIdempotency(ctx, log, cfg)
	if err != nil {
		return nil, cleanup, err
	}
	cleanups = append(cleanups, closeIdem)

	opts := []application.Option{
		application.WithLogger(log),
		application.WithUnitOfWork(sd.uow),
		application.WithIdempotency(idem),
		application.WithWriteMode(application.WriteMode(cfg.WriteMode)),
		application.WithRange(cfg.StartDate, cfg.EndDate),
	}
	sink := ProvideSnapshotSink(cfg, log)
	if sink != nil {
		opts = append(opts, application.WithSnapshotSink(sink))
	}

	app := &App{
		Config:    cfg,
		Log:       log,
		Store:     sd.store,
		Ingest:    application.NewIngestionService(sd.store, ProvideFetcher(cfg, log), opts...),
		Analytics: application.NewAnalyticsService(sd.store, log),
		Snapshots: sink,
		Ping:      sd.ping,
	}
	return app, cleanup, nil
}

func ProvideStore(ctx context.Context, log *zap.Logger, cfg config.Config) (storeDeps, func(), error) {
	if cfg.Storage == "memory" {
		log.Info("bootstrap.store", zap.String("kind", "memory"))
		return storeDeps{store: memstore.NewQuoteStore(), uow: application.NoopUoW{}}, func() {}, nil
	}
	if cfg.DatabaseURL == "" {
		return storeDeps{}, func() {}, ErrMissingDBURL
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return storeDeps{}, func() {}, err
	}
	if err := pg.RunMigrations(ctx, db); err != nil {
		db.Close()
		return storeDeps{}, func() {}, err
	}
	log.Info("bootstrap.store", zap.String("kind", "pg"))
	cleanup := func() {
		log.Info("closing pg")
		db.Close()
	}
	return storeDeps{
		store: pg.NewQuoteStore(db),
		uow:   &pg.UnitOfWork{Pool: db.Pool},
		ping:  db.Ping,
	}, cleanup, nil
}

func ProvideIdempotency(ctx context.Context, log *zap.Logger, cfg config.Config) (application.IdempotencyStore, func(), error) {
	if cfg.IdempotencyBackend != "redis" {
		return application.NoopIdempotency{}, func() {}, nil
	}
	client, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, func() {}, err
	}
	return redisstore.New(client, cfg.RedisTTL, log), func() { _ = client.Close() }, nil
}

func ProvideFetcher(cfg config.Config, log *zap.Logger) application.QuoteFetcher {
	if cfg.Provider == "cmc" {
		return provider.NewCoinMarketCap(
			cfg.CMCAPIBase,
			cfg.CMCAPIKey,
			&http.Client{Timeout: cfg.RequestTimeout},
			provider.Pacer{Delay: cfg.FetchDelay},
			log,
		)
	}
	return provider.NewFake(1.0)
}

// ProvideSnapshotSink returns nil when PARQUET_DIR is unset.
func ProvideSnapshotSink(cfg config.Config, log *zap.Logger) *snapshot.Sink {
	if cfg.ParquetDir == "" {
		return nil
	}
	return snapshot.NewSink(cfg.ParquetDir, log)
}

// ReloadSnapshots reads back the parquet snapshot of every symbol stored by
// report and returns the row counts found on disk.
func (a *App) ReloadSnapshots(report domain.RunReport) (map[domain.Symbol]int, error) {
	if a.Snapshots == nil {
		return nil, nil
	}
	counts := map[domain.Symbol]int{}
	for _, o := range report.Outcomes {
		if o.Status != domain.OutcomeFetched {
			continue
		}
		records, err := a.Snapshots.Load(o.Symbol)
		if err != nil {
			return counts, fmt.Errorf("reload snapshot %s: %w", o.Symbol, err)
		}
		counts[o.Symbol] = len(records)
		a.Log.Info("snapshot.reloaded", zap.String("symbol", string(o.Symbol)), zap.Int("rows", len(records)))
	}
	return counts, nil
}

func ProvideWorker(app *App) application.Worker {
	return &worker.PeriodicWorker{
		Ingest:  app.Ingest,
		Symbols: app.Config.Symbols,
		Every:   app.Config.IngestEvery,
		Log:     app.Log,
	}
}
