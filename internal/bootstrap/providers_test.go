package bootstrap

import (
	"context"
	"testing"
	"time"

	"cryptoquotes-service/internal/application"
	"cryptoquotes-service/internal/config"
	"cryptoquotes-service/internal/domain"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryConfig() config.Config {
	return config.Config{
		Storage:            "memory",
		Provider:           "fake",
		WriteMode:          "upsert",
		IdempotencyBackend: "none",
		Symbols:            []domain.Symbol{"SOL"},
		StartDate:          time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2023, 11, 4, 0, 0, 0, 0, time.UTC),
		RollingWindow:      7,
	}
}

func TestBuild_MemoryRunsIngestion(t *testing.T) {
	cfg := memoryConfig()
	cfg.ParquetDir = t.TempDir()
	app, cleanup, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()
	require.Nil(t, app.Ping)
	require.NotNil(t, ProvideWorker(app))

	report, err := app.Ingest.Run(context.Background(), cfg.Symbols)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeFetched, report.Outcomes[0].Status)
	require.FileExists(t, cfg.ParquetDir+"/SOL_historical_data.parquet")

	sums, err := app.Store.Symbols(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, sums[0].Rows)

	counts, err := app.ReloadSnapshots(report)
	require.NoError(t, err)
	require.Equal(t, map[domain.Symbol]int{"SOL": 3}, counts)
}

func TestReloadSnapshots_DisabledWithoutDir(t *testing.T) {
	app, cleanup, err := Build(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	report, err := app.Ingest.Run(context.Background(), []domain.Symbol{"SOL"})
	require.NoError(t, err)
	counts, err := app.ReloadSnapshots(report)
	require.NoError(t, err)
	require.Nil(t, counts)
}

func TestReloadSnapshots_MissingFile(t *testing.T) {
	cfg := memoryConfig()
	cfg.ParquetDir = t.TempDir()
	app, cleanup, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	report := domain.RunReport{Outcomes: []domain.SymbolOutcome{{Symbol: "RAY", Status: domain.OutcomeFetched}}}
	_, err = app.ReloadSnapshots(report)
	require.ErrorIs(t, err, application.ErrNotFound)
}

func TestBuild_RedisIdempotency(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := memoryConfig()
	cfg.IdempotencyBackend = "redis"
	cfg.RedisAddr = mr.Addr()
	cfg.RedisTTL = time.Hour
	app, cleanup, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	key := "same"
	_, err = app.Ingest.Trigger(context.Background(), cfg.Symbols, &key)
	require.NoError(t, err)
	_, err = app.Ingest.Trigger(context.Background(), cfg.Symbols, &key)
	require.ErrorIs(t, err, application.ErrConflict)
}

func TestBuild_PGWithoutURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage = "pg"
	_, cleanup, err := Build(context.Background(), cfg, zap.NewNop())
	cleanup()
	require.ErrorIs(t, err, ErrMissingDBURL)
}

func TestProvideSnapshotSink_DisabledWithoutDir(t *testing.T) {
	require.Nil(t, ProvideSnapshotSink(memoryConfig(), zap.NewNop()))
}
