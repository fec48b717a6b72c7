package application

import (
	"context"
	"time"

	"cryptoquotes-service/internal/domain"
)

// QuoteStore persists quote records partitioned by symbol. Zero from/to
// bounds on List mean unbounded.
type QuoteStore interface {
	HasSymbol(ctx context.Context, symbol domain.Symbol) (bool, error)
	LatestTimestamp(ctx context.Context, symbol domain.Symbol) (time.Time, bool, error)
	Write(ctx context.Context, symbol domain.Symbol, records []domain.QuoteRecord) (int64, error)
	Replace(ctx context.Context, symbol domain.Symbol, records []domain.QuoteRecord) (int64, error)
	List(ctx context.Context, symbol domain.Symbol, from, to time.Time) ([]domain.QuoteRecord, error)
	Symbols(ctx context.Context) ([]domain.SymbolSummary, error)
}

type QuoteFetcher interface {
	Fetch(ctx context.Context, symbol domain.Symbol, window domain.FetchWindow) ([]domain.QuoteRecord, error)
}

// SnapshotSink receives the full stored history of a symbol after each write.
type SnapshotSink interface {
	Snapshot(ctx context.Context, symbol domain.Symbol, records []domain.QuoteRecord) error
}
