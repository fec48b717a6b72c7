package snapshot

import (
	"context"
	"testing"
	"time"

	"cryptoquotes-service/internal/application"
	"cryptoquotes-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSnapshotLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewSink(dir, nil)
	ts := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)
	recs := []domain.QuoteRecord{
		{
			Symbol:    "SOL",
			Timestamp: ts,
			TimeOpen:  ts,
			TimeClose: ts.Add(24*time.Hour - time.Millisecond),
			USD: domain.USDQuote{
				Price:     decimal.NewNullDecimal(decimal.RequireFromString("23.75")),
				Open:      decimal.RequireFromString("21.31"),
				Close:     decimal.RequireFromString("23.75"),
				MarketCap: decimal.RequireFromString("9793123981.5"),
			},
			Raw: `{"USD":{"close":23.75}}`,
		},
		{Symbol: "SOL", Timestamp: ts.AddDate(0, 0, 1)},
	}

	require.NoError(t, s.Snapshot(context.Background(), "SOL", recs))
	require.FileExists(t, dir+"/SOL_historical_data.parquet")

	got, err := s.Load("SOL")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, recs[0].Timestamp, got[0].Timestamp)
	require.Equal(t, recs[0].TimeClose, got[0].TimeClose)
	require.True(t, recs[0].USD.Price.Decimal.Equal(got[0].USD.Price.Decimal))
	require.True(t, recs[0].USD.MarketCap.Equal(got[0].USD.MarketCap))
	require.Equal(t, recs[0].Raw, got[0].Raw)
	require.False(t, got[1].USD.Price.Valid)
	require.True(t, got[1].TimeOpen.IsZero())
}

func TestSnapshotOverwrites(t *testing.T) {
	s := NewSink(t.TempDir(), nil)
	ts := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Snapshot(context.Background(), "RAY", []domain.QuoteRecord{{Timestamp: ts}, {Timestamp: ts.AddDate(0, 0, 1)}}))
	require.NoError(t, s.Snapshot(context.Background(), "RAY", []domain.QuoteRecord{{Timestamp: ts}}))
	got, err := s.Load("RAY")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestLoadMissing(t *testing.T) {
	_, err := NewSink(t.TempDir(), nil).Load("ORCA")
	require.ErrorIs(t, err, application.ErrNotFound)
}
