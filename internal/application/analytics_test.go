package application

import (
	"context"
	"math"
	"testing"
	"time"

	"cryptoquotes-service/internal/domain"

	"github.com/stretchr/testify/require"
)

func analyticsStore() *fakeStore {
	return &fakeStore{rows: map[domain.Symbol][]domain.QuoteRecord{
		"SOL": {
			rec("SOL", date(2023, 11, 1), "100"),
			rec("SOL", date(2023, 11, 2), "110"),
			rec("SOL", date(2023, 11, 3), "121"),
			rec("SOL", date(2023, 11, 4), "108.9"),
		},
		"RAY": {
			rec("RAY", date(2023, 11, 2), "10"),
			rec("RAY", date(2023, 11, 3), "12"),
			rec("RAY", date(2023, 11, 4), "9"),
		},
		"PSY": {
			rec("PSY", date(2023, 11, 1), "1"),
			rec("PSY", date(2023, 11, 2), ""),
		},
	}}
}

func TestDailyReturns_AlignsAndSkips(t *testing.T) {
	t.Parallel()
	a := NewAnalyticsService(analyticsStore(), nil)

	f, err := a.DailyReturns(context.Background(), []domain.Symbol{"SOL", "RAY", "PSY", "ORCA"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, []domain.Symbol{"SOL", "RAY"}, f.Symbols)
	require.Equal(t, []time.Time{date(2023, 11, 3), date(2023, 11, 4)}, f.Dates)
	require.InDelta(t, 10.0, f.Values[0][0], 1e-9)
	require.InDelta(t, 20.0, f.Values[0][1], 1e-9)
	require.InDelta(t, -10.0, f.Values[1][0], 1e-9)
	require.InDelta(t, -25.0, f.Values[1][1], 1e-9)
	require.Equal(t, []SkippedSymbol{
		{Symbol: "PSY", Reason: "unparseable price"},
		{Symbol: "ORCA", Reason: "no data"},
	}, f.Skipped)
}

func TestDailyReturns_DateFilter(t *testing.T) {
	t.Parallel()
	a := NewAnalyticsService(analyticsStore(), nil)
	f, err := a.DailyReturns(context.Background(), []domain.Symbol{"SOL"}, date(2023, 11, 3), date(2023, 11, 3))
	require.NoError(t, err)
	require.Equal(t, []time.Time{date(2023, 11, 3)}, f.Dates)
}

func TestRollingReturns(t *testing.T) {
	t.Parallel()
	a := NewAnalyticsService(analyticsStore(), nil)
	f, err := a.RollingReturns(context.Background(), []domain.Symbol{"SOL"}, 2)
	require.NoError(t, err)
	require.Equal(t, []time.Time{date(2023, 11, 3), date(2023, 11, 4)}, f.Dates)
	require.InDelta(t, 10.0, f.Values[0][0], 1e-9)
	require.InDelta(t, 0.0, f.Values[1][0], 1e-9)

	_, err = a.RollingReturns(context.Background(), []domain.Symbol{"SOL"}, 0)
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestHeatmap_IsTransposedReturns(t *testing.T) {
	t.Parallel()
	a := NewAnalyticsService(analyticsStore(), nil)
	h, err := a.Heatmap(context.Background(), []domain.Symbol{"SOL", "RAY"})
	require.NoError(t, err)
	require.Len(t, h.Values, 2)
	require.Len(t, h.Values[0], 2)
	require.InDelta(t, 20.0, h.Values[1][0], 1e-9)
	require.InDelta(t, -10.0, h.Values[0][1], 1e-9)
}

func TestCorrelation(t *testing.T) {
	t.Parallel()
	a := NewAnalyticsService(analyticsStore(), nil)
	c, err := a.Correlation(context.Background(), []domain.Symbol{"SOL", "RAY"})
	require.NoError(t, err)
	require.Equal(t, 2, c.Observations)
	require.InDelta(t, 1.0, c.Values[0][0], 1e-9)
	require.InDelta(t, 1.0, c.Values[0][1], 1e-9)
	require.False(t, math.IsNaN(c.Values[1][0]))
}

func TestAnalytics_StoreErrorPropagates(t *testing.T) {
	t.Parallel()
	a := NewAnalyticsService(&fakeStore{err: ErrRepo}, nil)
	_, err := a.Correlation(context.Background(), []domain.Symbol{"SOL"})
	require.ErrorIs(t, err, ErrRepo)
}
