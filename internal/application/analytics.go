package application

import (
	"context"
	"fmt"
	"time"

	"cryptoquotes-service/internal/analytics"
	"cryptoquotes-service/internal/domain"

	"go.uber.org/zap"
)

const DefaultRollingWindow = 7

type SkippedSymbol struct {
	Symbol domain.Symbol
	Reason string
}

// Frame is a date-by-symbol table; Values[i][j] belongs to Dates[i] and Symbols[j].
type Frame struct {
	Dates   []time.Time
	Symbols []domain.Symbol
	Values  [][]float64
	Skipped []SkippedSymbol
}

// Heatmap is the transposed daily % change: Values[i][j] belongs to
// Symbols[i] and Dates[j].
type Heatmap struct {
	Symbols []domain.Symbol
	Dates   []time.Time
	Values  [][]float64
	Skipped []SkippedSymbol
}

type Correlation struct {
	Symbols      []domain.Symbol
	Observations int
	Values       [][]float64
	Skipped      []SkippedSymbol
}

// AnalyticsService derives descriptive return reports from stored quotes.
// It only reads the store.
type AnalyticsService struct {
	store QuoteStore
	log   *zap.Logger
}

func NewAnalyticsService(store QuoteStore, log *zap.Logger) *AnalyticsService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalyticsService{store: store, log: log}
}

// DailyReturns reports daily percentage changes, keeping only dates present for
// every usable symbol, restricted to [from, to] when those are non-zero.
func (a *AnalyticsService) DailyReturns(ctx context.Context, symbols []domain.Symbol, from, to time.Time) (Frame, error) {
	prices, skipped, err := a.loadPrices(ctx, symbols)
	if err != nil {
		return Frame{}, err
	}
	returns := make([]analytics.Series, len(prices))
	for i, p := range prices {
		returns[i] = analytics.Scale(analytics.PctChange(p), 100)
	}
	f := frame(returns, skipped)
	return f.between(from, to), nil
}

// RollingReturns reports the window-day rolling mean of daily returns in percent.
func (a *AnalyticsService) RollingReturns(ctx context.Context, symbols []domain.Symbol, window int) (Frame, error) {
	if window <= 0 {
		return Frame{}, fmt.Errorf("%w: rolling window must be positive", ErrBadRequest)
	}
	prices, skipped, err := a.loadPrices(ctx, symbols)
	if err != nil {
		return Frame{}, err
	}
	rolling := make([]analytics.Series, len(prices))
	for i, p := range prices {
		rolling[i] = analytics.Scale(analytics.RollingMean(analytics.PctChange(p), window), 100)
	}
	return frame(rolling, skipped), nil
}

func (a *AnalyticsService) Heatmap(ctx context.Context, symbols []domain.Symbol) (Heatmap, error) {
	f, err := a.DailyReturns(ctx, symbols, time.Time{}, time.Time{})
	if err != nil {
		return Heatmap{}, err
	}
	h := Heatmap{Symbols: f.Symbols, Dates: f.Dates, Skipped: f.Skipped}
	h.Values = make([][]float64, len(f.Symbols))
	for i := range f.Symbols {
		h.Values[i] = make([]float64, len(f.Dates))
		for j := range f.Dates {
			h.Values[i][j] = f.Values[j][i]
		}
	}
	return h, nil
}

// Correlation is the Pearson matrix of aligned daily returns.
func (a *AnalyticsService) Correlation(ctx context.Context, symbols []domain.Symbol) (Correlation, error) {
	prices, skipped, err := a.loadPrices(ctx, symbols)
	if err != nil {
		return Correlation{}, err
	}
	returns := make([]analytics.Series, len(prices))
	for i, p := range prices {
		returns[i] = analytics.PctChange(p)
	}
	f := frame(returns, skipped)
	return Correlation{
		Symbols:      f.Symbols,
		Observations: len(f.Dates),
		Values:       analytics.CorrelationMatrix(f.Values, len(f.Symbols)),
		Skipped:      f.Skipped,
	}, nil
}

// loadPrices reads each symbol in timestamp order. Symbols without rows or with
// a record lacking a USD price are skipped rather than failing the report.
func (a *AnalyticsService) loadPrices(ctx context.Context, symbols []domain.Symbol) ([]analytics.Series, []SkippedSymbol, error) {
	var out []analytics.Series
	var skipped []SkippedSymbol
	for _, sym := range symbols {
		records, err := a.store.List(ctx, sym, time.Time{}, time.Time{})
		if err != nil {
			return nil, nil, fmt.Errorf("analytics: list %s: %w", sym, err)
		}
		if len(records) == 0 {
			a.log.Info("analytics.symbol_skipped", zap.String("symbol", string(sym)), zap.String("reason", "no data"))
			skipped = append(skipped, SkippedSymbol{Symbol: sym, Reason: "no data"})
			continue
		}
		s, ok := priceSeries(sym, records)
		if !ok {
			a.log.Warn("analytics.symbol_skipped", zap.String("symbol", string(sym)), zap.String("reason", "unparseable price"))
			skipped = append(skipped, SkippedSymbol{Symbol: sym, Reason: "unparseable price"})
			continue
		}
		out = append(out, s)
	}
	return out, skipped, nil
}

func priceSeries(sym domain.Symbol, records []domain.QuoteRecord) (analytics.Series, bool) {
	s := analytics.Series{Name: string(sym), Points: make([]analytics.Point, 0, len(records))}
	for _, r := range records {
		if !r.USD.Price.Valid {
			return analytics.Series{}, false
		}
		s.Points = append(s.Points, analytics.Point{T: r.Timestamp.UTC(), V: r.USD.Price.Decimal.InexactFloat64()})
	}
	return s, true
}

func frame(series []analytics.Series, skipped []SkippedSymbol) Frame {
	dates, values := analytics.Align(series)
	syms := make([]domain.Symbol, len(series))
	for i, s := range series {
		syms[i] = domain.Symbol(s.Name)
	}
	return Frame{Dates: dates, Symbols: syms, Values: values, Skipped: skipped}
}

func (f Frame) between(from, to time.Time) Frame {
	if from.IsZero() && to.IsZero() {
		return f
	}
	out := Frame{Symbols: f.Symbols, Skipped: f.Skipped}
	for i, d := range f.Dates {
		if !from.IsZero() && d.Before(from) {
			continue
		}
		if !to.IsZero() && d.After(to) {
			continue
		}
		out.Dates = append(out.Dates, d)
		out.Values = append(out.Values, f.Values[i])
	}
	return out
}
