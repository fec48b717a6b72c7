package application

import (
	"context"
	"errors"
	"sort"
	"time"

	"cryptoquotes-service/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	ErrRepo = errors.New("repo error")
)

type fakeStore struct {
	rows     map[domain.Symbol][]domain.QuoteRecord
	err      error
	writeErr error
	writes   int
	replaces int
}

func (f *fakeStore) HasSymbol(_ context.Context, s domain.Symbol) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return len(f.rows[s]) > 0, nil
}

func (f *fakeStore) LatestTimestamp(_ context.Context, s domain.Symbol) (time.Time, bool, error) {
	if f.err != nil {
		return time.Time{}, false, f.err
	}
	ts, ok := domain.LatestTimestamp(f.rows[s])
	return ts, ok, nil
}

func (f *fakeStore) Write(_ context.Context, s domain.Symbol, recs []domain.QuoteRecord) (int64, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.rows == nil {
		f.rows = map[domain.Symbol][]domain.QuoteRecord{}
	}
	f.writes++
	byTS := map[time.Time]domain.QuoteRecord{}
	for _, r := range f.rows[s] {
		byTS[r.Timestamp] = r
	}
	for _, r := range recs {
		byTS[r.Timestamp] = r
	}
	merged := make([]domain.QuoteRecord, 0, len(byTS))
	for _, r := range byTS {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })
	f.rows[s] = merged
	return int64(len(recs)), nil
}

func (f *fakeStore) Replace(_ context.Context, s domain.Symbol, recs []domain.QuoteRecord) (int64, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.rows == nil {
		f.rows = map[domain.Symbol][]domain.QuoteRecord{}
	}
	f.replaces++
	f.rows[s] = append([]domain.QuoteRecord(nil), recs...)
	return int64(len(recs)), nil
}

func (f *fakeStore) List(_ context.Context, s domain.Symbol, _, _ time.Time) ([]domain.QuoteRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[s], nil
}

func (f *fakeStore) Symbols(context.Context) ([]domain.SymbolSummary, error) {
	return nil, f.err
}

type fetchCall struct {
	Symbol domain.Symbol
	Window domain.FetchWindow
}

type fakeFetcher struct {
	out   map[domain.Symbol][]domain.QuoteRecord
	errs  map[domain.Symbol]error
	calls []fetchCall
}

func (f *fakeFetcher) Fetch(_ context.Context, s domain.Symbol, w domain.FetchWindow) ([]domain.QuoteRecord, error) {
	f.calls = append(f.calls, fetchCall{Symbol: s, Window: w})
	if err := f.errs[s]; err != nil {
		return nil, err
	}
	return f.out[s], nil
}

type fakeSink struct {
	got map[domain.Symbol]int
	err error
}

func (f *fakeSink) Snapshot(_ context.Context, s domain.Symbol, recs []domain.QuoteRecord) error {
	if f.err != nil {
		return f.err
	}
	if f.got == nil {
		f.got = map[domain.Symbol]int{}
	}
	f.got[s] = len(recs)
	return nil
}

type fakeIdem struct {
	seen     map[string]bool
	released []string
}

func (f *fakeIdem) TryReserve(_ context.Context, k string) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[k] {
		return false, nil
	}
	f.seen[k] = true
	return true, nil
}

func (f *fakeIdem) Release(_ context.Context, k string) error {
	delete(f.seen, k)
	f.released = append(f.released, k)
	return nil
}

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

type fixedID string

func (f fixedID) NewID() string { return string(f) }

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func rec(sym domain.Symbol, ts time.Time, price string) domain.QuoteRecord {
	r := domain.QuoteRecord{Symbol: sym, Timestamp: ts}
	if price != "" {
		p := decimal.RequireFromString(price)
		r.USD.Price = decimal.NewNullDecimal(p)
		r.USD.Close = p
	}
	return r
}
