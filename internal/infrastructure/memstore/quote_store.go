package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"cryptoquotes-service/internal/application"
	"cryptoquotes-service/internal/domain"
)

var _ application.QuoteStore = (*QuoteStore)(nil)

// QuoteStore is a process-local store used with STORAGE=memory and in tests.
// Each symbol's slice is kept sorted by timestamp.
type QuoteStore struct {
	mu   sync.RWMutex
	rows map[domain.Symbol][]domain.QuoteRecord
}

func NewQuoteStore() *QuoteStore {
	return &QuoteStore{rows: map[domain.Symbol][]domain.QuoteRecord{}}
}

func (s *QuoteStore) HasSymbol(_ context.Context, sym domain.Symbol) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows[sym]) > 0, nil
}

func (s *QuoteStore) LatestTimestamp(_ context.Context, sym domain.Symbol) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.rows[sym]
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[len(rows)-1].Timestamp, true, nil
}

func (s *QuoteStore) Write(_ context.Context, sym domain.Symbol, records []domain.QuoteRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := append(append([]domain.QuoteRecord(nil), s.rows[sym]...), stamp(sym, records)...)
	s.rows[sym] = domain.Dedupe(merged)
	return int64(len(domain.Dedupe(records))), nil
}

func (s *QuoteStore) Replace(_ context.Context, sym domain.Symbol, records []domain.QuoteRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := domain.Dedupe(stamp(sym, records))
	if len(rows) == 0 {
		delete(s.rows, sym)
		return 0, nil
	}
	s.rows[sym] = rows
	return int64(len(rows)), nil
}

func (s *QuoteStore) List(_ context.Context, sym domain.Symbol, from, to time.Time) ([]domain.QuoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.QuoteRecord
	for _, r := range s.rows[sym] {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *QuoteStore) Symbols(context.Context) ([]domain.SymbolSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SymbolSummary, 0, len(s.rows))
	for sym, rows := range s.rows {
		out = append(out, domain.SymbolSummary{
			Symbol: sym,
			Rows:   int64(len(rows)),
			First:  rows[0].Timestamp,
			Last:   rows[len(rows)-1].Timestamp,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func stamp(sym domain.Symbol, records []domain.QuoteRecord) []domain.QuoteRecord {
	out := make([]domain.QuoteRecord, len(records))
	for i, r := range records {
		r.Symbol = sym
		r.Timestamp = r.Timestamp.UTC()
		out[i] = r
	}
	return out
}
