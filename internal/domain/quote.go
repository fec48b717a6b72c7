package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteRecord is one daily observation for a symbol, unique per (Symbol, Timestamp).
type QuoteRecord struct {
	Symbol    Symbol
	Timestamp time.Time
	TimeOpen  time.Time
	TimeClose time.Time
	USD       USDQuote
	// Raw is the canonical JSON of the nested quote object as returned upstream.
	Raw string
}

type USDQuote struct {
	// Price is the USD price field when present, otherwise the close.
	Price     decimal.NullDecimal
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	MarketCap decimal.Decimal
}

// LatestTimestamp returns the maximum timestamp among records and false when
// records is empty.
func LatestTimestamp(records []QuoteRecord) (time.Time, bool) {
	var latest time.Time
	for i, r := range records {
		if i == 0 || r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}
	return latest, len(records) > 0
}

// Dedupe keeps the last record per timestamp and returns them in ascending
// timestamp order.
func Dedupe(records []QuoteRecord) []QuoteRecord {
	idx := make(map[int64]int, len(records))
	out := make([]QuoteRecord, 0, len(records))
	for _, r := range records {
		k := r.Timestamp.UnixNano()
		if i, ok := idx[k]; ok {
			out[i] = r
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
