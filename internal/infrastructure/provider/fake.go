package provider

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"time"

	"cryptoquotes-service/internal/application"
	"cryptoquotes-service/internal/domain"

	"github.com/shopspring/decimal"
)

// Ensure Fake implements application.QuoteFetcher.
var _ application.QuoteFetcher = (*Fake)(nil)

// Fake produces one deterministic record per UTC day in the window.
type Fake struct {
	base decimal.Decimal
}

func NewFake(base float64) *Fake { return &Fake{base: decimal.NewFromFloat(base)} }

func (f *Fake) Fetch(ctx context.Context, sym domain.Symbol, w domain.FetchWindow) ([]domain.QuoteRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(sym))
	seed := int64(h.Sum32() % 97)

	var out []domain.QuoteRecord
	day := w.Start.UTC().Truncate(24 * time.Hour)
	if day.Before(w.Start.UTC()) {
		day = day.AddDate(0, 0, 1)
	}
	for ; day.Before(w.End); day = day.AddDate(0, 0, 1) {
		// price oscillates in a 0..9% band over the symbol's seed offset
		step := (seed + day.Unix()/86400) % 10
		price := f.base.Mul(decimal.NewFromInt(100 + seed + step)).Div(decimal.NewFromInt(100))
		usd := domain.USDQuote{
			Price:  decimal.NewNullDecimal(price),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: decimal.NewFromInt(1000 * (seed + 1)),
		}
		raw, _ := json.Marshal(map[string]any{"USD": map[string]string{"close": price.String()}})
		out = append(out, domain.QuoteRecord{
			Symbol:    sym,
			Timestamp: day,
			TimeOpen:  day,
			TimeClose: day.Add(24*time.Hour - time.Millisecond),
			USD:       usd,
			Raw:       string(raw),
		})
	}
	return out, nil
}
