package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"cryptoquotes-service/internal/application"
	"cryptoquotes-service/internal/domain"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// quoteRow is the on-disk layout. Decimals are kept as strings so values
// survive the round trip exactly; times are unix milliseconds.
type quoteRow struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp"`
	TimeOpen  int64   `parquet:"time_open,optional"`
	TimeClose int64   `parquet:"time_close,optional"`
	PriceUSD  *string `parquet:"price_usd,optional"`
	Open      string  `parquet:"open_usd"`
	High      string  `parquet:"high_usd"`
	Low       string  `parquet:"low_usd"`
	Close     string  `parquet:"close_usd"`
	Volume    string  `parquet:"volume_usd"`
	MarketCap string  `parquet:"market_cap_usd"`
	Quote     string  `parquet:"quote"`
}

// Sink writes one <SYMBOL>_historical_data.parquet file per symbol under Dir.
type Sink struct {
	Dir string
	Log *zap.Logger
}

var _ application.SnapshotSink = (*Sink)(nil)

func NewSink(dir string, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{Dir: dir, Log: log}
}

func (s *Sink) Path(sym domain.Symbol) string {
	return filepath.Join(s.Dir, string(sym)+"_historical_data.parquet")
}

// Snapshot replaces the symbol's file with records. The file is written next
// to the target and renamed so readers never see a partial file.
func (s *Sink) Snapshot(ctx context.Context, sym domain.Symbol, records []domain.QuoteRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("parquet: mkdir: %w", err)
	}
	rows := make([]quoteRow, len(records))
	for i, r := range records {
		rows[i] = toRow(sym, r)
	}
	path := s.Path(sym)
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("parquet: write %s: %w", sym, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("parquet: rename %s: %w", sym, err)
	}
	s.Log.Info("parquet.snapshot_written", zap.String("path", path), zap.Int("rows", len(rows)))
	return nil
}

// Load reads a snapshot back; a missing file is application.ErrNotFound.
func (s *Sink) Load(sym domain.Symbol) ([]domain.QuoteRecord, error) {
	rows, err := parquet.ReadFile[quoteRow](s.Path(sym))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, application.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("parquet: read %s: %w", sym, err)
	}
	out := make([]domain.QuoteRecord, len(rows))
	for i, r := range rows {
		if out[i], err = fromRow(r); err != nil {
			return nil, fmt.Errorf("parquet: row %d of %s: %w", i, sym, err)
		}
	}
	return out, nil
}

func toRow(sym domain.Symbol, r domain.QuoteRecord) quoteRow {
	row := quoteRow{
		Symbol:    string(sym),
		Timestamp: r.Timestamp.UnixMilli(),
		Open:      r.USD.Open.String(),
		High:      r.USD.High.String(),
		Low:       r.USD.Low.String(),
		Close:     r.USD.Close.String(),
		Volume:    r.USD.Volume.String(),
		MarketCap: r.USD.MarketCap.String(),
		Quote:     r.Raw,
	}
	if !r.TimeOpen.IsZero() {
		row.TimeOpen = r.TimeOpen.UnixMilli()
	}
	if !r.TimeClose.IsZero() {
		row.TimeClose = r.TimeClose.UnixMilli()
	}
	if r.USD.Price.Valid {
		p := r.USD.Price.Decimal.String()
		row.PriceUSD = &p
	}
	return row
}

func fromRow(row quoteRow) (domain.QuoteRecord, error) {
	r := domain.QuoteRecord{
		Symbol:    domain.Symbol(row.Symbol),
		Timestamp: time.UnixMilli(row.Timestamp).UTC(),
		Raw:       row.Quote,
	}
	if row.TimeOpen != 0 {
		r.TimeOpen = time.UnixMilli(row.TimeOpen).UTC()
	}
	if row.TimeClose != 0 {
		r.TimeClose = time.UnixMilli(row.TimeClose).UTC()
	}
	if row.PriceUSD != nil {
		p, err := decimal.NewFromString(*row.PriceUSD)
		if err != nil {
			return domain.QuoteRecord{}, err
		}
		r.USD.Price = decimal.NewNullDecimal(p)
	}
	fields := []struct {
		src string
		dst *decimal.Decimal
	}{
		{row.Open, &r.USD.Open}, {row.High, &r.USD.High}, {row.Low, &r.USD.Low},
		{row.Close, &r.USD.Close}, {row.Volume, &r.USD.Volume}, {row.MarketCap, &r.USD.MarketCap},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return domain.QuoteRecord{}, err
		}
		*f.dst = d
	}
	return r, nil
}
