package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptoquotes-service/internal/application"
	"cryptoquotes-service/internal/domain"
	"cryptoquotes-service/internal/infrastructure/logx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var quoteColumns = []string{
	"symbol", "ts", "time_open", "time_close",
	"price_usd", "open_usd", "high_usd", "low_usd", "close_usd", "volume_usd", "market_cap_usd",
	"quote_raw",
}

// QuoteStore keeps every symbol in one quotes table keyed by (symbol, ts).
type QuoteStore struct{ db *DB }

var _ application.QuoteStore = (*QuoteStore)(nil)

func NewQuoteStore(db *DB) *QuoteStore { return &QuoteStore{db: db} }

func opLog(op, sql string, sym domain.Symbol) *zap.Logger {
	return logx.L().With(
		zap.String("repo", "quotes"),
		zap.String("operation", op),
		zap.String("sql", sql),
		zap.String("symbol", string(sym)),
	)
}

func (s *QuoteStore) HasSymbol(ctx context.Context, sym domain.Symbol) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM quotes WHERE symbol=$1)`
	log := opLog("HasSymbol", q, sym)
	var ok bool
	if err := s.db.conn(ctx).QueryRow(ctx, q, string(sym)).Scan(&ok); err != nil {
		log.Error("sql.query_failed", zap.Error(err))
		return false, fmt.Errorf("pg: has symbol: %w", err)
	}
	return ok, nil
}

func (s *QuoteStore) LatestTimestamp(ctx context.Context, sym domain.Symbol) (time.Time, bool, error) {
	const q = `SELECT ts FROM quotes WHERE symbol=$1 ORDER BY ts DESC LIMIT 1`
	log := opLog("LatestTimestamp", q, sym)
	log.Debug("sql.query_start")
	var ts time.Time
	err := s.db.conn(ctx).QueryRow(ctx, q, string(sym)).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Info("sql.query_no_rows")
		return time.Time{}, false, nil
	}
	if err != nil {
		log.Error("sql.query_failed", zap.Error(err))
		return time.Time{}, false, fmt.Errorf("pg: latest timestamp: %w", err)
	}
	log.Debug("sql.query_success", zap.Time("latest", ts))
	return ts.UTC(), true, nil
}

// Write upserts records by (symbol, ts) in a single batch.
func (s *QuoteStore) Write(ctx context.Context, sym domain.Symbol, records []domain.QuoteRecord) (int64, error) {
	const up = `
        INSERT INTO quotes(symbol, ts, time_open, time_close, price_usd, open_usd, high_usd,
                           low_usd, close_usd, volume_usd, market_cap_usd, quote_raw)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (symbol, ts) DO UPDATE SET
            time_open=EXCLUDED.time_open, time_close=EXCLUDED.time_close,
            price_usd=EXCLUDED.price_usd, open_usd=EXCLUDED.open_usd,
            high_usd=EXCLUDED.high_usd, low_usd=EXCLUDED.low_usd,
            close_usd=EXCLUDED.close_usd, volume_usd=EXCLUDED.volume_usd,
            market_cap_usd=EXCLUDED.market_cap_usd, quote_raw=EXCLUDED.quote_raw,
            inserted_at=NOW()`
	records = domain.Dedupe(records)
	if len(records) == 0 {
		return 0, nil
	}
	log := opLog("Write", up, sym).With(zap.Int("records", len(records)))
	log.Info("sql.exec_start")

	b := &pgx.Batch{}
	for _, r := range records {
		b.Queue(up, row(sym, r)...)
	}
	br := s.db.conn(ctx).SendBatch(ctx, b)
	var affected int64
	for range records {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			log.Error("sql.exec_failed", zap.Error(err))
			return affected, fmt.Errorf("pg: upsert quotes: %w", err)
		}
		affected += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return affected, fmt.Errorf("pg: upsert quotes: %w", err)
	}
	log.Info("sql.exec_success", zap.Int64("rows_affected", affected))
	return affected, nil
}

// Replace drops every stored row of the symbol and bulk-loads records. It runs
// in the caller's transaction when there is one, otherwise in its own.
func (s *QuoteStore) Replace(ctx context.Context, sym domain.Symbol, records []domain.QuoteRecord) (int64, error) {
	const del = `DELETE FROM quotes WHERE symbol=$1`
	records = domain.Dedupe(records)
	log := opLog("Replace", del, sym).With(zap.Int("records", len(records)))
	log.Info("sql.exec_start")

	var copied int64
	uow := &UnitOfWork{Pool: s.db.Pool}
	err := uow.Do(ctx, func(ctx context.Context) error {
		q := s.db.conn(ctx)
		tag, err := q.Exec(ctx, del, string(sym))
		if err != nil {
			return fmt.Errorf("pg: delete quotes: %w", err)
		}
		log.Info("sql.rows_deleted", zap.Int64("rows_affected", tag.RowsAffected()))
		rows := make([][]any, len(records))
		for i, r := range records {
			rows[i] = row(sym, r)
		}
		copied, err = q.CopyFrom(ctx, pgx.Identifier{"quotes"}, quoteColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("pg: copy quotes: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return 0, err
	}
	log.Info("sql.exec_success", zap.Int64("rows_copied", copied))
	return copied, nil
}

func (s *QuoteStore) List(ctx context.Context, sym domain.Symbol, from, to time.Time) ([]domain.QuoteRecord, error) {
	const q = `
        SELECT ts, time_open, time_close, price_usd, open_usd, high_usd, low_usd,
               close_usd, volume_usd, market_cap_usd, quote_raw
        FROM quotes
        WHERE symbol=$1
          AND ($2::timestamptz IS NULL OR ts >= $2)
          AND ($3::timestamptz IS NULL OR ts <= $3)
        ORDER BY ts`
	log := opLog("List", q, sym)
	log.Debug("sql.query_start")
	rows, err := s.db.conn(ctx).Query(ctx, q, string(sym), tsArg(from), tsArg(to))
	if err != nil {
		log.Error("sql.query_failed", zap.Error(err))
		return nil, fmt.Errorf("pg: list quotes: %w", err)
	}
	defer rows.Close()

	var out []domain.QuoteRecord
	for rows.Next() {
		r := domain.QuoteRecord{Symbol: sym}
		var open, closeT pgtype.Timestamptz
		var price, o, h, l, c, vol, marketCap pgtype.Numeric
		if err := rows.Scan(&r.Timestamp, &open, &closeT, &price, &o, &h, &l, &c, &vol, &marketCap, &r.Raw); err != nil {
			log.Error("sql.scan_failed", zap.Error(err))
			return nil, fmt.Errorf("pg: scan quote: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		if open.Valid {
			r.TimeOpen = open.Time.UTC()
		}
		if closeT.Valid {
			r.TimeClose = closeT.Time.UTC()
		}
		if price.Valid {
			r.USD.Price = decimal.NewNullDecimal(fromNumeric(price))
		}
		r.USD.Open, r.USD.High, r.USD.Low = fromNumeric(o), fromNumeric(h), fromNumeric(l)
		r.USD.Close, r.USD.Volume, r.USD.MarketCap = fromNumeric(c), fromNumeric(vol), fromNumeric(marketCap)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		log.Error("sql.query_failed", zap.Error(err))
		return nil, fmt.Errorf("pg: list quotes: %w", err)
	}
	log.Debug("sql.query_success", zap.Int("rows", len(out)))
	return out, nil
}

func (s *QuoteStore) Symbols(ctx context.Context) ([]domain.SymbolSummary, error) {
	const q = `SELECT symbol, COUNT(*), MIN(ts), MAX(ts) FROM quotes GROUP BY symbol ORDER BY symbol`
	log := opLog("Symbols", q, "")
	rows, err := s.db.conn(ctx).Query(ctx, q)
	if err != nil {
		log.Error("sql.query_failed", zap.Error(err))
		return nil, fmt.Errorf("pg: list symbols: %w", err)
	}
	defer rows.Close()
	var out []domain.SymbolSummary
	for rows.Next() {
		var sum domain.SymbolSummary
		var sym string
		if err := rows.Scan(&sym, &sum.Rows, &sum.First, &sum.Last); err != nil {
			return nil, fmt.Errorf("pg: scan symbol: %w", err)
		}
		sum.Symbol = domain.Symbol(sym)
		sum.First, sum.Last = sum.First.UTC(), sum.Last.UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func row(sym domain.Symbol, r domain.QuoteRecord) []any {
	price := pgtype.Numeric{}
	if r.USD.Price.Valid {
		price = toNumeric(r.USD.Price.Decimal)
	}
	return []any{
		string(sym), r.Timestamp.UTC(), tsArg(r.TimeOpen), tsArg(r.TimeClose),
		price, toNumeric(r.USD.Open), toNumeric(r.USD.High), toNumeric(r.USD.Low),
		toNumeric(r.USD.Close), toNumeric(r.USD.Volume), toNumeric(r.USD.MarketCap),
		r.Raw,
	}
}

func tsArg(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
