package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cryptoquotes-service/internal/application"
	"cryptoquotes-service/internal/domain"
	infraconfig "cryptoquotes-service/internal/infrastructure/config"
	"cryptoquotes-service/internal/infrastructure/logx"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Server struct {
	store     application.QuoteStore
	ingest    *application.IngestionService
	analytics *application.AnalyticsService
	symbols   []domain.Symbol
	rolling   int
	ping      func(ctx context.Context) error
}

// NewServer wires the handlers. symbols and rolling are the defaults used when
// a request does not name its own.
func NewServer(store application.QuoteStore, ingest *application.IngestionService, analytics *application.AnalyticsService, symbols []domain.Symbol, rolling int) *Server {
	if rolling <= 0 {
		rolling = application.DefaultRollingWindow
	}
	return &Server{store: store, ingest: ingest, analytics: analytics, symbols: symbols, rolling: rolling}
}

// SetReadyCheck installs the dependency probe behind /readyz.
func (s *Server) SetReadyCheck(fn func(ctx context.Context) error) { s.ping = fn }

type symbolSummaryJSON struct {
	Symbol string    `json:"symbol"`
	Rows   int64     `json:"rows"`
	First  time.Time `json:"first"`
	Last   time.Time `json:"last"`
}

func (s *Server) ListSymbols(w http.ResponseWriter, r *http.Request) {
	sums, err := s.store.Symbols(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]symbolSummaryJSON, len(sums))
	for i, sum := range sums {
		out[i] = symbolSummaryJSON{Symbol: string(sum.Symbol), Rows: sum.Rows, First: sum.First, Last: sum.Last}
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbols": out})
}

type quoteJSON struct {
	Timestamp time.Time       `json:"timestamp"`
	TimeOpen  *time.Time      `json:"time_open,omitempty"`
	TimeClose *time.Time      `json:"time_close,omitempty"`
	Price     any             `json:"price_usd"`
	Open      string          `json:"open_usd"`
	High      string          `json:"high_usd"`
	Low       string          `json:"low_usd"`
	Close     string          `json:"close_usd"`
	Volume    string          `json:"volume_usd"`
	MarketCap string          `json:"market_cap_usd"`
	Quote     json.RawMessage `json:"quote,omitempty"`
}

func (s *Server) GetQuotes(w http.ResponseWriter, r *http.Request) {
	sym, err := pathSymbol(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok, err := s.store.HasSymbol(r.Context(), sym)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, application.ErrNotFound)
		return
	}
	recs, err := s.store.List(r.Context(), sym, from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]quoteJSON, len(recs))
	for i, rec := range recs {
		out[i] = toQuoteJSON(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": sym, "quotes": out})
}

func toQuoteJSON(r domain.QuoteRecord) quoteJSON {
	q := quoteJSON{
		Timestamp: r.Timestamp,
		Open:      r.USD.Open.String(),
		High:      r.USD.High.String(),
		Low:       r.USD.Low.String(),
		Close:     r.USD.Close.String(),
		Volume:    r.USD.Volume.String(),
		MarketCap: r.USD.MarketCap.String(),
	}
	if r.USD.Price.Valid {
		q.Price = r.USD.Price.Decimal.String()
	}
	if !r.TimeOpen.IsZero() {
		t := r.TimeOpen
		q.TimeOpen = &t
	}
	if !r.TimeClose.IsZero() {
		t := r.TimeClose
		q.TimeClose = &t
	}
	if r.Raw != "" && json.Valid([]byte(r.Raw)) {
		q.Quote = json.RawMessage(r.Raw)
	}
	return q
}

type ingestionRequest struct {
	Symbols []string `json:"symbols"`
}

type outcomeJSON struct {
	Symbol  string     `json:"symbol"`
	Status  string     `json:"status"`
	Start   *time.Time `json:"window_start,omitempty"`
	End     *time.Time `json:"window_end,omitempty"`
	Written int64      `json:"written"`
	Reason  string     `json:"reason,omitempty"`
}

// TriggerIngestion runs one ingestion synchronously. The body may name the
// symbols; otherwise the configured set is used.
func (s *Server) TriggerIngestion(w http.ResponseWriter, r *http.Request) {
	var body ingestionRequest
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		s.fail(w, r, badRequest("unreadable body"))
		return
	}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			s.fail(w, r, badRequest("invalid JSON body"))
			return
		}
	}
	symbols := s.symbols
	if len(body.Symbols) > 0 {
		if symbols, err = domain.ParseSymbols(strings.Join(body.Symbols, ",")); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	var idem *string
	if k := r.Header.Get("X-Idempotency-Key"); k != "" {
		idem = &k
	}

	report, err := s.ingest.Trigger(r.Context(), symbols, idem)
	if err != nil && report.ID == "" {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	resp := map[string]any{
		"run_id":      report.ID,
		"started_at":  report.StartedAt,
		"finished_at": report.FinishedAt,
		"outcomes":    outcomesJSON(report.Outcomes),
	}
	if err != nil {
		logx.WithFields(r.Context()).Error("http.ingestion_aborted", zap.Error(err))
		status = http.StatusInternalServerError
		resp["error"] = "ingestion aborted"
	}
	writeJSON(w, status, resp)
}

func outcomesJSON(outs []domain.SymbolOutcome) []outcomeJSON {
	res := make([]outcomeJSON, len(outs))
	for i, o := range outs {
		res[i] = outcomeJSON{Symbol: string(o.Symbol), Status: string(o.Status), Written: o.Written, Reason: o.Reason}
		if !o.Window.Start.IsZero() {
			start, end := o.Window.Start, o.Window.End
			res[i].Start, res[i].End = &start, &end
		}
	}
	return res
}

func (s *Server) DailyReturns(w http.ResponseWriter, r *http.Request) {
	syms, err := s.querySymbols(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f, err := s.analytics.DailyReturns(r.Context(), syms, from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, frameJSON(f))
}

func (s *Server) RollingReturns(w http.ResponseWriter, r *http.Request) {
	syms, err := s.querySymbols(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	window := s.rolling
	if v := r.URL.Query().Get("window"); v != "" {
		if window, err = strconv.Atoi(v); err != nil {
			s.fail(w, r, badRequest("window must be an integer"))
			return
		}
	}
	f, err := s.analytics.RollingReturns(r.Context(), syms, window)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := frameJSON(f)
	out["window"] = window
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) Heatmap(w http.ResponseWriter, r *http.Request) {
	syms, err := s.querySymbols(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	h, err := s.analytics.Heatmap(r.Context(), syms)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbols": h.Symbols,
		"dates":   dates(h.Dates),
		"values":  nullable(h.Values),
		"skipped": skippedJSON(h.Skipped),
	})
}

func (s *Server) Correlation(w http.ResponseWriter, r *http.Request) {
	syms, err := s.querySymbols(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.analytics.Correlation(r.Context(), syms)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbols":      c.Symbols,
		"observations": c.Observations,
		"values":       nullable(c.Values),
		"skipped":      skippedJSON(c.Skipped),
	})
}

func frameJSON(f application.Frame) map[string]any {
	return map[string]any{
		"symbols": f.Symbols,
		"dates":   dates(f.Dates),
		"values":  nullable(f.Values),
		"skipped": skippedJSON(f.Skipped),
	}
}

// nullable maps NaN and ±Inf to JSON null; encoding/json rejects them.
func nullable(m [][]float64) [][]*float64 {
	out := make([][]*float64, len(m))
	for i, row := range m {
		out[i] = make([]*float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			out[i][j] = &v
		}
	}
	return out
}

func dates(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.UTC().Format(infraconfig.DateLayout)
	}
	return out
}

func skippedJSON(sk []application.SkippedSymbol) []map[string]string {
	out := make([]map[string]string, len(sk))
	for i, s := range sk {
		out[i] = map[string]string{"symbol": string(s.Symbol), "reason": s.Reason}
	}
	return out
}

func (s *Server) querySymbols(r *http.Request) ([]domain.Symbol, error) {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		return s.symbols, nil
	}
	syms, err := domain.ParseSymbols(raw)
	if err != nil {
		return nil, err
	}
	if len(syms) == 0 {
		return s.symbols, nil
	}
	return syms, nil
}

func pathSymbol(r *http.Request) (domain.Symbol, error) {
	raw := strings.ToUpper(chi.URLParam(r, "symbol"))
	if !domain.ValidateSymbol(raw) {
		return "", &domain.InvalidSymbolError{Symbol: raw}
	}
	return domain.Symbol(raw), nil
}

func dateRange(r *http.Request) (time.Time, time.Time, error) {
	parse := func(key string) (time.Time, error) {
		v := r.URL.Query().Get(key)
		if v == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(infraconfig.DateLayout, v)
		if err != nil {
			return time.Time{}, badRequest(key + " must be YYYY-MM-DD")
		}
		return t.UTC(), nil
	}
	from, err := parse("from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parse("to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, badRequest("to is before from")
	}
	return from, to, nil
}

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return application.ErrBadRequest }

// fail maps an error onto a status code and JSON error envelope.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var re *requestError
	switch {
	case errors.As(err, &re):
		writeError(w, http.StatusBadRequest, re.msg)
	case errors.Is(err, domain.ErrInvalidSymbol), errors.Is(err, application.ErrBadRequest), errors.Is(err, application.ErrNoSymbols):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, application.ErrNotFound):
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	case errors.Is(err, application.ErrConflict):
		writeError(w, http.StatusConflict, "idempotency key already used")
	default:
		logx.WithFields(r.Context()).Error("http.internal_error", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
