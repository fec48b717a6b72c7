package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"cryptoquotes-service/internal/application"
	"cryptoquotes-service/internal/domain"
	"cryptoquotes-service/internal/infrastructure/httpx"

	"go.uber.org/zap"
)

const (
	cmcOHLCVPath = "/v1/cryptocurrency/ohlcv/historical"
	cmcKeyHeader = "X-CMC_PRO_API_KEY"
)

// CoinMarketCap fetches daily historical quotes. Every call is preceded by
// the Pacer wait; transport retries are left to Client.
type CoinMarketCap struct {
	BaseURL string
	APIKey  string
	Client  *httpx.Client
	Pacer   Pacer
	Log     *zap.Logger
}

var _ application.QuoteFetcher = (*CoinMarketCap)(nil)

func NewCoinMarketCap(baseURL, apiKey string, hc *http.Client, pacer Pacer, log *zap.Logger) *CoinMarketCap {
	if log == nil {
		log = zap.NewNop()
	}
	return &CoinMarketCap{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &httpx.Client{HTTP: hc, Log: log},
		Pacer:   pacer,
		Log:     log,
	}
}

func (p *CoinMarketCap) Fetch(ctx context.Context, sym domain.Symbol, w domain.FetchWindow) ([]domain.QuoteRecord, error) {
	if p.BaseURL == "" || p.APIKey == "" {
		return nil, errors.New("cmc: missing configuration")
	}
	if !w.Valid() {
		return nil, fmt.Errorf("cmc: invalid window %s", w)
	}
	log := p.logger().With(zap.String("symbol", string(sym)))

	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("cmc: invalid base url: %w", err)
	}
	u.Path = path.Join(u.Path, cmcOHLCVPath)
	q := u.Query()
	q.Set("symbol", string(sym))
	q.Set("time_start", strconv.FormatInt(w.Start.Unix(), 10))
	q.Set("time_end", strconv.FormatInt(w.End.Unix(), 10))
	q.Set("interval", "daily")
	u.RawQuery = q.Encode()

	if err := p.Pacer.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("cmc: create request: %w", err)
	}
	req.Header.Set("Accepts", "application/json")
	req.Header.Set(cmcKeyHeader, p.APIKey)
	client := p.Client
	if client == nil {
		client = &httpx.Client{Log: log}
	}

	var env cmcEnvelope
	if err := client.DoJSON(ctx, req, &env); err != nil {
		return nil, fmt.Errorf("cmc: fetch %s: %w", sym, err)
	}
	raw, err := quotesOf(env)
	if err != nil {
		log.Warn("provider.missing_envelope", zap.Error(err))
		return nil, fmt.Errorf("cmc: %s: %w", sym, err)
	}

	records := make([]domain.QuoteRecord, 0, len(raw))
	for _, r := range raw {
		rec, err := normalize(sym, r)
		if err != nil {
			log.Warn("provider.quote_dropped", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	log.Info("provider.fetched", zap.Int("quotes", len(raw)), zap.Int("records", len(records)))
	return records, nil
}

func (p *CoinMarketCap) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}
