package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"cryptoquotes-service/internal/domain"

	"github.com/shopspring/decimal"
)

type cmcStatus struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type cmcEnvelope struct {
	Status *cmcStatus `json:"status"`
	Data   *struct {
		Symbol string       `json:"symbol"`
		Quotes *[]cmcRecord `json:"quotes"`
	} `json:"data"`
}

type cmcRecord struct {
	Timestamp *time.Time      `json:"timestamp"`
	TimeOpen  *time.Time      `json:"time_open"`
	TimeClose *time.Time      `json:"time_close"`
	Quote     json.RawMessage `json:"quote"`
}

type cmcUSD struct {
	Price     decimal.NullDecimal `json:"price"`
	Open      decimal.NullDecimal `json:"open"`
	High      decimal.NullDecimal `json:"high"`
	Low       decimal.NullDecimal `json:"low"`
	Close     decimal.NullDecimal `json:"close"`
	Volume    decimal.NullDecimal `json:"volume"`
	MarketCap decimal.NullDecimal `json:"market_cap"`
}

// quotesOf returns data.quotes or an error wrapping domain.ErrNoData when
// either level of the envelope is missing.
func quotesOf(env cmcEnvelope) ([]cmcRecord, error) {
	if env.Data == nil || env.Data.Quotes == nil {
		msg := "response lacks data.quotes"
		if env.Status != nil && env.Status.ErrorMessage != "" {
			msg = fmt.Sprintf("%s (%d %s)", msg, env.Status.ErrorCode, env.Status.ErrorMessage)
		}
		return nil, fmt.Errorf("%s: %w", msg, domain.ErrNoData)
	}
	return *env.Data.Quotes, nil
}

// normalize maps one quote entry onto the typed record. Entries without any
// usable timestamp are rejected.
func normalize(sym domain.Symbol, r cmcRecord) (domain.QuoteRecord, error) {
	out := domain.QuoteRecord{Symbol: sym}
	switch {
	case r.Timestamp != nil:
		out.Timestamp = r.Timestamp.UTC()
	case r.TimeOpen != nil:
		out.Timestamp = r.TimeOpen.UTC()
	default:
		return domain.QuoteRecord{}, fmt.Errorf("quote for %s has neither timestamp nor time_open", sym)
	}
	if r.TimeOpen != nil {
		out.TimeOpen = r.TimeOpen.UTC()
	}
	if r.TimeClose != nil {
		out.TimeClose = r.TimeClose.UTC()
	}

	if len(r.Quote) == 0 || bytes.Equal(r.Quote, []byte("null")) {
		return out, nil
	}
	raw, err := canonicalJSON(r.Quote)
	if err != nil {
		return domain.QuoteRecord{}, fmt.Errorf("quote for %s: %w", sym, err)
	}
	out.Raw = raw

	var nested map[string]cmcUSD
	if err := json.Unmarshal(r.Quote, &nested); err != nil {
		return domain.QuoteRecord{}, fmt.Errorf("quote for %s: %w", sym, err)
	}
	usd, ok := nested["USD"]
	if !ok {
		return out, nil
	}
	out.USD = domain.USDQuote{
		Open:      usd.Open.Decimal,
		High:      usd.High.Decimal,
		Low:       usd.Low.Decimal,
		Close:     usd.Close.Decimal,
		Volume:    usd.Volume.Decimal,
		MarketCap: usd.MarketCap.Decimal,
	}
	switch {
	case usd.Price.Valid:
		out.USD.Price = usd.Price
	case usd.Close.Valid:
		out.USD.Price = usd.Close
	}
	return out, nil
}

// canonicalJSON re-encodes raw with sorted object keys and exact numbers.
func canonicalJSON(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
