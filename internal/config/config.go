package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cryptoquotes-service/internal/domain"
	defaults "cryptoquotes-service/internal/infrastructure/config"
)

type Config struct {
	// Common
	Env      string
	LogLevel string
	// API
	Port        string
	Storage     string
	DatabaseURL string
	// Provider
	Provider       string
	CMCAPIBase     string
	CMCAPIKey      string
	FetchDelay     time.Duration
	RequestTimeout time.Duration
	// Ingestion
	Symbols       []domain.Symbol
	StartDate     time.Time
	EndDate       time.Time
	WriteMode     string
	ParquetDir    string
	RollingWindow int
	IngestEvery   time.Duration
	// Redis (idempotency)
	IdempotencyBackend string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisTTL           time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func msDef(key string, def time.Duration) time.Duration {
	return time.Duration(atoiDef(os.Getenv(key), int(def/time.Millisecond))) * time.Millisecond
}

// LogLevel is read on its own so the logger can be built before Load runs.
func LogLevel() string { return getEnv("LOG_LEVEL", "info") }

// Load reads environment variables and applies defaults. Malformed dates,
// symbols or enum values are reported instead of silently defaulted.
func Load() (Config, error) {
	cfg := Config{
		Env:                getEnv("ENV", "local"),
		LogLevel:           LogLevel(),
		Port:               getEnv("PORT", defaults.DefaultHTTPPort),
		Storage:            getEnv("STORAGE", "pg"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		Provider:           getEnv("PROVIDER", "fake"),
		CMCAPIBase:         getEnv("CMC_API_BASE", defaults.DefaultCMCAPIBase),
		CMCAPIKey:          getEnv("CMC_API_KEY", ""),
		FetchDelay:         msDef("FETCH_DELAY_MS", defaults.DefaultFetchDelay),
		RequestTimeout:     msDef("REQUEST_TIMEOUT_MS", defaults.DefaultRequestTimeout),
		WriteMode:          getEnv("WRITE_MODE", "upsert"),
		ParquetDir:         getEnv("PARQUET_DIR", ""),
		RollingWindow:      atoiDef(os.Getenv("ROLLING_WINDOW"), defaults.DefaultRollingWindow),
		IngestEvery:        msDef("INGEST_EVERY_MS", defaults.DefaultIngestEvery),
		IdempotencyBackend: getEnv("IDEMPOTENCY_BACKEND", "none"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            atoiDef(os.Getenv("REDIS_DB"), 0),
		RedisTTL:           msDef("IDEMPOTENCY_TTL_MS", defaults.DefaultIdempotencyTTL),
	}

	var err error
	if cfg.Symbols, err = domain.ParseSymbols(os.Getenv("SYMBOLS")); err != nil {
		return Config{}, fmt.Errorf("config: SYMBOLS: %w", err)
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = append([]domain.Symbol(nil), domain.DefaultSymbols...)
	}
	if cfg.StartDate, err = parseDate("START_DATE"); err != nil {
		return Config{}, err
	}
	if cfg.EndDate, err = parseDate("END_DATE"); err != nil {
		return Config{}, err
	}
	if !cfg.StartDate.IsZero() && !cfg.EndDate.IsZero() && !cfg.StartDate.Before(cfg.EndDate) {
		return Config{}, fmt.Errorf("config: START_DATE %s must be before END_DATE %s",
			cfg.StartDate.Format(defaults.DateLayout), cfg.EndDate.Format(defaults.DateLayout))
	}

	for key, pair := range map[string][2]string{
		"STORAGE":             {cfg.Storage, "pg|memory"},
		"PROVIDER":            {cfg.Provider, "cmc|fake"},
		"WRITE_MODE":          {cfg.WriteMode, "upsert|replace"},
		"IDEMPOTENCY_BACKEND": {cfg.IdempotencyBackend, "redis|none"},
	} {
		if !oneOf(pair[0], pair[1]) {
			return Config{}, fmt.Errorf("config: %s=%q, want one of %s", key, pair[0], pair[1])
		}
	}
	if cfg.Provider == "cmc" && cfg.CMCAPIKey == "" {
		return Config{}, fmt.Errorf("config: CMC_API_KEY is required with PROVIDER=cmc")
	}
	if cfg.RollingWindow <= 0 {
		return Config{}, fmt.Errorf("config: ROLLING_WINDOW must be positive, got %d", cfg.RollingWindow)
	}
	return cfg, nil
}

func parseDate(key string) (time.Time, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(defaults.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: %s: %w", key, err)
	}
	return t.UTC(), nil
}

func oneOf(v, options string) bool {
	for _, o := range strings.Split(options, "|") {
		if v == o {
			return true
		}
	}
	return false
}
