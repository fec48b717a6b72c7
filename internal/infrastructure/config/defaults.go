package config

import "time"

const (
	DefaultHTTPPort        = "8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultFetchDelay      = 15 * time.Second
	DefaultIngestEvery     = 24 * time.Hour
	DefaultIdempotencyTTL  = 24 * time.Hour
	DefaultRollingWindow   = 7
	DefaultCMCAPIBase      = "https://pro-api.coinmarketcap.com"
	DefaultPGMaxConns      = 5
	DefaultPGMinConns      = 1
	DateLayout             = "2006-01-02"
)
