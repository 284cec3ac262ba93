package config

import (
	"flag"
	"fmt"

	"github.com/joho/godotenv"
)

// Load resolves configuration with precedence: defaults → .env file →
// environment variables → command line flags → runtime validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := GetDefaults()

	loadAppFromEnv(&cfg.App)
	loadRedisFromEnv(&cfg.Redis)
	loadStoreFromEnv(&cfg.Store)
	loadStreamsFromEnv(&cfg.Streams)
	loadBreakerFromEnv(&cfg.Breaker)
	loadPresenceFromEnv(&cfg.Presence)
	loadSocketFromEnv(&cfg.Socket)
	loadFileFromEnv(&cfg.File)
	loadHTTPFromEnv(&cfg.HTTP)
	loadMetricsFromEnv(&cfg.Metrics)
	loadSentryFromEnv(&cfg.Sentry)
	loadAuthFromEnv(&cfg.Auth)

	applyResolved := applyFlags(cfg)
	if !flag.Parsed() {
		flag.Parse()
	}
	applyResolved()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
