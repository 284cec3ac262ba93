package config

import (
	"flag"
	"strings"
	"time"
)

// stringSliceFlag implements flag.Value for comma-separated string lists.
type stringSliceFlag struct {
	set    bool
	values []string
}

func (f *stringSliceFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(f.values, ",")
}

func (f *stringSliceFlag) Set(v string) error {
	f.values = strings.Split(v, ",")
	f.set = true
	return nil
}

func registerRedisFlags(cfg *RedisConfig) func() {
	addresses := &stringSliceFlag{}
	flag.Var(addresses, "redis-addresses", "comma-separated redis addresses")
	db := flag.Int("redis-db", cfg.DB, "redis logical database index")
	poolSize := flag.Int("redis-pool-size", cfg.PoolSize, "redis connection pool size")
	return func() {
		if addresses.set {
			cfg.Addresses = addresses.values
		}
		cfg.DB = *db
		cfg.PoolSize = *poolSize
	}
}

func registerStoreFlags(cfg *StoreConfig) func() {
	dsn := flag.String("store-dsn", cfg.DSN, "document store data source name")
	return func() {
		cfg.DSN = *dsn
	}
}

func registerStreamsFlags(cfg *StreamsConfig) func() {
	maxRetry := flag.Int("max-retry-attempts", cfg.MaxRetryAttempts, "maximum retry attempts before dead-lettering")
	claimIdleMs := flag.Int64("claim-idle-ms", cfg.ClaimIdle.Milliseconds(), "idle threshold in ms before a pending record is reclaimed")
	return func() {
		cfg.MaxRetryAttempts = *maxRetry
		cfg.ClaimIdle = time.Duration(*claimIdleMs) * time.Millisecond
	}
}

func registerBreakerFlags(cfg *BreakerConfig) func() {
	threshold := flag.Int("circuit-failure-threshold", cfg.FailureThreshold, "consecutive failures before the breaker opens")
	resetMs := flag.Int64("circuit-reset-ms", cfg.ResetTimeout.Milliseconds(), "ms before an open breaker probes again")
	return func() {
		cfg.FailureThreshold = *threshold
		cfg.ResetTimeout = time.Duration(*resetMs) * time.Millisecond
	}
}

func registerHTTPFlags(cfg *HTTPConfig) func() {
	port := flag.Int("http-port", cfg.Port, "HTTP listen port")
	return func() {
		cfg.Port = *port
	}
}

func registerAppFlags(cfg *AppConfig) func() {
	logLevel := flag.String("log-level", cfg.LogLevel, "log level: trace|debug|info|warn|error|fatal|panic")
	logFormat := flag.String("log-format", cfg.LogFormat, "log format: text|json")
	return func() {
		cfg.LogLevel = *logLevel
		cfg.LogFormat = *logFormat
	}
}

// applyFlags registers every supported flag and, once flag.Parse has run,
// copies the resolved values into cfg. It must be called before flag.Parse.
func applyFlags(cfg *Config) func() {
	apply := []func(){
		registerAppFlags(&cfg.App),
		registerRedisFlags(&cfg.Redis),
		registerStoreFlags(&cfg.Store),
		registerStreamsFlags(&cfg.Streams),
		registerBreakerFlags(&cfg.Breaker),
		registerHTTPFlags(&cfg.HTTP),
	}
	return func() {
		for _, fn := range apply {
			fn()
		}
	}
}
