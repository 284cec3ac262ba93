package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func getEnvString(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvStringSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDurationMs(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func loadAppFromEnv(cfg *AppConfig) {
	cfg.Name = getEnvString("APP_NAME", cfg.Name)
	cfg.Environment = getEnvString("APP_ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvString("LOG_FORMAT", cfg.LogFormat)
	cfg.ShutdownTimeout = getEnvDurationMs("SHUTDOWN_TIMEOUT_MS", cfg.ShutdownTimeout)
}

func loadRedisFromEnv(cfg *RedisConfig) {
	cfg.Addresses = getEnvStringSlice("REDIS_ADDRESSES", cfg.Addresses)
	cfg.Username = getEnvString("REDIS_USERNAME", cfg.Username)
	cfg.Password = getEnvString("REDIS_PASSWORD", cfg.Password)
	cfg.DB = getEnvInt("REDIS_DB", cfg.DB)
	cfg.PoolSize = getEnvInt("REDIS_POOL_SIZE", cfg.PoolSize)
	cfg.ConsumerName = getEnvString("REDIS_CONSUMER_NAME", cfg.ConsumerName)
}

func loadStoreFromEnv(cfg *StoreConfig) {
	cfg.DSN = getEnvString("STORE_DSN", cfg.DSN)
}

func loadStreamsFromEnv(cfg *StreamsConfig) {
	cfg.MaxLenWAL = getEnvInt64("STREAM_MAXLEN_WAL", cfg.MaxLenWAL)
	cfg.MaxLenRetry = getEnvInt64("STREAM_MAXLEN_RETRY", cfg.MaxLenRetry)
	cfg.MaxLenDLQ = getEnvInt64("STREAM_MAXLEN_DLQ", cfg.MaxLenDLQ)
	cfg.MaxLenEvents = getEnvInt64("STREAM_MAXLEN_EVENTS", cfg.MaxLenEvents)
	cfg.WALTimeout = getEnvDurationMs("WAL_TIMEOUT_MS", cfg.WALTimeout)
	cfg.ClaimIdle = getEnvDurationMs("CLAIM_IDLE_MS", cfg.ClaimIdle)
	cfg.MaxRetryAttempts = getEnvInt("MAX_RETRY_ATTEMPTS", cfg.MaxRetryAttempts)
}

func loadBreakerFromEnv(cfg *BreakerConfig) {
	cfg.FailureThreshold = getEnvInt("CIRCUIT_FAILURE_THRESHOLD", cfg.FailureThreshold)
	cfg.ResetTimeout = getEnvDurationMs("CIRCUIT_RESET_MS", cfg.ResetTimeout)
	cfg.HalfOpenMaxCalls = getEnvInt("CIRCUIT_HALF_OPEN_MAX_CALLS", cfg.HalfOpenMaxCalls)
}

func loadPresenceFromEnv(cfg *PresenceConfig) {
	cfg.TTL = getEnvDurationMs("PRESENCE_TTL_MS", cfg.TTL)
}

func loadSocketFromEnv(cfg *SocketConfig) {
	cfg.PingInterval = getEnvDurationMs("SOCKET_PING_INTERVAL_MS", cfg.PingInterval)
	cfg.PingTimeout = getEnvDurationMs("SOCKET_PING_TIMEOUT_MS", cfg.PingTimeout)
}

func loadFileFromEnv(cfg *FileConfig) {
	cfg.MaxSizeBytes = getEnvInt64("MAX_FILE_SIZE_BYTES", cfg.MaxSizeBytes)
}

func loadHTTPFromEnv(cfg *HTTPConfig) {
	cfg.Port = getEnvInt("HTTP_PORT", cfg.Port)
}

func loadMetricsFromEnv(cfg *MetricsConfig) {
	cfg.Enabled = getEnvBool("METRICS_ENABLED", cfg.Enabled)
	cfg.Namespace = getEnvString("METRICS_NAMESPACE", cfg.Namespace)
}

func loadSentryFromEnv(cfg *SentryConfig) {
	cfg.DSN = getEnvString("SENTRY_DSN", cfg.DSN)
	cfg.Environment = getEnvString("SENTRY_ENVIRONMENT", cfg.Environment)
}

func loadAuthFromEnv(cfg *AuthConfig) {
	cfg.JWTSecret = getEnvString("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = getEnvString("JWT_ISSUER", cfg.JWTIssuer)
}
