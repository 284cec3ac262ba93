package config

import "fmt"

// Validate fails fast on contradictory configuration values, following the
// teacher's Validate(cfg) style.
func Validate(cfg *Config) error {
	if len(cfg.Redis.Addresses) == 0 {
		return fmt.Errorf("redis: at least one address is required")
	}
	if cfg.Streams.MaxRetryAttempts <= 0 {
		return fmt.Errorf("streams: MAX_RETRY_ATTEMPTS must be positive, got %d", cfg.Streams.MaxRetryAttempts)
	}
	if cfg.Streams.ClaimIdle <= 0 {
		return fmt.Errorf("streams: CLAIM_IDLE_MS must be positive")
	}
	if cfg.Streams.MaxLenWAL <= 0 || cfg.Streams.MaxLenRetry <= 0 || cfg.Streams.MaxLenDLQ <= 0 || cfg.Streams.MaxLenEvents <= 0 {
		return fmt.Errorf("streams: every STREAM_MAXLEN_* value must be positive")
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker: CIRCUIT_FAILURE_THRESHOLD must be positive, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.ResetTimeout <= 0 {
		return fmt.Errorf("breaker: CIRCUIT_RESET_MS must be positive")
	}
	if cfg.Breaker.HalfOpenMaxCalls <= 0 {
		return fmt.Errorf("breaker: half-open max calls must be positive")
	}
	if cfg.Presence.TTL <= 0 {
		return fmt.Errorf("presence: PRESENCE_TTL_MS must be positive")
	}
	if cfg.Socket.PingInterval <= 0 || cfg.Socket.PingTimeout <= 0 {
		return fmt.Errorf("socket: ping interval and timeout must be positive")
	}
	if cfg.Socket.PingTimeout <= cfg.Socket.PingInterval {
		return fmt.Errorf("socket: SOCKET_PING_TIMEOUT_MS must exceed SOCKET_PING_INTERVAL_MS")
	}
	if cfg.File.MaxSizeBytes <= 0 {
		return fmt.Errorf("file: MAX_FILE_SIZE_BYTES must be positive")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http: port %d out of range", cfg.HTTP.Port)
	}
	switch cfg.App.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("app: unsupported log level %q", cfg.App.LogLevel)
	}
	return nil
}
