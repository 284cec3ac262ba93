// Package config loads the pipeline's configuration with the precedence
// defaults → environment variables → command line flags → runtime
// validation, matching the layering style of the source this service's
// ingest/worker packages were adapted from.
package config

import "time"

// Config is the fully resolved configuration for the chat pipeline process.
type Config struct {
	App      AppConfig
	Redis    RedisConfig
	Store    StoreConfig
	Streams  StreamsConfig
	Breaker  BreakerConfig
	Presence PresenceConfig
	Socket   SocketConfig
	File     FileConfig
	HTTP     HTTPConfig
	Metrics  MetricsConfig
	Sentry   SentryConfig
	Auth     AuthConfig
}

// AppConfig carries process-wide identity and lifecycle settings.
type AppConfig struct {
	Name            string
	Environment     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	PendingOpsGrace time.Duration
}

// RedisConfig configures the connection used by the Stream Manager (C1).
type RedisConfig struct {
	Addresses    []string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	ConsumerName string
}

// StoreConfig configures the Message Store Gateway's document store (C3).
type StoreConfig struct {
	DSN string
}

// StreamsConfig holds the per-stream MAXLEN policy and the timing constants
// governing WAL recovery and retry/claim windows (spec §6 enumerated config).
type StreamsConfig struct {
	MaxLenWAL        int64
	MaxLenRetry      int64
	MaxLenDLQ        int64
	MaxLenEvents     int64
	WALTimeout       time.Duration
	ClaimIdle        time.Duration
	MaxRetryAttempts int
}

// BreakerConfig configures the Message Store Gateway's circuit breaker (C2).
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int
}

// PresenceConfig configures the Presence Registry (C4).
type PresenceConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// SocketConfig configures the Socket Hub's keepalive behavior (C6).
type SocketConfig struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// FileConfig bounds uploaded attachment size.
type FileConfig struct {
	MaxSizeBytes int64
}

// HTTPConfig configures the public HTTP surface.
type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MetricsConfig controls the Prometheus registry exposed at /stats.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// SentryConfig configures the alerting sink used by the DLQ Monitor and
// Worker Supervisor.
type SentryConfig struct {
	DSN         string
	Environment string
}

// AuthConfig configures identity-claim verification at socket handshake.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}
