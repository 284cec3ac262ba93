package config

import (
	"fmt"
	"os"
	"runtime"
	"time"
)

// GetDefaults returns a Config populated with the defaults named in spec §6,
// plus sensible ambient defaults for settings the spec leaves to the
// implementation (log format, HTTP port, pool sizing).
func GetDefaults() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		App:      defaultApp(),
		Redis:    defaultRedis(hostname),
		Store:    defaultStore(),
		Streams:  defaultStreams(),
		Breaker:  defaultBreaker(),
		Presence: defaultPresence(),
		Socket:   defaultSocket(),
		File:     defaultFile(),
		HTTP:     defaultHTTP(),
		Metrics:  defaultMetrics(),
		Sentry:   defaultSentry(),
		Auth:     defaultAuth(),
	}
}

func defaultApp() AppConfig {
	return AppConfig{
		Name:            "chat-pipeline",
		Environment:     "production",
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 30 * time.Second,
		PendingOpsGrace: 500 * time.Millisecond,
	}
}

func defaultRedis(hostname string) RedisConfig {
	return RedisConfig{
		Addresses:    []string{"localhost:6379"},
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     runtime.NumCPU() * 10,
		ConsumerName: fmt.Sprintf("chat-pipeline-%s-%d", hostname, os.Getpid()),
	}
}

func defaultStore() StoreConfig {
	return StoreConfig{
		DSN: "file:chat-pipeline.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
	}
}

func defaultStreams() StreamsConfig {
	return StreamsConfig{
		MaxLenWAL:        10000,
		MaxLenRetry:      5000,
		MaxLenDLQ:        50000,
		MaxLenEvents:     5000,
		WALTimeout:       30 * time.Second,
		ClaimIdle:        60 * time.Second,
		MaxRetryAttempts: 5,
	}
}

func defaultBreaker() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

func defaultPresence() PresenceConfig {
	return PresenceConfig{
		TTL:           60 * time.Second,
		SweepInterval: 30 * time.Second,
	}
}

func defaultSocket() SocketConfig {
	return SocketConfig{
		PingInterval: 25 * time.Second,
		PingTimeout:  60 * time.Second,
	}
}

func defaultFile() FileConfig {
	return FileConfig{
		MaxSizeBytes: 104857600,
	}
}

func defaultHTTP() HTTPConfig {
	return HTTPConfig{
		Port:         8080,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

func defaultMetrics() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "chat_pipeline",
	}
}

func defaultSentry() SentryConfig {
	return SentryConfig{
		DSN:         "",
		Environment: "production",
	}
}

func defaultAuth() AuthConfig {
	return AuthConfig{
		JWTSecret: "",
		JWTIssuer: "agency-portal",
	}
}
