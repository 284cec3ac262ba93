// Package alerts implements the operator-facing AlertSink the DLQ Monitor,
// Memory Monitor, Stream Monitor, and Worker Supervisor raise through:
// circuit trips, DLQ growth past threshold, worker restarts, heap pressure.
// Every alert is forwarded to Sentry as a message-level event so it shows
// up alongside captured exceptions in the same project.
package alerts

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentrySink implements ports.AlertSink over the Sentry Go SDK. The zero
// value is usable: with no DSN, Init is a no-op and Alert falls back to
// stderr, so a process can always construct one unconditionally.
type SentrySink struct {
	serviceName string
	enabled     bool
}

// NewSentrySink initializes the Sentry SDK for serviceName and returns a
// sink bound to it. dsn may be empty, which disables Sentry reporting
// without treating that as an error.
func NewSentrySink(dsn, serviceName, environment string) (*SentrySink, error) {
	if dsn == "" {
		fmt.Fprintf(os.Stderr, "[alerts] SENTRY_DSN not set — alert sink logging to stderr only for %s\n", serviceName)
		return &SentrySink{serviceName: serviceName}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
		Tags:             map[string]string{"service": serviceName},
	}); err != nil {
		return nil, fmt.Errorf("sentry.Init: %w", err)
	}
	return &SentrySink{serviceName: serviceName, enabled: true}, nil
}

// Alert reports name with fields as a warning-level Sentry message, tagged
// with every field so it is filterable in the Sentry UI.
func (s *SentrySink) Alert(_ context.Context, name string, fields map[string]interface{}) {
	if !s.enabled {
		fmt.Fprintf(os.Stderr, "[alerts] %s: %v\n", name, fields)
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("alert", name)
		for k, v := range fields {
			scope.SetExtra(k, v)
		}
		sentry.CaptureMessage(name)
	})
}

// Flush waits for buffered Sentry events to be sent; call with defer during
// shutdown.
func (s *SentrySink) Flush(timeout time.Duration) {
	if s.enabled {
		sentry.Flush(timeout)
	}
}
