package workers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
)

// DLQMonitor watches dlq:messages growth, alerting through AlertSink once
// its length crosses threshold so an operator notices before the stream's
// MAXLEN trim starts discarding unrecoverable messages silently.
type DLQMonitor struct {
	streams     ports.StreamManager
	alerts      ports.AlertSink
	logger      ports.Logger
	interval    time.Duration
	threshold   int64
	lastLen     atomic.Int64
	checks      atomic.Uint64
	alertsSent  atomic.Uint64
	lastRunAt   atomic.Value
	stop        chan struct{}
	done        chan struct{}
	startedOnce atomic.Bool
}

// NewDLQMonitor constructs the DLQ Monitor (spec §4.8.4).
func NewDLQMonitor(streams ports.StreamManager, alerts ports.AlertSink, logger ports.Logger, interval time.Duration, threshold int64) *DLQMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if threshold <= 0 {
		threshold = 100
	}
	m := &DLQMonitor{streams: streams, alerts: alerts, logger: logger, interval: interval, threshold: threshold, stop: make(chan struct{}), done: make(chan struct{})}
	m.lastRunAt.Store(time.Time{})
	return m
}

// Stats reports the DLQ Monitor's counters.
func (m *DLQMonitor) Stats() domain.WorkerStats {
	return domain.WorkerStats{Name: "dlq-monitor", Processed: m.checks.Load(), Failed: m.alertsSent.Load(), LastRunAt: m.lastRunAt.Load().(time.Time)}
}

// Run blocks, polling dlq:messages length every interval until ctx is
// cancelled or Stop is called.
func (m *DLQMonitor) Run(ctx context.Context) error {
	m.startedOnce.Store(true)
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stop:
			return nil
		case <-ticker.C:
			m.checkOnce(ctx)
		}
	}
}

func (m *DLQMonitor) checkOnce(ctx context.Context) {
	m.lastRunAt.Store(time.Now())
	m.checks.Add(1)

	n, err := m.streams.Length(ctx, streaming.StreamDLQMessages)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("dlq length check failed", ports.Field{Key: "error", Value: err.Error()})
		}
		return
	}
	m.lastLen.Store(n)
	if n < m.threshold {
		return
	}
	m.alertsSent.Add(1)
	if m.alerts != nil {
		m.alerts.Alert(ctx, "dlq_growth", map[string]interface{}{"length": n, "threshold": m.threshold})
	}
}

// Stop signals Run to return and blocks until it has.
func (m *DLQMonitor) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	if m.startedOnce.Load() {
		<-m.done
	}
}
