package workers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
)

// StreamMonitor is an ambient health-check worker that samples the
// consumer group's pending-entries list for a set of watched streams and
// alerts when a backlog grows past threshold, surfacing a stalled or dead
// consumer before its stream's MAXLEN trim starts dropping unclaimed work.
type StreamMonitor struct {
	streams   ports.StreamManager
	alerts    ports.AlertSink
	logger    ports.Logger
	watch     []watchedGroup
	interval  time.Duration
	threshold int

	checks      atomic.Uint64
	alertsSent  atomic.Uint64
	lastRunAt   atomic.Value
	stop        chan struct{}
	done        chan struct{}
	startedOnce atomic.Bool
}

// watchedGroup names one (stream, consumer group) pair to monitor.
type watchedGroup struct {
	Stream string
	Group  string
}

// NewStreamMonitor constructs the Stream Monitor watching the given
// (stream, group) pairs for PEL backlog growth.
func NewStreamMonitor(streams ports.StreamManager, alerts ports.AlertSink, logger ports.Logger, interval time.Duration, threshold int, watch ...[2]string) *StreamMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if threshold <= 0 {
		threshold = 500
	}
	groups := make([]watchedGroup, 0, len(watch))
	for _, w := range watch {
		groups = append(groups, watchedGroup{Stream: w[0], Group: w[1]})
	}
	m := &StreamMonitor{streams: streams, alerts: alerts, logger: logger, watch: groups, interval: interval, threshold: threshold, stop: make(chan struct{}), done: make(chan struct{})}
	m.lastRunAt.Store(time.Time{})
	return m
}

// Stats reports the Stream Monitor's counters.
func (m *StreamMonitor) Stats() domain.WorkerStats {
	return domain.WorkerStats{Name: "stream-monitor", Processed: m.checks.Load(), Failed: m.alertsSent.Load(), LastRunAt: m.lastRunAt.Load().(time.Time)}
}

// Run blocks, checking every watched group's pending list every interval
// until ctx is cancelled or Stop is called.
func (m *StreamMonitor) Run(ctx context.Context) error {
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

func (m *StreamMonitor) checkOnce(ctx context.Context) {
	m.lastRunAt.Store(time.Now())
	m.checks.Add(1)

	for _, w := range m.watch {
		pending, err := m.streams.PendingList(ctx, w.Stream, w.Group)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn("stream backlog check failed", ports.Field{Key: "stream", Value: w.Stream}, ports.Field{Key: "group", Value: w.Group}, ports.Field{Key: "error", Value: err.Error()})
			}
			continue
		}
		if len(pending) < m.threshold {
			continue
		}
		m.alertsSent.Add(1)
		if m.alerts != nil {
			m.alerts.Alert(ctx, "stream_backlog", map[string]interface{}{"stream": w.Stream, "group": w.Group, "pending": len(pending), "threshold": m.threshold})
		}
	}
}

// Stop signals Run to return and blocks until it has.
func (m *StreamMonitor) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	if m.startedOnce.Load() {
		<-m.done
	}
}
