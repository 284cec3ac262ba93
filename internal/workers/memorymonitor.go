package workers

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
)

// MemoryMonitor is an ambient health-check worker that samples process
// heap usage on an interval and alerts when it crosses thresholdBytes, a
// supplemented operational safeguard absent from the original distillation.
type MemoryMonitor struct {
	alerts         ports.AlertSink
	logger         ports.Logger
	interval       time.Duration
	thresholdBytes uint64
	checks         atomic.Uint64
	alertsSent     atomic.Uint64
	lastHeapBytes  atomic.Uint64
	lastRunAt      atomic.Value
	stop           chan struct{}
	done           chan struct{}
	startedOnce    atomic.Bool
}

// NewMemoryMonitor constructs the Memory Monitor.
func NewMemoryMonitor(alerts ports.AlertSink, logger ports.Logger, interval time.Duration, thresholdBytes uint64) *MemoryMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m := &MemoryMonitor{alerts: alerts, logger: logger, interval: interval, thresholdBytes: thresholdBytes, stop: make(chan struct{}), done: make(chan struct{})}
	m.lastRunAt.Store(time.Time{})
	return m
}

// Stats reports the Memory Monitor's counters.
func (m *MemoryMonitor) Stats() domain.WorkerStats {
	return domain.WorkerStats{Name: "memory-monitor", Processed: m.checks.Load(), Failed: m.alertsSent.Load(), LastRunAt: m.lastRunAt.Load().(time.Time)}
}

// HeapBytes returns the most recently sampled heap-in-use size.
func (m *MemoryMonitor) HeapBytes() uint64 { return m.lastHeapBytes.Load() }

// Run blocks, sampling runtime.MemStats every interval until ctx is
// cancelled or Stop is called.
func (m *MemoryMonitor) Run(ctx context.Context) error {
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
			m.sampleOnce(ctx)
		}
	}
}

func (m *MemoryMonitor) sampleOnce(ctx context.Context) {
	m.lastRunAt.Store(time.Now())
	m.checks.Add(1)

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	m.lastHeapBytes.Store(stats.HeapInuse)

	if m.thresholdBytes == 0 || stats.HeapInuse < m.thresholdBytes {
		return
	}
	m.alertsSent.Add(1)
	if m.alerts != nil {
		m.alerts.Alert(ctx, "memory_pressure", map[string]interface{}{"heapInuseBytes": stats.HeapInuse, "thresholdBytes": m.thresholdBytes})
	}
}

// Stop signals Run to return and blocks until it has.
func (m *MemoryMonitor) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	if m.startedOnce.Load() {
		<-m.done
	}
}
