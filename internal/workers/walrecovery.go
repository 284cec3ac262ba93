package workers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/events"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
)

// WALRecoveryWorker periodically reconciles wal:pre against wal:post,
// re-driving any pre-write whose matching post-write never landed within
// walTimeout, recovering message intents an in-flight process crash
// dropped mid-persist.
type WALRecoveryWorker struct {
	streams     ports.StreamManager
	logger      ports.Logger
	scanEvery   time.Duration
	walTimeout  time.Duration
	recovered   atomic.Uint64
	failed      atomic.Uint64
	lastRunAt   atomic.Value
	lastErr     atomic.Value
	stop        chan struct{}
	done        chan struct{}
	startedOnce atomic.Bool
}

// NewWALRecoveryWorker constructs the WAL-Recovery Worker (spec §4.8.3).
func NewWALRecoveryWorker(streams ports.StreamManager, logger ports.Logger, scanEvery, walTimeout time.Duration) *WALRecoveryWorker {
	if scanEvery <= 0 {
		scanEvery = 60 * time.Second
	}
	if walTimeout <= 0 {
		walTimeout = 30 * time.Second
	}
	w := &WALRecoveryWorker{streams: streams, logger: logger, scanEvery: scanEvery, walTimeout: walTimeout, stop: make(chan struct{}), done: make(chan struct{})}
	w.lastErr.Store("")
	w.lastRunAt.Store(time.Time{})
	return w
}

// Stats reports the WAL-Recovery Worker's counters.
func (w *WALRecoveryWorker) Stats() domain.WorkerStats {
	return domain.WorkerStats{Name: "wal-recovery", Processed: w.recovered.Load(), Failed: w.failed.Load(), LastError: w.lastErr.Load().(string), LastRunAt: w.lastRunAt.Load().(time.Time)}
}

// Run blocks, scanning every scanEvery until ctx is cancelled or Stop is called.
func (w *WALRecoveryWorker) Run(ctx context.Context) error {
	w.startedOnce.Store(true)
	defer close(w.done)

	ticker := time.NewTicker(w.scanEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-ticker.C:
			w.scanOnce(ctx)
		}
	}
}

// ScanOnce runs a single reconciliation pass immediately, exported so tests
// and an operator-triggered manual sweep don't need to wait for the ticker.
func (w *WALRecoveryWorker) ScanOnce(ctx context.Context) { w.scanOnce(ctx) }

func (w *WALRecoveryWorker) scanOnce(ctx context.Context) {
	w.lastRunAt.Store(time.Now())

	pres, err := w.streams.RangeByTime(ctx, streaming.StreamWALPre, time.Time{}, time.Time{}, 10000)
	if err != nil {
		w.failed.Add(1)
		w.lastErr.Store(err.Error())
		return
	}
	posts, err := w.streams.RangeByTime(ctx, streaming.StreamWALPost, time.Time{}, time.Time{}, 10000)
	if err != nil {
		w.failed.Add(1)
		w.lastErr.Store(err.Error())
		return
	}

	resolved := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		var rec events.WALPostRecord
		if err := jsonx.Unmarshal(p.Payload, &rec); err == nil {
			resolved[rec.ID] = struct{}{}
		}
	}

	now := time.Now()
	for _, p := range pres {
		var rec events.WALPreRecord
		if err := jsonx.Unmarshal(p.Payload, &rec); err != nil {
			continue
		}
		if _, ok := resolved[rec.ID]; ok {
			continue
		}
		if now.Sub(rec.FirstSeenAt) < w.walTimeout {
			continue
		}
		if err := w.redrive(ctx, rec); err != nil {
			w.failed.Add(1)
			w.lastErr.Store(err.Error())
			if w.logger != nil {
				w.logger.Error("wal recovery redrive failed", ports.Field{Key: "messageId", Value: rec.ID}, ports.Field{Key: "error", Value: err.Error()})
			}
			continue
		}
		w.recovered.Add(1)
	}
}

func (w *WALRecoveryWorker) redrive(ctx context.Context, rec events.WALPreRecord) error {
	payload, err := jsonx.Marshal(events.FallbackRecord{ID: rec.ID, Payload: rec.Payload, Attempt: 0})
	if err != nil {
		return fmt.Errorf("encode fallback record: %w", err)
	}
	if _, err := w.streams.Append(ctx, streaming.StreamFallbackMessages, payload); err != nil {
		return fmt.Errorf("append fallback:messages: %w", err)
	}
	return nil
}

// Stop signals Run to return after its current scan and blocks until it has.
func (w *WALRecoveryWorker) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	if w.startedOnce.Load() {
		<-w.done
	}
}
