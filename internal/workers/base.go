// Package workers implements the six cooperative stream-consumer workers
// the Worker Supervisor (C9) runs: Retry, Fallback, WAL-Recovery, DLQ
// Monitor, Message Consumer, Status Consumer, plus the ambient Memory/Stream
// Monitors. Each worker owns a single goroutine and advances its named
// stream at its own pace, matching the one-goroutine-per-stream design the
// teacher's processor package uses for its syslog consumer loop.
package workers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
)

// State is a worker's lifecycle state.
type State int32

// Supported states.
const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

// String returns the wire-level name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// HandlerFunc processes one stream record. A non-nil error leaves the
// record unacknowledged so it remains in the consumer group's pending list
// for a later ClaimIdle reclaim.
type HandlerFunc func(ctx context.Context, rec domain.StreamRecord) error

// ConsumerConfig parameterizes a Base's read loop over one named stream.
type ConsumerConfig struct {
	Name          string
	Stream        string
	Group         string
	Consumer      string
	BatchSize     int64
	Block         time.Duration
	FromBeginning bool
	IdleDelay     time.Duration // sleep between empty reads, default 250ms
}

// Base is the shared consumer-group read/handle/ack loop every stream
// worker embeds, carrying the stats the Supervisor aggregates into
// domain.WorkerStats.
type Base struct {
	cfg     ConsumerConfig
	streams ports.StreamManager
	logger  ports.Logger
	handle  HandlerFunc

	state     atomic.Int32
	processed atomic.Uint64
	failed    atomic.Uint64
	restarts  atomic.Uint64
	lastErr   atomic.Value
	lastRunAt atomic.Value

	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewBase constructs a Base bound to cfg, reading from streams and invoking
// handle for every record it reads.
func NewBase(cfg ConsumerConfig, streams ports.StreamManager, logger ports.Logger, handle HandlerFunc) *Base {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = 250 * time.Millisecond
	}
	b := &Base{cfg: cfg, streams: streams, logger: logger, handle: handle, stop: make(chan struct{}), done: make(chan struct{})}
	b.lastErr.Store("")
	b.lastRunAt.Store(time.Time{})
	return b
}

// Name returns the worker's configured name.
func (b *Base) Name() string { return b.cfg.Name }

// State returns the worker's current lifecycle state.
func (b *Base) State() State { return State(b.state.Load()) }

// Stats reports the counters the Supervisor surfaces per worker.
func (b *Base) Stats() domain.WorkerStats {
	return domain.WorkerStats{
		Name:      b.cfg.Name,
		Processed: b.processed.Load(),
		Failed:    b.failed.Load(),
		LastError: b.lastErr.Load().(string),
		LastRunAt: b.lastRunAt.Load().(time.Time),
		Restarts:  b.restarts.Load(),
	}
}

// Run blocks, repeatedly reading cfg.BatchSize records from cfg.Stream via
// the consumer group, handing each to handle, and acking on success. It
// returns when ctx is cancelled or Stop is called.
func (b *Base) Run(ctx context.Context) error {
	b.started.Store(true)
	b.state.Store(int32(StateRunning))
	defer b.state.Store(int32(StateStopped))
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stop:
			return nil
		default:
		}

		records, err := b.streams.ReadGroup(ctx, b.cfg.Stream, b.cfg.Group, b.cfg.Consumer, b.cfg.BatchSize, b.cfg.Block, b.cfg.FromBeginning)
		if err != nil {
			b.recordFailure(err)
			if b.logger != nil {
				b.logger.Warn("worker read failed", ports.Field{Key: "worker", Value: b.cfg.Name}, ports.Field{Key: "error", Value: err.Error()})
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.cfg.IdleDelay):
			}
			continue
		}

		if len(records) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-b.stop:
				return nil
			case <-time.After(b.cfg.IdleDelay):
			}
			continue
		}

		for _, rec := range records {
			b.processOne(ctx, rec)
		}
	}
}

func (b *Base) processOne(ctx context.Context, rec domain.StreamRecord) {
	b.lastRunAt.Store(time.Now())
	if err := b.handle(ctx, rec); err != nil {
		b.recordFailure(err)
		if b.logger != nil {
			b.logger.Warn("worker handler failed", ports.Field{Key: "worker", Value: b.cfg.Name}, ports.Field{Key: "streamId", Value: rec.StreamID}, ports.Field{Key: "error", Value: err.Error()})
		}
		return
	}
	if err := b.streams.Ack(ctx, b.cfg.Stream, b.cfg.Group, rec.StreamID); err != nil && b.logger != nil {
		b.logger.Warn("worker ack failed", ports.Field{Key: "worker", Value: b.cfg.Name}, ports.Field{Key: "streamId", Value: rec.StreamID}, ports.Field{Key: "error", Value: err.Error()})
	}
	b.processed.Add(1)
}

func (b *Base) recordFailure(err error) {
	b.failed.Add(1)
	b.lastErr.Store(err.Error())
}

// Stop signals Run to return after its current iteration and blocks until
// it has. Calling Stop before Run has been started returns immediately.
func (b *Base) Stop() {
	b.state.Store(int32(StateStopping))
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
	if b.started.Load() {
		<-b.done
	}
}
