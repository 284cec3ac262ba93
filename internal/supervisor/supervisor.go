// Package supervisor implements the Worker Supervisor (C9): it starts every
// named worker on its own goroutine, restarts one that returns unexpectedly
// with capped exponential backoff, and aggregates each worker's stats for
// the /stats surface, mirroring the teacher's processor lifecycle
// management but fanned out across many independent workers instead of one.
package supervisor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
)

// Runnable is anything the Supervisor can start, stop, and introspect.
// Every stream worker in internal/workers satisfies this.
type Runnable interface {
	Run(ctx context.Context) error
	Stop()
	Stats() domain.WorkerStats
}

const maxRestartBackoff = 30 * time.Second

// Supervisor owns the lifecycle of a fixed set of named workers.
type Supervisor struct {
	logger  ports.Logger
	alerts  ports.AlertSink
	breaker ports.CircuitBreaker

	mu       sync.Mutex
	workers  map[string]Runnable
	restarts map[string]*atomicUint64
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type atomicUint64 struct {
	mu sync.Mutex
	n  uint64
}

func (a *atomicUint64) add() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n++
	return a.n
}

func (a *atomicUint64) load() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

// New constructs a Supervisor. breaker, if non-nil, has its OnStateChange
// hooked to alert on every OPEN transition.
func New(logger ports.Logger, alerts ports.AlertSink, breaker ports.CircuitBreaker) *Supervisor {
	s := &Supervisor{logger: logger, alerts: alerts, breaker: breaker, workers: make(map[string]Runnable), restarts: make(map[string]*atomicUint64)}
	if breaker != nil {
		breaker.OnStateChange(s.onBreakerStateChange)
	}
	return s
}

func (s *Supervisor) onBreakerStateChange(from, to string) {
	if s.logger != nil {
		s.logger.Warn("circuit breaker state changed", ports.Field{Key: "from", Value: from}, ports.Field{Key: "to", Value: to})
	}
	if to == "OPEN" && s.alerts != nil {
		s.alerts.Alert(context.Background(), "circuit_open", map[string]interface{}{"from": from, "to": to})
	}
}

// Register adds a worker under name. Register must be called before Start.
func (s *Supervisor) Register(name string, w Runnable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[name] = w
	s.restarts[name] = &atomicUint64{}
}

// Start launches every registered worker on its own supervised goroutine.
// It returns immediately; workers run until ctx is cancelled or Shutdown
// is called.
func (s *Supervisor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, w := range s.workers {
		s.wg.Add(1)
		go s.supervise(runCtx, name, w)
	}
}

func (s *Supervisor) supervise(ctx context.Context, name string, w Runnable) {
	defer s.wg.Done()

	attempt := 0
	for {
		err := w.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			attempt = 0
			continue
		}

		s.restarts[name].add()
		backoff := restartBackoff(attempt)
		if s.logger != nil {
			s.logger.Error("worker exited, restarting", ports.Field{Key: "worker", Value: name}, ports.Field{Key: "error", Value: err.Error()}, ports.Field{Key: "backoff", Value: backoff.String()})
		}
		if s.alerts != nil {
			s.alerts.Alert(ctx, "worker_restart", map[string]interface{}{"worker": name, "error": err.Error(), "attempt": attempt})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		attempt++
	}
}

// restartBackoff doubles from 1s per attempt, capped at maxRestartBackoff, so
// a crash-looping worker doesn't spin the process.
func restartBackoff(attempt int) time.Duration {
	d := time.Duration(math.Min(float64(time.Second)*math.Pow(2, float64(attempt)), float64(maxRestartBackoff)))
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Shutdown stops every registered worker and waits for its goroutine to
// return.
func (s *Supervisor) Shutdown(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	workers := make([]Runnable, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Stats returns every registered worker's current domain.WorkerStats,
// keyed by name, with Restarts filled from the Supervisor's own counter
// (a worker's own Stats never knows it was restarted).
func (s *Supervisor) Stats() map[string]domain.WorkerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.WorkerStats, len(s.workers))
	for name, w := range s.workers {
		stats := w.Stats()
		stats.Restarts = s.restarts[name].load()
		out[name] = stats
	}
	return out
}
