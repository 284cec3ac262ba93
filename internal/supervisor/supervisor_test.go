package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	runs      atomic.Int32
	failFirst bool
	stop      chan struct{}
}

func newFakeWorker(failFirst bool) *fakeWorker {
	return &fakeWorker{failFirst: failFirst, stop: make(chan struct{})}
}

func (f *fakeWorker) Run(ctx context.Context) error {
	n := f.runs.Add(1)
	if f.failFirst && n == 1 {
		return errors.New("boom")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stop:
		return nil
	}
}

func (f *fakeWorker) Stop() {
	select {
	case <-f.stop:
	default:
		close(f.stop)
	}
}

func (f *fakeWorker) Stats() domain.WorkerStats {
	return domain.WorkerStats{Name: "fake", Processed: uint64(f.runs.Load())}
}

func TestSupervisor_RestartsWorkerAfterFailureAndTracksRestartCount(t *testing.T) {
	s := New(nil, nil, nil)
	w := newFakeWorker(true)
	s.Register("fake", w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	require.Eventually(t, func() bool { return w.runs.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats["fake"].Restarts)

	s.Shutdown(context.Background())
}

func TestSupervisor_ShutdownStopsAllWorkers(t *testing.T) {
	s := New(nil, nil, nil)
	w1 := newFakeWorker(false)
	w2 := newFakeWorker(false)
	s.Register("w1", w1)
	s.Register("w2", w2)

	ctx := context.Background()
	s.Start(ctx)

	require.Eventually(t, func() bool { return w1.runs.Load() == 1 && w2.runs.Load() == 1 }, time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Shutdown(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}

func TestSupervisor_StatsReportsEveryRegisteredWorker(t *testing.T) {
	s := New(nil, nil, nil)
	s.Register("a", newFakeWorker(false))
	s.Register("b", newFakeWorker(false))

	stats := s.Stats()
	assert.Len(t, stats, 2)
	assert.Contains(t, stats, "a")
	assert.Contains(t, stats, "b")
}

func TestRestartBackoff_CapsAtThirtySeconds(t *testing.T) {
	assert.Equal(t, time.Second, restartBackoff(0))
	assert.Equal(t, 30*time.Second, restartBackoff(10))
}

type fakeBreaker struct {
	listener func(from, to string)
}

func (b *fakeBreaker) Execute(fn func() error) error { return fn() }
func (b *fakeBreaker) GetState() string              { return "CLOSED" }
func (b *fakeBreaker) GetStats() ports.CircuitBreakerStats {
	return ports.CircuitBreakerStats{}
}
func (b *fakeBreaker) OnStateChange(fn func(from, to string)) { b.listener = fn }

type fakeAlerts struct {
	names []string
}

func (a *fakeAlerts) Alert(_ context.Context, name string, _ map[string]interface{}) {
	a.names = append(a.names, name)
}

func TestSupervisor_AlertsOnBreakerOpen(t *testing.T) {
	b := &fakeBreaker{}
	alerts := &fakeAlerts{}
	New(nil, alerts, b)

	require.NotNil(t, b.listener)
	b.listener("CLOSED", "OPEN")

	assert.Equal(t, []string{"circuit_open"}, alerts.names)
}
