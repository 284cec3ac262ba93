package presence

import (
	"context"
	"sync"
	"time"
)

// Sweeper periodically reconciles the set of identities this process
// believes are online against the canonical Registry, publishing an
// offline notification for any that have silently expired.
type Sweeper struct {
	registry  *Registry
	interval  time.Duration
	onOffline func(identity string)

	mu      sync.Mutex
	tracked map[string]struct{}
}

// NewSweeper constructs a Sweeper that runs every interval (spec default
// 30s) and calls onOffline for every identity whose presence entry expired.
func NewSweeper(registry *Registry, interval time.Duration, onOffline func(identity string)) *Sweeper {
	return &Sweeper{registry: registry, interval: interval, onOffline: onOffline, tracked: make(map[string]struct{})}
}

// Track adds identity to the set the sweeper watches. Only identities passed
// to Track are swept; Registry.Register does not call it.
func (s *Sweeper) Track(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[identity] = struct{}{}
}

// Run blocks, sweeping every interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	s.mu.Lock()
	known := make([]string, 0, len(s.tracked))
	for identity := range s.tracked {
		known = append(known, identity)
	}
	s.mu.Unlock()
	if len(known) == 0 {
		return
	}

	offline, err := s.registry.Sweep(ctx, known)
	if err != nil {
		return
	}

	s.mu.Lock()
	for _, identity := range offline {
		delete(s.tracked, identity)
	}
	s.mu.Unlock()

	for _, identity := range offline {
		if s.onOffline != nil {
			s.onOffline(identity)
		}
	}
}
