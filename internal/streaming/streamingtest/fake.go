// Package streamingtest provides an in-memory ports.StreamManager fake for
// unit tests that exercise the pipeline without a live Redis instance.
package streamingtest

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
)

type entry struct {
	id          string
	payload     []byte
	firstSeenAt time.Time
}

type pending struct {
	id       string
	consumer string
	claimedAt time.Time
	attempts int
}

type stream struct {
	entries []entry
	groups  map[string]*group
	maxLen  int64
}

type group struct {
	lastDelivered int
	pending       map[string]*pending
}

// Fake is a single-process, mutex-guarded stand-in for the Redis Streams
// Stream Manager, sufficient for deterministic unit tests.
type Fake struct {
	mu      sync.Mutex
	streams map[string]*stream
	seq     int64
}

// New constructs an empty Fake.
func New() *Fake {
	return &Fake{streams: make(map[string]*stream)}
}

// SetMaxLen configures the MAXLEN trim target for a stream.
func (f *Fake) SetMaxLen(name string, maxLen int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getStream(name).maxLen = maxLen
}

func (f *Fake) getStream(name string) *stream {
	s, ok := f.streams[name]
	if !ok {
		s = &stream{groups: make(map[string]*group)}
		f.streams[name] = s
	}
	return s
}

func (f *Fake) nextID() string {
	f.seq++
	return strconv.FormatInt(f.seq, 10)
}

// Append implements ports.StreamManager.
func (f *Fake) Append(_ context.Context, streamName string, payload []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.getStream(streamName)
	id := f.nextID()
	s.entries = append(s.entries, entry{id: id, payload: payload, firstSeenAt: time.Now()})

	if s.maxLen > 0 && int64(len(s.entries)) > s.maxLen {
		drop := int64(len(s.entries)) - s.maxLen
		s.entries = s.entries[drop:]
	}
	return id, nil
}

// ReadGroup implements ports.StreamManager.
func (f *Fake) ReadGroup(_ context.Context, streamName, groupName, consumer string, count int64, _ time.Duration, fromBeginning bool) ([]domain.StreamRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.getStream(streamName)
	g, ok := s.groups[groupName]
	if !ok {
		g = &group{pending: make(map[string]*pending)}
		if !fromBeginning {
			g.lastDelivered = len(s.entries)
		}
		s.groups[groupName] = g
	}

	var out []domain.StreamRecord
	for g.lastDelivered < len(s.entries) && int64(len(out)) < count {
		e := s.entries[g.lastDelivered]
		g.lastDelivered++
		g.pending[e.id] = &pending{id: e.id, consumer: consumer, claimedAt: time.Now()}
		out = append(out, domain.StreamRecord{StreamID: e.id, Payload: e.payload, FirstSeenAt: e.firstSeenAt})
	}
	return out, nil
}

// Ack implements ports.StreamManager.
func (f *Fake) Ack(_ context.Context, streamName, groupName, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.getStream(streamName)
	if g, ok := s.groups[groupName]; ok {
		delete(g.pending, id)
	}
	return nil
}

// PendingList implements ports.StreamManager.
func (f *Fake) PendingList(_ context.Context, streamName, groupName string) ([]ports.PendingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.getStream(streamName)
	g, ok := s.groups[groupName]
	if !ok {
		return nil, nil
	}
	out := make([]ports.PendingRecord, 0, len(g.pending))
	for _, p := range g.pending {
		out = append(out, ports.PendingRecord{
			ID:       p.id,
			Consumer: p.consumer,
			Idle:     time.Since(p.claimedAt),
			Attempts: int64(p.attempts),
		})
	}
	return out, nil
}

// ClaimIdle implements ports.StreamManager.
func (f *Fake) ClaimIdle(_ context.Context, streamName, groupName, consumer string, minIdle time.Duration, count int64) ([]domain.StreamRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.getStream(streamName)
	g, ok := s.groups[groupName]
	if !ok {
		return nil, nil
	}

	byID := make(map[string]entry, len(s.entries))
	for _, e := range s.entries {
		byID[e.id] = e
	}

	var out []domain.StreamRecord
	for id, p := range g.pending {
		if int64(len(out)) >= count {
			break
		}
		if time.Since(p.claimedAt) < minIdle {
			continue
		}
		e, ok := byID[id]
		if !ok {
			continue
		}
		p.consumer = consumer
		p.claimedAt = time.Now()
		p.attempts++
		out = append(out, domain.StreamRecord{StreamID: e.id, Payload: e.payload, FirstSeenAt: e.firstSeenAt, Attempt: p.attempts})
	}
	return out, nil
}

// Length implements ports.StreamManager.
func (f *Fake) Length(_ context.Context, streamName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.getStream(streamName).entries)), nil
}

// TrimTo implements ports.StreamManager.
func (f *Fake) TrimTo(_ context.Context, streamName string, maxLen int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.getStream(streamName)
	if int64(len(s.entries)) > maxLen {
		drop := int64(len(s.entries)) - maxLen
		s.entries = s.entries[drop:]
	}
	return nil
}

// RangeByTime implements ports.StreamManager.
func (f *Fake) RangeByTime(_ context.Context, streamName string, from, to time.Time, count int64) ([]domain.StreamRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.getStream(streamName)
	var out []domain.StreamRecord
	for _, e := range s.entries {
		if int64(len(out)) >= count {
			break
		}
		if !from.IsZero() && e.firstSeenAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.firstSeenAt.After(to) {
			continue
		}
		out = append(out, domain.StreamRecord{StreamID: e.id, Payload: e.payload, FirstSeenAt: e.firstSeenAt})
	}
	return out, nil
}

// Ping implements ports.StreamManager.
func (f *Fake) Ping(context.Context) error { return nil }

// Close implements ports.StreamManager.
func (f *Fake) Close() error { return nil }
