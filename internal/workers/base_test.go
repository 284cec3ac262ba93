package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/internal/streaming/streamingtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase_ProcessesAndAcksRecords(t *testing.T) {
	streams := streamingtest.New()
	ctx := context.Background()
	_, err := streams.Append(ctx, streaming.StreamEventsStatus, []byte(`{}`))
	require.NoError(t, err)

	var seen []string
	b := NewBase(ConsumerConfig{Name: "test", Stream: streaming.StreamEventsStatus, Group: "g", Consumer: "c1", FromBeginning: true, IdleDelay: 5 * time.Millisecond},
		streams, nil, func(_ context.Context, rec domain.StreamRecord) error {
			seen = append(seen, rec.StreamID)
			return nil
		})

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_ = b.Run(runCtx)

	assert.Len(t, seen, 1)
	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(0), stats.Failed)

	pending, err := streams.PendingList(ctx, streaming.StreamEventsStatus, "g")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBase_HandlerErrorLeavesRecordPendingAndRecordsFailure(t *testing.T) {
	streams := streamingtest.New()
	ctx := context.Background()
	_, err := streams.Append(ctx, streaming.StreamEventsStatus, []byte(`{}`))
	require.NoError(t, err)

	b := NewBase(ConsumerConfig{Name: "test", Stream: streaming.StreamEventsStatus, Group: "g", Consumer: "c1", FromBeginning: true, IdleDelay: 5 * time.Millisecond},
		streams, nil, func(context.Context, domain.StreamRecord) error {
			return errors.New("boom")
		})

	runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_ = b.Run(runCtx)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, "boom", stats.LastError)

	pending, err := streams.PendingList(ctx, streaming.StreamEventsStatus, "g")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestBase_StopReturnsBeforeNextIdleRead(t *testing.T) {
	streams := streamingtest.New()
	b := NewBase(ConsumerConfig{Name: "test", Stream: streaming.StreamEventsStatus, Group: "g", Consumer: "c1", IdleDelay: time.Second},
		streams, nil, func(context.Context, domain.StreamRecord) error { return nil })

	done := make(chan struct{})
	go func() {
		_ = b.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	b.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, StateStopped, b.State())
}
