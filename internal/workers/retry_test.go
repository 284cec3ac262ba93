package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/events"
	"github.com/agency-portal/chat-pipeline/internal/ingest"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/internal/streaming/streamingtest"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendRetryRecord(t *testing.T, streams *streamingtest.Fake, fb events.FallbackRecord) {
	t.Helper()
	data, err := jsonx.Marshal(fb)
	require.NoError(t, err)
	_, err = streams.Append(context.Background(), streaming.StreamRetryMessages, data)
	require.NoError(t, err)
}

func TestRetryBackoff_CapsAtThirtySeconds(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, retryBackoff(0))
	assert.Equal(t, time.Second, retryBackoff(1))
	assert.Equal(t, 30*time.Second, retryBackoff(10))
}

func TestRetryWorker_ExhaustedAttemptsRouteToDLQ(t *testing.T) {
	ctx := context.Background()
	streams := streamingtest.New()
	store := &stubStore{}

	appendRetryRecord(t, streams, events.FallbackRecord{
		ID: "m1", Payload: ingest.Request{ConversationID: "c1", SenderID: "alice", Content: "hi", Type: domain.MessageTypeText}, Attempt: 5,
	})

	w := NewRetryWorker("p1", streams, store, nil, 5)
	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_ = w.Run(runCtx)

	n, _ := streams.Length(ctx, streaming.StreamDLQMessages)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, store.saved)
}

func TestRetryWorker_SuccessfulAttemptPublishesEvent(t *testing.T) {
	ctx := context.Background()
	streams := streamingtest.New()
	store := &stubStore{}

	appendRetryRecord(t, streams, events.FallbackRecord{
		ID: "m1", Payload: ingest.Request{ConversationID: "c1", SenderID: "alice", Content: "hi", Type: domain.MessageTypeText}, Attempt: 0,
	})

	w := NewRetryWorker("p1", streams, store, nil, 5)
	runCtx, cancel := context.WithTimeout(ctx, 800*time.Millisecond)
	defer cancel()
	_ = w.Run(runCtx)

	require.Len(t, store.saved, 1)
	n, _ := streams.Length(ctx, streaming.StreamEventsMessages)
	assert.Equal(t, int64(1), n)
}

func TestRetryWorker_FailedAttemptReenqueuesWithIncrementedAttempt(t *testing.T) {
	ctx := context.Background()
	streams := streamingtest.New()
	store := &stubStore{saveErr: errors.New("still down")}

	appendRetryRecord(t, streams, events.FallbackRecord{
		ID: "m1", Payload: ingest.Request{ConversationID: "c1", SenderID: "alice", Content: "hi", Type: domain.MessageTypeText}, Attempt: 1,
	})

	w := NewRetryWorker("p1", streams, store, nil, 5)
	runCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	_ = w.Run(runCtx)

	recs, err := streams.ReadGroup(ctx, streaming.StreamRetryMessages, "check", "c1", 10, 0, true)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	var fb events.FallbackRecord
	require.NoError(t, jsonx.Unmarshal(recs[1].Payload, &fb))
	assert.Equal(t, 2, fb.Attempt)
}
