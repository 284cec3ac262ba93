package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/events"
	"github.com/agency-portal/chat-pipeline/internal/ingest"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/internal/streaming/streamingtest"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore embeds a nil ports.Store and overrides only SaveMessage, enough
// for the workers under test which call nothing else on the store.
type stubStore struct {
	ports.Store
	saveErr error
	saved   []domain.Message
}

func (s *stubStore) SaveMessage(_ context.Context, msg domain.Message) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, msg)
	return nil
}

func appendFallbackRecord(t *testing.T, streams *streamingtest.Fake, fb events.FallbackRecord) {
	t.Helper()
	data, err := jsonx.Marshal(fb)
	require.NoError(t, err)
	_, err = streams.Append(context.Background(), streaming.StreamFallbackMessages, data)
	require.NoError(t, err)
}

func TestFallbackWorker_SuccessfulRetryPublishesEventAndDoesNotReroute(t *testing.T) {
	ctx := context.Background()
	streams := streamingtest.New()
	store := &stubStore{}

	appendFallbackRecord(t, streams, events.FallbackRecord{
		ID: "m1", Payload: ingest.Request{ConversationID: "c1", SenderID: "alice", Content: "hi", Type: domain.MessageTypeText},
	})

	w := NewFallbackWorker("p1", streams, store, nil)
	runCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_ = w.Run(runCtx)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "m1", store.saved[0].ID)

	n, _ := streams.Length(ctx, streaming.StreamEventsMessages)
	assert.Equal(t, int64(1), n)
	n, _ = streams.Length(ctx, streaming.StreamRetryMessages)
	assert.Equal(t, int64(0), n)
}

func TestFallbackWorker_FailedRetryReroutesToRetryQueueWithIncrementedAttempt(t *testing.T) {
	ctx := context.Background()
	streams := streamingtest.New()
	store := &stubStore{saveErr: errors.New("store down")}

	appendFallbackRecord(t, streams, events.FallbackRecord{
		ID: "m1", Payload: ingest.Request{ConversationID: "c1", SenderID: "alice", Content: "hi", Type: domain.MessageTypeText}, Attempt: 0,
	})

	w := NewFallbackWorker("p1", streams, store, nil)
	runCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_ = w.Run(runCtx)

	n, _ := streams.Length(ctx, streaming.StreamRetryMessages)
	assert.Equal(t, int64(1), n)

	recs, err := streams.ReadGroup(ctx, streaming.StreamRetryMessages, "check", "c1", 10, 0, true)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	var fb events.FallbackRecord
	require.NoError(t, jsonx.Unmarshal(recs[0].Payload, &fb))
	assert.Equal(t, 1, fb.Attempt)
}
