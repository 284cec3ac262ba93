package workers

import (
	"context"
	"testing"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/events"
	"github.com/agency-portal/chat-pipeline/internal/socket"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/internal/streaming/streamingtest"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusConsumerWorker_RelaysReadStatusToConversationExcludingReader(t *testing.T) {
	ctx := context.Background()
	streams := streamingtest.New()
	payload, err := jsonx.Marshal(events.StatusEvent{
		MessageID: "m1", ConversationID: "c1", RecipientID: "bob", SenderID: "alice", Status: domain.StatusRead, UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
	_, err = streams.Append(ctx, streaming.StreamEventsStatus, payload)
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	w := NewStatusConsumerWorker("p1", streams, notifier, nil)
	runCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_ = w.Run(runCtx)

	require.Len(t, notifier.conversations, 1)
	assert.Equal(t, "c1", notifier.conversations[0])
	assert.Equal(t, socket.OutboundMessageRead, notifier.events[0])
	assert.Equal(t, []string{"bob"}, notifier.excludedEvents)
}
