package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/events"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/internal/streaming/streamingtest"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoomsOnline struct {
	online []string
}

func (f *fakeRoomsOnline) Join(context.Context, string, string) error  { return nil }
func (f *fakeRoomsOnline) Leave(context.Context, string, string) error { return nil }
func (f *fakeRoomsOnline) MembersOnline(context.Context, string, ports.PresenceRegistry) ([]string, error) {
	return f.online, nil
}
func (f *fakeRoomsOnline) Members(context.Context, string) ([]string, error)              { return f.online, nil }
func (f *fakeRoomsOnline) CanPost(context.Context, string, string) (bool, error)          { return true, nil }
func (f *fakeRoomsOnline) CanAdminister(context.Context, string, string) (bool, error)     { return true, nil }
func (f *fakeRoomsOnline) AddParticipant(context.Context, string, string, string) error    { return nil }
func (f *fakeRoomsOnline) RemoveParticipant(context.Context, string, string, string) error { return nil }

type fakeNotifier struct {
	mu             sync.Mutex
	deliveries     []string
	events         []string
	conversations  []string
	excludedEvents []string
}

func (n *fakeNotifier) DeliverToIdentity(_ context.Context, identity string, event ports.OutboundEvent) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, identity)
	n.events = append(n.events, event.Event)
	return 1
}
func (n *fakeNotifier) DeliverToConversation(_ context.Context, conversationID string, event ports.OutboundEvent, exclude ...string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.conversations = append(n.conversations, conversationID)
	n.events = append(n.events, event.Event)
	n.excludedEvents = append(n.excludedEvents, exclude...)
	return 1
}

func TestMessageConsumerWorker_DeliversToOnlineRecipientsExcludingSender(t *testing.T) {
	ctx := context.Background()
	streams := streamingtest.New()
	payload, err := jsonx.Marshal(events.NewMessageEvent{
		EventType: "NEW_MESSAGE",
		Message:   domain.Message{ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "hi"},
	})
	require.NoError(t, err)
	_, err = streams.Append(ctx, streaming.StreamEventsMessages, payload)
	require.NoError(t, err)

	rooms := &fakeRoomsOnline{online: []string{"alice", "bob", "carol"}}
	notifier := &fakeNotifier{}

	w := NewMessageConsumerWorker("p1", streams, rooms, nil, notifier, nil)
	runCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_ = w.Run(runCtx)

	assert.ElementsMatch(t, []string{"bob", "carol"}, notifier.deliveries)
}
