package socket

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/logger"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRooms struct {
	members []string
}

func (f *fakeRooms) Join(context.Context, string, string) error  { return nil }
func (f *fakeRooms) Leave(context.Context, string, string) error { return nil }
func (f *fakeRooms) MembersOnline(ctx context.Context, conversationID string, presence ports.PresenceRegistry) ([]string, error) {
	return f.members, nil
}
func (f *fakeRooms) Members(context.Context, string) ([]string, error)              { return f.members, nil }
func (f *fakeRooms) CanPost(context.Context, string, string) (bool, error)           { return true, nil }
func (f *fakeRooms) CanAdminister(context.Context, string, string) (bool, error)     { return true, nil }
func (f *fakeRooms) AddParticipant(context.Context, string, string, string) error    { return nil }
func (f *fakeRooms) RemoveParticipant(context.Context, string, string, string) error { return nil }

type recordingHandler struct {
	mu     sync.Mutex
	sent   []SendMessagePayload
	joined []string
	typing []string
}

func (h *recordingHandler) HandleSendMessage(_ context.Context, _ string, p SendMessagePayload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, p)
	return nil
}
func (h *recordingHandler) HandleJoinConversation(_ context.Context, _, conversationID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joined = append(h.joined, conversationID)
	return nil
}
func (h *recordingHandler) HandleLeaveConversation(context.Context, string, string) error { return nil }
func (h *recordingHandler) HandleTyping(_ context.Context, _, conversationID string, _ bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.typing = append(h.typing, conversationID)
}
func (h *recordingHandler) HandleMessageReceived(context.Context, string, string) error      { return nil }
func (h *recordingHandler) HandleMarkRead(context.Context, string, string, string) error     { return nil }
func (h *recordingHandler) HandleEditMessage(context.Context, string, string, string) error   { return nil }
func (h *recordingHandler) HandleDeleteMessage(context.Context, string, string) error         { return nil }

// presenceStub is a minimal ports.PresenceRegistry test double.
type presenceStub struct {
	online map[string]bool
}

func (p presenceStub) Register(context.Context, string, string) error   { return nil }
func (p presenceStub) Unregister(context.Context, string, string) error { return nil }
func (p presenceStub) Heartbeat(context.Context, string) error          { return nil }
func (p presenceStub) List(context.Context, string) ([]string, error)   { return nil, nil }
func (p presenceStub) IsOnline(_ context.Context, identity string) (bool, error) {
	return p.online[identity], nil
}
func (p presenceStub) Endpoints(context.Context, string) ([]string, error) { return nil, nil }

func newTestHub(handler InboundHandler) (*Hub, *httptest.Server) {
	auth := NewAuthenticator("s3cret", "chat-pipeline")
	presence := presenceStub{online: map[string]bool{}}
	rooms := &fakeRooms{}
	hub := NewHub(auth, presence, rooms, handler, logger.GetGlobalLogger())
	return hub, httptest.NewServer(hub)
}

func TestHub_RejectsInvalidToken(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, srv := newTestHub(&recordingHandler{})
	defer srv.Close()

	url := "ws" + srv.URL[len("http"):] + "/?token=not-a-real-token"
	ws, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, data, err := ws.Read(ctx)
	if err == nil {
		assert.Contains(t, string(data), OutboundAuthError)
	}
}

func TestHub_AuthenticatedConnectionReceivesAck(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, srv := newTestHub(&recordingHandler{})
	defer srv.Close()

	token := signToken(t, "s3cret", "chat-pipeline", "alice", false)
	url := "ws" + srv.URL[len("http"):] + "/?token=" + token

	ws, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, data, err := ws.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), OutboundAuthenticated)
}

func TestHub_DispatchesSendMessage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handler := &recordingHandler{}
	_, srv := newTestHub(handler)
	defer srv.Close()

	token := signToken(t, "s3cret", "chat-pipeline", "alice", false)
	url := "ws" + srv.URL[len("http"):] + "/?token=" + token

	ws, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, _, err = ws.Read(ctx) // authenticated ack
	require.NoError(t, err)

	err = ws.Write(ctx, websocket.MessageText, []byte(`{"event":"sendMessage","payload":{"conversationId":"c1","content":"hi","type":"TEXT"}}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.sent) == 1
	}, time.Second, 10*time.Millisecond)
}
