// Package socket implements the Socket Hub (C6): per-identity long-lived
// websocket connections, their authenticated lifecycle, and the closed set
// of inbound/outbound event variants the wire protocol allows.
package socket

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// InboundHandler is the business logic the hub dispatches decoded client
// events to. Implemented by the service composed in cmd/server, so the hub
// itself stays ignorant of ingest/status/room internals beyond Presence and
// RoomRegistry for connect/disconnect bookkeeping.
type InboundHandler interface {
	HandleSendMessage(ctx context.Context, identity string, payload SendMessagePayload) error
	HandleJoinConversation(ctx context.Context, identity, conversationID string) error
	HandleLeaveConversation(ctx context.Context, identity, conversationID string) error
	HandleTyping(ctx context.Context, identity, conversationID string, isTyping bool)
	HandleMessageReceived(ctx context.Context, identity, messageID string) error
	HandleMarkRead(ctx context.Context, identity, conversationID, messageID string) error
	HandleEditMessage(ctx context.Context, identity, messageID, content string) error
	HandleDeleteMessage(ctx context.Context, identity, messageID string) error
}

// Hub manages every authenticated connection on this process and implements
// ports.Notifier for server->client delivery.
type Hub struct {
	auth     *Authenticator
	presence ports.PresenceRegistry
	rooms    ports.RoomRegistry
	handler  InboundHandler
	logger   ports.Logger

	mu         sync.RWMutex
	byEndpoint map[string]*Connection
	byIdentity map[string]map[string]*Connection
}

// NewHub constructs a Hub.
func NewHub(auth *Authenticator, presence ports.PresenceRegistry, rooms ports.RoomRegistry, handler InboundHandler, logger ports.Logger) *Hub {
	return &Hub{
		auth:       auth,
		presence:   presence,
		rooms:      rooms,
		handler:    handler,
		logger:     logger,
		byEndpoint: make(map[string]*Connection),
		byIdentity: make(map[string]map[string]*Connection),
	}
}

// ServeHTTP upgrades the request to a websocket connection and runs its
// full lifecycle: handshake auth, register, read loop, unregister.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.URL.Query().Get("token")

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	identity, err := h.auth.Verify(token)
	if err != nil {
		_ = writeEvent(ctx, ws, ports.OutboundEvent{Event: OutboundAuthError, Payload: apperrors.Code(err)})
		ws.Close(websocket.StatusPolicyViolation, "auth_error")
		return
	}

	endpoint := uuid.NewString()
	conn := newConnection(ws, identity, endpoint)

	h.register(ctx, conn)
	defer h.unregister(ctx, conn)

	conn.Enqueue(ports.OutboundEvent{Event: OutboundAuthenticated, Payload: map[string]string{"identity": identity}})

	writerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go conn.runWriter(writerCtx)

	h.readLoop(ctx, conn)
}

func writeEvent(ctx context.Context, ws *websocket.Conn, event ports.OutboundEvent) error {
	data, err := jsonx.Marshal(event)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func (h *Hub) register(ctx context.Context, conn *Connection) {
	h.mu.Lock()
	h.byEndpoint[conn.Endpoint] = conn
	if h.byIdentity[conn.Identity] == nil {
		h.byIdentity[conn.Identity] = make(map[string]*Connection)
	}
	h.byIdentity[conn.Identity][conn.Endpoint] = conn
	h.mu.Unlock()

	if err := h.presence.Register(ctx, conn.Identity, conn.Endpoint); err != nil && h.logger != nil {
		h.logger.Warn("presence register failed", ports.Field{Key: "identity", Value: conn.Identity}, ports.Field{Key: "error", Value: err.Error()})
	}
}

func (h *Hub) unregister(ctx context.Context, conn *Connection) {
	h.mu.Lock()
	delete(h.byEndpoint, conn.Endpoint)
	if conns, ok := h.byIdentity[conn.Identity]; ok {
		delete(conns, conn.Endpoint)
		if len(conns) == 0 {
			delete(h.byIdentity, conn.Identity)
		}
	}
	h.mu.Unlock()

	if err := h.presence.Unregister(ctx, conn.Identity, conn.Endpoint); err != nil && h.logger != nil {
		h.logger.Warn("presence unregister failed", ports.Field{Key: "identity", Value: conn.Identity}, ports.Field{Key: "error", Value: err.Error()})
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// readLoop applies inbound events from one connection strictly in arrival
// order (spec §4.6: "single-threaded per connection").
func (h *Hub) readLoop(ctx context.Context, conn *Connection) {
	for {
		_, data, err := conn.ws.Read(ctx)
		if err != nil {
			return
		}

		var env InboundEnvelope
		if err := jsonx.Unmarshal(data, &env); err != nil {
			conn.Enqueue(ports.OutboundEvent{Event: OutboundMessageError, Payload: apperrors.Code(apperrors.ErrValidation)})
			continue
		}

		if err := h.dispatch(ctx, conn, env); err != nil && h.logger != nil {
			h.logger.Debug("inbound event handling failed", ports.Field{Key: "event", Value: string(env.Event)}, ports.Field{Key: "error", Value: err.Error()})
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, conn *Connection, env InboundEnvelope) error {
	switch env.Event {
	case InboundSendMessage:
		var p SendMessagePayload
		if err := jsonx.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return h.handler.HandleSendMessage(ctx, conn.Identity, p)

	case InboundJoinConversation:
		var p ConversationRefPayload
		if err := jsonx.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		if err := h.handler.HandleJoinConversation(ctx, conn.Identity, p.ConversationID); err != nil {
			return err
		}
		conn.Enqueue(ports.OutboundEvent{Event: OutboundConversationJoined, Payload: p})
		return nil

	case InboundLeaveConversation:
		var p ConversationRefPayload
		if err := jsonx.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return h.handler.HandleLeaveConversation(ctx, conn.Identity, p.ConversationID)

	case InboundTyping, InboundStopTyping:
		var p TypingPayload
		if err := jsonx.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		h.handler.HandleTyping(ctx, conn.Identity, p.ConversationID, env.Event == InboundTyping)
		return nil

	case InboundMessageReceived:
		var p MessageReceivedPayload
		if err := jsonx.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		conn.MarkDelivered(p.MessageID)
		return h.handler.HandleMessageReceived(ctx, conn.Identity, p.MessageID)

	case InboundMarkRead:
		var p MarkReadPayload
		if err := jsonx.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return h.handler.HandleMarkRead(ctx, conn.Identity, p.ConversationID, p.MessageID)

	case InboundEditMessage:
		var p EditMessagePayload
		if err := jsonx.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return h.handler.HandleEditMessage(ctx, conn.Identity, p.MessageID, p.Content)

	case InboundDeleteMessage:
		var p DeleteMessagePayload
		if err := jsonx.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return h.handler.HandleDeleteMessage(ctx, conn.Identity, p.MessageID)

	default:
		return fmt.Errorf("%w: unknown inbound event %q", apperrors.ErrValidation, env.Event)
	}
}

// DeliverToIdentity implements ports.Notifier.
func (h *Hub) DeliverToIdentity(_ context.Context, identity string, event ports.OutboundEvent) int {
	h.mu.RLock()
	conns := h.byIdentity[identity]
	targets := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Enqueue(event)
	}
	return len(targets)
}

// DeliverToConversation implements ports.Notifier. It resolves
// conversationID's participants through the Room Registry and delivers
// event to every one of them not listed in exclude.
func (h *Hub) DeliverToConversation(ctx context.Context, conversationID string, event ports.OutboundEvent, exclude ...string) int {
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	members, err := h.rooms.Members(ctx, conversationID)
	if err != nil {
		return 0
	}

	delivered := 0
	for _, identity := range members {
		if _, skip := excluded[identity]; skip {
			continue
		}
		delivered += h.DeliverToIdentity(ctx, identity, event)
	}
	return delivered
}

// Shutdown closes every live connection with goingAway, used by the
// graceful shutdown sequence to drain sockets within a bounded deadline.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.byEndpoint))
	for _, c := range h.byEndpoint {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
