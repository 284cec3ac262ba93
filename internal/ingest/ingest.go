// Package ingest implements the Ingest Path (C7): ReceiveMessage, the
// single entry point new chat content enters the pipeline through.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
	"github.com/google/uuid"
)

// Request is the validated input to ReceiveMessage.
type Request struct {
	ConversationID string
	Content        string
	AttachmentID   string
	Type           domain.MessageType
	SenderID       string
	ReceiverID     string
}

// Result is what ReceiveMessage replies to the sender with; exactly one of
// Sent/Queued/ErrCode is populated.
type Result struct {
	Sent    *SentAck
	Queued  *QueuedAck
	ErrCode string
}

// SentAck acknowledges a message that reached the Message Store Gateway.
type SentAck struct {
	MessageID string
	Status    string
}

// QueuedAck acknowledges a message rerouted to the fallback queue.
type QueuedAck struct {
	MessageID string
	Status    string
}

type walPreRecord struct {
	ID          string    `json:"id"`
	Payload     Request   `json:"payload"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
}

type walPostRecord struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId"`
	StreamID      string    `json:"streamId"`
	PersistedAt   time.Time `json:"persistedAt"`
}

type fallbackRecord struct {
	ID            string  `json:"id"`
	CorrelationID string  `json:"correlationId"`
	Payload       Request `json:"payload"`
	Attempt       int     `json:"attempt"`
}

type newMessageEvent struct {
	EventType string         `json:"eventType"`
	Message   domain.Message `json:"message"`
}

// Path implements ReceiveMessage over a store gateway (already breaker
// wrapped), the stream manager, and the Room Registry for authorization.
type Path struct {
	streams ports.StreamManager
	store   ports.Store
	rooms   ports.RoomRegistry
	logger  ports.Logger
}

// New constructs a Path.
func New(streams ports.StreamManager, store ports.Store, rooms ports.RoomRegistry, logger ports.Logger) *Path {
	return &Path{streams: streams, store: store, rooms: rooms, logger: logger}
}

// ReceiveMessage implements spec §4.7 steps 1-7.
func (p *Path) ReceiveMessage(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{ErrCode: apperrors.Code(err)}, err
	}

	canPost, err := p.rooms.CanPost(ctx, req.SenderID, req.ConversationID)
	if err != nil {
		return Result{ErrCode: apperrors.Code(err)}, err
	}
	if !canPost {
		err := fmt.Errorf("%w: %s is not a participant of %s", apperrors.ErrAuthorization, req.SenderID, req.ConversationID)
		return Result{ErrCode: apperrors.Code(err)}, err
	}

	id := uuid.NewString()
	correlationID := uuid.NewString()
	firstSeenAt := time.Now()

	if err := p.appendWALPre(ctx, id, req, firstSeenAt); err != nil {
		return Result{ErrCode: apperrors.Code(err)}, err
	}

	msg := domain.Message{
		ID:             id,
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		Type:           req.Type,
		AttachmentID:   req.AttachmentID,
		CreatedAt:      firstSeenAt,
	}

	saveErr := p.store.SaveMessage(ctx, msg)
	switch {
	case saveErr == nil:
		// fall through to post-write logging below.
	case errors.Is(saveErr, apperrors.ErrCircuitOpen) || apperrors.Retryable(saveErr):
		if err := p.appendFallback(ctx, id, correlationID, req); err != nil {
			return Result{ErrCode: apperrors.Code(err)}, err
		}
		return Result{Queued: &QueuedAck{MessageID: id, Status: "QUEUED"}}, nil
	default:
		return Result{ErrCode: apperrors.Code(saveErr)}, saveErr
	}

	streamID, err := p.appendWALPost(ctx, id, correlationID)
	if err != nil {
		return Result{ErrCode: apperrors.Code(err)}, err
	}

	if err := p.publishNewMessage(ctx, msg); err != nil {
		return Result{ErrCode: apperrors.Code(err)}, err
	}

	if err := p.touchConversation(ctx, msg); err != nil && p.logger != nil {
		p.logger.Warn("conversation touch failed", ports.Field{Key: "conversationId", Value: req.ConversationID}, ports.Field{Key: "error", Value: err.Error()})
	}

	_ = streamID
	return Result{Sent: &SentAck{MessageID: id, Status: "SENT"}}, nil
}

func validate(req Request) error {
	if req.ConversationID == "" {
		return fmt.Errorf("%w: conversationId is required", apperrors.ErrValidation)
	}
	if req.SenderID == "" {
		return fmt.Errorf("%w: senderId is required", apperrors.ErrValidation)
	}
	if req.Content == "" && req.AttachmentID == "" {
		return fmt.Errorf("%w: one of content or attachmentId is required", apperrors.ErrValidation)
	}
	if req.Type == "" {
		return fmt.Errorf("%w: type is required", apperrors.ErrValidation)
	}
	return nil
}

func (p *Path) appendWALPre(ctx context.Context, id string, req Request, firstSeenAt time.Time) error {
	payload, err := jsonx.Marshal(walPreRecord{ID: id, Payload: req, FirstSeenAt: firstSeenAt})
	if err != nil {
		return fmt.Errorf("encode wal:pre: %w", err)
	}
	if _, err := p.streams.Append(ctx, streaming.StreamWALPre, payload); err != nil {
		return fmt.Errorf("append wal:pre: %w", err)
	}
	return nil
}

func (p *Path) appendWALPost(ctx context.Context, id, correlationID string) (string, error) {
	streamID, err := p.streams.Append(ctx, streaming.StreamWALPost, mustEncode(walPostRecord{
		ID: id, CorrelationID: correlationID, PersistedAt: time.Now(),
	}))
	if err != nil {
		return "", fmt.Errorf("append wal:post: %w", err)
	}
	return streamID, nil
}

func (p *Path) appendFallback(ctx context.Context, id, correlationID string, req Request) error {
	payload, err := jsonx.Marshal(fallbackRecord{ID: id, CorrelationID: correlationID, Payload: req, Attempt: 0})
	if err != nil {
		return fmt.Errorf("encode fallback:messages: %w", err)
	}
	if _, err := p.streams.Append(ctx, streaming.StreamFallbackMessages, payload); err != nil {
		return fmt.Errorf("append fallback:messages: %w", err)
	}
	return nil
}

func (p *Path) publishNewMessage(ctx context.Context, msg domain.Message) error {
	payload, err := jsonx.Marshal(newMessageEvent{EventType: "NEW_MESSAGE", Message: msg})
	if err != nil {
		return fmt.Errorf("encode events:messages: %w", err)
	}
	if _, err := p.streams.Append(ctx, streaming.StreamEventsMessages, payload); err != nil {
		return fmt.Errorf("append events:messages: %w", err)
	}
	return nil
}

func (p *Path) touchConversation(ctx context.Context, msg domain.Message) error {
	conv, err := p.store.FindConversationByID(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("%w: conversation %s", apperrors.ErrNotFound, msg.ConversationID)
	}
	conv.LastMessageRef = msg.ID
	conv.LastActivity = msg.CreatedAt
	return p.store.UpsertConversation(ctx, *conv)
}

func mustEncode(v interface{}) []byte {
	data, err := jsonx.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
