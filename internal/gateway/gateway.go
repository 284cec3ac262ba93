// Package gateway implements the Socket Hub's InboundHandler by composing
// the Ingest Path, Room Registry, and Status Tracker into the single
// business-logic object cmd/server wires the hub to, the same role the
// teacher's stream processor plays between its transport loop and the
// domain operations it drives.
package gateway

import (
	"context"
	"fmt"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ingest"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/socket"
	"github.com/agency-portal/chat-pipeline/internal/status"
)

// Service implements socket.InboundHandler.
type Service struct {
	ingest   *ingest.Path
	rooms    ports.RoomRegistry
	status   *status.Tracker
	store    ports.Store
	notifier ports.Notifier
	logger   ports.Logger
}

// New constructs a Service bound to the pipeline's shared components.
// notifier is set after construction via SetNotifier because the Socket Hub
// that implements it is itself constructed with this Service as its
// InboundHandler, forming a wiring cycle cmd/server breaks by passing the
// hub back in once both exist.
func New(ingestPath *ingest.Path, rooms ports.RoomRegistry, tracker *status.Tracker, store ports.Store, logger ports.Logger) *Service {
	return &Service{ingest: ingestPath, rooms: rooms, status: tracker, store: store, logger: logger}
}

// SetNotifier wires the Socket Hub back into the service once constructed.
func (s *Service) SetNotifier(n ports.Notifier) { s.notifier = n }

// HandleSendMessage implements the sendMessage inbound event by delegating
// to the Ingest Path and fanning the resulting acknowledgement status back
// to the sender only; the newMessage broadcast itself is the Message
// Consumer Worker's job once the event lands on events:messages.
func (s *Service) HandleSendMessage(ctx context.Context, identity string, payload socket.SendMessagePayload) error {
	result, err := s.ingest.ReceiveMessage(ctx, ingest.Request{
		ConversationID: payload.ConversationID,
		Content:        payload.Content,
		AttachmentID:   payload.AttachmentID,
		Type:           domain.MessageType(payload.Type),
		SenderID:       identity,
		ReceiverID:     payload.ReceiverID,
	})
	if err != nil {
		if s.notifier != nil {
			s.notifier.DeliverToIdentity(ctx, identity, ports.OutboundEvent{
				Event:   socket.OutboundMessageError,
				Payload: map[string]string{"code": result.ErrCode, "message": err.Error()},
			})
		}
		return nil
	}

	if s.notifier == nil {
		return nil
	}
	switch {
	case result.Sent != nil:
		s.notifier.DeliverToIdentity(ctx, identity, ports.OutboundEvent{
			Event:   socket.OutboundMessageSent,
			Payload: map[string]string{"messageId": result.Sent.MessageID, "status": result.Sent.Status},
		})
	case result.Queued != nil:
		s.notifier.DeliverToIdentity(ctx, identity, ports.OutboundEvent{
			Event:   socket.OutboundMessageSent,
			Payload: map[string]string{"messageId": result.Queued.MessageID, "status": result.Queued.Status},
		})
	}
	return nil
}

// HandleJoinConversation implements joinConversation.
func (s *Service) HandleJoinConversation(ctx context.Context, identity, conversationID string) error {
	if err := s.rooms.Join(ctx, conversationID, identity); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.DeliverToIdentity(ctx, identity, ports.OutboundEvent{
			Event:   socket.OutboundConversationJoined,
			Payload: map[string]string{"conversationId": conversationID},
		})
	}
	return nil
}

// HandleLeaveConversation implements leaveConversation.
func (s *Service) HandleLeaveConversation(ctx context.Context, identity, conversationID string) error {
	return s.rooms.Leave(ctx, conversationID, identity)
}

// HandleTyping implements typing/stopTyping, relayed to every other online
// participant; it never touches durable state (spec: ephemeral signal).
func (s *Service) HandleTyping(ctx context.Context, identity, conversationID string, isTyping bool) {
	if s.notifier == nil {
		return
	}
	s.notifier.DeliverToConversation(ctx, conversationID, ports.OutboundEvent{
		Event:   socket.OutboundUserTyping,
		Payload: map[string]interface{}{"conversationId": conversationID, "identity": identity, "isTyping": isTyping},
	}, identity)
}

// HandleMessageReceived implements the messageReceived delivery ack,
// advancing the recipient's status to DELIVERED.
func (s *Service) HandleMessageReceived(ctx context.Context, identity, messageID string) error {
	if err := s.status.MarkDelivered(ctx, messageID, identity); err != nil {
		return err
	}
	return s.notifyStatus(ctx, messageID, identity, domain.StatusDelivered)
}

// HandleMarkRead implements markRead, advancing status to READ and resetting
// the conversation's unread counter for identity.
func (s *Service) HandleMarkRead(ctx context.Context, identity, conversationID, messageID string) error {
	if err := s.status.MarkRead(ctx, conversationID, messageID, identity); err != nil {
		return err
	}
	if s.notifier != nil {
		// §4.8.6: conversationMarkedRead goes to the other participants, not
		// back to the reader who just issued markRead.
		s.notifier.DeliverToConversation(ctx, conversationID, ports.OutboundEvent{
			Event:   socket.OutboundConversationMarkedRead,
			Payload: map[string]string{"conversationId": conversationID, "readBy": identity, "upToMessageId": messageID},
		}, identity)
	}
	return s.notifyStatus(ctx, messageID, identity, domain.StatusRead)
}

// HandleEditMessage implements editMessage: only the original sender may
// edit, and only while the message has not been soft-deleted.
func (s *Service) HandleEditMessage(ctx context.Context, identity, messageID, content string) error {
	msg, err := s.store.FindMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("%w: message %s", apperrors.ErrNotFound, messageID)
	}
	if msg.SenderID != identity {
		return fmt.Errorf("%w: %s may not edit a message sent by %s", apperrors.ErrAuthorization, identity, msg.SenderID)
	}
	if msg.DeletedAt != nil {
		return fmt.Errorf("%w: message %s was deleted", apperrors.ErrValidation, messageID)
	}
	if err := s.store.UpdateMessageContent(ctx, messageID, content); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.DeliverToConversation(ctx, msg.ConversationID, ports.OutboundEvent{
			Event:   socket.OutboundNewMessage,
			Payload: map[string]string{"messageId": messageID, "content": content, "edited": "true"},
		})
	}
	return nil
}

// HandleDeleteMessage implements deleteMessage: only the original sender
// may delete, soft-deleting so the history still reflects the deletion.
func (s *Service) HandleDeleteMessage(ctx context.Context, identity, messageID string) error {
	msg, err := s.store.FindMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("%w: message %s", apperrors.ErrNotFound, messageID)
	}
	if msg.SenderID != identity {
		return fmt.Errorf("%w: %s may not delete a message sent by %s", apperrors.ErrAuthorization, identity, msg.SenderID)
	}
	if err := s.store.SoftDeleteMessage(ctx, messageID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.DeliverToConversation(ctx, msg.ConversationID, ports.OutboundEvent{
			Event:   socket.OutboundMessageStatusChanged,
			Payload: map[string]string{"messageId": messageID, "status": string(domain.StatusDeleted)},
		})
	}
	return nil
}

func (s *Service) notifyStatus(ctx context.Context, messageID, recipientID string, status domain.MessageStatus) error {
	if s.notifier == nil {
		return nil
	}
	msg, err := s.store.FindMessageByID(ctx, messageID)
	if err != nil || msg == nil {
		return nil
	}
	s.notifier.DeliverToIdentity(ctx, msg.SenderID, ports.OutboundEvent{
		Event:   socket.OutboundMessageStatusChanged,
		Payload: map[string]string{"messageId": messageID, "recipientId": recipientID, "status": string(status)},
	})
	return nil
}
