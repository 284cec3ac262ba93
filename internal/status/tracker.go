// Package status implements the Status Tracker (C10): the sole component
// that moves a message's per-recipient delivery status forward and emits
// the resulting change onto events:status for the Status Consumer Worker
// to relay back to the sender's sockets.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/events"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
)

// Tracker implements markDelivered/markRead/markFailed over the Message
// Store Gateway, enforcing domain.MessageStatus's monotone ordering and
// resetting the recipient's unread counter on a READ transition.
type Tracker struct {
	store   ports.Store
	streams ports.StreamManager
	logger  ports.Logger
}

// New constructs a Tracker.
func New(store ports.Store, streams ports.StreamManager, logger ports.Logger) *Tracker {
	return &Tracker{store: store, streams: streams, logger: logger}
}

// MarkDelivered records a SENT->DELIVERED transition for one recipient.
func (t *Tracker) MarkDelivered(ctx context.Context, messageID, recipientID string) error {
	return t.transition(ctx, messageID, recipientID, domain.StatusDelivered)
}

// MarkRead records a transition to READ and resets the recipient's unread
// counter on the message's conversation.
func (t *Tracker) MarkRead(ctx context.Context, conversationID, messageID, recipientID string) error {
	if err := t.transition(ctx, messageID, recipientID, domain.StatusRead); err != nil {
		return err
	}
	if conversationID == "" {
		return nil
	}
	if err := t.store.SetUnreadCount(ctx, conversationID, recipientID, 0); err != nil {
		return fmt.Errorf("reset unread count: %w", err)
	}
	return t.store.SetLastRead(ctx, conversationID, recipientID, time.Now())
}

// MarkFailed records a terminal FAILED transition, e.g. after a delivery
// attempt definitively cannot be retried further.
func (t *Tracker) MarkFailed(ctx context.Context, messageID, recipientID string) error {
	return t.transition(ctx, messageID, recipientID, domain.StatusFailed)
}

func (t *Tracker) transition(ctx context.Context, messageID, recipientID string, next domain.MessageStatus) error {
	current, err := t.store.GetMessageStatus(ctx, messageID, recipientID)
	if err != nil {
		return fmt.Errorf("load current status: %w", err)
	}

	if current == next {
		return nil // idempotent: already at the requested status.
	}
	if !current.CanTransitionTo(next) {
		return nil // stale/duplicate out-of-order update, silently ignored.
	}

	if err := t.store.UpdateMessageStatus(ctx, messageID, recipientID, next); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	return t.publish(ctx, messageID, recipientID, next)
}

func (t *Tracker) publish(ctx context.Context, messageID, recipientID string, status domain.MessageStatus) error {
	msg, err := t.store.FindMessageByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message for status event: %w", err)
	}
	senderID, conversationID := "", ""
	if msg != nil {
		senderID = msg.SenderID
		conversationID = msg.ConversationID
	}

	payload, err := jsonx.Marshal(events.StatusEvent{
		EventType:      "STATUS_CHANGED",
		MessageID:      messageID,
		ConversationID: conversationID,
		RecipientID:    recipientID,
		SenderID:       senderID,
		Status:         status,
		UpdatedAt:      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("encode events:status: %w", err)
	}
	if _, err := t.streams.Append(ctx, streaming.StreamEventsStatus, payload); err != nil {
		return fmt.Errorf("append events:status: %w", err)
	}
	return nil
}
