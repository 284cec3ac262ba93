// Package events defines the JSON wire schemas carried by the named
// streams, shared by the workers and the Status Tracker so producers and
// consumers agree on shape. internal/ingest, which this package imports,
// encodes its wal:pre, wal:post and fallback:messages records with private
// structs of the same JSON shape.
package events

import (
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ingest"
)

// WALPreRecord is the payload appended to wal:pre before a persist attempt.
type WALPreRecord struct {
	ID          string         `json:"id"`
	Payload     ingest.Request `json:"payload"`
	FirstSeenAt time.Time      `json:"firstSeenAt"`
}

// WALPostRecord is the payload appended to wal:post once a message is
// durably saved, marking its wal:pre entry resolved.
type WALPostRecord struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId"`
	StreamID      string    `json:"streamId"`
	PersistedAt   time.Time `json:"persistedAt"`
}

// FallbackRecord is the payload appended to fallback:messages when the
// store is unavailable at ingest time, and re-appended to retry:messages
// on each subsequent failed attempt with Attempt incremented.
type FallbackRecord struct {
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlationId"`
	Payload       ingest.Request `json:"payload"`
	Attempt       int            `json:"attempt"`
}

// NewMessageEvent is the payload appended to events:messages once a message
// is durably saved, for the Message Consumer Worker to fan out over sockets.
type NewMessageEvent struct {
	EventType string         `json:"eventType"`
	Message   domain.Message `json:"message"`
}

// StatusEvent is the payload appended to events:status by the Status
// Tracker whenever a recipient's delivery status changes.
type StatusEvent struct {
	EventType      string               `json:"eventType"`
	MessageID      string               `json:"messageId"`
	ConversationID string               `json:"conversationId"`
	RecipientID    string               `json:"recipientId"`
	SenderID       string               `json:"senderId"`
	Status         domain.MessageStatus `json:"status"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// ConversationUpdatedEvent is the payload appended to events:conversations
// by the Room Registry on membership changes.
type ConversationUpdatedEvent struct {
	ConversationID string    `json:"conversationId"`
	Type           string    `json:"type"`
	Participants   []string  `json:"participants"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
