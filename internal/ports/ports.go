// Package ports defines the service interfaces the application wires together
// explicitly from cmd/server/main.go, decoupling the durable pipeline logic
// from its concrete Redis/sqlite/websocket adapters.
package ports

import (
	"context"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
)

// Logger defines the structured logging contract used across the pipeline.
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// Field is a single structured logging key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

// StreamRecordID is the id the broker assigns an appended record.
type StreamRecordID = string

// StreamManager is the typed API over named, capped, consumer-grouped
// append-only streams (C1).
type StreamManager interface {
	// Append writes payload to stream, enforcing the stream's configured
	// MAXLEN (approximate trim), and returns the assigned record id.
	Append(ctx context.Context, stream string, payload []byte) (StreamRecordID, error)

	// ReadGroup creates the consumer group lazily (at "$" unless fromBeginning)
	// and reads up to count new records, blocking up to block.
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration, fromBeginning bool) ([]domain.StreamRecord, error)

	// Ack acknowledges one record, removing it from the group's pending list.
	Ack(ctx context.Context, stream, group, id string) error

	// PendingList returns the group's currently unacknowledged records.
	PendingList(ctx context.Context, stream, group string) ([]PendingRecord, error)

	// ClaimIdle reassigns records idle for at least minIdle to consumer.
	ClaimIdle(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]domain.StreamRecord, error)

	// Length returns the current stream length.
	Length(ctx context.Context, stream string) (int64, error)

	// TrimTo trims stream to approximately maxLen entries.
	TrimTo(ctx context.Context, stream string, maxLen int64) error

	// RangeByTime reads entries between from and to (inclusive), not bound to
	// a consumer group; used for backfill-style range reads.
	RangeByTime(ctx context.Context, stream string, from, to time.Time, count int64) ([]domain.StreamRecord, error)

	// Ping verifies broker connectivity.
	Ping(ctx context.Context) error

	// Close releases broker resources.
	Close() error
}

// PendingRecord describes one record outstanding in a consumer group's PEL.
type PendingRecord struct {
	ID       string
	Consumer string
	Idle     time.Duration
	Attempts int64
}

// MessagePage is a page of messages returned by backfill queries, ordered by
// CreatedAt ascending.
type MessagePage struct {
	Messages []domain.Message
	HasMore  bool
}

// Store is the Message Store Gateway contract (C3): the sole interface the
// rest of the pipeline uses to reach the persistent document store. Every
// concrete implementation must be idempotent on Message.ID.
type Store interface {
	SaveMessage(ctx context.Context, msg domain.Message) error
	FindMessageByID(ctx context.Context, id string) (*domain.Message, error)
	UpdateMessageStatus(ctx context.Context, messageID, recipientID string, status domain.MessageStatus) error
	GetMessageStatus(ctx context.Context, messageID, recipientID string) (domain.MessageStatus, error)
	UpdateMessageContent(ctx context.Context, id, content string) error
	SoftDeleteMessage(ctx context.Context, id string) error
	LoadMessagesByConversation(ctx context.Context, conversationID string, before time.Time, limit int) (MessagePage, error)

	UpsertConversation(ctx context.Context, conv domain.Conversation) error
	FindConversationByID(ctx context.Context, id string) (*domain.Conversation, error)
	ListConversationsByParticipant(ctx context.Context, participantID string) ([]domain.Conversation, error)
	SetUnreadCount(ctx context.Context, conversationID, participantID string, count int64) error
	SetLastRead(ctx context.Context, conversationID, participantID string, at time.Time) error

	SaveFile(ctx context.Context, f domain.File) error
	FindFileByID(ctx context.Context, id string) (*domain.File, error)
	UpdateFileStatus(ctx context.Context, id string, status domain.FileStatus) error

	Ping(ctx context.Context) error
	Close() error
}

// CircuitBreaker guards calls to the Message Store Gateway (C2).
type CircuitBreaker interface {
	Execute(fn func() error) error
	GetState() string
	GetStats() CircuitBreakerStats
	// OnStateChange registers a callback invoked whenever the breaker
	// transitions, so the Worker Supervisor can alert on trips.
	OnStateChange(fn func(from, to string))
}

// CircuitBreakerStats reports point-in-time breaker counters.
type CircuitBreakerStats struct {
	Requests            uint64
	TotalSuccess        uint64
	TotalFailure        uint64
	ConsecutiveFailures uint64
	State               string
}

// Notifier is the subset of the Socket Hub (C6) that workers use to deliver
// server->client events without depending on the hub's connection internals.
type Notifier interface {
	// DeliverToIdentity pushes an outbound event to every socket endpoint
	// currently registered for identity. It returns the number of endpoints
	// the event was actually written to.
	DeliverToIdentity(ctx context.Context, identity string, event OutboundEvent) int
	// DeliverToConversation pushes to every online participant of conv
	// except the excluded identities (typically the sender).
	DeliverToConversation(ctx context.Context, conversationID string, event OutboundEvent, exclude ...string) int
}

// OutboundEvent is the wire envelope of a server->client socket event.
type OutboundEvent struct {
	Event   string
	Payload interface{}
}

// PresenceRegistry is the Presence Registry contract (C4).
type PresenceRegistry interface {
	Register(ctx context.Context, identity, endpoint string) error
	Unregister(ctx context.Context, identity, endpoint string) error
	Heartbeat(ctx context.Context, identity string) error
	List(ctx context.Context, conversationID string) ([]string, error)
	IsOnline(ctx context.Context, identity string) (bool, error)
	Endpoints(ctx context.Context, identity string) ([]string, error)
}

// RoomRegistry is the Room Registry contract (C5).
type RoomRegistry interface {
	Join(ctx context.Context, conversationID, identity string) error
	Leave(ctx context.Context, conversationID, identity string) error
	MembersOnline(ctx context.Context, conversationID string, presence PresenceRegistry) ([]string, error)
	Members(ctx context.Context, conversationID string) ([]string, error)
	CanPost(ctx context.Context, identity, conversationID string) (bool, error)
	CanAdminister(ctx context.Context, identity, conversationID string) (bool, error)
	AddParticipant(ctx context.Context, actor, conversationID, newParticipant string) error
	RemoveParticipant(ctx context.Context, actor, conversationID, target string) error
}

// AlertSink receives operator-facing alerts (DLQ growth, worker death,
// circuit trips). The concrete implementation forwards to Sentry.
type AlertSink interface {
	Alert(ctx context.Context, name string, fields map[string]interface{})
}
