// Package domain contains the core entities of the resilient message pipeline:
// messages, conversations, files, and the internal stream-record/presence types
// that the pipeline uses to reconstruct state after a crash.
package domain

import "time"

// MessageType distinguishes the kind of content carried by a Message.
type MessageType string

// Supported message types.
const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeFile   MessageType = "FILE"
	MessageTypeSystem MessageType = "SYSTEM"
)

// MessageStatus is the per-(message,recipient) delivery status.
type MessageStatus string

// Supported message statuses. SENT -> DELIVERED -> READ is the only forward
// path; FAILED and DELETED are terminal and never transition further.
const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
	StatusFailed    MessageStatus = "FAILED"
	StatusDeleted   MessageStatus = "DELETED"
)

// statusRank gives the monotone ordering used to reject downgrades.
var statusRank = map[MessageStatus]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
	StatusFailed:    3,
	StatusDeleted:   3,
}

// IsTerminal reports whether status is a sink state that forbids any further
// transition (FAILED, DELETED).
func (s MessageStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusDeleted
}

// CanTransitionTo reports whether moving from s to next is a legal status
// transition under the SENT < DELIVERED < READ ordering, with FAILED/DELETED
// as terminal sinks reachable from any non-terminal state but never left.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	return statusRank[next] >= statusRank[s]
}

// Message is the durable unit of chat content.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string // optional, empty for group/broadcast fan-out
	Content        string
	Type           MessageType
	AttachmentID   string
	CreatedAt      time.Time
	DeletedAt      *time.Time
}

// RecipientStatus tracks delivery/read state for one (message, recipient) pair.
type RecipientStatus struct {
	MessageID   string
	RecipientID string
	Status      MessageStatus
	UpdatedAt   time.Time
}

// ConversationType distinguishes private, group, and broadcast conversations.
type ConversationType string

// Supported conversation types.
const (
	ConversationPrivate   ConversationType = "PRIVATE"
	ConversationGroup     ConversationType = "GROUP"
	ConversationBroadcast ConversationType = "BROADCAST"
)

// ParticipantRole is a participant's role within a conversation.
type ParticipantRole string

// Supported participant roles.
const (
	RoleOwner  ParticipantRole = "OWNER"
	RoleAdmin  ParticipantRole = "ADMIN"
	RoleMember ParticipantRole = "MEMBER"
)

// Participant captures one member's state within a Conversation.
type Participant struct {
	UserID      string
	Role        ParticipantRole
	LastReadAt  time.Time
	UnreadCount int64
	IsMuted     bool
	IsArchived  bool
}

// Conversation groups participants around a shared message history.
type Conversation struct {
	ID             string
	Type           ConversationType
	Participants   []Participant
	LastMessageRef string
	LastActivity   time.Time
}

// ParticipantByID returns a pointer to the participant record with the given
// user id, or nil if the user is not a participant.
func (c *Conversation) ParticipantByID(userID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// FileStatus is the lifecycle state of an uploaded file.
type FileStatus string

// Supported file statuses. Monotone through the listed order except the
// terminal FAILED/DELETED states.
const (
	FileUploading  FileStatus = "UPLOADING"
	FileProcessing FileStatus = "PROCESSING"
	FileCompleted  FileStatus = "COMPLETED"
	FileFailed     FileStatus = "FAILED"
	FileDeleted    FileStatus = "DELETED"
)

// FileMetadata is a tagged union of extraction results per media category.
// Only one of the pointer fields is normally populated; extraction itself is
// delegated to the out-of-scope media pipeline, the pipeline only stores
// whatever that collaborator reports.
type FileMetadata struct {
	Technical  *TechnicalMetadata
	Content    *ContentMetadata
	Processing *ProcessingMetadata
	Security   *SecurityMetadata
	Usage      *UsageMetadata
}

// TechnicalMetadata describes format-level facts about a file.
type TechnicalMetadata struct {
	Width, Height int
	DurationMs    int64
	Codec         string
}

// ContentMetadata describes derived content facts (thumbnails, extracted text).
type ContentMetadata struct {
	ThumbnailKey  string
	ExtractedText string
}

// ProcessingMetadata tracks the out-of-scope media pipeline's progress.
type ProcessingMetadata struct {
	Stage     string
	Error     string
	UpdatedAt time.Time
}

// SecurityMetadata holds scan results for the uploaded file.
type SecurityMetadata struct {
	ScannedAt time.Time
	Clean     bool
	Engine    string
}

// UsageMetadata tracks consumption counters for a file.
type UsageMetadata struct {
	DownloadCount int64
	LastAccessAt  time.Time
}

// File is an uploaded attachment referenced by messages.
type File struct {
	ID             string
	OriginalName   string
	StorageKey     string
	MimeType       string
	Size           int64
	UploadedBy     string
	ConversationID string
	MessageID      string
	Status         FileStatus
	Metadata       FileMetadata
	DownloadCount  int64
	CreatedAt      time.Time
}

// StreamRecordKind identifies which named stream a StreamRecord belongs to
// conceptually (the record itself travels inside one physical stream entry).
type StreamRecordKind string

// Supported stream record kinds, one per named stream in the registry.
const (
	KindWALPre            StreamRecordKind = "WAL_PRE"
	KindWALPost           StreamRecordKind = "WAL_POST"
	KindRetry             StreamRecordKind = "RETRY"
	KindFallback          StreamRecordKind = "FALLBACK"
	KindDLQ               StreamRecordKind = "DLQ"
	KindEventMessage      StreamRecordKind = "EVENT_MESSAGE"
	KindEventStatus       StreamRecordKind = "EVENT_STATUS"
	KindEventConversation StreamRecordKind = "EVENT_CONVERSATION"
	KindEventFile         StreamRecordKind = "EVENT_FILE"
)

// StreamRecord is the unit of work flowing through the append-only streams.
type StreamRecord struct {
	StreamID      string // assigned by the Stream Manager on append
	Kind          StreamRecordKind
	Payload       []byte // JSON-encoded
	Attempt       int
	FirstSeenAt   time.Time
	CorrelationID string
}

// PresenceEntry tracks one identity's live socket endpoints.
type PresenceEntry struct {
	Identity        string
	SocketEndpoints []string
	LastHeartbeat   time.Time
	ProcessID       string
}
