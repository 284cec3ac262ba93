// Package store implements the Message Store Gateway (C3): a thin facade
// over a document-style sqlite store. Every exported method is wrapped by
// the caller's circuit breaker; the gateway itself only knows persistence.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements ports.Store backed by modernc.org/sqlite, storing
// conversation participants and file metadata as JSON document columns.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates a new SQLite-backed Message Store Gateway and applies schema.
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping document store: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize document store schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		receiver_id TEXT,
		content TEXT NOT NULL,
		type TEXT NOT NULL,
		attachment_id TEXT,
		created_at INTEGER NOT NULL,
		deleted_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS recipient_status (
		message_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (message_id, recipient_id)
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		participants_json TEXT NOT NULL,
		last_message_ref TEXT,
		last_activity INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_last_activity ON conversations(last_activity);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		original_name TEXT NOT NULL,
		storage_key TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		uploaded_by TEXT NOT NULL,
		conversation_id TEXT,
		message_id TEXT,
		status TEXT NOT NULL,
		metadata_json TEXT NOT NULL,
		download_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_uploaded_by_created ON files(uploaded_by, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.ErrTransientStore
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveMessage inserts msg, or does nothing if a row with the same id already
// exists, satisfying the idempotent-by-id requirement.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg domain.Message) error {
	var deletedAt interface{}
	if msg.DeletedAt != nil {
		deletedAt = msg.DeletedAt.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, type, attachment_id, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		msg.ID, msg.ConversationID, msg.SenderID, nullableString(msg.ReceiverID), msg.Content, string(msg.Type),
		nullableString(msg.AttachmentID), msg.CreatedAt.UnixMilli(), deletedAt,
	)
	if err != nil {
		return translateSQLiteErr(err)
	}
	return nil
}

// FindMessageByID returns the message with id, or nil if absent.
func (s *SQLiteStore) FindMessageByID(ctx context.Context, id string) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, content, type, attachment_id, created_at, deleted_at
		FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

func scanMessage(row *sql.Row) (*domain.Message, error) {
	var msg domain.Message
	var receiverID, attachmentID sql.NullString
	var createdAt int64
	var deletedAt sql.NullInt64
	var msgType string

	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &receiverID, &msg.Content, &msgType, &attachmentID, &createdAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateSQLiteErr(err)
	}

	msg.ReceiverID = receiverID.String
	msg.AttachmentID = attachmentID.String
	msg.Type = domain.MessageType(msgType)
	msg.CreatedAt = time.UnixMilli(createdAt)
	if deletedAt.Valid {
		t := time.UnixMilli(deletedAt.Int64)
		msg.DeletedAt = &t
	}
	return &msg, nil
}

// UpdateMessageStatus upserts the (message, recipient) status row, rejecting
// any transition out of a terminal status.
func (s *SQLiteStore) UpdateMessageStatus(ctx context.Context, messageID, recipientID string, status domain.MessageStatus) error {
	current, err := s.GetMessageStatus(ctx, messageID, recipientID)
	if err != nil {
		return err
	}
	if current != "" && !current.CanTransitionTo(status) {
		return fmt.Errorf("%w: cannot move message %s recipient %s from %s to %s", apperrors.ErrValidation, messageID, recipientID, current, status)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recipient_status (message_id, recipient_id, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id, recipient_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		messageID, recipientID, string(status), time.Now().UnixMilli(),
	)
	if err != nil {
		return translateSQLiteErr(err)
	}
	return nil
}

// GetMessageStatus returns the current status for (messageID, recipientID),
// or "" if no status has been recorded yet.
func (s *SQLiteStore) GetMessageStatus(ctx context.Context, messageID, recipientID string) (domain.MessageStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM recipient_status WHERE message_id = ? AND recipient_id = ?`, messageID, recipientID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", translateSQLiteErr(err)
	}
	return domain.MessageStatus(status), nil
}

// UpdateMessageContent overwrites a message's content in place, used by the
// editMessage socket event; it never touches status or deleted_at.
func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, id, content string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return translateSQLiteErr(err)
	}
	return nil
}

// SoftDeleteMessage blanks content and sets deleted_at, retaining the row.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET content = '', deleted_at = ? WHERE id = ?`, time.Now().UnixMilli(), id)
	if err != nil {
		return translateSQLiteErr(err)
	}
	return nil
}

// LoadMessagesByConversation returns up to limit messages older than before,
// ordered ascending by createdAt, the shape the backfill endpoint needs.
func (s *SQLiteStore) LoadMessagesByConversation(ctx context.Context, conversationID string, before time.Time, limit int) (ports.MessagePage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, content, type, attachment_id, created_at, deleted_at
		FROM messages
		WHERE conversation_id = ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?`, conversationID, before.UnixMilli(), limit+1)
	if err != nil {
		return ports.MessagePage{}, translateSQLiteErr(err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var receiverID, attachmentID sql.NullString
		var createdAt int64
		var deletedAt sql.NullInt64
		var msgType string

		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &receiverID, &msg.Content, &msgType, &attachmentID, &createdAt, &deletedAt); err != nil {
			return ports.MessagePage{}, translateSQLiteErr(err)
		}
		msg.ReceiverID = receiverID.String
		msg.AttachmentID = attachmentID.String
		msg.Type = domain.MessageType(msgType)
		msg.CreatedAt = time.UnixMilli(createdAt)
		if deletedAt.Valid {
			t := time.UnixMilli(deletedAt.Int64)
			msg.DeletedAt = &t
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return ports.MessagePage{}, translateSQLiteErr(err)
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return ports.MessagePage{Messages: msgs, HasMore: hasMore}, nil
}

// UpsertConversation creates or replaces a conversation's participant set.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, conv domain.Conversation) error {
	participantsJSON, err := json.Marshal(conv.Participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, type, participants_json, last_message_ref, last_activity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			participants_json = excluded.participants_json,
			last_message_ref = excluded.last_message_ref,
			last_activity = excluded.last_activity`,
		conv.ID, string(conv.Type), string(participantsJSON), conv.LastMessageRef, conv.LastActivity.UnixMilli(),
	)
	if err != nil {
		return translateSQLiteErr(err)
	}
	return nil
}

// FindConversationByID returns the conversation with id, or nil if absent.
func (s *SQLiteStore) FindConversationByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	var convType, participantsJSON string
	var lastMessageRef sql.NullString
	var lastActivity int64

	err := s.db.QueryRowContext(ctx, `SELECT id, type, participants_json, last_message_ref, last_activity FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &convType, &participantsJSON, &lastMessageRef, &lastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateSQLiteErr(err)
	}

	conv.Type = domain.ConversationType(convType)
	conv.LastMessageRef = lastMessageRef.String
	conv.LastActivity = time.UnixMilli(lastActivity)
	if err := json.Unmarshal([]byte(participantsJSON), &conv.Participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return &conv, nil
}

// ListConversationsByParticipant returns every conversation participantID
// belongs to, ordered by most recent activity first.
func (s *SQLiteStore) ListConversationsByParticipant(ctx context.Context, participantID string) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, type, participants_json, last_message_ref, last_activity FROM conversations ORDER BY last_activity DESC`)
	if err != nil {
		return nil, translateSQLiteErr(err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		var convType, participantsJSON string
		var lastMessageRef sql.NullString
		var lastActivity int64

		if err := rows.Scan(&conv.ID, &convType, &participantsJSON, &lastMessageRef, &lastActivity); err != nil {
			return nil, translateSQLiteErr(err)
		}
		conv.Type = domain.ConversationType(convType)
		conv.LastMessageRef = lastMessageRef.String
		conv.LastActivity = time.UnixMilli(lastActivity)
		if err := json.Unmarshal([]byte(participantsJSON), &conv.Participants); err != nil {
			return nil, fmt.Errorf("decode participants: %w", err)
		}
		if conv.ParticipantByID(participantID) != nil {
			out = append(out, conv)
		}
	}
	return out, rows.Err()
}

// SetUnreadCount sets participantID's unread counter within conversationID.
func (s *SQLiteStore) SetUnreadCount(ctx context.Context, conversationID, participantID string, count int64) error {
	return s.mutateParticipant(ctx, conversationID, participantID, func(p *domain.Participant) {
		p.UnreadCount = count
	})
}

// SetLastRead sets participantID's lastReadAt within conversationID.
func (s *SQLiteStore) SetLastRead(ctx context.Context, conversationID, participantID string, at time.Time) error {
	return s.mutateParticipant(ctx, conversationID, participantID, func(p *domain.Participant) {
		p.LastReadAt = at
	})
}

func (s *SQLiteStore) mutateParticipant(ctx context.Context, conversationID, participantID string, mutate func(p *domain.Participant)) error {
	conv, err := s.FindConversationByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("%w: conversation %s", apperrors.ErrNotFound, conversationID)
	}
	p := conv.ParticipantByID(participantID)
	if p == nil {
		return fmt.Errorf("%w: participant %s not in conversation %s", apperrors.ErrNotFound, participantID, conversationID)
	}
	mutate(p)
	return s.UpsertConversation(ctx, *conv)
}

// SaveFile inserts a file's row; for an existing id it updates only the
// status, metadata and download count.
func (s *SQLiteStore) SaveFile(ctx context.Context, f domain.File) error {
	metadataJSON, err := json.Marshal(f.Metadata)
	if err != nil {
		return fmt.Errorf("encode file metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO files (id, original_name, storage_key, mime_type, size, uploaded_by, conversation_id, message_id, status, metadata_json, download_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			metadata_json = excluded.metadata_json,
			download_count = excluded.download_count`,
		f.ID, f.OriginalName, f.StorageKey, f.MimeType, f.Size, f.UploadedBy,
		nullableString(f.ConversationID), nullableString(f.MessageID), string(f.Status), string(metadataJSON), f.DownloadCount, f.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return translateSQLiteErr(err)
	}
	return nil
}

// FindFileByID returns the file with id, or nil if absent.
func (s *SQLiteStore) FindFileByID(ctx context.Context, id string) (*domain.File, error) {
	var f domain.File
	var conversationID, messageID sql.NullString
	var status, metadataJSON string
	var createdAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, original_name, storage_key, mime_type, size, uploaded_by, conversation_id, message_id, status, metadata_json, download_count, created_at
		FROM files WHERE id = ?`, id).
		Scan(&f.ID, &f.OriginalName, &f.StorageKey, &f.MimeType, &f.Size, &f.UploadedBy, &conversationID, &messageID, &status, &metadataJSON, &f.DownloadCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateSQLiteErr(err)
	}

	f.ConversationID = conversationID.String
	f.MessageID = messageID.String
	f.Status = domain.FileStatus(status)
	f.CreatedAt = time.UnixMilli(createdAt)
	if err := json.Unmarshal([]byte(metadataJSON), &f.Metadata); err != nil {
		return nil, fmt.Errorf("decode file metadata: %w", err)
	}
	return &f, nil
}

// UpdateFileStatus transitions a file's status, rejecting moves out of a
// terminal state.
func (s *SQLiteStore) UpdateFileStatus(ctx context.Context, id string, status domain.FileStatus) error {
	f, err := s.FindFileByID(ctx, id)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("%w: file %s", apperrors.ErrNotFound, id)
	}
	if f.Status == domain.FileFailed || f.Status == domain.FileDeleted {
		return fmt.Errorf("%w: file %s status %s is terminal", apperrors.ErrValidation, id, f.Status)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE files SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return translateSQLiteErr(err)
	}
	return nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
