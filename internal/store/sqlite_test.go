package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=journal_mode(WAL)", t.Name())
	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveMessage_IsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	msg := domain.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "hi", Type: domain.MessageTypeText, CreatedAt: time.Now()}
	require.NoError(t, s.SaveMessage(ctx, msg))
	require.NoError(t, s.SaveMessage(ctx, msg))

	got, err := s.FindMessageByID(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hi", got.Content)
}

func TestFindMessageByID_MissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.FindMessageByID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateMessageStatus_RejectsDowngradeFromTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpdateMessageStatus(ctx, "m1", "r1", domain.StatusFailed))
	err := s.UpdateMessageStatus(ctx, "m1", "r1", domain.StatusDelivered)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestUpdateMessageStatus_AllowsForwardProgress(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpdateMessageStatus(ctx, "m1", "r1", domain.StatusSent))
	require.NoError(t, s.UpdateMessageStatus(ctx, "m1", "r1", domain.StatusDelivered))
	require.NoError(t, s.UpdateMessageStatus(ctx, "m1", "r1", domain.StatusRead))

	got, err := s.GetMessageStatus(ctx, "m1", "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, got)
}

func TestUpdateMessageContent_OverwritesContentOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	msg := domain.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "original", Type: domain.MessageTypeText, CreatedAt: time.Now()}
	require.NoError(t, s.SaveMessage(ctx, msg))
	require.NoError(t, s.UpdateMessageContent(ctx, "m1", "edited"))

	got, err := s.FindMessageByID(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "edited", got.Content)
	assert.Nil(t, got.DeletedAt)
}

func TestSoftDeleteMessage_RetainsRowButBlanksContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	msg := domain.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "secret", Type: domain.MessageTypeText, CreatedAt: time.Now()}
	require.NoError(t, s.SaveMessage(ctx, msg))
	require.NoError(t, s.SoftDeleteMessage(ctx, "m1"))

	got, err := s.FindMessageByID(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Content)
	assert.NotNil(t, got.DeletedAt)
}

func TestLoadMessagesByConversation_PaginatesOldestFirstWithHasMore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		msg := domain.Message{
			ID: "m" + string(rune('0'+i)), ConversationID: "c1", SenderID: "u1",
			Content: "x", Type: domain.MessageTypeText, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.SaveMessage(ctx, msg))
	}

	page, err := s.LoadMessagesByConversation(ctx, "c1", time.Now(), 3)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 3)
	assert.True(t, page.HasMore)
	assert.True(t, page.Messages[0].CreatedAt.Before(page.Messages[1].CreatedAt))
}

func TestUpsertConversation_RoundTripsParticipants(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := domain.Conversation{
		ID:   "c1",
		Type: domain.ConversationGroup,
		Participants: []domain.Participant{
			{UserID: "u1", Role: domain.RoleOwner},
			{UserID: "u2", Role: domain.RoleMember},
		},
		LastActivity: time.Now(),
	}
	require.NoError(t, s.UpsertConversation(ctx, conv))

	got, err := s.FindConversationByID(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Participants, 2)
	assert.Equal(t, domain.RoleOwner, got.ParticipantByID("u1").Role)
}

func TestListConversationsByParticipant_ReturnsOnlyMatching(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertConversation(ctx, domain.Conversation{
		ID: "c1", Type: domain.ConversationPrivate,
		Participants: []domain.Participant{{UserID: "u1"}, {UserID: "u2"}},
		LastActivity: time.Now(),
	}))
	require.NoError(t, s.UpsertConversation(ctx, domain.Conversation{
		ID: "c2", Type: domain.ConversationGroup,
		Participants: []domain.Participant{{UserID: "u2"}, {UserID: "u3"}},
		LastActivity: time.Now(),
	}))

	got, err := s.ListConversationsByParticipant(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
}

func TestSetUnreadCount_UpdatesOnlyTargetParticipant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := domain.Conversation{
		ID:   "c1",
		Type: domain.ConversationGroup,
		Participants: []domain.Participant{
			{UserID: "u1"}, {UserID: "u2"},
		},
		LastActivity: time.Now(),
	}
	require.NoError(t, s.UpsertConversation(ctx, conv))
	require.NoError(t, s.SetUnreadCount(ctx, "c1", "u2", 7))

	got, err := s.FindConversationByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.ParticipantByID("u1").UnreadCount)
	assert.Equal(t, int64(7), got.ParticipantByID("u2").UnreadCount)
}

func TestSetLastRead_UnknownParticipantIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := domain.Conversation{ID: "c1", Type: domain.ConversationGroup, Participants: []domain.Participant{{UserID: "u1"}}, LastActivity: time.Now()}
	require.NoError(t, s.UpsertConversation(ctx, conv))

	err := s.SetLastRead(ctx, "c1", "ghost", time.Now())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSaveFile_AndUpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f := domain.File{
		ID: "f1", OriginalName: "a.png", StorageKey: "key/a.png", MimeType: "image/png",
		Size: 100, UploadedBy: "u1", Status: domain.FileUploading, CreatedAt: time.Now(),
	}
	require.NoError(t, s.SaveFile(ctx, f))
	require.NoError(t, s.UpdateFileStatus(ctx, "f1", domain.FileCompleted))

	got, err := s.FindFileByID(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.FileCompleted, got.Status)
}

func TestUpdateFileStatus_RejectsTransitionFromTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f := domain.File{ID: "f1", OriginalName: "a.png", StorageKey: "k", MimeType: "image/png", Size: 1, UploadedBy: "u1", Status: domain.FileFailed, CreatedAt: time.Now()}
	require.NoError(t, s.SaveFile(ctx, f))

	err := s.UpdateFileStatus(ctx, "f1", domain.FileCompleted)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestPing_Succeeds(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
