package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/internal/breaker"
	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal ports.Store test double; only SaveMessage tracks
// call behavior, every other method is a harmless no-op.
type fakeStore struct {
	saveErr   error
	saveCalls int
}

func (f *fakeStore) SaveMessage(context.Context, domain.Message) error {
	f.saveCalls++
	return f.saveErr
}
func (f *fakeStore) FindMessageByID(context.Context, string) (*domain.Message, error) { return nil, nil }
func (f *fakeStore) UpdateMessageStatus(context.Context, string, string, domain.MessageStatus) error {
	return nil
}
func (f *fakeStore) GetMessageStatus(context.Context, string, string) (domain.MessageStatus, error) {
	return "", nil
}
func (f *fakeStore) SoftDeleteMessage(context.Context, string) error { return nil }
func (f *fakeStore) LoadMessagesByConversation(context.Context, string, time.Time, int) (ports.MessagePage, error) {
	return ports.MessagePage{}, nil
}
func (f *fakeStore) UpdateMessageContent(context.Context, string, string) error { return nil }
func (f *fakeStore) UpsertConversation(context.Context, domain.Conversation) error { return nil }
func (f *fakeStore) FindConversationByID(context.Context, string) (*domain.Conversation, error) {
	return nil, nil
}
func (f *fakeStore) ListConversationsByParticipant(context.Context, string) ([]domain.Conversation, error) {
	return nil, nil
}
func (f *fakeStore) SetUnreadCount(context.Context, string, string, int64) error { return nil }
func (f *fakeStore) SetLastRead(context.Context, string, string, time.Time) error { return nil }
func (f *fakeStore) SaveFile(context.Context, domain.File) error                 { return nil }
func (f *fakeStore) FindFileByID(context.Context, string) (*domain.File, error)  { return nil, nil }
func (f *fakeStore) UpdateFileStatus(context.Context, string, domain.FileStatus) error { return nil }
func (f *fakeStore) Ping(context.Context) error                                  { return nil }
func (f *fakeStore) Close() error                                                { return nil }

func TestBreakerGuarded_OpenCircuitSurfacesErrCircuitOpen(t *testing.T) {
	ctx := context.Background()
	b := breaker.New("store", 1, time.Minute, 1)

	_ = b.Execute(func() error { return errors.New("boom") })
	assert.Equal(t, "OPEN", b.GetState())

	inner := &fakeStore{}
	guarded := NewBreakerGuarded(inner, b)

	err := guarded.SaveMessage(ctx, domain.Message{ID: "m1"})
	require.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.Equal(t, 0, inner.saveCalls)
}

func TestBreakerGuarded_ClosedCircuitDelegatesAndPropagatesError(t *testing.T) {
	ctx := context.Background()
	b := breaker.New("store", 5, time.Minute, 1)
	inner := &fakeStore{saveErr: apperrors.ErrTransientStore}
	guarded := NewBreakerGuarded(inner, b)

	err := guarded.SaveMessage(ctx, domain.Message{ID: "m1"})
	assert.ErrorIs(t, err, apperrors.ErrTransientStore)
	assert.Equal(t, 1, inner.saveCalls)
}
