package store

import (
	"context"
	"errors"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/internal/breaker"
	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
)

// BreakerGuarded wraps a ports.Store so every call trips the circuit breaker
// on failure, per the Message Store Gateway's "every call is wrapped in the
// breaker" contract. Reads and writes share one breaker: a struggling store
// should stop taking load on either path.
type BreakerGuarded struct {
	inner   ports.Store
	breaker ports.CircuitBreaker
}

// NewBreakerGuarded returns a ports.Store that executes every call of inner
// through breaker.
func NewBreakerGuarded(inner ports.Store, breaker ports.CircuitBreaker) *BreakerGuarded {
	return &BreakerGuarded{inner: inner, breaker: breaker}
}

func (g *BreakerGuarded) guard(fn func() error) error {
	err := g.breaker.Execute(fn)
	if isBreakerOpenErr(err) {
		return apperrors.ErrCircuitOpen
	}
	return err
}

// isBreakerOpenErr reports whether err came from the breaker itself refusing
// the call, rather than from the wrapped function failing.
func isBreakerOpenErr(err error) bool {
	return errors.Is(err, breaker.ErrOpenState) || errors.Is(err, breaker.ErrHalfOpenLimit)
}

func (g *BreakerGuarded) SaveMessage(ctx context.Context, msg domain.Message) error {
	return g.guard(func() error { return g.inner.SaveMessage(ctx, msg) })
}

func (g *BreakerGuarded) FindMessageByID(ctx context.Context, id string) (*domain.Message, error) {
	var out *domain.Message
	err := g.guard(func() error {
		var innerErr error
		out, innerErr = g.inner.FindMessageByID(ctx, id)
		return innerErr
	})
	return out, err
}

func (g *BreakerGuarded) UpdateMessageStatus(ctx context.Context, messageID, recipientID string, status domain.MessageStatus) error {
	return g.guard(func() error { return g.inner.UpdateMessageStatus(ctx, messageID, recipientID, status) })
}

func (g *BreakerGuarded) GetMessageStatus(ctx context.Context, messageID, recipientID string) (domain.MessageStatus, error) {
	var out domain.MessageStatus
	err := g.guard(func() error {
		var innerErr error
		out, innerErr = g.inner.GetMessageStatus(ctx, messageID, recipientID)
		return innerErr
	})
	return out, err
}

func (g *BreakerGuarded) UpdateMessageContent(ctx context.Context, id, content string) error {
	return g.guard(func() error { return g.inner.UpdateMessageContent(ctx, id, content) })
}

func (g *BreakerGuarded) SoftDeleteMessage(ctx context.Context, id string) error {
	return g.guard(func() error { return g.inner.SoftDeleteMessage(ctx, id) })
}

func (g *BreakerGuarded) LoadMessagesByConversation(ctx context.Context, conversationID string, before time.Time, limit int) (ports.MessagePage, error) {
	var out ports.MessagePage
	err := g.guard(func() error {
		var innerErr error
		out, innerErr = g.inner.LoadMessagesByConversation(ctx, conversationID, before, limit)
		return innerErr
	})
	return out, err
}

func (g *BreakerGuarded) UpsertConversation(ctx context.Context, conv domain.Conversation) error {
	return g.guard(func() error { return g.inner.UpsertConversation(ctx, conv) })
}

func (g *BreakerGuarded) FindConversationByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var out *domain.Conversation
	err := g.guard(func() error {
		var innerErr error
		out, innerErr = g.inner.FindConversationByID(ctx, id)
		return innerErr
	})
	return out, err
}

func (g *BreakerGuarded) ListConversationsByParticipant(ctx context.Context, participantID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := g.guard(func() error {
		var innerErr error
		out, innerErr = g.inner.ListConversationsByParticipant(ctx, participantID)
		return innerErr
	})
	return out, err
}

func (g *BreakerGuarded) SetUnreadCount(ctx context.Context, conversationID, participantID string, count int64) error {
	return g.guard(func() error { return g.inner.SetUnreadCount(ctx, conversationID, participantID, count) })
}

func (g *BreakerGuarded) SetLastRead(ctx context.Context, conversationID, participantID string, at time.Time) error {
	return g.guard(func() error { return g.inner.SetLastRead(ctx, conversationID, participantID, at) })
}

func (g *BreakerGuarded) SaveFile(ctx context.Context, f domain.File) error {
	return g.guard(func() error { return g.inner.SaveFile(ctx, f) })
}

func (g *BreakerGuarded) FindFileByID(ctx context.Context, id string) (*domain.File, error) {
	var out *domain.File
	err := g.guard(func() error {
		var innerErr error
		out, innerErr = g.inner.FindFileByID(ctx, id)
		return innerErr
	})
	return out, err
}

func (g *BreakerGuarded) UpdateFileStatus(ctx context.Context, id string, status domain.FileStatus) error {
	return g.guard(func() error { return g.inner.UpdateFileStatus(ctx, id, status) })
}

func (g *BreakerGuarded) Ping(ctx context.Context) error {
	return g.guard(func() error { return g.inner.Ping(ctx) })
}

func (g *BreakerGuarded) Close() error {
	return g.inner.Close()
}
