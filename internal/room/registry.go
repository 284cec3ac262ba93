// Package room implements the Room Registry (C5): conversation membership,
// role-based posting/administration policy, and the CONVERSATION_UPDATED
// fan-out that follows every membership mutation.
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// conversationUpdatedEvent is the payload published on events:conversations
// after any membership mutation.
type conversationUpdatedEvent struct {
	ConversationID string    `json:"conversationId"`
	Type           string    `json:"type"`
	Participants   []string  `json:"participants"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Registry implements ports.RoomRegistry over the Message Store Gateway,
// with a short-lived local cache of conversation membership.
type Registry struct {
	store   ports.Store
	streams ports.StreamManager
	local   cmap.ConcurrentMap[string, domain.Conversation]
}

// New constructs a Registry backed by store for conversation state and
// streams for CONVERSATION_UPDATED publication.
func New(store ports.Store, streams ports.StreamManager) *Registry {
	return &Registry{store: store, streams: streams, local: cmap.New[domain.Conversation]()}
}

func (r *Registry) load(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	if c, ok := r.local.Get(conversationID); ok {
		return &c, nil
	}
	conv, err := r.store.FindConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: conversation %s", apperrors.ErrNotFound, conversationID)
	}
	r.local.Set(conversationID, *conv)
	return conv, nil
}

func (r *Registry) save(ctx context.Context, conv domain.Conversation) error {
	if err := r.store.UpsertConversation(ctx, conv); err != nil {
		return err
	}
	r.local.Set(conv.ID, conv)
	return r.publishConversationUpdated(ctx, conv)
}

func (r *Registry) publishConversationUpdated(ctx context.Context, conv domain.Conversation) error {
	ids := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		ids = append(ids, p.UserID)
	}
	payload, err := json.Marshal(conversationUpdatedEvent{
		ConversationID: conv.ID,
		Type:           "CONVERSATION_UPDATED",
		Participants:   ids,
		UpdatedAt:      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("encode CONVERSATION_UPDATED: %w", err)
	}
	if _, err := r.streams.Append(ctx, streaming.StreamEventsConversations, payload); err != nil {
		return fmt.Errorf("publish CONVERSATION_UPDATED: %w", err)
	}
	return nil
}

// Join adds identity as a MEMBER of conversationID if not already present.
func (r *Registry) Join(ctx context.Context, conversationID, identity string) error {
	conv, err := r.load(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.ParticipantByID(identity) != nil {
		return nil
	}
	conv.Participants = append(conv.Participants, domain.Participant{UserID: identity, Role: domain.RoleMember})
	conv.LastActivity = time.Now()
	return r.save(ctx, *conv)
}

// Leave removes identity from conversationID's participant set.
func (r *Registry) Leave(ctx context.Context, conversationID, identity string) error {
	conv, err := r.load(ctx, conversationID)
	if err != nil {
		return err
	}
	removed := removeParticipant(conv, identity)
	if !removed {
		return nil
	}
	conv.LastActivity = time.Now()
	return r.save(ctx, *conv)
}

func removeParticipant(conv *domain.Conversation, userID string) bool {
	for i, p := range conv.Participants {
		if p.UserID == userID {
			conv.Participants = append(conv.Participants[:i], conv.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// Members returns every participant identity of conversationID.
func (r *Registry) Members(ctx context.Context, conversationID string) ([]string, error) {
	conv, err := r.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

// MembersOnline returns conversationID's participants that presence reports
// as currently online.
func (r *Registry) MembersOnline(ctx context.Context, conversationID string, presence ports.PresenceRegistry) ([]string, error) {
	members, err := r.Members(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	var online []string
	for _, identity := range members {
		isOnline, err := presence.IsOnline(ctx, identity)
		if err != nil {
			return nil, err
		}
		if isOnline {
			online = append(online, identity)
		}
	}
	return online, nil
}

// CanPost reports whether identity may send messages into conversationID:
// any current participant, muted or not, may post (mute only silences their
// own client-side notifications upstream of this registry).
func (r *Registry) CanPost(ctx context.Context, identity, conversationID string) (bool, error) {
	conv, err := r.load(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conv.ParticipantByID(identity) != nil, nil
}

// CanAdminister reports whether identity holds OWNER or ADMIN role in
// conversationID.
func (r *Registry) CanAdminister(ctx context.Context, identity, conversationID string) (bool, error) {
	conv, err := r.load(ctx, conversationID)
	if err != nil {
		return false, err
	}
	p := conv.ParticipantByID(identity)
	if p == nil {
		return false, nil
	}
	return p.Role == domain.RoleOwner || p.Role == domain.RoleAdmin, nil
}

// AddParticipant adds newParticipant to conversationID as a MEMBER. actor
// must be able to administer the conversation.
func (r *Registry) AddParticipant(ctx context.Context, actor, conversationID, newParticipant string) error {
	conv, err := r.load(ctx, conversationID)
	if err != nil {
		return err
	}
	if ok, err := r.CanAdminister(ctx, actor, conversationID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s may not add participants to %s", apperrors.ErrAuthorization, actor, conversationID)
	}
	if conv.ParticipantByID(newParticipant) != nil {
		return nil
	}
	conv.Participants = append(conv.Participants, domain.Participant{UserID: newParticipant, Role: domain.RoleMember})
	conv.LastActivity = time.Now()
	return r.save(ctx, *conv)
}

// RemoveParticipant removes target from conversationID. actor must either be
// target (self-removal always allowed) or able to administer the
// conversation; the owner can never be removed by a non-owner.
func (r *Registry) RemoveParticipant(ctx context.Context, actor, conversationID, target string) error {
	conv, err := r.load(ctx, conversationID)
	if err != nil {
		return err
	}

	targetParticipant := conv.ParticipantByID(target)
	if targetParticipant == nil {
		return nil
	}
	if targetParticipant.Role == domain.RoleOwner && actor != target {
		return fmt.Errorf("%w: %s may not remove the conversation owner", apperrors.ErrAuthorization, actor)
	}
	if actor != target {
		if ok, err := r.CanAdminister(ctx, actor, conversationID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: %s may not remove participants from %s", apperrors.ErrAuthorization, actor, conversationID)
		}
	}

	removeParticipant(conv, target)
	conv.LastActivity = time.Now()
	return r.save(ctx, *conv)
}
