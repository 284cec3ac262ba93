package httpapi

import (
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
)

// messageDTO is the camelCase wire shape for a domain.Message, independent
// of domain's own Go-exported field names.
type messageDTO struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId,omitempty"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	AttachmentID   string    `json:"attachmentId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newMessageDTO(m domain.Message) messageDTO {
	return messageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		Type:           string(m.Type),
		AttachmentID:   m.AttachmentID,
		CreatedAt:      m.CreatedAt,
	}
}

func newMessageDTOs(msgs []domain.Message) []messageDTO {
	out := make([]messageDTO, len(msgs))
	for i, m := range msgs {
		out[i] = newMessageDTO(m)
	}
	return out
}

type participantDTO struct {
	UserID      string    `json:"userId"`
	Role        string    `json:"role"`
	UnreadCount int64     `json:"unreadCount"`
	LastReadAt  time.Time `json:"lastReadAt,omitempty"`
	IsMuted     bool      `json:"isMuted"`
	IsArchived  bool      `json:"isArchived"`
}

type conversationDTO struct {
	ID             string           `json:"id"`
	Type           string           `json:"type"`
	Participants   []participantDTO `json:"participants"`
	LastMessageRef string           `json:"lastMessageRef,omitempty"`
	LastActivity   time.Time        `json:"lastActivity"`
}

func newConversationDTO(c domain.Conversation) conversationDTO {
	participants := make([]participantDTO, len(c.Participants))
	for i, p := range c.Participants {
		participants[i] = participantDTO{
			UserID:      p.UserID,
			Role:        string(p.Role),
			UnreadCount: p.UnreadCount,
			LastReadAt:  p.LastReadAt,
			IsMuted:     p.IsMuted,
			IsArchived:  p.IsArchived,
		}
	}
	return conversationDTO{
		ID:             c.ID,
		Type:           string(c.Type),
		Participants:   participants,
		LastMessageRef: c.LastMessageRef,
		LastActivity:   c.LastActivity,
	}
}

type fileDTO struct {
	ID             string `json:"id"`
	OriginalName   string `json:"originalName"`
	MimeType       string `json:"mimeType"`
	Size           int64  `json:"size"`
	UploadedBy     string `json:"uploadedBy"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	Status         string `json:"status"`
	DownloadCount  int64  `json:"downloadCount"`
}

func newFileDTO(f domain.File) fileDTO {
	return fileDTO{
		ID:             f.ID,
		OriginalName:   f.OriginalName,
		MimeType:       f.MimeType,
		Size:           f.Size,
		UploadedBy:     f.UploadedBy,
		ConversationID: f.ConversationID,
		MessageID:      f.MessageID,
		Status:         string(f.Status),
		DownloadCount:  f.DownloadCount,
	}
}
