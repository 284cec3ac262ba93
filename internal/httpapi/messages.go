package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ingest"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
)

type postMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	ReceiverID     string `json:"receiverId,omitempty"`
	AttachmentID   string `json:"attachmentId,omitempty"`
}

// PostMessage implements "POST /messages — alternative ingestion path, same
// contract as sendMessage" (spec.md §6).
func (a *API) PostMessage(w http.ResponseWriter, r *http.Request) {
	var body postMessageRequest
	if err := jsonx.Unmarshal(readBody(r), &body); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrValidation)
		return
	}

	req := ingest.Request{
		ConversationID: body.ConversationID,
		Content:        body.Content,
		AttachmentID:   body.AttachmentID,
		Type:           domain.MessageType(body.Type),
		SenderID:       identityFrom(r),
		ReceiverID:     body.ReceiverID,
	}

	result, err := a.ingest.ReceiveMessage(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	switch {
	case result.Sent != nil:
		writeJSON(w, http.StatusCreated, map[string]string{"messageId": result.Sent.MessageID, "status": result.Sent.Status})
	case result.Queued != nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"messageId": result.Queued.MessageID, "status": result.Queued.Status})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: result.ErrCode, Message: "message could not be processed"})
	}
}

// ListMessages implements "GET /messages?conversationId=&before=&limit="
// (spec.md §6, backfill pagination scenario of spec.md §8).
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, apperrors.ErrValidation)
		return
	}

	before := time.Now()
	if v := r.URL.Query().Get("before"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, apperrors.ErrValidation)
			return
		}
		before = parsed
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, apperrors.ErrValidation)
			return
		}
		limit = parsed
	}

	page, err := a.store.LoadMessagesByConversation(r.Context(), conversationID, before, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": newMessageDTOs(page.Messages),
		"hasMore":  page.HasMore,
	})
}
