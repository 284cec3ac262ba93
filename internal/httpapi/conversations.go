package httpapi

import (
	"net/http"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/go-chi/chi/v5"
)

// ListConversations implements "GET /conversations" (spec.md §6), returning
// every conversation the caller's verified identity participates in.
func (a *API) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := a.store.ListConversationsByParticipant(r.Context(), identityFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]conversationDTO, len(convs))
	for i, c := range convs {
		out[i] = newConversationDTO(c)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": out})
}

// GetConversation implements "GET /conversations/:id" (spec.md §6).
func (a *API) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conv, err := a.store.FindConversationByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, apperrors.ErrNotFound)
		return
	}
	if conv.ParticipantByID(identityFrom(r)) == nil {
		writeError(w, http.StatusForbidden, apperrors.ErrAuthorization)
		return
	}

	writeJSON(w, http.StatusOK, newConversationDTO(*conv))
}
