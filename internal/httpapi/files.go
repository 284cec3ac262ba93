package httpapi

import (
	"io"
	"net/http"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PostFile implements "POST /files (multipart)" (spec.md §6). Storage itself
// is delegated to the out-of-scope attachment backend (here, a local-disk
// stand-in); this handler only records the resulting File document.
func (a *API) PostFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(a.maxFileSize); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrValidation)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrValidation)
		return
	}
	defer file.Close()

	if header.Size <= 0 || header.Size > a.maxFileSize {
		writeError(w, http.StatusBadRequest, apperrors.ErrValidation)
		return
	}

	storageKey, size, err := a.files.Put(r.Context(), io.LimitReader(file, a.maxFileSize))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	f := domain.File{
		ID:             uuid.NewString(),
		OriginalName:   header.Filename,
		StorageKey:     storageKey,
		MimeType:       header.Header.Get("Content-Type"),
		Size:           size,
		UploadedBy:     identityFrom(r),
		ConversationID: r.FormValue("conversationId"),
		Status:         domain.FileCompleted,
	}
	if err := a.store.SaveFile(r.Context(), f); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, newFileDTO(f))
}

// GetFile implements "GET /files/:id" (spec.md §6).
func (a *API) GetFile(w http.ResponseWriter, r *http.Request) {
	f, err := a.store.FindFileByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, apperrors.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newFileDTO(*f))
}

// DownloadFile implements "GET /files/:id/download" (spec.md §6).
func (a *API) DownloadFile(w http.ResponseWriter, r *http.Request) {
	f, err := a.store.FindFileByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if f == nil || f.Status == domain.FileDeleted {
		writeError(w, http.StatusNotFound, apperrors.ErrNotFound)
		return
	}

	rc, err := a.files.Open(r.Context(), f.StorageKey)
	if err != nil {
		writeError(w, http.StatusNotFound, apperrors.ErrNotFound)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+f.OriginalName+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
