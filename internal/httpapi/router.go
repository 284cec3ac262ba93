// Package httpapi implements the HTTP surface the spec treats as an
// alternative, equally-authoritative entry point into the Resilient Message
// Pipeline: message ingestion, conversation/message backfill, file upload,
// and the /health and /stats operational endpoints.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/filestore"
	"github.com/agency-portal/chat-pipeline/internal/ingest"
	"github.com/agency-portal/chat-pipeline/internal/metrics"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// API holds every dependency the HTTP handlers call into.
type API struct {
	ingest      *ingest.Path
	store       ports.Store
	streams     ports.StreamManager
	files       *filestore.Disk
	metrics     *metrics.Registry
	logger      ports.Logger
	maxFileSize int64
}

// New constructs an API.
func New(ingestPath *ingest.Path, store ports.Store, streams ports.StreamManager, files *filestore.Disk, reg *metrics.Registry, logger ports.Logger, maxFileSize int64) *API {
	return &API{ingest: ingestPath, store: store, streams: streams, files: files, metrics: reg, logger: logger, maxFileSize: maxFileSize}
}

// NewRouter builds the chi.Mux exposing the pipeline's HTTP surface. auth
// verifies the Bearer token on every route except /health and /stats.
func NewRouter(a *API, auth identityVerifier) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if a.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return metrics.Middleware(a.metrics, "", next)
		})
	}

	r.Get("/health", a.Health)
	if a.metrics != nil {
		r.Get("/stats", a.metrics.Handler().ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireIdentity(auth))

		r.Post("/messages", a.PostMessage)
		r.Get("/messages", a.ListMessages)

		r.Get("/conversations", a.ListConversations)
		r.Get("/conversations/{id}", a.GetConversation)

		r.Post("/files", a.PostFile)
		r.Get("/files/{id}", a.GetFile)
		r.Get("/files/{id}/download", a.DownloadFile)
	})

	return r
}

func readBody(r *http.Request) []byte {
	defer r.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	return data
}

// Health aggregates a store ping and a stream broker ping into a single
// degraded/ok status (spec.md §6: "GET /health, GET /stats").
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	checks := map[string]string{}

	if err := a.store.Ping(ctx); err != nil {
		status = "degraded"
		checks["store"] = err.Error()
	} else {
		checks["store"] = "ok"
	}

	if err := a.streams.Ping(ctx); err != nil {
		status = "degraded"
		checks["streams"] = err.Error()
	} else {
		checks["streams"] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{"status": status, "checks": checks})
}
