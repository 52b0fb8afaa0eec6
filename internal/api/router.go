package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notebridge/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// metrics, if non-nil, counts every request.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler, metrics *HTTPMetrics) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	if metrics != nil {
		r.Use(metrics.Middleware)
	}
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Patch("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Get("/notes/{id}/backlinks", h.Backlinks)

	// Attachments.
	r.Post("/notes/{id}/attachments", h.UploadAttachment)
	r.Get("/notes/{id}/attachments/{attID}", h.DownloadAttachment)

	// Search.
	r.Get("/search", h.Search)

	// Transfer batches.
	r.Post("/export", h.Export)
	r.Post("/import", h.Import)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
