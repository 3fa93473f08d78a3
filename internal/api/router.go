package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/travelops/importhub/internal/middleware"
	"github.com/travelops/importhub/pkg/logger"
)

// NewRouter mounts every API route on a chi router.
func NewRouter(handler *Handler, log logger.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Logging(log))

	router.Get("/healthz", handler.handleHealth)

	router.Route("/api/imports", func(r chi.Router) {
		r.Post("/", handler.handleUpload)
		r.Get("/", handler.handleListJobs)

		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", handler.handleGetJob)
			r.Get("/preview", handler.handlePreview)
			r.Post("/mapping", handler.handleApplyMapping)
			r.Get("/rows", handler.handleRows)
			r.Put("/rows/status", handler.handleBulkStatus)
			r.Post("/auto-match", handler.handleAutoMatch)
			r.Put("/commit", handler.handleCommit)
			r.Get("/impact", handler.handleImpact)
			r.Get("/errors", handler.handleErrors)
			r.Get("/export", handler.handleExport)
		})
	})

	return router
}
