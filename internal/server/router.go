package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-labs/quill/internal/api"
	"github.com/inkwell-labs/quill/internal/api/handlers"
	"github.com/inkwell-labs/quill/internal/api/middleware"
)

type RouterConfig struct {
	AuthValidator   middleware.AuthValidator
	DocumentHandler *handlers.DocumentHandler
	MessageHandler  *handlers.MessageHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Create)
			r.Get("/", cfg.DocumentHandler.List)
			r.Post("/init", cfg.DocumentHandler.InitUpload)
			r.Post("/complete", cfg.DocumentHandler.CompleteUpload)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
			r.Get("/{id}/download", cfg.DocumentHandler.Download)
			r.Post("/{id}/index", cfg.DocumentHandler.TriggerIndex)
			r.Post("/{id}/messages", cfg.MessageHandler.Ask)
			r.Get("/{id}/messages", cfg.MessageHandler.List)
		})
	})

	return r
}
