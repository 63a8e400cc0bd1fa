package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stockpulse/internal/handler"
	"stockpulse/internal/httputil"
	authmw "stockpulse/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	NotificationHandler *handler.NotificationHandler
	DeviceTokenHandler  *handler.DeviceTokenHandler
	SSEHandler          *handler.SSEHandler
	ScoreHandler        *handler.ScoreHandler
	JWTSecret           string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Internal ingestion endpoint for the scoring pipeline. Expected to be
	// reachable only inside the cluster, so no user auth here.
	if cfg.ScoreHandler != nil {
		r.Post("/internal/scores/changed", cfg.ScoreHandler.ScoreChanged)
	}

	// Protected routes - require authentication
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", cfg.NotificationHandler.List)
			r.Get("/unread-count", cfg.NotificationHandler.GetUnreadCount)
			r.Patch("/read", cfg.NotificationHandler.MarkRead)
			r.Post("/read-all", cfg.NotificationHandler.MarkAllRead)
			r.Get("/stream", cfg.SSEHandler.Stream)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Post("/token", cfg.DeviceTokenHandler.Register)
			r.Delete("/token", cfg.DeviceTokenHandler.Unregister)
		})
	})

	return r
}
