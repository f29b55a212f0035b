package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/courtside/mailer/internal/metrics"
)

// WebhookRoutes mounts the provider callback endpoint. *webhook.Handler
// implements it.
type WebhookRoutes interface {
	RegisterRoutes(r chi.Router)
}

// SetupRoutes configures all HTTP routes. The webhook and health checker may
// be nil.
func SetupRoutes(h *Handlers, wh WebhookRoutes, health *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)
	if health != nil {
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	if wh != nil {
		wh.RegisterRoutes(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/emails/send", h.SendEmail)
		r.Post("/emails/batch", h.SendBatch)
		r.Post("/templates/{key}/preview", h.PreviewTemplate)

		r.Get("/sends", h.ListSends)
		r.Get("/sends/{id}/events", h.ListSendEvents)

		if h.publisher != nil {
			r.Post("/campaigns/dispatch", h.DispatchCampaign)
		}
	})

	return r
}
