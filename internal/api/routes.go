package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes builds the router. metricsHandler may be nil.
func (h *Handler) Routes(m *Middleware, metricsHandler http.Handler, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	r.Use(m.RequestID)
	r.Use(middleware.RealIP)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(m.CORS(corsOrigins))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(m.RateLimit(rateLimitRPM))

		// Websocket upgrades need the raw writer, so no timeout or compression.
		r.Get("/stream", h.HandleStream)

		r.Group(func(r chi.Router) {
			r.Use(m.Timeout(30 * time.Second))
			r.Use(middleware.Compress(5, "application/json"))

			r.Get("/timeline", h.GetTimeline)
			r.Get("/analytics", h.GetAnalytics)

			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/score", h.GetScore)
				r.Get("/history", h.GetScoreHistory)
			})

			r.Route("/synergy/partners", func(r chi.Router) {
				r.Get("/", h.ListPartners)
				r.Post("/", h.AddPartner)
				r.Delete("/{id}", h.RemovePartner)
				r.Get("/{id}/feed", h.GetPartnerFeed)
			})
		})
	})

	return r
}
