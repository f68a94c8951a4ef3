package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all alert routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/config", h.HandleGetConfig)
		r.Put("/config", h.HandleUpdateConfig)
		r.Get("/history", h.HandleHistory)
		r.Get("/stats", h.HandleStats)
	})
}
