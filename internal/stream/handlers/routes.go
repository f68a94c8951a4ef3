package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all stream routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/stream", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)
		r.Post("/mode", h.HandleSetMode)
		r.Post("/subscribe", h.HandleSubscribe)
		r.Delete("/subscribe/{ticker}", h.HandleUnsubscribe)
	})
}
