package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all journal routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/journal", func(r chi.Router) {
		r.Get("/trades", h.HandleListTrades)
		r.Post("/trades", h.HandleCreateTrade)
		r.Get("/trades/{id}", h.HandleGetTrade)
		r.Delete("/trades/{id}", h.HandleDeleteTrade)
		r.Post("/trades/{id}/activate", h.HandleActivateTrade)
		r.Post("/trades/{id}/close", h.HandleCloseTrade)
		r.Post("/trades/{id}/cancel", h.HandleCancelTrade)
		r.Get("/stats", h.HandleStats)
	})
}
