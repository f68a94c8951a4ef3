// Package handlers provides HTTP handlers for the enriched portfolio view.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"vantage/internal/broker/saxo"
	"vantage/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service *portfolio.Service
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetEnriched handles GET /api/portfolio/enriched
func (h *Handler) HandleGetEnriched(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.EnrichedPortfolio(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build enriched portfolio")
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var authErr *saxo.AuthenticationError
	var rateErr *saxo.RateLimitError

	switch {
	case errors.As(err, &authErr):
		http.Error(w, "Broker session expired", http.StatusUnauthorized)
	case errors.As(err, &rateErr):
		http.Error(w, "Broker rate limited", http.StatusTooManyRequests)
	default:
		http.Error(w, "Failed to fetch portfolio", http.StatusBadGateway)
	}
}
