// Package handlers provides HTTP handlers for Monte Carlo simulations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"vantage/internal/domain"
	"vantage/internal/modules/montecarlo"
)

// Handler handles Monte Carlo HTTP requests
type Handler struct {
	service *montecarlo.Service
	log     zerolog.Logger
}

// NewHandler creates a new Monte Carlo handler
func NewHandler(service *montecarlo.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "montecarlo").Logger(),
	}
}

// HandleSimulate handles POST /api/montecarlo/simulate
func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	var req montecarlo.SimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.SimulateTicker(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandlePortfolioRisk handles POST /api/montecarlo/portfolio-risk
func (h *Handler) HandlePortfolioRisk(w http.ResponseWriter, r *http.Request) {
	var req montecarlo.PortfolioRiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.PortfolioRisk(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleScenarios handles POST /api/montecarlo/scenarios
func (h *Handler) HandleScenarios(w http.ResponseWriter, r *http.Request) {
	var req montecarlo.ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	results, err := h.service.Scenarios(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, results)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	var notFoundErr *domain.NotFoundError
	var insufficientErr *domain.InsufficientDataError

	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &notFoundErr):
		http.Error(w, notFoundErr.Error(), http.StatusNotFound)
	case errors.As(err, &insufficientErr):
		http.Error(w, insufficientErr.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Upstream timeout", http.StatusGatewayTimeout)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
