// Package handlers provides HTTP handlers for the trading journal.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vantage/internal/domain"
	"vantage/internal/modules/journal"
)

// Handler handles journal HTTP requests
type Handler struct {
	service *journal.Service
	log     zerolog.Logger
}

// NewHandler creates a new journal handler
func NewHandler(service *journal.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "journal").Logger(),
	}
}

// HandleCreateTrade handles POST /api/journal/trades
func (h *Handler) HandleCreateTrade(w http.ResponseWriter, r *http.Request) {
	var req journal.CreateTradeInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateTrade(req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, created)
}

// HandleListTrades handles GET /api/journal/trades
func (h *Handler) HandleListTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	status := journal.Status(r.URL.Query().Get("status"))
	trades, err := h.service.ListTrades(status, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"count":  len(trades),
	})
}

// HandleGetTrade handles GET /api/journal/trades/{id}
func (h *Handler) HandleGetTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.service.GetTrade(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, trade)
}

// ActivateRequest carries the fill price for a planned trade
type ActivateRequest struct {
	EntryPrice float64 `json:"entry_price"`
}

// HandleActivateTrade handles POST /api/journal/trades/{id}/activate
func (h *Handler) HandleActivateTrade(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	trade, err := h.service.Activate(chi.URLParam(r, "id"), req.EntryPrice)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, trade)
}

// HandleCloseTrade handles POST /api/journal/trades/{id}/close
func (h *Handler) HandleCloseTrade(w http.ResponseWriter, r *http.Request) {
	var req journal.CloseInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	trade, err := h.service.Close(chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, trade)
}

// HandleCancelTrade handles POST /api/journal/trades/{id}/cancel
func (h *Handler) HandleCancelTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.service.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, trade)
}

// HandleDeleteTrade handles DELETE /api/journal/trades/{id}
func (h *Handler) HandleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(id); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// HandleStats handles GET /api/journal/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute journal stats")
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
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

	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &notFoundErr):
		http.Error(w, notFoundErr.Error(), http.StatusNotFound)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
