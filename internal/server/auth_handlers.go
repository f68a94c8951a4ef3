package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vantage/internal/broker/saxo"
	"vantage/internal/secrets"
	"vantage/internal/tokens"
)

// AuthHandlers serves the OAuth surface: login redirect, callback
// exchange, credential status and explicit refresh/logout.
type AuthHandlers struct {
	manager *tokens.Manager
	auth    *saxo.AuthClient
	log     zerolog.Logger
}

// NewAuthHandlers creates the auth handler set
func NewAuthHandlers(manager *tokens.Manager, auth *saxo.AuthClient, log zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		manager: manager,
		auth:    auth,
		log:     log.With().Str("handler", "auth").Logger(),
	}
}

// RegisterRoutes registers all auth routes
func (h *AuthHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", h.HandleLogin)
		r.Get("/callback", h.HandleCallback)
		r.Get("/status", h.HandleStatus)
		r.Post("/refresh", h.HandleRefresh)
		r.Post("/logout", h.HandleLogout)
	})
}

// HandleLogin handles GET /api/auth/login. With redirect=false the URL is
// returned as JSON instead of a 302, for clients driving the flow manually.
func (h *AuthHandlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	authURL, state := h.auth.AuthorizationURL(tokens.DefaultUser, r.URL.Query().Get("state"))

	if r.URL.Query().Get("redirect") == "false" {
		h.writeJSON(w, http.StatusOK, map[string]string{"url": authURL, "state": state})
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback handles GET /api/auth/callback
func (h *AuthHandlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		http.Error(w, "code and state are required", http.StatusBadRequest)
		return
	}

	pair, err := h.auth.ExchangeCode(r.Context(), code, state)
	if err != nil {
		h.log.Warn().Err(err).Msg("Code exchange failed")
		http.Error(w, "Code exchange failed", http.StatusUnauthorized)
		return
	}

	rec := tokens.NewRecordFromPair(pair, saxo.BrokerName, time.Now().UTC())
	if err := h.manager.SaveToken(rec); err != nil {
		h.log.Error().Err(err).Msg("Failed to persist token")
		http.Error(w, "Failed to persist token", http.StatusInternalServerError)
		return
	}

	h.log.Info().Msg("Broker session established")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "authenticated",
		"expires_at": rec.ExpiresAt,
	})
}

// HandleStatus handles GET /api/auth/status
func (h *AuthHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.manager.Health())
}

// HandleRefresh handles POST /api/auth/refresh
func (h *AuthHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	result := h.manager.CheckAndRefresh(r.Context())

	status := http.StatusOK
	if !result.Success {
		switch result.Status {
		case tokens.StatusMissing:
			status = http.StatusNotFound
		case tokens.StatusRefreshFailed:
			status = http.StatusUnauthorized
		}
	}
	h.writeJSON(w, status, result)
}

// HandleLogout handles POST /api/auth/logout: the persisted token is
// destroyed, the session cannot be resumed without a new code flow
func (h *AuthHandlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.DeleteToken(); err != nil && !errors.Is(err, secrets.ErrNotFound) {
		h.log.Error().Err(err).Msg("Failed to delete token")
		http.Error(w, "Failed to delete token", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
