// Package api exposes the claim engine over HTTP. It is a thin adapter:
// request parsing and status-code mapping only, no claim logic.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"claim.box/config"
	"claim.box/internal/claim"
	"claim.box/internal/crypto"
	"claim.box/internal/models"
)

type Handler struct {
	engine *claim.Engine
	config *config.Config
}

func NewHandler(e *claim.Engine, cfg *config.Config) *Handler {
	return &Handler{
		engine: e,
		config: cfg,
	}
}

type CreateRequest struct {
	Content       string `json:"content"`
	Password      string `json:"password,omitempty"`
	MaxClaims     int    `json:"max_claims,omitempty"`
	OneTime       bool   `json:"one_time,omitempty"`
	TTLMinutes    int    `json:"ttl_minutes,omitempty"`
	BurnAfterView bool   `json:"burn_after_view,omitempty"`
}

type CreateResponse struct {
	ID               string          `json:"id"`
	URL              string          `json:"url"`
	ExpiresAt        time.Time       `json:"expires_at,omitempty"`
	MaxClaims        int             `json:"max_claims"`
	PasswordStrength crypto.Strength `json:"password_strength,omitempty"`
}

type ClaimRequest struct {
	Password string `json:"password,omitempty"`
}

type ClaimResponse struct {
	Content    string `json:"content"`
	ClaimsUsed int    `json:"claims_used"`
	Solved     bool   `json:"solved"`
}

type StatusResponse struct {
	ID               string       `json:"id"`
	Exists           bool         `json:"exists"`
	State            models.State `json:"state"`
	PasswordRequired bool         `json:"password_required,omitempty"`
	ClaimsRemaining  int          `json:"claims_remaining,omitempty"`
	OneTime          bool         `json:"one_time,omitempty"`
	CreatedAt        time.Time    `json:"created_at,omitempty"`
	ExpiresAt        time.Time    `json:"expires_at,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateSecret(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Content == "" {
		h.error(w, http.StatusBadRequest, "content is required")
		return
	}

	params := claim.CreateParams{
		Content:    req.Content,
		Protection: models.ProtectionNone,
		OneTime:    req.OneTime,
	}
	if req.Password != "" {
		params.Protection = models.ProtectionPassword
		params.Password = req.Password
	}

	// MaxClaims defaults and clamps come from server policy. The one-time
	// quota rule is deliberately not patched up here: an explicit
	// conflicting combination must be rejected by the engine.
	if req.MaxClaims == 0 {
		if req.OneTime {
			params.MaxClaims = 1
		} else {
			params.MaxClaims = h.config.Secrets.DefaultClaims
		}
	} else {
		params.MaxClaims = min(req.MaxClaims, h.config.Secrets.MaxClaims)
	}

	if req.BurnAfterView {
		params.Policy = models.ExpiryAfterFirstView
	} else {
		ttl := clampDuration(
			time.Duration(req.TTLMinutes)*time.Minute,
			h.config.Secrets.DefaultTTL,
			h.config.Secrets.MaxTTL,
		)
		params.Policy = models.ExpiryAfterDuration
		params.ExpiresAt = time.Now().Add(ttl)
	}

	created, err := h.engine.Create(r.Context(), params)
	if err != nil {
		h.handleEngineError(w, err)
		return
	}

	h.json(w, http.StatusCreated, CreateResponse{
		ID:               created.ID,
		URL:              h.config.Server.BaseURL + "/s/" + created.ID,
		ExpiresAt:        created.ExpiresAt,
		MaxClaims:        params.MaxClaims,
		PasswordStrength: created.PasswordStrength,
	})
}

func (h *Handler) ClaimSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ClaimRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	reveal, err := h.engine.Claim(r.Context(), id, req.Password)
	if err != nil {
		h.handleEngineError(w, err)
		return
	}

	h.json(w, http.StatusOK, ClaimResponse{
		Content:    reveal.Content,
		ClaimsUsed: reveal.ClaimsUsed,
		Solved:     reveal.Solved,
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	meta, err := h.engine.Metadata(r.Context(), id)
	if err != nil {
		h.handleEngineError(w, err)
		return
	}

	h.json(w, http.StatusOK, StatusResponse{
		ID:               id,
		Exists:           meta.Exists,
		State:            meta.State,
		PasswordRequired: meta.ProtectionRequired,
		ClaimsRemaining:  meta.ClaimsRemaining,
		OneTime:          meta.OneTime,
		CreatedAt:        meta.CreatedAt,
		ExpiresAt:        meta.ExpiresAt,
	})
}

func (h *Handler) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) error(w http.ResponseWriter, status int, message string) {
	h.json(w, status, ErrorResponse{Error: message})
}

func (h *Handler) handleEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, claim.ErrNotFound):
		h.error(w, http.StatusNotFound, "secret not found")
	case errors.Is(err, claim.ErrExpired):
		h.error(w, http.StatusGone, "secret has expired")
	case errors.Is(err, claim.ErrQuotaReached):
		h.error(w, http.StatusGone, "secret claim quota reached")
	case errors.Is(err, claim.ErrPasswordRequired):
		h.error(w, http.StatusUnauthorized, "password required")
	case errors.Is(err, claim.ErrInvalidPassword):
		h.error(w, http.StatusForbidden, "invalid password")
	case errors.Is(err, claim.ErrValidation):
		h.error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, claim.ErrStoreUnavailable):
		h.error(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		h.error(w, http.StatusInternalServerError, "internal error")
	}
}

func clampDuration(val, defaultVal, maxVal time.Duration) time.Duration {
	if val <= 0 {
		return defaultVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
