package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/provider"
	"github.com/finlink/finlink/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	svc *service.Service
	cfg *config.Config
	log *logrus.Logger
}

func NewHandler(svc *service.Service, cfg *config.Config, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, cfg: cfg, log: log}
}

// Healthz reports liveness
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			h.log.Errorf("Failed to encode response: %v", err)
		}
	}
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// handleError maps domain errors to HTTP statuses. Ownership failures come
// back as 404 so resource ids are not probeable.
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrForbidden):
		h.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrConnectionConflict),
		errors.Is(err, service.ErrConnectionNotAuthorized):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, provider.ErrProviderUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, "provider unavailable")
	default:
		h.log.Errorf("Unhandled error: %v", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}
