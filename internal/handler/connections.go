package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/finlink/finlink/internal/middleware"
	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/provider"
	"github.com/finlink/finlink/internal/utils"
	"github.com/gorilla/mux"
)

// CreateLink starts a link session with a provider
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	conn, err := h.svc.InitiateLink(r.Context(), middleware.UserID(r.Context()), req.Provider)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, conn)
}

// CompleteLink finishes the link handshake after the user returns from the
// provider's consent flow.
func (h *Handler) CompleteLink(w http.ResponseWriter, r *http.Request) {
	connectionID := mux.Vars(r)["id"]
	conn, accounts, err := h.svc.CompleteLink(r.Context(), middleware.UserID(r.Context()), connectionID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"connection": conn,
		"accounts":   accounts,
	})
}

// ListLinks returns all of the user's connections
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	conns, err := h.svc.ListConnections(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.handleError(w, err)
		return
	}
	if conns == nil {
		conns = []*models.Connection{}
	}
	h.respondJSON(w, http.StatusOK, conns)
}

// RevokeLink revokes a connection. Revoking an already-terminal connection
// succeeds silently.
func (h *Handler) RevokeLink(w http.ResponseWriter, r *http.Request) {
	connectionID := mux.Vars(r)["id"]
	if err := h.svc.Revoke(r.Context(), middleware.UserID(r.Context()), connectionID); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

// SyncLink triggers an on-demand sync of a connection
func (h *Handler) SyncLink(w http.ResponseWriter, r *http.Request) {
	connectionID := mux.Vars(r)["id"]
	conn, err := h.svc.ListConnections(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.handleError(w, err)
		return
	}
	owned := false
	for _, c := range conn {
		if c.ID == connectionID {
			owned = true
			break
		}
	}
	if !owned {
		h.respondError(w, http.StatusNotFound, "not found")
		return
	}
	result, err := h.svc.Sync(r.Context(), connectionID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// ProviderWebhook receives link lifecycle callbacks from a provider. The
// request is authenticated by an HMAC signature over the raw body; the
// connection is located by session fingerprint, never by caller-supplied ids.
func (h *Handler) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	providerName := mux.Vars(r)["provider"]

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	secret, ok := h.cfg.WebhookSecret(providerName)
	if !ok {
		h.respondError(w, http.StatusNotFound, "not found")
		return
	}
	signature := r.Header.Get("X-Signature")
	if !utils.VerifyHMAC(string(body), signature, []byte(secret)) {
		h.respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload provider.CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.svc.ObserveCallback(r.Context(), providerName, payload); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}
