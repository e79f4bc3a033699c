package handler

import (
	"net/http"

	"github.com/finlink/finlink/internal/middleware"
	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/service"
	"github.com/gorilla/mux"
)

// CreateTransaction records a manual transaction
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var input service.ManualTransactionInput
	if !h.decodeJSON(w, r, &input) {
		return
	}
	tx, err := h.svc.CreateManualTransaction(r.Context(), middleware.UserID(r.Context()), input)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, tx)
}

// UpdateTransaction applies a user edit to a transaction
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var patch service.TransactionPatch
	if !h.decodeJSON(w, r, &patch) {
		return
	}
	tx, err := h.svc.UpdateUserTransaction(r.Context(), middleware.UserID(r.Context()),
		mux.Vars(r)["id"], patch)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, tx)
}

// ListTransferSuggestions returns open medium-confidence transfer pairs
func (h *Handler) ListTransferSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.svc.ListTransferSuggestions(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.handleError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []*models.TransferSuggestion{}
	}
	h.respondJSON(w, http.StatusOK, suggestions)
}

// ConfirmTransferSuggestion links the suggested pair as a transfer
func (h *Handler) ConfirmTransferSuggestion(w http.ResponseWriter, r *http.Request) {
	err := h.svc.ConfirmTransferSuggestion(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

// DismissTransferSuggestion closes a suggestion without linking
func (h *Handler) DismissTransferSuggestion(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DismissTransferSuggestion(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

// UnlinkTransfer dissolves a transfer group
func (h *Handler) UnlinkTransfer(w http.ResponseWriter, r *http.Request) {
	err := h.svc.UnlinkTransfer(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["groupID"])
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}
