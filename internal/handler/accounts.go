package handler

import (
	"net/http"
	"time"

	"github.com/finlink/finlink/internal/middleware"
	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/service"
	"github.com/gorilla/mux"
)

// parseDate accepts a date-only or RFC 3339 query value; empty means unset.
func parseDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// ListAccounts returns all of the user's accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.handleError(w, err)
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	h.respondJSON(w, http.StatusOK, accounts)
}

// CreateAccount creates a manual account
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var input service.ManualAccountInput
	if !h.decodeJSON(w, r, &input) {
		return
	}
	account, err := h.svc.CreateManualAccount(r.Context(), middleware.UserID(r.Context()), input)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, account)
}

// GetAccount returns one of the user's accounts
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.svc.GetOwnedAccount(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, account)
}

// ListAccountTransactions returns an account's transactions, optionally
// bounded by from/to query parameters.
func (h *Handler) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	from, ok := parseDate(r.URL.Query().Get("from"))
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	to, ok := parseDate(r.URL.Query().Get("to"))
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	txs, err := h.svc.ListAccountTransactions(r.Context(), middleware.UserID(r.Context()),
		mux.Vars(r)["id"], from, to)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	h.respondJSON(w, http.StatusOK, txs)
}

// SyncAccount triggers an on-demand sync of the connection behind an account
func (h *Handler) SyncAccount(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.SyncAccount(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}
