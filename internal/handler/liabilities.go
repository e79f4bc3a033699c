package handler

import (
	"net/http"
	"time"

	"github.com/finlink/finlink/internal/middleware"
	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/service"
	"github.com/gorilla/mux"
)

// ListLiabilities returns the user's liabilities with their installment plans
func (h *Handler) ListLiabilities(w http.ResponseWriter, r *http.Request) {
	liabilities, err := h.svc.ListLiabilities(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.handleError(w, err)
		return
	}
	if liabilities == nil {
		liabilities = []*service.LiabilityWithPlan{}
	}
	h.respondJSON(w, http.StatusOK, liabilities)
}

// DeclareLiability creates a liability explicitly against a transaction
func (h *Handler) DeclareLiability(w http.ResponseWriter, r *http.Request) {
	var input service.DeclareLiabilityInput
	if !h.decodeJSON(w, r, &input) {
		return
	}
	liability, err := h.svc.DeclareLiability(r.Context(), middleware.UserID(r.Context()), input)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, liability)
}

// ListScheduled returns the user's upcoming expectations, optionally bounded
// by an until query parameter.
func (h *Handler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	until, ok := parseDate(r.URL.Query().Get("until"))
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid until date")
		return
	}
	scheduled, err := h.svc.ListUpcomingScheduled(r.Context(), middleware.UserID(r.Context()), until)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if scheduled == nil {
		scheduled = []*models.ScheduledTransaction{}
	}
	h.respondJSON(w, http.StatusOK, scheduled)
}

// CategorySpending returns the rolled-up expense total for a category subtree
func (h *Handler) CategorySpending(w http.ResponseWriter, r *http.Request) {
	from, ok := parseDate(r.URL.Query().Get("from"))
	if !ok || from.IsZero() {
		h.respondError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	to, ok := parseDate(r.URL.Query().Get("to"))
	if !ok || to.IsZero() {
		h.respondError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	summary, err := h.svc.SpendingByCategory(r.Context(), middleware.UserID(r.Context()),
		mux.Vars(r)["id"], from, to.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, summary)
}

// MonthlySummary returns income, expense and net for one month
func (h *Handler) MonthlySummary(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	summary, err := h.svc.MonthlySummary(r.Context(), middleware.UserID(r.Context()), month)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, summary)
}
