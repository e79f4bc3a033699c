package models

import "github.com/shopspring/decimal"

// SpendingSummary is the result of a hierarchical spending query: total and
// count of EXPENSE transactions under one category subtree.
type SpendingSummary struct {
	CategoryID string          `json:"category_id"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
}

// MonthlySummary represents income and expense totals for one month.
type MonthlySummary struct {
	Month   string          `json:"month"` // YYYY-MM
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}
