package service

import (
	"context"
	"fmt"
	"time"

	"github.com/finlink/finlink/internal/models"
)

// SpendingByCategory sums EXPENSE transactions under a category subtree
// (depth-bounded) within a date range. TRANSFER, LIABILITY_PAYMENT and
// REFUND flows never count: that exclusion is the whole point of flow types.
func (s *Service) SpendingByCategory(ctx context.Context, userID, categoryID string, from, to time.Time) (*models.SpendingSummary, error) {
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	categoryIDs, err := s.store.ListCategoryDescendants(ctx, categoryID, models.MaxCategoryDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to walk category tree: %w", err)
	}
	total, count, err := s.store.SumExpensesByCategory(ctx, userID, categoryIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to sum spending: %w", err)
	}
	return &models.SpendingSummary{CategoryID: categoryID, Total: total, Count: count}, nil
}

// MonthlySummary returns income, expense and net totals for one month.
func (s *Service) MonthlySummary(ctx context.Context, userID, month string) (*models.MonthlySummary, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("%w: month must be formatted YYYY-MM", ErrValidation)
	}
	end := start.AddDate(0, 1, 0)
	income, expense, err := s.store.MonthlyTotals(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to compute monthly totals: %w", err)
	}
	return &models.MonthlySummary{
		Month:   month,
		Income:  income,
		Expense: expense,
		Net:     income.Sub(expense),
	}, nil
}
