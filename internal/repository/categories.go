package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/service"
)

// CreateCategory inserts a new category node
func (r *Repository) CreateCategory(ctx context.Context, c *models.Category) error {
	query := `
		INSERT INTO finlink.categories (id, parent_id, name, depth)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, c.ID, c.ParentID, c.Name, c.Depth); err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// GetCategory retrieves a category by id
func (r *Repository) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	c := &models.Category{}
	query := `SELECT id, parent_id, name, depth FROM finlink.categories WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&c.ID, &c.ParentID, &c.Name, &c.Depth)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: category %s", service.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

// ListCategoryDescendants returns the id plus every descendant id, walking at
// most maxDepth levels of the tree.
func (r *Repository) ListCategoryDescendants(ctx context.Context, id string, maxDepth int) ([]string, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT id, 1 AS level FROM finlink.categories WHERE id = $1
			UNION ALL
			SELECT c.id, s.level + 1
			FROM finlink.categories c
			JOIN subtree s ON c.parent_id = s.id
			WHERE s.level < $2
		)
		SELECT id FROM subtree`
	rows, err := r.db.QueryContext(ctx, query, id, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to list category descendants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("failed to scan category id: %w", err)
		}
		out = append(out, cid)
	}
	return out, rows.Err()
}
