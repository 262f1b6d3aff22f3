package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/avisser/budget-engine/internal/model"
)

// CategoryRepository provides data access methods for the categories and
// category_groups tables.
type CategoryRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewCategoryRepository creates a new CategoryRepository with the provided database connection.
func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) WithTx(tx *sql.Tx) *CategoryRepository {
	return &CategoryRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *CategoryRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// GetActiveCategories retrieves all non-tombstoned categories with their
// owning group names.
func (r *CategoryRepository) GetActiveCategories(ctx context.Context) ([]model.Category, error) {
	query := `
        SELECT c.id, c.name, c.group_id, g.name, c.tombstone
        FROM categories c
        JOIN category_groups g ON g.id = c.group_id
        WHERE c.tombstone = 0
        ORDER BY g.name ASC, c.name ASC
    `

	rows, err := r.getQuerier().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories table: %w", err)
	}
	defer rows.Close()

	categories := []model.Category{}

	for rows.Next() {
		var c model.Category
		err := rows.Scan(
			&c.ID,
			&c.Name,
			&c.GroupID,
			&c.GroupName,
			&c.Tombstone,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan categories table results: %w", err)
		}
		categories = append(categories, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories table: %w", err)
	}

	return categories, nil
}
