package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/avisser/budget-engine/internal/model"
)

// PayeeRepository provides data access methods for the payees table.
type PayeeRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPayeeRepository creates a new PayeeRepository with the provided database connection.
func NewPayeeRepository(db *sql.DB) *PayeeRepository {
	return &PayeeRepository{db: db}
}

func (r *PayeeRepository) WithTx(tx *sql.Tx) *PayeeRepository {
	return &PayeeRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *PayeeRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// GetActivePayees retrieves all non-tombstoned payees.
func (r *PayeeRepository) GetActivePayees(ctx context.Context) ([]model.Payee, error) {
	query := `
        SELECT id, name, tombstone
        FROM payees
        WHERE tombstone = 0
        ORDER BY name ASC
    `

	rows, err := r.getQuerier().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query payees table: %w", err)
	}
	defer rows.Close()

	payees := []model.Payee{}

	for rows.Next() {
		var p model.Payee
		if err := rows.Scan(&p.ID, &p.Name, &p.Tombstone); err != nil {
			return nil, fmt.Errorf("failed to scan payees table results: %w", err)
		}
		payees = append(payees, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payees table: %w", err)
	}

	return payees, nil
}

// InsertPayee inserts a new payee row.
func (r *PayeeRepository) InsertPayee(ctx context.Context, p model.Payee) error {
	query := `INSERT INTO payees (id, name, tombstone) VALUES (?, ?, ?)`

	_, err := r.getQuerier().ExecContext(ctx, query, p.ID, p.Name, p.Tombstone)
	if err != nil {
		return fmt.Errorf("failed to insert payee: %w", err)
	}

	return nil
}
