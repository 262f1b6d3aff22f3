package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/avisser/budget-engine/internal/model"
)

// AccountRepository provides data access methods for the accounts table.
type AccountRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewAccountRepository creates a new AccountRepository with the provided database connection.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) WithTx(tx *sql.Tx) *AccountRepository {
	return &AccountRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *AccountRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// GetActiveAccounts retrieves all non-tombstoned accounts.
func (r *AccountRepository) GetActiveAccounts(ctx context.Context) ([]model.Account, error) {
	query := `
        SELECT id, name, currency, offbudget, closed, tombstone
        FROM accounts
        WHERE tombstone = 0
        ORDER BY name ASC
    `

	rows, err := r.getQuerier().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts table: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}

	for rows.Next() {
		var a model.Account
		var currency sql.NullString

		err := rows.Scan(
			&a.ID,
			&a.Name,
			&currency,
			&a.OffBudget,
			&a.Closed,
			&a.Tombstone,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan accounts table results: %w", err)
		}

		if currency.Valid {
			a.Currency = currency.String
		}

		accounts = append(accounts, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts table: %w", err)
	}

	return accounts, nil
}

// GetInUseCurrencies retrieves the distinct currencies of open, non-tombstoned
// accounts. Accounts without a currency are counted as the base currency.
func (r *AccountRepository) GetInUseCurrencies(ctx context.Context, baseCurrency string) ([]string, error) {
	query := `
        SELECT DISTINCT COALESCE(NULLIF(currency, ''), ?) AS currency
        FROM accounts
        WHERE tombstone = 0 AND closed = 0
        ORDER BY currency ASC
    `

	rows, err := r.getQuerier().QueryContext(ctx, query, baseCurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to query account currencies: %w", err)
	}
	defer rows.Close()

	currencies := []string{}

	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan account currency: %w", err)
		}
		currencies = append(currencies, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account currencies: %w", err)
	}

	return currencies, nil
}
