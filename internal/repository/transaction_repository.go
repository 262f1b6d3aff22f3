package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/avisser/budget-engine/internal/model"
)

// TransactionRepository provides data access methods for the transactions table.
type TransactionRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewTransactionRepository creates a new TransactionRepository with the provided database connection.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) WithTx(tx *sql.Tx) *TransactionRepository {
	return &TransactionRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *TransactionRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// InsertTransaction inserts a new transaction row.
func (r *TransactionRepository) InsertTransaction(ctx context.Context, t model.Transaction) error {
	query := `
        INSERT INTO transactions (id, account_id, payee_id, amount, date, schedule_id, tombstone)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `

	_, err := r.getQuerier().ExecContext(ctx, query,
		t.ID,
		t.AccountID,
		nullableString(t.PayeeID),
		t.Amount,
		t.Date,
		nullableString(t.ScheduleID),
		t.Tombstone,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// GetScheduleTransactionDates retrieves, in one batched query, the set of
// dates on which each of the given schedules has posted transactions.
// Used to classify schedule state without a per-schedule query.
func (r *TransactionRepository) GetScheduleTransactionDates(ctx context.Context, scheduleIDs []string) (map[string]map[string]bool, error) {
	result := make(map[string]map[string]bool)
	if len(scheduleIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(scheduleIDs))
	args := make([]any, len(scheduleIDs))
	for i, id := range scheduleIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	//#nosec G202 -- Safe: placeholders are generated programmatically, not from user input
	query := `
        SELECT schedule_id, date
        FROM transactions
        WHERE schedule_id IN (` + strings.Join(placeholders, ",") + `)
        AND tombstone = 0
    `

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scheduleID, date string
		if err := rows.Scan(&scheduleID, &date); err != nil {
			return nil, fmt.Errorf("failed to scan schedule transaction: %w", err)
		}
		if result[scheduleID] == nil {
			result[scheduleID] = make(map[string]bool)
		}
		result[scheduleID][date] = true
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule transactions: %w", err)
	}

	return result, nil
}

// GetUnscheduledTransactions retrieves non-tombstoned transactions that are
// not linked to any schedule, ordered by account, payee and date. Used by
// schedule discovery to infer recurring patterns.
func (r *TransactionRepository) GetUnscheduledTransactions(ctx context.Context) ([]model.Transaction, error) {
	query := `
        SELECT id, account_id, payee_id, amount, date, schedule_id, tombstone
        FROM transactions
        WHERE tombstone = 0 AND schedule_id IS NULL AND payee_id IS NOT NULL
        ORDER BY account_id ASC, payee_id ASC, date ASC
    `

	rows, err := r.getQuerier().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions table: %w", err)
	}
	defer rows.Close()

	transactions := []model.Transaction{}

	for rows.Next() {
		var t model.Transaction
		var payeeID, scheduleID sql.NullString

		err := rows.Scan(
			&t.ID,
			&t.AccountID,
			&payeeID,
			&t.Amount,
			&t.Date,
			&scheduleID,
			&t.Tombstone,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transactions table results: %w", err)
		}

		if payeeID.Valid {
			t.PayeeID = payeeID.String
		}
		if scheduleID.Valid {
			t.ScheduleID = scheduleID.String
		}

		transactions = append(transactions, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions table: %w", err)
	}

	return transactions, nil
}
