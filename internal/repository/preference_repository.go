package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/avisser/budget-engine/internal/apperrors"
)

// PreferenceRepository provides data access methods for the preferences
// key/value table: budget base currency, upcoming-length window, the daily
// schedule-run gate and the encrypted provider API key all live here.
type PreferenceRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPreferenceRepository creates a new PreferenceRepository with the provided database connection.
func NewPreferenceRepository(db *sql.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

func (r *PreferenceRepository) WithTx(tx *sql.Tx) *PreferenceRepository {
	return &PreferenceRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *PreferenceRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// Well-known preference keys.
const (
	PrefBaseCurrency    = "base_currency"
	PrefUpcomingLength  = "upcoming_length"
	PrefScheduleLastRun = "schedule_last_run"
	PrefRateAPIKey      = "rate_api_key"
	PrefWeekendSolve    = "weekend_solve_mode"
)

// Get retrieves a preference value. Returns apperrors.ErrPreferenceNotFound
// when the key has never been set.
func (r *PreferenceRepository) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM preferences WHERE key = ?`

	var value string
	err := r.getQuerier().QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", apperrors.ErrPreferenceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query preferences table: %w", err)
	}

	return value, nil
}

// Set inserts or replaces a preference value.
func (r *PreferenceRepository) Set(ctx context.Context, key, value string) error {
	query := `
        INSERT INTO preferences (key, value)
        VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value
    `

	_, err := r.getQuerier().ExecContext(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}

	return nil
}

// CompareAndSet atomically sets the key to value unless it already holds
// value, reporting whether this caller performed the update. Two racing
// triggers of a daily job both call this; exactly one wins.
func (r *PreferenceRepository) CompareAndSet(ctx context.Context, key, value string) (bool, error) {
	query := `
        INSERT INTO preferences (key, value)
        VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value
        WHERE preferences.value <> excluded.value
    `

	result, err := r.getQuerier().ExecContext(ctx, query, key, value)
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-set preference %s: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}
