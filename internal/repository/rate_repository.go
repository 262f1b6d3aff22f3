package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avisser/budget-engine/internal/model"
)

// RateRepository provides data access methods for the exchange_rates cache
// table. Rows are upsert-only: concurrent writers for the same
// (from, to, date) key race harmlessly to last-write-wins.
type RateRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewRateRepository creates a new RateRepository with the provided database connection.
func NewRateRepository(db *sql.DB) *RateRepository {
	return &RateRepository{db: db}
}

func (r *RateRepository) WithTx(tx *sql.Tx) *RateRepository {
	return &RateRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *RateRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// Upsert inserts or replaces the cache row for the rate's (from, to, date)
// key. The deterministic id guarantees at most one row per key.
func (r *RateRepository) Upsert(ctx context.Context, rate model.ExchangeRate) error {
	query := `
        INSERT INTO exchange_rates (id, from_currency, to_currency, rate, date, timestamp, source)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(from_currency, to_currency, date) DO UPDATE SET
            rate = excluded.rate,
            timestamp = excluded.timestamp,
            source = excluded.source
    `

	_, err := r.getQuerier().ExecContext(ctx, query,
		model.RateKey(rate.FromCurrency, rate.ToCurrency, rate.Date),
		rate.FromCurrency,
		rate.ToCurrency,
		rate.Rate,
		rate.Date,
		rate.Timestamp.UTC().Format(time.RFC3339),
		rate.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert exchange rate: %w", err)
	}

	return nil
}

// Latest retrieves the most recently recorded rate for a currency pair and
// date, ordered by fetch timestamp. Returns nil, nil when no row exists.
func (r *RateRepository) Latest(ctx context.Context, from, to, date string) (*model.ExchangeRate, error) {
	query := `
        SELECT id, from_currency, to_currency, rate, date, timestamp, source
        FROM exchange_rates
        WHERE from_currency = ? AND to_currency = ? AND date = ?
        ORDER BY timestamp DESC
        LIMIT 1
    `

	var er model.ExchangeRate
	var timestampStr string
	err := r.getQuerier().QueryRowContext(ctx, query, from, to, date).Scan(
		&er.ID,
		&er.FromCurrency,
		&er.ToCurrency,
		&er.Rate,
		&er.Date,
		&timestampStr,
		&er.Source,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange_rates table: %w", err)
	}

	er.Timestamp, err = ParseTime(timestampStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rate timestamp: %w", err)
	}

	return &er, nil
}
