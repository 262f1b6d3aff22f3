package model

import "time"

// ExchangeRate is one cached conversion rate row.
// ID is the deterministic cache key "FROM-TO-DATE" so repeated fetches for the
// same currency pair and calendar date overwrite a single row.
type ExchangeRate struct {
	ID           string    `json:"id"`
	FromCurrency string    `json:"fromCurrency"`
	ToCurrency   string    `json:"toCurrency"`
	Rate         float64   `json:"rate"`
	Date         string    `json:"date"`      // calendar date the rate applies to, YYYY-MM-DD
	Timestamp    time.Time `json:"timestamp"` // when the rate was fetched or entered
	Source       string    `json:"source"`    // provider name or "manual"
}

// RateKey builds the deterministic primary key for a rate row.
func RateKey(from, to, date string) string {
	return from + "-" + to + "-" + date
}
