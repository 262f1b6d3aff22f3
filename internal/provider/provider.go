// Package provider defines the exchange-rate provider contract and its two
// implementations: a keyed REST API with full currency coverage and an
// unauthenticated public index with BTC-relative prices.
package provider

import (
	"context"
	"time"
)

// RateData is one rate datum returned from a provider. Timestamp may be zero
// when the upstream did not supply one; the caller defaults it to now.
type RateData struct {
	FromCurrency string
	ToCurrency   string
	Rate         float64
	Date         string // YYYY-MM-DD the rate applies to
	Timestamp    time.Time
}

// Provider is the capability contract for an exchange-rate source.
//
// FetchRates is best-effort: transport and upstream failures surface as
// errors, which the rate service logs and skips; one provider's failure never
// aborts a batch. FetchHistoricalRate reports ok=false when the provider has
// no data for the date.
type Provider interface {
	Name() string
	SupportsHistory() bool
	FetchRates(ctx context.Context, base string, targets []string) ([]RateData, error)
	FetchHistoricalRate(ctx context.Context, from, to, date string) (rate float64, ok bool, err error)
}

// fetchTimeout bounds a single upstream call so a hung provider cannot stall
// the rate service indefinitely.
const fetchTimeout = 15 * time.Second
