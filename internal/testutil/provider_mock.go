package testutil

import (
	"context"
	"fmt"

	"github.com/avisser/budget-engine/internal/provider"
)

// MockProvider is a mock implementation of provider.Provider for testing.
// It returns predefined rate data instead of calling external APIs.
type MockProvider struct {
	// ProviderName is reported by Name and tags cached rates.
	ProviderName string
	// History controls whether the provider claims historical support.
	History bool
	// Rates is returned from FetchRates, filtered by base and targets.
	Rates []provider.RateData
	// HistoricalRates maps "FROM-TO-DATE" keys onto rates for
	// FetchHistoricalRate lookups.
	HistoricalRates map[string]float64
	// Err, when set, is returned from both fetch methods.
	Err error
	// FetchCount tracks FetchRates calls.
	FetchCount int
	// HistoryCount tracks FetchHistoricalRate calls.
	HistoryCount int
	// Quota marks the provider as quota-limited.
	Quota bool
}

// NewMockProvider creates a mock provider with no data configured.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProviderName:    name,
		HistoricalRates: make(map[string]float64),
	}
}

// WithRate adds a latest-rate entry returned by FetchRates.
func (m *MockProvider) WithRate(from, to string, rate float64) *MockProvider {
	m.Rates = append(m.Rates, provider.RateData{
		FromCurrency: from,
		ToCurrency:   to,
		Rate:         rate,
	})
	return m
}

// WithHistoricalRate adds a dated rate returned by FetchHistoricalRate.
func (m *MockProvider) WithHistoricalRate(from, to, date string, rate float64) *MockProvider {
	m.HistoricalRates[fmt.Sprintf("%s-%s-%s", from, to, date)] = rate
	m.History = true
	return m
}

// WithError configures the mock to fail every fetch.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.Err = err
	return m
}

// Name returns the configured provider name.
func (m *MockProvider) Name() string {
	return m.ProviderName
}

// SupportsHistory reports the configured history capability.
func (m *MockProvider) SupportsHistory() bool {
	return m.History
}

// QuotaLimited reports the configured quota flag.
func (m *MockProvider) QuotaLimited() bool {
	return m.Quota
}

// FetchRates returns the configured rates matching the base currency and
// target set.
func (m *MockProvider) FetchRates(_ context.Context, base string, targets []string) ([]provider.RateData, error) {
	m.FetchCount++
	if m.Err != nil {
		return nil, m.Err
	}

	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t] = true
	}

	var out []provider.RateData
	for _, r := range m.Rates {
		if r.FromCurrency == base && wanted[r.ToCurrency] {
			out = append(out, r)
		}
	}
	return out, nil
}

// FetchHistoricalRate returns the configured rate for the key, reporting
// ok=false when none is set.
func (m *MockProvider) FetchHistoricalRate(_ context.Context, from, to, date string) (float64, bool, error) {
	m.HistoryCount++
	if m.Err != nil {
		return 0, false, m.Err
	}
	rate, ok := m.HistoricalRates[fmt.Sprintf("%s-%s-%s", from, to, date)]
	return rate, ok, nil
}
