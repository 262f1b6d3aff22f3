package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// BTCProvider fetches rates from a public, unauthenticated index whose
// settlement unit is BTC: the upstream returns one BTC-relative price per
// currency code, and fiat cross rates are derived from two of them:
//
//	rate(A->B) = price(BTC->B) / price(BTC->A)
//
// Coverage is limited to the currency set the index tracks; codes absent
// from the snapshot yield no data.
type BTCProvider struct {
	httpClient *http.Client
	baseURL    string
}

// ticker is the upstream snapshot: currency code -> units per BTC.
type ticker map[string]float64

type historicalSnapshot struct {
	Timestamp int64  `json:"timestamp"`
	Prices    ticker `json:"prices"`
	// Auxiliary cross-exchange data embedded in historical responses;
	// preferred when present since it is volume-weighted.
	ExchangeRates ticker `json:"exchangeRates"`
}

// NewBTCProvider creates a public BTC-index provider.
func NewBTCProvider(baseURL string) *BTCProvider {
	return &BTCProvider{
		httpClient: &http.Client{Timeout: fetchTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Name returns the stable identifier used as the cache source tag.
func (p *BTCProvider) Name() string {
	return "btc-index"
}

// SupportsHistory reports true: the index serves historical snapshots keyed
// by unix timestamp.
func (p *BTCProvider) SupportsHistory() bool {
	return true
}

// FetchRates computes base->target cross rates from the latest BTC ticker.
func (p *BTCProvider) FetchRates(ctx context.Context, base string, targets []string) ([]RateData, error) {
	var prices ticker
	if err := p.getJSON(ctx, "/v1/ticker", &prices); err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC()
	date := timestamp.Format("2006-01-02")

	data := make([]RateData, 0, len(targets))
	for _, target := range targets {
		rate, ok := crossRate(prices, base, target)
		if !ok {
			continue
		}
		data = append(data, RateData{
			FromCurrency: base,
			ToCurrency:   target,
			Rate:         rate,
			Date:         date,
			Timestamp:    timestamp,
		})
	}
	return data, nil
}

// FetchHistoricalRate computes the cross rate from a historical snapshot.
// Reports ok=false when either currency is outside the index's coverage.
func (p *BTCProvider) FetchHistoricalRate(ctx context.Context, from, to, date string) (float64, bool, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, false, fmt.Errorf("invalid historical date %q: %w", date, err)
	}

	var snapshot historicalSnapshot
	path := fmt.Sprintf("/v1/history?ts=%d", day.UTC().Unix())
	if err := p.getJSON(ctx, path, &snapshot); err != nil {
		return 0, false, err
	}

	prices := snapshot.Prices
	if len(snapshot.ExchangeRates) > 0 {
		prices = snapshot.ExchangeRates
	}

	rate, ok := crossRate(prices, from, to)
	return rate, ok, nil
}

// crossRate derives from->to through the BTC settlement unit.
func crossRate(prices ticker, from, to string) (float64, bool) {
	fromPrice, okFrom := prices[from]
	toPrice, okTo := prices[to]
	if !okFrom || !okTo || fromPrice <= 0 || toPrice <= 0 {
		return 0, false
	}
	return toPrice / fromPrice, true
}

func (p *BTCProvider) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}
