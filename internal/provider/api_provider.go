package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// APIProvider fetches rates from a keyed REST API (openexchangerates-style).
// The free tier only serves USD-based latest rates; historical lookups are a
// paid feature, detected once per process via the usage endpoint.
type APIProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	planOnce sync.Once
	plan     planFeatures
}

type planFeatures struct {
	History bool `json:"history"`
	Base    bool `json:"base"`
}

type usageResponse struct {
	Status int `json:"status"`
	Data   struct {
		Plan struct {
			Features planFeatures `json:"features"`
		} `json:"plan"`
		Usage struct {
			Requests          int `json:"requests"`
			RequestsRemaining int `json:"requests_remaining"`
		} `json:"usage"`
	} `json:"data"`
}

type latestResponse struct {
	Timestamp int64              `json:"timestamp"`
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
}

// NewAPIProvider creates a keyed API provider. baseURL is the API root
// without a trailing slash.
func NewAPIProvider(baseURL, apiKey string) *APIProvider {
	return &APIProvider{
		httpClient: &http.Client{Timeout: fetchTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Name returns the stable identifier used as the cache source tag.
func (p *APIProvider) Name() string {
	return "exchange-api"
}

// QuotaLimited reports that the upstream enforces a request quota; the rate
// service stretches its refresh interval accordingly.
func (p *APIProvider) QuotaLimited() bool {
	return true
}

// SupportsHistory reports whether the configured plan includes the
// historical endpoint. The usage endpoint is consulted once; on failure the
// provider assumes no history rather than burning quota on doomed requests.
func (p *APIProvider) SupportsHistory() bool {
	p.planOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		var usage usageResponse
		if err := p.getJSON(ctx, "/usage.json", nil, &usage); err != nil {
			log.Printf("rate provider %s: usage introspection failed: %v", p.Name(), err)
			return
		}
		p.plan = usage.Data.Plan.Features
	})
	return p.plan.History
}

// FetchRates fetches the latest rates from base to each target currency.
// The upstream returns base->target factors for every known currency in one
// call; unknown targets are simply absent from the response.
func (p *APIProvider) FetchRates(ctx context.Context, base string, targets []string) ([]RateData, error) {
	params := url.Values{}
	params.Set("base", base)
	params.Set("symbols", strings.Join(targets, ","))

	var latest latestResponse
	if err := p.getJSON(ctx, "/latest.json", params, &latest); err != nil {
		return nil, err
	}

	return p.toRateData(base, targets, latest), nil
}

// FetchHistoricalRate fetches the rate for one pair on a past date via the
// dated historical endpoint. Reports ok=false when the plan has no history
// or the date is not covered.
func (p *APIProvider) FetchHistoricalRate(ctx context.Context, from, to, date string) (float64, bool, error) {
	if !p.SupportsHistory() {
		return 0, false, nil
	}

	params := url.Values{}
	params.Set("base", from)
	params.Set("symbols", to)

	var hist latestResponse
	if err := p.getJSON(ctx, "/historical/"+date+".json", params, &hist); err != nil {
		return 0, false, err
	}

	rate, found := hist.Rates[to]
	if !found || rate <= 0 {
		return 0, false, nil
	}

	return rate, true, nil
}

func (p *APIProvider) toRateData(base string, targets []string, latest latestResponse) []RateData {
	timestamp := time.Now().UTC()
	if latest.Timestamp > 0 {
		timestamp = time.Unix(latest.Timestamp, 0).UTC()
	}
	date := timestamp.Format("2006-01-02")

	data := make([]RateData, 0, len(targets))
	for _, target := range targets {
		rate, found := latest.Rates[target]
		if !found || rate <= 0 {
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
	return data
}

func (p *APIProvider) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("app_id", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+params.Encode(), nil)
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
