package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avisser/budget-engine/internal/apperrors"
	"github.com/avisser/budget-engine/internal/events"
	"github.com/avisser/budget-engine/internal/model"
	"github.com/avisser/budget-engine/internal/provider"
	"github.com/avisser/budget-engine/internal/repository"
)

// Periodic loop states. Transitions are guarded by a compare-and-swap so two
// near-simultaneous lazy starts cannot spawn duplicate loops.
const (
	loopStopped int32 = iota
	loopStarting
	loopRunning
)

const (
	// Poll intervals for "today" rates. Quota-limited (keyed) providers get
	// the longer interval; this also bounds cache staleness in GetRate.
	refreshIntervalKeyed   = 60 * time.Minute
	refreshIntervalDefault = 15 * time.Minute

	// Backoff when the budget has no base currency configured yet.
	noBaseCurrencyRetry = 60 * time.Second

	// Backoff after a failed update cycle.
	cycleErrorRetry = 5 * time.Minute
)

// QuotaLimited is implemented by providers whose upstream enforces a request
// quota; their presence stretches the refresh interval.
type QuotaLimited interface {
	QuotaLimited() bool
}

// RateService answers currency conversion queries with cache-first semantics,
// refreshes the cache from its providers on a self-rescheduling loop, and
// supports manual rate entry.
type RateService struct {
	providers   []provider.Provider
	rateRepo    *repository.RateRepository
	prefRepo    *repository.PreferenceRepository
	accountRepo *repository.AccountRepository
	bus         *events.Bus

	// now is the clock; injectable for tests.
	now func() time.Time

	status          atomic.Int32
	refreshNotified atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRateService creates a new RateService with the provided providers and
// repository dependencies. The provider order is the historical-lookup
// preference order.
func NewRateService(
	providers []provider.Provider,
	rateRepo *repository.RateRepository,
	prefRepo *repository.PreferenceRepository,
	accountRepo *repository.AccountRepository,
	bus *events.Bus,
) *RateService {
	return &RateService{
		providers:   providers,
		rateRepo:    rateRepo,
		prefRepo:    prefRepo,
		accountRepo: accountRepo,
		bus:         bus,
		now:         time.Now,
	}
}

// GetRate answers "what is the conversion rate from one currency to another
// on a date". The second return value reports whether a rate is available;
// callers must treat false as "unconvertible", not as an error.
//
// Dates are UTC calendar days. Historical dates are served from cache
// unconditionally once present; today's rates are refreshed when older than
// the refresh interval.
func (s *RateService) GetRate(ctx context.Context, fromCurrency, toCurrency, date string) (float64, bool, error) {
	from := strings.ToUpper(strings.TrimSpace(fromCurrency))
	to := strings.ToUpper(strings.TrimSpace(toCurrency))
	if from == "" || to == "" {
		return 0, false, apperrors.ErrInvalidCurrency
	}
	if from == to {
		return 1.0, true, nil
	}

	today := s.today()
	targetDate := date
	if targetDate == "" {
		targetDate = today
	} else if _, err := time.Parse("2006-01-02", targetDate); err != nil {
		return 0, false, apperrors.ErrInvalidDate
	}

	// First conversion query after process start kicks off the refresh loop.
	s.StartPeriodicUpdate()

	cached, err := s.rateRepo.Latest(ctx, from, to, targetDate)
	if err != nil {
		return 0, false, err
	}
	if cached != nil {
		if targetDate != today {
			// Historical rates never change; the cache is authoritative.
			return cached.Rate, true, nil
		}
		if s.now().UTC().Sub(cached.Timestamp) < s.refreshInterval() {
			return cached.Rate, true, nil
		}
	}

	if targetDate != today {
		if rate, found, err := s.fetchHistorical(ctx, from, to, targetDate); err != nil {
			return 0, false, err
		} else if found {
			return rate, true, nil
		}
	}

	s.FetchAndCacheRates(ctx, from, []string{to})

	cached, err = s.rateRepo.Latest(ctx, from, to, targetDate)
	if err != nil {
		return 0, false, err
	}
	if cached != nil {
		return cached.Rate, true, nil
	}

	// Reverse fallback: a cached to->from rate converts as its inverse.
	reverse, err := s.rateRepo.Latest(ctx, to, from, targetDate)
	if err != nil {
		return 0, false, err
	}
	if reverse != nil && reverse.Rate != 0 {
		return 1 / reverse.Rate, true, nil
	}

	return 0, false, nil
}

// fetchHistorical tries each history-capable provider in order and caches the
// first hit. Provider failures are logged and skipped.
func (s *RateService) fetchHistorical(ctx context.Context, from, to, date string) (float64, bool, error) {
	for _, p := range s.providers {
		if !p.SupportsHistory() {
			continue
		}

		rate, ok, err := p.FetchHistoricalRate(ctx, from, to, date)
		if err != nil {
			log.Printf("rate provider %s: historical fetch %s->%s@%s failed: %v", p.Name(), from, to, date, err)
			continue
		}
		if !ok {
			continue
		}

		err = s.rateRepo.Upsert(ctx, model.ExchangeRate{
			FromCurrency: from,
			ToCurrency:   to,
			Rate:         rate,
			Date:         date,
			Timestamp:    s.now().UTC(),
			Source:       p.Name(),
		})
		if err != nil {
			return 0, false, err
		}

		return rate, true, nil
	}

	return 0, false, nil
}

// FetchAndCacheRates queries every configured provider for base->target rates
// and caches every returned datum. Providers are queried concurrently and are
// never short-circuited: each one's coverage contributes to the cache, and a
// single provider's failure does not abort the batch.
//
// Returns the number of rate rows cached.
func (s *RateService) FetchAndCacheRates(ctx context.Context, baseCurrency string, targetCurrencies []string) int {
	var mu sync.Mutex
	collected := []model.ExchangeRate{}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.providers {
		p := p
		g.Go(func() error {
			data, err := p.FetchRates(gctx, baseCurrency, targetCurrencies)
			if err != nil {
				log.Printf("rate provider %s: fetch %s failed: %v", p.Name(), baseCurrency, err)
				return nil
			}

			rows := make([]model.ExchangeRate, 0, len(data))
			for _, d := range data {
				timestamp := d.Timestamp
				if timestamp.IsZero() {
					timestamp = s.now().UTC()
				}
				date := d.Date
				if date == "" {
					date = timestamp.Format("2006-01-02")
				}
				rows = append(rows, model.ExchangeRate{
					FromCurrency: strings.ToUpper(d.FromCurrency),
					ToCurrency:   strings.ToUpper(d.ToCurrency),
					Rate:         d.Rate,
					Date:         date,
					Timestamp:    timestamp,
					Source:       p.Name(),
				})
			}

			mu.Lock()
			collected = append(collected, rows...)
			mu.Unlock()
			return nil
		})
	}
	// Workers only return nil; Wait is for joining.
	_ = g.Wait()

	cached := 0
	for _, row := range collected {
		if row.Rate <= 0 {
			continue
		}
		if err := s.rateRepo.Upsert(ctx, row); err != nil {
			log.Printf("failed to cache rate %s->%s: %v", row.FromCurrency, row.ToCurrency, err)
			continue
		}
		cached++
	}

	return cached
}

// AddManualRate upserts a user-entered rate. Manual rates are equal citizens
// of the cache; only the source tag distinguishes them from provider rates.
func (s *RateService) AddManualRate(ctx context.Context, fromCurrency, toCurrency string, rate float64, date string) error {
	from := strings.ToUpper(strings.TrimSpace(fromCurrency))
	to := strings.ToUpper(strings.TrimSpace(toCurrency))
	if from == "" || to == "" {
		return apperrors.ErrInvalidCurrency
	}
	if rate <= 0 {
		return apperrors.ErrInvalidRate
	}

	if date == "" {
		date = s.today()
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		return apperrors.ErrInvalidDate
	}

	return s.rateRepo.Upsert(ctx, model.ExchangeRate{
		FromCurrency: from,
		ToCurrency:   to,
		Rate:         rate,
		Date:         date,
		Timestamp:    s.now().UTC(),
		Source:       "manual",
	})
}

// StartPeriodicUpdate starts the background refresh loop. Starting is
// idempotent: concurrent callers race on a compare-and-swap and all but one
// are no-ops.
func (s *RateService) StartPeriodicUpdate() {
	if !s.status.CompareAndSwap(loopStopped, loopStarting) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.status.Store(loopRunning)

	go s.runLoop(ctx, done)
}

// Stop cancels the refresh loop and waits for the current cycle to finish.
func (s *RateService) Stop() {
	if s.status.Load() == loopStopped {
		return
	}

	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	s.status.Store(loopStopped)
}

// runLoop runs update cycles, scheduling each run only after the previous
// one completes so slow fetches never overlap.
func (s *RateService) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay := s.runCycle(ctx)
		timer.Reset(delay)
	}
}

// runCycle performs one refresh pass and returns the delay until the next.
// Any failure is contained: the loop backs off rather than terminating.
func (s *RateService) runCycle(ctx context.Context) time.Duration {
	base, err := s.prefRepo.Get(ctx, repository.PrefBaseCurrency)
	if errors.Is(err, apperrors.ErrPreferenceNotFound) {
		return noBaseCurrencyRetry
	}
	if err != nil {
		log.Printf("rate update cycle: failed to read base currency: %v", err)
		return cycleErrorRetry
	}
	base = strings.ToUpper(strings.TrimSpace(base))

	currencies, err := s.accountRepo.GetInUseCurrencies(ctx, base)
	if err != nil {
		log.Printf("rate update cycle: failed to list in-use currencies: %v", err)
		return cycleErrorRetry
	}

	// Foreign->base orientation: balance conversion reads these directly,
	// and GetRate's reverse fallback covers the other direction.
	cached := 0
	for _, currency := range currencies {
		if currency == base {
			continue
		}
		cached += s.FetchAndCacheRates(ctx, currency, []string{base})
	}

	if cached > 0 && s.refreshNotified.CompareAndSwap(false, true) {
		// Conversions attempted before any rates existed can now recompute.
		s.bus.Publish(events.BalanceRefresh, events.SyncEvent{Tables: []string{"accounts"}})
	}

	return s.refreshInterval()
}

// RefreshNow runs one refresh pass on demand, outside the periodic loop's
// cadence. It returns how many rates were cached.
func (s *RateService) RefreshNow(ctx context.Context) (int, error) {
	base, err := s.prefRepo.Get(ctx, repository.PrefBaseCurrency)
	if err != nil {
		return 0, err
	}
	base = strings.ToUpper(strings.TrimSpace(base))

	currencies, err := s.accountRepo.GetInUseCurrencies(ctx, base)
	if err != nil {
		return 0, err
	}

	cached := 0
	for _, currency := range currencies {
		if currency == base {
			continue
		}
		cached += s.FetchAndCacheRates(ctx, currency, []string{base})
	}
	return cached, nil
}

// refreshInterval is the staleness bound for today's rates: longer when a
// quota-limited provider is configured.
func (s *RateService) refreshInterval() time.Duration {
	for _, p := range s.providers {
		if q, ok := p.(QuotaLimited); ok && q.QuotaLimited() {
			return refreshIntervalKeyed
		}
	}
	return refreshIntervalDefault
}

func (s *RateService) today() string {
	return s.now().UTC().Format("2006-01-02")
}
