package testutil

import (
	"database/sql"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"github.com/avisser/budget-engine/internal/events"
	"github.com/avisser/budget-engine/internal/provider"
	"github.com/avisser/budget-engine/internal/repository"
	"github.com/avisser/budget-engine/internal/service"
)

// NewTestScheduleService wires a ScheduleService against the given test
// database with a fresh event bus.
func NewTestScheduleService(t *testing.T, db *sql.DB) *service.ScheduleService {
	t.Helper()

	return NewTestScheduleServiceWithBus(t, db, events.NewBus())
}

// NewTestScheduleServiceWithBus wires a ScheduleService publishing on the
// given bus, so tests can observe advancement events.
func NewTestScheduleServiceWithBus(t *testing.T, db *sql.DB, bus *events.Bus) *service.ScheduleService {
	t.Helper()

	return service.NewScheduleService(
		db,
		repository.NewScheduleRepository(db),
		repository.NewRuleRepository(db),
		repository.NewAccountRepository(db),
		repository.NewPayeeRepository(db),
		repository.NewCategoryRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewPreferenceRepository(db),
		bus,
	)
}

// NewTestRateService wires a RateService against the given test database and
// mock providers.
func NewTestRateService(t *testing.T, db *sql.DB, providers ...provider.Provider) *service.RateService {
	t.Helper()

	svc := service.NewRateService(
		providers,
		repository.NewRateRepository(db),
		repository.NewPreferenceRepository(db),
		repository.NewAccountRepository(db),
		events.NewBus(),
	)
	t.Cleanup(svc.Stop)
	return svc
}

// NewTestSystemService creates a SystemService over the test database.
func NewTestSystemService(t *testing.T, db *sql.DB) *service.SystemService {
	t.Helper()

	return service.NewSystemService(db)
}

// MakeID generates a unique identifier for test entities.
func MakeID() string {
	return uuid.New().String()
}

// MakeName appends a random suffix to a base name so repeated factory calls
// do not collide on unique-name checks.
func MakeName(base string) string {
	return fmt.Sprintf("%s %d", base, rand.Intn(1000000))
}
