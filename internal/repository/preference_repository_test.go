package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/avisser/budget-engine/internal/apperrors"
	"github.com/avisser/budget-engine/internal/repository"
	"github.com/avisser/budget-engine/internal/testutil"
)

// TestPreferenceRepository_GetSet tests the key/value basics.
func TestPreferenceRepository_GetSet(t *testing.T) {
	t.Run("missing key returns not found", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		repo := repository.NewPreferenceRepository(db)

		// Execute
		_, err := repo.Get(context.Background(), repository.PrefBaseCurrency)

		// Assert
		if !errors.Is(err, apperrors.ErrPreferenceNotFound) {
			t.Errorf("Expected ErrPreferenceNotFound, got %v", err)
		}
	})

	t.Run("set then get round trips and overwrites", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		repo := repository.NewPreferenceRepository(db)
		ctx := context.Background()

		// Execute
		if err := repo.Set(ctx, repository.PrefBaseCurrency, "EUR"); err != nil {
			t.Fatalf("Set() failed: %v", err)
		}
		if err := repo.Set(ctx, repository.PrefBaseCurrency, "USD"); err != nil {
			t.Fatalf("Set() failed: %v", err)
		}
		value, err := repo.Get(ctx, repository.PrefBaseCurrency)

		// Assert
		if err != nil {
			t.Fatalf("Get() returned unexpected error: %v", err)
		}
		if value != "USD" {
			t.Errorf("Expected 'USD', got %q", value)
		}
		testutil.AssertRowCount(t, db, "preferences", 1)
	})
}

// TestPreferenceRepository_CompareAndSet tests the single-winner update.
//
// WHY: The daily schedule run is gated on this primitive. The first trigger
// of a day must win, and every repeat trigger with the same date must lose,
// or schedules would advance twice.
func TestPreferenceRepository_CompareAndSet(t *testing.T) {
	t.Run("first write wins, repeat of the same value loses", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		repo := repository.NewPreferenceRepository(db)
		ctx := context.Background()

		// Execute
		first, err := repo.CompareAndSet(ctx, repository.PrefScheduleLastRun, "2024-06-10")
		if err != nil {
			t.Fatalf("CompareAndSet() failed: %v", err)
		}
		repeat, err := repo.CompareAndSet(ctx, repository.PrefScheduleLastRun, "2024-06-10")

		// Assert
		if err != nil {
			t.Fatalf("CompareAndSet() returned unexpected error: %v", err)
		}
		if !first {
			t.Error("Expected the first write to win")
		}
		if repeat {
			t.Error("Expected the repeat write to lose")
		}
	})

	t.Run("a new value wins again", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		repo := repository.NewPreferenceRepository(db)
		ctx := context.Background()

		if _, err := repo.CompareAndSet(ctx, repository.PrefScheduleLastRun, "2024-06-10"); err != nil {
			t.Fatalf("CompareAndSet() failed: %v", err)
		}

		// Execute
		won, err := repo.CompareAndSet(ctx, repository.PrefScheduleLastRun, "2024-06-11")

		// Assert
		if err != nil {
			t.Fatalf("CompareAndSet() returned unexpected error: %v", err)
		}
		if !won {
			t.Error("Expected a different value to win")
		}
		value, err := repo.Get(ctx, repository.PrefScheduleLastRun)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if value != "2024-06-11" {
			t.Errorf("Expected '2024-06-11', got %q", value)
		}
	})
}
