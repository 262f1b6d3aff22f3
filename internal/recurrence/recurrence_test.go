package recurrence

import (
	"testing"
	"time"
)

func day(t *testing.T, date string) time.Time {
	t.Helper()

	d, err := time.ParseInLocation(DateFormat, date, time.UTC)
	if err != nil {
		t.Fatalf("Bad test date %q: %v", date, err)
	}
	return d
}

// TestNextDate_LiteralDates tests literal date condition values.
//
// WHY: One-shot schedules carry a plain date string; it must pass through
// untouched regardless of the reference point.
func TestNextDate_LiteralDates(t *testing.T) {
	t.Run("literal string passes through", func(t *testing.T) {
		got, err := NextDate("2024-05-01", day(t, "2030-01-01"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-05-01" {
			t.Errorf("Expected 2024-05-01, got %s", got)
		}
	})

	t.Run("object with only a start behaves like a literal", func(t *testing.T) {
		got, err := NextDate(map[string]any{"start": "2024-05-01"}, day(t, "2030-01-01"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-05-01" {
			t.Errorf("Expected 2024-05-01, got %s", got)
		}
	})

	t.Run("malformed literal is rejected", func(t *testing.T) {
		if _, err := NextDate("05/01/2024", day(t, "2024-01-01")); err == nil {
			t.Error("Expected error for malformed literal date")
		}
	})

	t.Run("null value is rejected", func(t *testing.T) {
		if _, err := NextDate(nil, day(t, "2024-01-01")); err == nil {
			t.Error("Expected error for null date value")
		}
	})
}

// TestNextDate_MonthlyPatterns tests monthly recurrences with day patterns.
//
// WHY: Day patterns drive the common "on the 15th and 30th" rent and salary
// schedules, including the documented behavior that the first occurrence on
// or after the start date wins, not the pattern's order in the descriptor.
func TestNextDate_MonthlyPatterns(t *testing.T) {
	descriptor := map[string]any{
		"start":     "2020-12-20",
		"frequency": "monthly",
		"patterns": []any{
			map[string]any{"value": float64(15), "type": "day"},
			map[string]any{"value": float64(30), "type": "day"},
		},
	}

	t.Run("first occurrence at or after start", func(t *testing.T) {
		got, err := NextDate(descriptor, day(t, "2020-12-20"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2020-12-30" {
			t.Errorf("Expected 2020-12-30, got %s", got)
		}
	})

	t.Run("advancing past an occurrence lands on the next one", func(t *testing.T) {
		got, err := NextDate(descriptor, day(t, "2020-12-31"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2021-01-15" {
			t.Errorf("Expected 2021-01-15, got %s", got)
		}
	})

	t.Run("last day pattern selects the month's final day", func(t *testing.T) {
		cfg := map[string]any{
			"start":     "2024-02-10",
			"frequency": "monthly",
			"patterns": []any{
				map[string]any{"value": float64(-1), "type": "day"},
			},
		}
		got, err := NextDate(cfg, day(t, "2024-02-11"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-02-29" {
			t.Errorf("Expected 2024-02-29, got %s", got)
		}
	})

	t.Run("day of month clamps to short months", func(t *testing.T) {
		cfg := map[string]any{
			"start":     "2024-01-31",
			"frequency": "monthly",
		}
		got, err := NextDate(cfg, day(t, "2024-02-01"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-02-29" {
			t.Errorf("Expected 2024-02-29, got %s", got)
		}
	})
}

// TestNextDate_WeekdayPatterns tests nth-weekday patterns.
func TestNextDate_WeekdayPatterns(t *testing.T) {
	t.Run("second monday of the month", func(t *testing.T) {
		cfg := map[string]any{
			"start":     "2024-03-01",
			"frequency": "monthly",
			"patterns": []any{
				map[string]any{"value": float64(2), "type": "mon"},
			},
		}
		got, err := NextDate(cfg, day(t, "2024-03-01"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-03-11" {
			t.Errorf("Expected 2024-03-11, got %s", got)
		}
	})

	t.Run("last friday of the month", func(t *testing.T) {
		cfg := map[string]any{
			"start":     "2024-03-01",
			"frequency": "monthly",
			"patterns": []any{
				map[string]any{"value": float64(-1), "type": "fri"},
			},
		}
		got, err := NextDate(cfg, day(t, "2024-03-01"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-03-29" {
			t.Errorf("Expected 2024-03-29, got %s", got)
		}
	})
}

// TestNextDate_Frequencies tests the non-monthly frequencies and intervals.
func TestNextDate_Frequencies(t *testing.T) {
	t.Run("daily with interval", func(t *testing.T) {
		cfg := map[string]any{
			"start":     "2024-01-01",
			"frequency": "daily",
			"interval":  float64(3),
		}
		got, err := NextDate(cfg, day(t, "2024-01-02"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-01-04" {
			t.Errorf("Expected 2024-01-04, got %s", got)
		}
	})

	t.Run("biweekly", func(t *testing.T) {
		cfg := map[string]any{
			"start":     "2024-01-01",
			"frequency": "biweekly",
		}
		got, err := NextDate(cfg, day(t, "2024-01-02"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-01-15" {
			t.Errorf("Expected 2024-01-15, got %s", got)
		}
	})

	t.Run("yearly", func(t *testing.T) {
		cfg := map[string]any{
			"start":     "2020-03-05",
			"frequency": "yearly",
		}
		got, err := NextDate(cfg, day(t, "2021-01-01"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2021-03-05" {
			t.Errorf("Expected 2021-03-05, got %s", got)
		}
	})

	t.Run("reference before start clamps to start", func(t *testing.T) {
		cfg := map[string]any{
			"start":     "2024-06-01",
			"frequency": "weekly",
		}
		got, err := NextDate(cfg, day(t, "2020-01-01"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-06-01" {
			t.Errorf("Expected 2024-06-01, got %s", got)
		}
	})
}

// TestNextDate_WeekendSolving tests skipWeekend adjustment.
//
// WHY: Bills that fall on a weekend shift to the configured business day;
// both solve directions must hold for Saturday and Sunday occurrences.
func TestNextDate_WeekendSolving(t *testing.T) {
	// 2024-06-15 is a Saturday, 2024-06-16 a Sunday.
	base := func(solve string, dayOfMonth int) map[string]any {
		return map[string]any{
			"start":            "2024-06-01",
			"frequency":        "monthly",
			"skipWeekend":      true,
			"weekendSolveMode": solve,
			"patterns": []any{
				map[string]any{"value": float64(dayOfMonth), "type": "day"},
			},
		}
	}

	t.Run("saturday solves before to friday", func(t *testing.T) {
		got, err := NextDate(base("before", 15), day(t, "2024-06-02"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-06-14" {
			t.Errorf("Expected 2024-06-14, got %s", got)
		}
	})

	t.Run("saturday solves after to monday", func(t *testing.T) {
		got, err := NextDate(base("after", 15), day(t, "2024-06-02"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-06-17" {
			t.Errorf("Expected 2024-06-17, got %s", got)
		}
	})

	t.Run("sunday solves before to friday", func(t *testing.T) {
		got, err := NextDate(base("before", 16), day(t, "2024-06-02"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-06-14" {
			t.Errorf("Expected 2024-06-14, got %s", got)
		}
	})

	t.Run("sunday solves after to monday", func(t *testing.T) {
		got, err := NextDate(base("after", 16), day(t, "2024-06-02"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2024-06-17" {
			t.Errorf("Expected 2024-06-17, got %s", got)
		}
	})

	t.Run("backward solve never yields a date before the reference", func(t *testing.T) {
		// 2030-01-05 is a Saturday and solves back to Friday the 4th. Asking
		// for the next occurrence after the 4th must roll into February, not
		// re-yield the already-passed Friday.
		cfg := map[string]any{
			"start":            "2029-12-05",
			"frequency":        "monthly",
			"skipWeekend":      true,
			"weekendSolveMode": "before",
		}
		got, err := NextDate(cfg, day(t, "2030-01-05"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2030-02-05" {
			t.Errorf("Expected 2030-02-05, got %s", got)
		}
	})
}

// TestNextDate_DistantStart tests descriptors whose start is far in the past.
//
// WHY: A long-lived budget carries schedules started a decade or more ago;
// computing their next date must not depend on walking every period since.
func TestNextDate_DistantStart(t *testing.T) {
	t.Run("daily recurrence years after its start", func(t *testing.T) {
		cfg := map[string]any{
			"start":     "2010-01-01",
			"frequency": "daily",
		}
		got, err := NextDate(cfg, day(t, "2026-09-01"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2026-09-01" {
			t.Errorf("Expected 2026-09-01, got %s", got)
		}
	})

	t.Run("weekly recurrence stays on its weekday", func(t *testing.T) {
		// 2010-01-01 is a Friday; the first Friday on or after Tuesday
		// 2026-09-01 is the 4th.
		cfg := map[string]any{
			"start":     "2010-01-01",
			"frequency": "weekly",
		}
		got, err := NextDate(cfg, day(t, "2026-09-01"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2026-09-04" {
			t.Errorf("Expected 2026-09-04, got %s", got)
		}
	})

	t.Run("monthly recurrence keeps its day of month", func(t *testing.T) {
		cfg := map[string]any{
			"start":     "2001-03-17",
			"frequency": "monthly",
		}
		got, err := NextDate(cfg, day(t, "2026-09-01"))
		if err != nil {
			t.Fatalf("NextDate() returned unexpected error: %v", err)
		}
		if got != "2026-09-17" {
			t.Errorf("Expected 2026-09-17, got %s", got)
		}
	})
}

// TestUpcomingDates tests occurrence preview sequences.
func TestUpcomingDates(t *testing.T) {
	t.Run("produces consecutive pattern occurrences", func(t *testing.T) {
		cfg := Config{
			Start:     "2020-12-20",
			Frequency: Monthly,
			Patterns: []Pattern{
				{Value: 15, Type: "day"},
				{Value: 30, Type: "day"},
			},
		}

		got, err := UpcomingDates(cfg, day(t, "2020-12-20"), 4)
		if err != nil {
			t.Fatalf("UpcomingDates() returned unexpected error: %v", err)
		}

		want := []string{"2020-12-30", "2021-01-15", "2021-01-30", "2021-02-15"}
		if len(got) != len(want) {
			t.Fatalf("Expected %d dates, got %d (%v)", len(want), len(got), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Date %d: expected %s, got %s", i, want[i], got[i])
			}
		}
	})

	t.Run("iteration advances on the raw date when weekends shift backward", func(t *testing.T) {
		// The 15th lands on Saturday 2024-06-15 and solves back to the 14th;
		// the next occurrence must still be July's, not June's again.
		cfg := Config{
			Start:            "2024-06-01",
			Frequency:        Monthly,
			SkipWeekend:      true,
			WeekendSolveMode: SolveBefore,
			Patterns:         []Pattern{{Value: 15, Type: "day"}},
		}

		got, err := UpcomingDates(cfg, day(t, "2024-06-02"), 2)
		if err != nil {
			t.Fatalf("UpcomingDates() returned unexpected error: %v", err)
		}
		want := []string{"2024-06-14", "2024-07-15"}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Date %d: expected %s, got %s", i, want[i], got[i])
			}
		}
	})
}
