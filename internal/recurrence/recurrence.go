// Package recurrence expands structured recurrence descriptors into concrete
// calendar dates. It is pure date arithmetic: no clocks are read and no I/O is
// performed, so callers control the reference point explicitly.
//
// All date handling is in UTC. A "date" in and out of this package is an ISO
// YYYY-MM-DD string interpreted as a UTC calendar day.
package recurrence

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Frequency enumerates the supported recurrence frequencies.
type Frequency string

const (
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
	Yearly   Frequency = "yearly"
)

// WeekendSolve controls which direction a weekend occurrence is shifted.
type WeekendSolve string

const (
	// SolveBefore moves Saturday to Friday and Sunday back to Friday.
	SolveBefore WeekendSolve = "before"

	// SolveAfter moves Saturday and Sunday forward to Monday.
	SolveAfter WeekendSolve = "after"
)

// LastDay is the pattern value meaning "last day of the month" (or last
// matching weekday for weekday-typed patterns).
const LastDay = -1

// Pattern constrains which days inside a month are occurrences.
// Type "day" selects a day of the month by Value (LastDay for the final day).
// A weekday type ("mon".."sun") selects the Value-th such weekday of the
// month, with LastDay selecting the final one.
type Pattern struct {
	Value int    `json:"value"`
	Type  string `json:"type"`
}

// Config is a recurrence descriptor.
type Config struct {
	Start            string       `json:"start"`
	Frequency        Frequency    `json:"frequency"`
	Interval         int          `json:"interval,omitempty"`
	Patterns         []Pattern    `json:"patterns,omitempty"`
	SkipWeekend      bool         `json:"skipWeekend,omitempty"`
	WeekendSolveMode WeekendSolve `json:"weekendSolveMode,omitempty"`
}

// DateFormat is the ISO calendar-date layout used throughout.
const DateFormat = "2006-01-02"

// maxPeriods bounds candidate generation so a descriptor that never produces
// a matching occurrence cannot loop forever.
const maxPeriods = 5000

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseValue decodes a date condition value. A plain string is a literal
// date; a JSON object is a recurrence descriptor.
func ParseValue(v any) (literal string, cfg *Config, err error) {
	switch val := v.(type) {
	case string:
		if _, err := time.Parse(DateFormat, val); err != nil {
			return "", nil, fmt.Errorf("invalid literal date %q: %w", val, err)
		}
		return val, nil, nil
	case map[string]any:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", nil, fmt.Errorf("failed to re-encode date condition: %w", err)
		}
		var c Config
		if err := json.Unmarshal(raw, &c); err != nil {
			return "", nil, fmt.Errorf("failed to decode recurrence descriptor: %w", err)
		}
		if _, err := time.Parse(DateFormat, c.Start); err != nil {
			return "", nil, fmt.Errorf("invalid recurrence start %q: %w", c.Start, err)
		}
		if c.Frequency == "" {
			// An object with only a start date behaves like a literal.
			return c.Start, nil, nil
		}
		return "", &c, nil
	case nil:
		return "", nil, fmt.Errorf("date condition value is null")
	default:
		return "", nil, fmt.Errorf("unsupported date condition value of type %T", v)
	}
}

// NextDate computes the first occurrence of the condition value on or after
// the given reference day. Literal dates pass through unchanged.
func NextDate(value any, after time.Time) (string, error) {
	literal, cfg, err := ParseValue(value)
	if err != nil {
		return "", err
	}
	if cfg == nil {
		return literal, nil
	}
	return cfg.nextDate(after)
}

// UpcomingDates produces the next count occurrences of the descriptor
// starting at the beginning of the given day.
func UpcomingDates(cfg Config, from time.Time, count int) ([]string, error) {
	dates := make([]string, 0, count)
	cursor := Day(from)
	for len(dates) < count {
		raw, adjusted, ok := cfg.nextRaw(cursor)
		if !ok {
			break
		}
		dates = append(dates, adjusted.Format(DateFormat))
		cursor = raw.AddDate(0, 0, 1)
	}
	return dates, nil
}

// Day truncates a time to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (c Config) nextDate(after time.Time) (string, error) {
	_, adjusted, ok := c.nextRaw(Day(after))
	if !ok {
		return "", fmt.Errorf("no occurrence found within %d periods of %s", maxPeriods, c.Start)
	}
	return adjusted.Format(DateFormat), nil
}

// nextRaw finds the first occurrence on or after the cursor and returns both
// the raw date (used to advance iteration) and its weekend-adjusted form
// (the date callers act on). Both dates are on or after the cursor.
func (c Config) nextRaw(cursor time.Time) (raw, adjusted time.Time, ok bool) {
	start, err := time.Parse(DateFormat, c.Start)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	if cursor.Before(start) {
		cursor = start
	}

	interval := c.Interval
	if interval < 1 {
		interval = 1
	}

	first := c.firstPeriod(start, cursor, interval)
	for k := first; k < first+maxPeriods; k++ {
		for _, candidate := range c.periodOccurrences(start, k, interval) {
			if candidate.Before(start) || candidate.Before(cursor) {
				continue
			}
			adjusted := c.solveWeekend(candidate)
			// A backward weekend solve can land before the cursor; that
			// occurrence already happened, so it cannot be the next one.
			if adjusted.Before(cursor) {
				continue
			}
			return candidate, adjusted, true
		}
	}
	return time.Time{}, time.Time{}, false
}

// firstPeriod estimates the first period index whose occurrences can reach
// the cursor, so a start date years in the past does not force a scan from
// period zero. The estimate backs off one period to keep clamped and
// pattern dates at the boundary in range.
func (c Config) firstPeriod(start, cursor time.Time, interval int) int {
	if !cursor.After(start) {
		return 0
	}
	days := int(cursor.Sub(start) / (24 * time.Hour))
	var k int
	switch c.Frequency {
	case Daily:
		k = days / interval
	case Weekly:
		k = days / (7 * interval)
	case Biweekly:
		k = days / (14 * interval)
	case Monthly:
		months := (cursor.Year()-start.Year())*12 + int(cursor.Month()) - int(start.Month())
		k = months / interval
	case Yearly:
		k = (cursor.Year() - start.Year()) / interval
	}
	if k > 0 {
		k--
	}
	return k
}

// periodOccurrences returns the sorted candidate dates of the k-th period.
func (c Config) periodOccurrences(start time.Time, k, interval int) []time.Time {
	switch c.Frequency {
	case Daily:
		return []time.Time{start.AddDate(0, 0, k*interval)}
	case Weekly:
		return []time.Time{start.AddDate(0, 0, k*7*interval)}
	case Biweekly:
		return []time.Time{start.AddDate(0, 0, k*14*interval)}
	case Yearly:
		year := start.Year() + k*interval
		return []time.Time{clampedDate(year, start.Month(), start.Day())}
	case Monthly:
		first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
		month := first.AddDate(0, k*interval, 0)
		return c.monthOccurrences(month, start.Day())
	default:
		return nil
	}
}

// monthOccurrences expands the patterns inside one month. Without patterns
// the start's day-of-month (clamped to month length) is the sole occurrence.
func (c Config) monthOccurrences(monthStart time.Time, startDay int) []time.Time {
	year, month := monthStart.Year(), monthStart.Month()

	if len(c.Patterns) == 0 {
		return []time.Time{clampedDate(year, month, startDay)}
	}

	var out []time.Time
	for _, p := range c.Patterns {
		if wd, isWeekday := weekdays[p.Type]; isWeekday {
			if d, ok := nthWeekday(year, month, wd, p.Value); ok {
				out = append(out, d)
			}
			continue
		}
		// day-of-month pattern
		day := p.Value
		if day == LastDay {
			day = daysInMonth(year, month)
		}
		if day >= 1 && day <= daysInMonth(year, month) {
			out = append(out, time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (c Config) solveWeekend(d time.Time) time.Time {
	if !c.SkipWeekend {
		return d
	}
	mode := c.WeekendSolveMode
	if mode == "" {
		mode = SolveAfter
	}
	switch d.Weekday() {
	case time.Saturday:
		if mode == SolveBefore {
			return d.AddDate(0, 0, -1)
		}
		return d.AddDate(0, 0, 2)
	case time.Sunday:
		if mode == SolveBefore {
			return d.AddDate(0, 0, -2)
		}
		return d.AddDate(0, 0, 1)
	}
	return d
}

// clampedDate builds a date, clamping the day to the month's length
// (Jan 31 + 1 month yields Feb 28/29, not Mar 2/3).
func clampedDate(year int, month time.Month, day int) time.Time {
	if max := daysInMonth(year, month); day > max {
		day = max
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// nthWeekday returns the n-th given weekday of the month (1-based), or the
// last one when n is LastDay.
func nthWeekday(year int, month time.Month, wd time.Weekday, n int) (time.Time, bool) {
	var matches []time.Time
	for day := 1; day <= daysInMonth(year, month); day++ {
		d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if d.Weekday() == wd {
			matches = append(matches, d)
		}
	}
	if len(matches) == 0 {
		return time.Time{}, false
	}
	if n == LastDay {
		return matches[len(matches)-1], true
	}
	if n < 1 || n > len(matches) {
		return time.Time{}, false
	}
	return matches[n-1], true
}
