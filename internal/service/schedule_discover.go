package service

import (
	"context"
	"sort"
	"time"

	"github.com/avisser/budget-engine/internal/model"
	"github.com/avisser/budget-engine/internal/recurrence"
)

// minOccurrences is how many transactions a (account, payee) group needs
// before a recurring pattern is inferred from it.
const minOccurrences = 3

// DiscoverSchedules scans transactions that are not linked to any schedule
// and proposes schedules for (account, payee) pairs that recur at a steady
// interval. Candidates are returned, never persisted.
func (s *ScheduleService) DiscoverSchedules(ctx context.Context) ([]model.DiscoveredSchedule, error) {
	transactions, err := s.transactionRepo.GetUnscheduledTransactions(ctx)
	if err != nil {
		return nil, err
	}

	type groupKey struct {
		account string
		payee   string
	}
	groups := make(map[groupKey][]model.Transaction)
	var order []groupKey
	for _, t := range transactions {
		key := groupKey{account: t.AccountID, payee: t.PayeeID}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}

	var discovered []model.DiscoveredSchedule
	for _, key := range order {
		group := groups[key]
		if len(group) < minOccurrences {
			continue
		}
		candidate, ok := inferPattern(group)
		if !ok {
			continue
		}
		candidate.AccountID = key.account
		candidate.PayeeID = key.payee
		candidate.Conditions = []model.Condition{
			{Op: "is", Field: "account", Value: key.account},
			{Op: "is", Field: "payee", Value: key.payee},
			{Op: "isapprox", Field: "amount", Value: candidate.Amount},
			{Op: "isapprox", Field: "date", Value: candidate.Date},
		}
		discovered = append(discovered, candidate)
	}
	return discovered, nil
}

// inferPattern derives a recurrence descriptor from a date-ordered group of
// transactions. The gaps between consecutive dates must all fall into the
// tolerance band of one frequency.
func inferPattern(group []model.Transaction) (model.DiscoveredSchedule, bool) {
	dates := make([]time.Time, 0, len(group))
	var total float64
	for _, t := range group {
		d, err := time.ParseInLocation(recurrence.DateFormat, t.Date, time.UTC)
		if err != nil {
			return model.DiscoveredSchedule{}, false
		}
		dates = append(dates, d)
		total += t.Amount
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	gaps := make([]int, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		gaps = append(gaps, int(dates[i].Sub(dates[i-1]).Hours()/24))
	}

	frequency, ok := classifyGaps(gaps)
	if !ok {
		return model.DiscoveredSchedule{}, false
	}

	last := dates[len(dates)-1]
	descriptor := map[string]any{
		"start":     last.Format(recurrence.DateFormat),
		"frequency": string(frequency),
		"interval":  1,
	}
	if frequency == recurrence.Monthly {
		descriptor["patterns"] = []any{
			map[string]any{"value": commonDayOfMonth(dates), "type": "day"},
		}
	}

	return model.DiscoveredSchedule{
		Amount: total / float64(len(group)),
		Date:   descriptor,
	}, true
}

// classifyGaps maps a set of day gaps onto a frequency. Every gap must sit
// inside the band; mixed or irregular gaps yield no pattern.
func classifyGaps(gaps []int) (recurrence.Frequency, bool) {
	bands := []struct {
		frequency recurrence.Frequency
		min, max  int
	}{
		{recurrence.Daily, 1, 1},
		{recurrence.Weekly, 6, 8},
		{recurrence.Biweekly, 13, 15},
		{recurrence.Monthly, 28, 32},
		{recurrence.Yearly, 360, 371},
	}
	for _, band := range bands {
		all := true
		for _, g := range gaps {
			if g < band.min || g > band.max {
				all = false
				break
			}
		}
		if all {
			return band.frequency, true
		}
	}
	return "", false
}

// commonDayOfMonth picks the most frequent day of month across the dates,
// preferring the later occurrence on a tie so end-of-month payments land on
// their usual day.
func commonDayOfMonth(dates []time.Time) int {
	counts := make(map[int]int)
	for _, d := range dates {
		counts[d.Day()]++
	}
	best, bestCount := 0, 0
	for day, count := range counts {
		if count > bestCount || (count == bestCount && day > best) {
			best, bestCount = day, count
		}
	}
	return best
}
