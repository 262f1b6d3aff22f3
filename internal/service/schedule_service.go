package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avisser/budget-engine/internal/api/request"
	"github.com/avisser/budget-engine/internal/apperrors"
	"github.com/avisser/budget-engine/internal/events"
	"github.com/avisser/budget-engine/internal/model"
	"github.com/avisser/budget-engine/internal/recurrence"
	"github.com/avisser/budget-engine/internal/repository"
)

// defaultUpcomingDays is the window, in days, inside which a past-due schedule
// still counts as due rather than missed.
const defaultUpcomingDays = 7

// ScheduleService owns rule-backed schedules: creation, updates, next-date
// tracking and the daily advancement pass that posts due transactions.
type ScheduleService struct {
	db              *sql.DB
	scheduleRepo    *repository.ScheduleRepository
	ruleRepo        *repository.RuleRepository
	accountRepo     *repository.AccountRepository
	payeeRepo       *repository.PayeeRepository
	categoryRepo    *repository.CategoryRepository
	transactionRepo *repository.TransactionRepository
	prefRepo        *repository.PreferenceRepository
	bus             *events.Bus
	now             func() time.Time
}

// NewScheduleService creates a schedule service.
func NewScheduleService(
	db *sql.DB,
	scheduleRepo *repository.ScheduleRepository,
	ruleRepo *repository.RuleRepository,
	accountRepo *repository.AccountRepository,
	payeeRepo *repository.PayeeRepository,
	categoryRepo *repository.CategoryRepository,
	transactionRepo *repository.TransactionRepository,
	prefRepo *repository.PreferenceRepository,
	bus *events.Bus,
) *ScheduleService {
	return &ScheduleService{
		db:              db,
		scheduleRepo:    scheduleRepo,
		ruleRepo:        ruleRepo,
		accountRepo:     accountRepo,
		payeeRepo:       payeeRepo,
		categoryRepo:    categoryRepo,
		transactionRepo: transactionRepo,
		prefRepo:        prefRepo,
		bus:             bus,
		now:             time.Now,
	}
}

// CreateSchedule creates a schedule together with its backing rule and the
// initial next-date row, all in one transaction. The conditions must contain
// exactly one date condition; its value seeds the next occurrence.
func (s *ScheduleService) CreateSchedule(ctx context.Context, req request.CreateScheduleRequest) (*model.Schedule, error) {
	dateCond, err := dateCondition(req.Conditions)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Schedule.Name)
	if name != "" {
		existing, err := s.scheduleRepo.FindActiveByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to check schedule name: %w", err)
		}
		if existing != nil && existing.ID != req.Schedule.ID {
			return nil, apperrors.ErrDuplicateScheduleName
		}
	}

	scheduleID := req.Schedule.ID
	if scheduleID == "" {
		scheduleID = uuid.New().String()
	}

	today := recurrence.Day(s.now().UTC())
	nextDate, err := recurrence.NextDate(dateCond.Value, today)
	if err != nil {
		return nil, fmt.Errorf("failed to compute next date: %w", err)
	}

	rule := model.Rule{
		ID:           uuid.New().String(),
		Stage:        "",
		ConditionsOp: "and",
		Conditions:   req.Conditions,
		Actions: []model.Action{
			{Op: model.OpLinkSchedule, Value: scheduleID},
		},
	}
	schedule := model.Schedule{
		ID:               scheduleID,
		RuleID:           rule.ID,
		Name:             name,
		PostsTransaction: req.Schedule.PostsTransaction,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.ruleRepo.WithTx(tx).InsertRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to insert rule: %w", err)
	}
	if err := s.scheduleRepo.WithTx(tx).InsertSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to insert schedule: %w", err)
	}
	if err := s.scheduleRepo.WithTx(tx).UpsertNextDate(ctx, s.nextDateRecord(scheduleID, nextDate)); err != nil {
		return nil, fmt.Errorf("failed to store next date: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	schedule.NextDate = nextDate
	s.project(&schedule, rule.Conditions)
	return &schedule, nil
}

// UpdateSchedule updates a schedule and, when conditions are supplied, merges
// them into the linked rule. The rule linkage itself is immutable.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, req request.UpdateScheduleRequest) (*model.Schedule, error) {
	schedule, err := s.scheduleRepo.GetSchedule(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if req.Rule != "" && req.Rule != schedule.RuleID {
		return nil, apperrors.ErrRuleLinkImmutable
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name != "" && !strings.EqualFold(name, schedule.Name) {
			existing, err := s.scheduleRepo.FindActiveByName(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("failed to check schedule name: %w", err)
			}
			if existing != nil && existing.ID != schedule.ID {
				return nil, apperrors.ErrDuplicateScheduleName
			}
		}
		schedule.Name = name
	}
	if req.PostsTransaction != nil {
		schedule.PostsTransaction = *req.PostsTransaction
	}

	rule, err := s.ruleWithRepair(ctx, &schedule)
	if err != nil {
		return nil, err
	}

	resetNext := req.ResetNextDate
	if req.Conditions != nil {
		merged := mergeConditions(rule.Conditions, req.Conditions)
		if !resetNext {
			resetNext = conditionChanged(rule.Conditions, merged, "date") ||
				conditionChanged(rule.Conditions, merged, "account")
		}
		rule.Conditions = merged
	}

	var nextDate string
	if resetNext {
		dateCond, err := dateCondition(rule.Conditions)
		if err != nil {
			return nil, err
		}
		today := recurrence.Day(s.now().UTC())
		nextDate, err = recurrence.NextDate(dateCond.Value, today)
		if err != nil {
			return nil, fmt.Errorf("failed to compute next date: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if req.Conditions != nil {
		if err := s.ruleRepo.WithTx(tx).UpdateRule(ctx, rule); err != nil {
			return nil, fmt.Errorf("failed to update rule: %w", err)
		}
	}
	if err := s.scheduleRepo.WithTx(tx).UpdateSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}
	if resetNext {
		if err := s.scheduleRepo.WithTx(tx).UpsertNextDate(ctx, s.nextDateRecord(schedule.ID, nextDate)); err != nil {
			return nil, fmt.Errorf("failed to store next date: %w", err)
		}
		schedule.NextDate = nextDate
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.project(&schedule, rule.Conditions)
	return &schedule, nil
}

// DeleteSchedule tombstones a schedule and its backing rule in one transaction.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, id string) error {
	schedule, err := s.scheduleRepo.GetSchedule(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if schedule.RuleID != "" {
		if err := s.ruleRepo.WithTx(tx).DeleteRule(ctx, schedule.RuleID); err != nil && !errors.Is(err, apperrors.ErrRuleNotFound) {
			return fmt.Errorf("failed to delete rule: %w", err)
		}
	}
	if err := s.scheduleRepo.WithTx(tx).DeleteSchedule(ctx, id); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	return tx.Commit()
}

// SkipNextDate rolls a schedule past its current next occurrence without
// posting a transaction. A non-recurring schedule is marked completed instead.
func (s *ScheduleService) SkipNextDate(ctx context.Context, id string) (*model.Schedule, error) {
	schedule, err := s.scheduleRepo.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	rule, err := s.ruleWithRepair(ctx, &schedule)
	if err != nil {
		return nil, err
	}
	dateCond, err := dateCondition(rule.Conditions)
	if err != nil {
		return nil, err
	}
	_, cfg, err := recurrence.ParseValue(dateCond.Value)
	if err != nil {
		return nil, err
	}

	if cfg == nil {
		if err := s.scheduleRepo.SetCompleted(ctx, id, true); err != nil {
			return nil, err
		}
		schedule.Completed = true
		s.project(&schedule, rule.Conditions)
		return &schedule, nil
	}

	current := schedule.NextDate
	if current == "" {
		current = recurrence.Day(s.now().UTC()).Format(recurrence.DateFormat)
	}
	after, err := time.ParseInLocation(recurrence.DateFormat, current, time.UTC)
	if err != nil {
		return nil, apperrors.ErrInvalidDate
	}
	next, err := recurrence.NextDate(dateCond.Value, after.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to compute next date: %w", err)
	}
	if err := s.scheduleRepo.UpsertNextDate(ctx, s.nextDateRecord(id, next)); err != nil {
		return nil, fmt.Errorf("failed to store next date: %w", err)
	}

	schedule.NextDate = next
	s.project(&schedule, rule.Conditions)
	return &schedule, nil
}

// PostTransactionForSchedule materializes one transaction from a schedule,
// dated either today or the schedule's next occurrence. Schedules without an
// account condition are skipped silently. The next date is not advanced; the
// advancement pass picks the posting up as paid.
func (s *ScheduleService) PostTransactionForSchedule(ctx context.Context, req request.PostTransactionRequest) error {
	schedule, err := s.scheduleRepo.GetSchedule(ctx, req.ID)
	if err != nil {
		return err
	}
	rule, err := s.ruleWithRepair(ctx, &schedule)
	if err != nil {
		return err
	}
	s.project(&schedule, rule.Conditions)
	if schedule.Account == "" {
		log.Printf("schedule %s has no account condition, not posting", schedule.ID)
		return nil
	}

	date := schedule.NextDate
	if req.Today || date == "" {
		date = recurrence.Day(s.now().UTC()).Format(recurrence.DateFormat)
	}
	return s.postTransaction(ctx, schedule, date)
}

// UpcomingDates previews the next occurrences of a recurrence config without
// touching any schedule.
func (s *ScheduleService) UpcomingDates(ctx context.Context, req request.UpcomingDatesRequest) ([]string, error) {
	count := req.Count
	if count <= 0 {
		count = 10
	}
	cfg := req.Config
	if cfg.WeekendSolveMode == "" {
		if mode, err := s.prefRepo.Get(ctx, repository.PrefWeekendSolve); err == nil {
			cfg.WeekendSolveMode = recurrence.WeekendSolve(mode)
		}
	}
	return recurrence.UpcomingDates(cfg, recurrence.Day(s.now().UTC()), count)
}

// ListSchedules returns all active schedules decorated with their derived
// projections and status.
func (s *ScheduleService) ListSchedules(ctx context.Context) ([]model.Schedule, error) {
	schedules, err := s.scheduleRepo.GetActiveSchedules(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(schedules))
	for _, sc := range schedules {
		ids = append(ids, sc.ID)
	}
	transDates, err := s.transactionRepo.GetScheduleTransactionDates(ctx, ids)
	if err != nil {
		return nil, err
	}

	today := recurrence.Day(s.now().UTC()).Format(recurrence.DateFormat)
	window := s.upcomingWindow(ctx)
	for i := range schedules {
		rule, err := s.ruleWithRepair(ctx, &schedules[i])
		if err != nil {
			return nil, err
		}
		s.project(&schedules[i], rule.Conditions)
		paid := transDates[schedules[i].ID][schedules[i].NextDate]
		schedules[i].Status = statusFor(schedules[i], paid, today, window)
	}
	return schedules, nil
}

// AdvanceSchedules is the daily pass: it rolls paid schedules forward, marks
// finished one-shots completed and posts transactions for due or missed
// schedules. When syncSucceeded is false, postings are deferred and an Offline
// event is published instead. The pass runs at most once per calendar day
// unless force is set; the gate is a compare-and-set on a preference row so
// concurrent triggers cannot both run.
func (s *ScheduleService) AdvanceSchedules(ctx context.Context, syncSucceeded, force bool) error {
	today := recurrence.Day(s.now().UTC()).Format(recurrence.DateFormat)
	if !force {
		ran, err := s.prefRepo.CompareAndSet(ctx, repository.PrefScheduleLastRun, today)
		if err != nil {
			return fmt.Errorf("failed to check last run: %w", err)
		}
		if !ran {
			return nil
		}
	}

	schedules, err := s.scheduleRepo.GetActiveSchedules(ctx)
	if err != nil {
		return err
	}
	accounts, err := s.accountRepo.GetActiveAccounts(ctx)
	if err != nil {
		return err
	}
	openAccounts := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		openAccounts[a.ID] = true
	}

	ids := make([]string, 0, len(schedules))
	for _, sc := range schedules {
		if !sc.Completed {
			ids = append(ids, sc.ID)
		}
	}
	transDates, err := s.transactionRepo.GetScheduleTransactionDates(ctx, ids)
	if err != nil {
		return err
	}

	window := s.upcomingWindow(ctx)
	var posted, deferred int
	for i := range schedules {
		sc := &schedules[i]
		if sc.Completed {
			continue
		}
		rule, err := s.ruleWithRepair(ctx, sc)
		if err != nil {
			log.Printf("skipping schedule %s: %v", sc.ID, err)
			continue
		}
		s.project(sc, rule.Conditions)
		if sc.Account != "" && !openAccounts[sc.Account] {
			continue
		}

		paid := transDates[sc.ID][sc.NextDate]
		switch statusFor(*sc, paid, today, window) {
		case model.StatusPaid:
			if err := s.advancePaid(ctx, sc, rule, today); err != nil {
				log.Printf("failed to advance schedule %s: %v", sc.ID, err)
			}
		case model.StatusDue, model.StatusMissed:
			if !sc.PostsTransaction || sc.Account == "" {
				continue
			}
			if !syncSucceeded {
				deferred++
				continue
			}
			if err := s.postTransaction(ctx, *sc, sc.NextDate); err != nil {
				log.Printf("failed to post transaction for schedule %s: %v", sc.ID, err)
				continue
			}
			posted++
		}
	}

	if deferred > 0 {
		s.bus.Publish(events.Offline, nil)
	} else if posted > 0 {
		s.bus.Publish(events.SyncSuccess, events.SyncEvent{Tables: []string{"transactions"}})
	}
	log.Printf("schedule advancement complete: %d posted, %d deferred", posted, deferred)
	return nil
}

// advancePaid rolls a paid schedule past its settled occurrence, or marks a
// non-recurring schedule completed once its single date is in the past.
func (s *ScheduleService) advancePaid(ctx context.Context, sc *model.Schedule, rule model.Rule, today string) error {
	dateCond, err := dateCondition(rule.Conditions)
	if err != nil {
		return err
	}
	_, cfg, err := recurrence.ParseValue(dateCond.Value)
	if err != nil {
		return err
	}
	if cfg == nil {
		if sc.NextDate <= today {
			return s.scheduleRepo.SetCompleted(ctx, sc.ID, true)
		}
		return nil
	}

	after, err := time.ParseInLocation(recurrence.DateFormat, sc.NextDate, time.UTC)
	if err != nil {
		return apperrors.ErrInvalidDate
	}
	next, err := recurrence.NextDate(dateCond.Value, after.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	if err := s.scheduleRepo.UpsertNextDate(ctx, s.nextDateRecord(sc.ID, next)); err != nil {
		return err
	}
	sc.NextDate = next
	return nil
}

func (s *ScheduleService) postTransaction(ctx context.Context, sc model.Schedule, date string) error {
	return s.transactionRepo.InsertTransaction(ctx, model.Transaction{
		ID:         uuid.New().String(),
		AccountID:  sc.Account,
		PayeeID:    sc.Payee,
		Amount:     sc.Amount,
		Date:       date,
		ScheduleID: sc.ID,
	})
}

// ruleWithRepair loads the schedule's backing rule. A dangling link is
// repaired in place: a minimal rule with approximate date and amount
// conditions is created and linked so the schedule stays operable.
func (s *ScheduleService) ruleWithRepair(ctx context.Context, sc *model.Schedule) (model.Rule, error) {
	if sc.RuleID != "" {
		rule, err := s.ruleRepo.GetRule(ctx, sc.RuleID)
		if err == nil {
			return rule, nil
		}
		if !errors.Is(err, apperrors.ErrRuleNotFound) {
			return model.Rule{}, err
		}
	}

	log.Printf("schedule %s has a broken rule link, recreating rule", sc.ID)
	rule := model.Rule{
		ID:           uuid.New().String(),
		ConditionsOp: "and",
		Conditions: []model.Condition{
			{Op: "isapprox", Field: "date", Value: recurrence.Day(s.now().UTC()).Format(recurrence.DateFormat)},
			{Op: "isapprox", Field: "amount", Value: float64(0)},
		},
		Actions: []model.Action{
			{Op: model.OpLinkSchedule, Value: sc.ID},
		},
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Rule{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.ruleRepo.WithTx(tx).InsertRule(ctx, rule); err != nil {
		return model.Rule{}, fmt.Errorf("failed to insert repair rule: %w", err)
	}
	sc.RuleID = rule.ID
	if err := s.scheduleRepo.WithTx(tx).UpdateSchedule(ctx, *sc); err != nil {
		return model.Rule{}, fmt.Errorf("failed to relink schedule: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Rule{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rule, nil
}

func (s *ScheduleService) nextDateRecord(scheduleID, date string) model.NextDateRecord {
	now := s.now().UTC()
	return model.NextDateRecord{
		ScheduleID:      scheduleID,
		LocalNextDate:   date,
		LocalNextDateTS: now,
		BaseNextDate:    date,
		BaseNextDateTS:  now,
	}
}

// project fills the schedule's derived fields from its rule conditions.
func (s *ScheduleService) project(sc *model.Schedule, conds []model.Condition) {
	for _, c := range conds {
		switch c.Kind() {
		case model.KindAccount:
			if v, ok := c.Value.(string); ok {
				sc.Account = v
			}
		case model.KindPayee:
			if v, ok := c.Value.(string); ok {
				sc.Payee = v
			}
		case model.KindAmount:
			sc.Amount = toFloat(c.Value)
		case model.KindDate:
			sc.Date = c.Value
		}
	}
}

func (s *ScheduleService) upcomingWindow(ctx context.Context) int {
	raw, err := s.prefRepo.Get(ctx, repository.PrefUpcomingLength)
	if err != nil {
		return defaultUpcomingDays
	}
	days, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || days <= 0 {
		return defaultUpcomingDays
	}
	return days
}

// statusFor derives a schedule's state from its next date. A past-due
// schedule counts as due within the upcoming window and as missed beyond it.
func statusFor(sc model.Schedule, paid bool, today string, windowDays int) model.ScheduleStatus {
	if sc.Completed {
		return model.StatusCompleted
	}
	if paid {
		return model.StatusPaid
	}
	if sc.NextDate == "" || sc.NextDate > today {
		return model.StatusUpcoming
	}
	if sc.NextDate == today {
		return model.StatusDue
	}
	next, err := time.ParseInLocation(recurrence.DateFormat, sc.NextDate, time.UTC)
	if err != nil {
		return model.StatusMissed
	}
	cutoff, _ := time.ParseInLocation(recurrence.DateFormat, today, time.UTC)
	if cutoff.Sub(next) <= time.Duration(windowDays)*24*time.Hour {
		return model.StatusDue
	}
	return model.StatusMissed
}

// dateCondition returns the single date condition from conds. Zero or more
// than one date condition, or a nil value, is an error.
func dateCondition(conds []model.Condition) (*model.Condition, error) {
	var found *model.Condition
	for i := range conds {
		if conds[i].Kind() != model.KindDate {
			continue
		}
		if found != nil {
			return nil, apperrors.ErrDateConditionRequired
		}
		found = &conds[i]
	}
	if found == nil || found.Value == nil {
		return nil, apperrors.ErrDateConditionRequired
	}
	return found, nil
}

// mergeConditions overlays new conditions onto old by field position: a new
// condition replaces the first not-yet-replaced old condition with the same
// field, and is appended when no such condition exists.
func mergeConditions(old, updates []model.Condition) []model.Condition {
	merged := make([]model.Condition, len(old))
	copy(merged, old)
	used := make(map[int]bool, len(merged))

	for _, upd := range updates {
		replaced := false
		for i := range merged {
			if !used[i] && merged[i].Field == upd.Field {
				merged[i] = upd
				used[i] = true
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, upd)
		}
	}
	return merged
}

// conditionChanged reports whether the first condition of the given field
// differs between the two sets, compared by canonical JSON.
func conditionChanged(before, after []model.Condition, field string) bool {
	return condFingerprint(before, field) != condFingerprint(after, field)
}

func condFingerprint(conds []model.Condition, field string) string {
	for _, c := range conds {
		if c.Field == field {
			b, err := json.Marshal(c.Value)
			if err != nil {
				return fmt.Sprintf("!%v", c.Value)
			}
			return string(b)
		}
	}
	return ""
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}
