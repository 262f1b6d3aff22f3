package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/avisser/budget-engine/internal/apperrors"
	"github.com/avisser/budget-engine/internal/model"
	"github.com/avisser/budget-engine/internal/recurrence"
)

// exportVersion is the current schedule export file version.
const exportVersion = 1

// ExportedRule is a rule serialized with names instead of ids.
type ExportedRule struct {
	Stage        string            `json:"stage"`
	ConditionsOp string            `json:"conditionsOp"`
	Conditions   []model.Condition `json:"conditions"`
	Actions      []model.Action    `json:"actions"`
}

// ExportedSchedule is one schedule entry of an export payload.
type ExportedSchedule struct {
	Name             string       `json:"name"`
	PostsTransaction bool         `json:"posts_transaction"`
	Completed        bool         `json:"completed"`
	Rule             ExportedRule `json:"rule"`
}

// ExportPayload is the versioned schedule export document.
type ExportPayload struct {
	Version    int                `json:"version"`
	ExportedAt string             `json:"exportedAt"`
	Schedules  []ExportedSchedule `json:"schedules"`
}

// ImportError records why one schedule entry was skipped.
type ImportError struct {
	ScheduleName string `json:"scheduleName"`
	Message      string `json:"message"`
}

// ImportResult summarizes an import run. Entry failures are collected here
// rather than aborting the batch.
type ImportResult struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ExportSchedules serializes all active schedules into a portable payload.
// Account, payee and category ids become display names so the file can be
// imported into a budget with different ids. The link-schedule action is
// stripped; it is regenerated on import. A schedule with a broken rule link
// is exported with an empty rule shell instead of failing the export.
func (s *ScheduleService) ExportSchedules(ctx context.Context) (*ExportPayload, error) {
	schedules, err := s.scheduleRepo.GetActiveSchedules(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.loadNameIndex(ctx)
	if err != nil {
		return nil, err
	}

	payload := &ExportPayload{
		Version:    exportVersion,
		ExportedAt: s.now().UTC().Format(time.RFC3339),
		Schedules:  make([]ExportedSchedule, 0, len(schedules)),
	}
	for _, sc := range schedules {
		entry := ExportedSchedule{
			Name:             sc.Name,
			PostsTransaction: sc.PostsTransaction,
			Completed:        sc.Completed,
			Rule:             ExportedRule{ConditionsOp: "and", Conditions: []model.Condition{}, Actions: []model.Action{}},
		}

		rule, err := s.ruleRepo.GetRule(ctx, sc.RuleID)
		switch {
		case err == nil:
			entry.Rule.Stage = rule.Stage
			if rule.ConditionsOp != "" {
				entry.Rule.ConditionsOp = rule.ConditionsOp
			}
			entry.Rule.Conditions = names.conditionsToNames(rule.Conditions)
			entry.Rule.Actions = names.actionsToNames(rule.Actions)
		case errors.Is(err, apperrors.ErrRuleNotFound):
			log.Printf("schedule %s has no rule, exporting empty rule shell", sc.ID)
		default:
			return nil, err
		}

		payload.Schedules = append(payload.Schedules, entry)
	}
	return payload, nil
}

// ImportSchedules parses a JSON5 export payload and recreates its schedules.
// The payload itself must be well formed; individual entries fail
// independently, with best-effort cleanup of anything partially created, and
// are reported in the result.
func (s *ScheduleService) ImportSchedules(ctx context.Context, data []byte) (*ImportResult, error) {
	var payload ExportPayload
	if err := json5.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedExport, err)
	}
	if payload.Version != exportVersion {
		return nil, apperrors.ErrUnknownExportVersion
	}
	if payload.Schedules == nil {
		return nil, fmt.Errorf("%w: missing schedules array", apperrors.ErrMalformedExport)
	}

	resolver, err := s.loadNameResolver(ctx)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: []ImportError{}}
	for _, entry := range payload.Schedules {
		if err := s.importEntry(ctx, entry, resolver); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, ImportError{
				ScheduleName: entry.Name,
				Message:      err.Error(),
			})
			continue
		}
		result.Imported++
	}
	return result, nil
}

// importEntry recreates one exported schedule. The schedule row is created
// first and hard-deleted again if rule resolution or validation fails, so a
// failed entry leaves no rows behind.
func (s *ScheduleService) importEntry(ctx context.Context, entry ExportedSchedule, resolver *nameResolver) error {
	name := strings.TrimSpace(entry.Name)
	if name != "" {
		existing, err := s.scheduleRepo.FindActiveByName(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.ErrDuplicateScheduleName
		}
	}

	schedule := model.Schedule{
		ID:               uuid.New().String(),
		RuleID:           uuid.New().String(),
		Name:             name,
		PostsTransaction: entry.PostsTransaction,
		Completed:        entry.Completed,
	}
	if err := s.scheduleRepo.InsertSchedule(ctx, schedule); err != nil {
		return err
	}

	rule, nextDate, err := s.buildImportedRule(ctx, entry, schedule, resolver)
	if err != nil {
		s.cleanupImportedSchedule(ctx, schedule)
		return err
	}
	if err := s.ruleRepo.InsertRule(ctx, rule); err != nil {
		s.cleanupImportedSchedule(ctx, schedule)
		return err
	}
	if err := s.scheduleRepo.UpsertNextDate(ctx, s.nextDateRecord(schedule.ID, nextDate)); err != nil {
		s.cleanupImportedSchedule(ctx, schedule)
		return err
	}
	return nil
}

// buildImportedRule resolves an exported rule's names back to ids and
// validates it, returning the rule to insert and the computed next date.
func (s *ScheduleService) buildImportedRule(ctx context.Context, entry ExportedSchedule, schedule model.Schedule, resolver *nameResolver) (model.Rule, string, error) {
	conditions, err := resolver.conditionsToIDs(ctx, s, entry.Rule.Conditions)
	if err != nil {
		return model.Rule{}, "", err
	}
	actions, err := resolver.actionsToIDs(ctx, s, entry.Rule.Actions)
	if err != nil {
		return model.Rule{}, "", err
	}
	actions = append(actions, model.Action{Op: model.OpLinkSchedule, Value: schedule.ID})

	dateCond, err := dateCondition(conditions)
	if err != nil {
		return model.Rule{}, "", err
	}
	nextDate, err := recurrence.NextDate(dateCond.Value, recurrence.Day(s.now().UTC()))
	if err != nil {
		return model.Rule{}, "", err
	}

	conditionsOp := entry.Rule.ConditionsOp
	if conditionsOp == "" {
		conditionsOp = "and"
	}
	rule := model.Rule{
		ID:           schedule.RuleID,
		Stage:        entry.Rule.Stage,
		ConditionsOp: conditionsOp,
		Conditions:   conditions,
		Actions:      actions,
	}
	return rule, nextDate, nil
}

func (s *ScheduleService) cleanupImportedSchedule(ctx context.Context, schedule model.Schedule) {
	if err := s.scheduleRepo.HardDeleteSchedule(ctx, schedule.ID); err != nil {
		log.Printf("failed to clean up schedule %s after import error: %v", schedule.ID, err)
	}
	if err := s.ruleRepo.HardDeleteRule(ctx, schedule.RuleID); err != nil {
		log.Printf("failed to clean up rule for %s after import error: %v", schedule.ID, err)
	}
	if err := s.scheduleRepo.DeleteNextDate(ctx, schedule.ID); err != nil {
		log.Printf("failed to clean up next date for %s after import error: %v", schedule.ID, err)
	}
}

// nameIndex maps entity ids to display names for export.
type nameIndex struct {
	accounts   map[string]string
	payees     map[string]string
	categories map[string]model.Category
}

func (s *ScheduleService) loadNameIndex(ctx context.Context) (*nameIndex, error) {
	idx := &nameIndex{
		accounts:   make(map[string]string),
		payees:     make(map[string]string),
		categories: make(map[string]model.Category),
	}
	accounts, err := s.accountRepo.GetActiveAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		idx.accounts[a.ID] = a.Name
	}
	payees, err := s.payeeRepo.GetActivePayees(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range payees {
		idx.payees[p.ID] = p.Name
	}
	categories, err := s.categoryRepo.GetActiveCategories(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range categories {
		idx.categories[c.ID] = c
	}
	return idx, nil
}

func (idx *nameIndex) conditionsToNames(conds []model.Condition) []model.Condition {
	out := make([]model.Condition, 0, len(conds))
	for _, c := range conds {
		c.Value = idx.valueToName(c.Kind(), c.Value)
		out = append(out, c)
	}
	return out
}

// actionsToNames maps action values to names and drops link-schedule actions,
// which are regenerated on import since schedule ids differ across budgets.
func (idx *nameIndex) actionsToNames(actions []model.Action) []model.Action {
	out := make([]model.Action, 0, len(actions))
	for _, a := range actions {
		if a.Op == model.OpLinkSchedule {
			continue
		}
		a.Value = idx.valueToName(a.Kind(), a.Value)
		out = append(out, a)
	}
	return out
}

// valueToName maps an id value onto its display name. Unknown ids pass
// through unchanged so a stale reference does not fail the export.
func (idx *nameIndex) valueToName(kind model.FieldKind, value any) any {
	id, ok := value.(string)
	if !ok {
		return value
	}
	switch kind {
	case model.KindAccount:
		if name, ok := idx.accounts[id]; ok {
			return name
		}
	case model.KindPayee:
		if name, ok := idx.payees[id]; ok {
			return name
		}
	case model.KindCategory:
		if c, ok := idx.categories[id]; ok {
			return map[string]any{"name": c.Name, "group": c.GroupName}
		}
	}
	return value
}

// nameResolver maps normalized display names back to ids for import. Name
// matching is case-insensitive and whitespace-trimmed; a normalized name
// shared by several entities of one kind is ambiguous and fails the entry.
type nameResolver struct {
	accounts   map[string][]string
	payees     map[string][]string
	categories map[string][]model.Category
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *ScheduleService) loadNameResolver(ctx context.Context) (*nameResolver, error) {
	r := &nameResolver{
		accounts:   make(map[string][]string),
		payees:     make(map[string][]string),
		categories: make(map[string][]model.Category),
	}
	accounts, err := s.accountRepo.GetActiveAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		key := normalizeName(a.Name)
		r.accounts[key] = append(r.accounts[key], a.ID)
	}
	payees, err := s.payeeRepo.GetActivePayees(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range payees {
		key := normalizeName(p.Name)
		r.payees[key] = append(r.payees[key], p.ID)
	}
	categories, err := s.categoryRepo.GetActiveCategories(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range categories {
		key := normalizeName(c.Name)
		r.categories[key] = append(r.categories[key], c)
	}
	return r, nil
}

func (r *nameResolver) conditionsToIDs(ctx context.Context, s *ScheduleService, conds []model.Condition) ([]model.Condition, error) {
	out := make([]model.Condition, 0, len(conds))
	for _, c := range conds {
		value, err := r.valueToID(ctx, s, c.Kind(), c.Value)
		if err != nil {
			return nil, err
		}
		c.Value = value
		out = append(out, c)
	}
	return out, nil
}

func (r *nameResolver) actionsToIDs(ctx context.Context, s *ScheduleService, actions []model.Action) ([]model.Action, error) {
	out := make([]model.Action, 0, len(actions))
	for _, a := range actions {
		if a.Op == model.OpLinkSchedule {
			continue
		}
		value, err := r.valueToID(ctx, s, a.Kind(), a.Value)
		if err != nil {
			return nil, err
		}
		a.Value = value
		out = append(out, a)
	}
	return out, nil
}

func (r *nameResolver) valueToID(ctx context.Context, s *ScheduleService, kind model.FieldKind, value any) (any, error) {
	switch kind {
	case model.KindAccount:
		name, ok := value.(string)
		if !ok {
			return value, nil
		}
		return r.resolveAccount(name)
	case model.KindPayee:
		name, ok := value.(string)
		if !ok {
			return value, nil
		}
		return r.resolvePayee(ctx, s, name)
	case model.KindCategory:
		return r.resolveCategory(value)
	default:
		return value, nil
	}
}

func (r *nameResolver) resolveAccount(name string) (string, error) {
	ids := r.accounts[normalizeName(name)]
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %q", apperrors.ErrAccountNotFound, name)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("account %w: %q", apperrors.ErrAmbiguousName, name)
	}
}

// resolvePayee returns the id of the named payee, creating the payee when no
// match exists. Several payees sharing the normalized name are ambiguous and
// fail the entry; auto-creation applies only when nothing matches.
func (r *nameResolver) resolvePayee(ctx context.Context, s *ScheduleService, name string) (string, error) {
	key := normalizeName(name)
	ids := r.payees[key]
	if len(ids) > 1 {
		return "", fmt.Errorf("payee %w: %q", apperrors.ErrAmbiguousName, name)
	}
	if len(ids) == 1 {
		return ids[0], nil
	}
	payee := model.Payee{ID: uuid.New().String(), Name: strings.TrimSpace(name)}
	if err := s.payeeRepo.InsertPayee(ctx, payee); err != nil {
		return "", fmt.Errorf("failed to create payee %q: %w", name, err)
	}
	r.payees[key] = []string{payee.ID}
	return payee.ID, nil
}

// resolveCategory accepts either a plain name or a {name, group} object. The
// group-scoped exact match wins; a bare name resolves only when unambiguous.
func (r *nameResolver) resolveCategory(value any) (string, error) {
	var name, group string
	switch v := value.(type) {
	case string:
		name = v
	case map[string]any:
		name, _ = v["name"].(string)
		group, _ = v["group"].(string)
	default:
		return "", fmt.Errorf("%w: unsupported category reference %v", apperrors.ErrCategoryNotFound, value)
	}

	matches := r.categories[normalizeName(name)]
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %q", apperrors.ErrCategoryNotFound, name)
	}
	if group != "" {
		for _, c := range matches {
			if normalizeName(c.GroupName) == normalizeName(group) {
				return c.ID, nil
			}
		}
	}
	if len(matches) == 1 {
		return matches[0].ID, nil
	}
	return "", fmt.Errorf("category %w: %q", apperrors.ErrAmbiguousName, name)
}
