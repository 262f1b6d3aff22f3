package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/avisser/budget-engine/internal/apperrors"
	"github.com/avisser/budget-engine/internal/model"
)

// RuleRepository provides data access methods for the rules table.
// Conditions and actions are persisted as JSON text columns.
type RuleRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewRuleRepository creates a new RuleRepository with the provided database connection.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) WithTx(tx *sql.Tx) *RuleRepository {
	return &RuleRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *RuleRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// GetRule retrieves a single rule by id. Returns apperrors.ErrRuleNotFound
// when no live row exists; the schedule engine treats that as a broken rule
// link and repairs it.
func (r *RuleRepository) GetRule(ctx context.Context, id string) (model.Rule, error) {
	query := `
        SELECT id, stage, conditions_op, conditions, actions, tombstone
        FROM rules
        WHERE id = ? AND tombstone = 0
    `

	var rule model.Rule
	var stage sql.NullString
	var conditionsJSON, actionsJSON string
	err := r.getQuerier().QueryRowContext(ctx, query, id).Scan(
		&rule.ID,
		&stage,
		&rule.ConditionsOp,
		&conditionsJSON,
		&actionsJSON,
		&rule.Tombstone,
	)
	if err == sql.ErrNoRows {
		return model.Rule{}, apperrors.ErrRuleNotFound
	}
	if err != nil {
		return model.Rule{}, fmt.Errorf("failed to query rules table: %w", err)
	}

	if stage.Valid {
		rule.Stage = stage.String
	}

	if err := json.Unmarshal([]byte(conditionsJSON), &rule.Conditions); err != nil {
		return model.Rule{}, fmt.Errorf("failed to decode rule conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(actionsJSON), &rule.Actions); err != nil {
		return model.Rule{}, fmt.Errorf("failed to decode rule actions: %w", err)
	}

	return rule, nil
}

// InsertRule inserts a new rule row.
func (r *RuleRepository) InsertRule(ctx context.Context, rule model.Rule) error {
	conditionsJSON, actionsJSON, err := encodeRule(rule)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO rules (id, stage, conditions_op, conditions, actions, tombstone)
        VALUES (?, ?, ?, ?, ?, ?)
    `

	_, err = r.getQuerier().ExecContext(ctx, query,
		rule.ID,
		nullableString(rule.Stage),
		rule.ConditionsOp,
		conditionsJSON,
		actionsJSON,
		rule.Tombstone,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// UpdateRule replaces the stored conditions, actions, stage and conditions op
// of an existing rule.
func (r *RuleRepository) UpdateRule(ctx context.Context, rule model.Rule) error {
	conditionsJSON, actionsJSON, err := encodeRule(rule)
	if err != nil {
		return err
	}

	query := `
        UPDATE rules
        SET stage = ?, conditions_op = ?, conditions = ?, actions = ?
        WHERE id = ? AND tombstone = 0
    `

	result, err := r.getQuerier().ExecContext(ctx, query,
		nullableString(rule.Stage),
		rule.ConditionsOp,
		conditionsJSON,
		actionsJSON,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrRuleNotFound
	}

	return nil
}

// HardDeleteRule removes a rule row entirely, bypassing the tombstone. Used
// when unwinding a rule that was never fully wired up.
func (r *RuleRepository) HardDeleteRule(ctx context.Context, id string) error {
	query := `DELETE FROM rules WHERE id = ?`

	_, err := r.getQuerier().ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to hard delete rule: %w", err)
	}

	return nil
}

// DeleteRule tombstones a rule.
func (r *RuleRepository) DeleteRule(ctx context.Context, id string) error {
	query := `UPDATE rules SET tombstone = 1 WHERE id = ?`

	_, err := r.getQuerier().ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	return nil
}

func encodeRule(rule model.Rule) (conditionsJSON, actionsJSON string, err error) {
	conditions := rule.Conditions
	if conditions == nil {
		conditions = []model.Condition{}
	}
	actions := rule.Actions
	if actions == nil {
		actions = []model.Action{}
	}

	condBytes, err := json.Marshal(conditions)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode rule conditions: %w", err)
	}
	actBytes, err := json.Marshal(actions)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode rule actions: %w", err)
	}

	return string(condBytes), string(actBytes), nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
