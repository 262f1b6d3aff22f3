package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avisser/budget-engine/internal/apperrors"
	"github.com/avisser/budget-engine/internal/model"
)

// ScheduleRepository provides data access methods for the schedules and
// schedules_next_date tables.
type ScheduleRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewScheduleRepository creates a new ScheduleRepository with the provided database connection.
func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) WithTx(tx *sql.Tx) *ScheduleRepository {
	return &ScheduleRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *ScheduleRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const scheduleColumns = `
    s.id, s.rule_id, s.name, s.posts_transaction, s.completed, s.tombstone,
    nd.local_next_date
`

func scanSchedule(scan func(dest ...any) error) (model.Schedule, error) {
	var s model.Schedule
	var name sql.NullString
	var nextDate sql.NullString

	err := scan(
		&s.ID,
		&s.RuleID,
		&name,
		&s.PostsTransaction,
		&s.Completed,
		&s.Tombstone,
		&nextDate,
	)
	if err != nil {
		return model.Schedule{}, err
	}

	if name.Valid {
		s.Name = name.String
	}
	if nextDate.Valid {
		s.NextDate = nextDate.String
	}

	return s, nil
}

// GetSchedule retrieves a single live schedule by id, with its materialized
// next date.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (model.Schedule, error) {
	query := `
        SELECT ` + scheduleColumns + `
        FROM schedules s
        LEFT JOIN schedules_next_date nd ON nd.schedule_id = s.id
        WHERE s.id = ? AND s.tombstone = 0
    `

	s, err := scanSchedule(r.getQuerier().QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return model.Schedule{}, apperrors.ErrScheduleNotFound
	}
	if err != nil {
		return model.Schedule{}, fmt.Errorf("failed to query schedules table: %w", err)
	}

	return s, nil
}

// GetActiveSchedules retrieves all non-tombstoned schedules with their
// materialized next dates. Completed schedules are included; callers filter.
func (r *ScheduleRepository) GetActiveSchedules(ctx context.Context) ([]model.Schedule, error) {
	query := `
        SELECT ` + scheduleColumns + `
        FROM schedules s
        LEFT JOIN schedules_next_date nd ON nd.schedule_id = s.id
        WHERE s.tombstone = 0
        ORDER BY s.name ASC, s.id ASC
    `

	rows, err := r.getQuerier().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules table: %w", err)
	}
	defer rows.Close()

	schedules := []model.Schedule{}

	for rows.Next() {
		s, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedules table results: %w", err)
		}
		schedules = append(schedules, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules table: %w", err)
	}

	return schedules, nil
}

// FindActiveByName retrieves a live schedule with the exact given name.
// Returns nil, nil when no such schedule exists.
func (r *ScheduleRepository) FindActiveByName(ctx context.Context, name string) (*model.Schedule, error) {
	query := `
        SELECT ` + scheduleColumns + `
        FROM schedules s
        LEFT JOIN schedules_next_date nd ON nd.schedule_id = s.id
        WHERE s.name = ? AND s.tombstone = 0
        LIMIT 1
    `

	s, err := scanSchedule(r.getQuerier().QueryRowContext(ctx, query, name).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules table: %w", err)
	}

	return &s, nil
}

// InsertSchedule inserts a new schedule row.
func (r *ScheduleRepository) InsertSchedule(ctx context.Context, s model.Schedule) error {
	query := `
        INSERT INTO schedules (id, rule_id, name, posts_transaction, completed, tombstone)
        VALUES (?, ?, ?, ?, ?, ?)
    `

	_, err := r.getQuerier().ExecContext(ctx, query,
		s.ID,
		s.RuleID,
		nullableString(s.Name),
		s.PostsTransaction,
		s.Completed,
		s.Tombstone,
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}

	return nil
}

// UpdateSchedule updates a schedule's mutable fields (name, posting flag,
// completion, rule id). Rule-linkage immutability is enforced in the service
// layer; the repair path legitimately re-links here.
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, s model.Schedule) error {
	query := `
        UPDATE schedules
        SET rule_id = ?, name = ?, posts_transaction = ?, completed = ?
        WHERE id = ? AND tombstone = 0
    `

	result, err := r.getQuerier().ExecContext(ctx, query,
		s.RuleID,
		nullableString(s.Name),
		s.PostsTransaction,
		s.Completed,
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrScheduleNotFound
	}

	return nil
}

// SetCompleted marks a schedule completed or not.
func (r *ScheduleRepository) SetCompleted(ctx context.Context, id string, completed bool) error {
	query := `UPDATE schedules SET completed = ? WHERE id = ? AND tombstone = 0`

	_, err := r.getQuerier().ExecContext(ctx, query, completed, id)
	if err != nil {
		return fmt.Errorf("failed to set schedule completion: %w", err)
	}

	return nil
}

// DeleteSchedule tombstones a schedule row.
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	query := `UPDATE schedules SET tombstone = 1 WHERE id = ?`

	_, err := r.getQuerier().ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	return nil
}

// HardDeleteSchedule removes a schedule row entirely. Used by import cleanup
// so a failed entry leaves no trace, unlike the tombstoning DeleteSchedule.
func (r *ScheduleRepository) HardDeleteSchedule(ctx context.Context, id string) error {
	query := `DELETE FROM schedules WHERE id = ?`

	_, err := r.getQuerier().ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to hard-delete schedule: %w", err)
	}

	return nil
}

// UpsertNextDate inserts or replaces the next-date tracking row for a schedule.
func (r *ScheduleRepository) UpsertNextDate(ctx context.Context, rec model.NextDateRecord) error {
	query := `
        INSERT INTO schedules_next_date
            (schedule_id, local_next_date, local_next_date_ts, base_next_date, base_next_date_ts)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(schedule_id) DO UPDATE SET
            local_next_date = excluded.local_next_date,
            local_next_date_ts = excluded.local_next_date_ts,
            base_next_date = excluded.base_next_date,
            base_next_date_ts = excluded.base_next_date_ts
    `

	_, err := r.getQuerier().ExecContext(ctx, query,
		rec.ScheduleID,
		rec.LocalNextDate,
		rec.LocalNextDateTS.UTC().Format(time.RFC3339),
		rec.BaseNextDate,
		rec.BaseNextDateTS.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert schedule next date: %w", err)
	}

	return nil
}

// DeleteNextDate removes the next-date tracking row for a schedule.
func (r *ScheduleRepository) DeleteNextDate(ctx context.Context, scheduleID string) error {
	query := `DELETE FROM schedules_next_date WHERE schedule_id = ?`

	_, err := r.getQuerier().ExecContext(ctx, query, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule next date: %w", err)
	}

	return nil
}
