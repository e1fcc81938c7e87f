package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/cron"
	"github.com/xraph/chalk/id"
)

const scheduleColumns = `id, name, schedule, queue, body, consumer, last_run_at, next_run_at, enabled, created_at, updated_at`

// RegisterSchedule persists a new schedule entry. A duplicate name is
// chalk.ErrDuplicateSchedule.
func (s *Store) RegisterSchedule(ctx context.Context, entry *cron.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chalk_schedules (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID.String(), entry.Name, entry.Schedule, entry.Queue,
		entry.Body, entry.Consumer, entry.LastRunAt, entry.NextRunAt,
		entry.Enabled, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return chalk.ErrDuplicateSchedule
		}
		return fmt.Errorf("chalk/postgres: register schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (s *Store) GetSchedule(ctx context.Context, entryID id.ScheduleID) (*cron.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM chalk_schedules WHERE id = $1`,
		entryID.String(),
	)
	e, err := scanSchedule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, chalk.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("chalk/postgres: get schedule: %w", err)
	}
	return e, nil
}

// ListSchedules returns all schedule entries.
func (s *Store) ListSchedules(ctx context.Context) ([]*cron.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM chalk_schedules ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("chalk/postgres: list schedules: %w", err)
	}
	defer rows.Close()

	var entries []*cron.Entry
	for rows.Next() {
		e, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("chalk/postgres: list schedules scan: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chalk/postgres: list schedules rows: %w", err)
	}
	return entries, nil
}

// AcquireScheduleLock attempts to take the per-entry lock with a single
// conditional UPDATE: it succeeds when the entry is unlocked, the lock
// expired, or we already hold it.
func (s *Store) AcquireScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE chalk_schedules
		SET locked_by = $2, locked_until = $3, updated_at = $4
		WHERE id = $1
		  AND (locked_by = '' OR locked_by = $2
		       OR locked_until IS NULL OR locked_until <= $4)`,
		entryID.String(), workerID.String(), now.Add(ttl), now,
	)
	if err != nil {
		return false, fmt.Errorf("chalk/postgres: acquire lock: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Nothing updated: either held by another worker or the entry is gone.
	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM chalk_schedules WHERE id = $1)`,
		entryID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("chalk/postgres: acquire lock check: %w", err)
	}
	if !exists {
		return false, chalk.ErrScheduleNotFound
	}
	return false, nil
}

// ReleaseScheduleLock releases the per-entry lock if held by workerID.
func (s *Store) ReleaseScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chalk_schedules
		SET locked_by = '', locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND locked_by = $2`,
		entryID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("chalk/postgres: release lock: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM chalk_schedules WHERE id = $1)`,
		entryID.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("chalk/postgres: release lock check: %w", err)
	}
	if !exists {
		return chalk.ErrScheduleNotFound
	}
	return nil // not our lock, no-op
}

// UpdateScheduleRun records a fire: LastRunAt and the next trigger.
func (s *Store) UpdateScheduleRun(ctx context.Context, entryID id.ScheduleID, firedAt, nextRunAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chalk_schedules
		SET last_run_at = $2, next_run_at = $3, updated_at = NOW()
		WHERE id = $1`,
		entryID.String(), firedAt, nextRunAt,
	)
	if err != nil {
		return fmt.Errorf("chalk/postgres: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chalk.ErrScheduleNotFound
	}
	return nil
}

// SetScheduleEnabled toggles whether an entry fires.
func (s *Store) SetScheduleEnabled(ctx context.Context, entryID id.ScheduleID, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chalk_schedules SET enabled = $2, updated_at = NOW() WHERE id = $1`,
		entryID.String(), enabled,
	)
	if err != nil {
		return fmt.Errorf("chalk/postgres: set enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chalk.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule entry by ID.
func (s *Store) DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chalk_schedules WHERE id = $1`, entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("chalk/postgres: delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chalk.ErrScheduleNotFound
	}
	return nil
}

// ── helpers ──

func scanSchedule(row rowScanner) (*cron.Entry, error) {
	var (
		e       cron.Entry
		entryID string
	)
	err := row.Scan(
		&entryID, &e.Name, &e.Schedule, &e.Queue, &e.Body, &e.Consumer,
		&e.LastRunAt, &e.NextRunAt, &e.Enabled, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.ID, err = id.ParseScheduleID(entryID)
	if err != nil {
		return nil, fmt.Errorf("chalk/postgres: parse schedule id: %w", err)
	}
	return &e, nil
}
