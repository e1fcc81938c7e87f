package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/cron"
	"github.com/xraph/chalk/id"
)

// RegisterSchedule persists a new schedule entry. A duplicate name is
// chalk.ErrDuplicateSchedule.
func (s *Store) RegisterSchedule(ctx context.Context, entry *cron.Entry) error {
	eID := entry.ID.String()

	existing, err := s.client.HGet(ctx, scheduleNamesKey, entry.Name).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("chalk/redis: register schedule check name: %w", err)
	}
	if existing != "" {
		return chalk.ErrDuplicateSchedule
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, scheduleKey(eID), scheduleToMap(entry))
	pipe.SAdd(ctx, scheduleIDsKey, eID)
	pipe.HSet(ctx, scheduleNamesKey, entry.Name, eID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("chalk/redis: register schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (s *Store) GetSchedule(ctx context.Context, entryID id.ScheduleID) (*cron.Entry, error) {
	vals, err := s.client.HGetAll(ctx, scheduleKey(entryID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("chalk/redis: get schedule: %w", err)
	}
	if len(vals) == 0 {
		return nil, chalk.ErrScheduleNotFound
	}
	return mapToSchedule(vals)
}

// ListSchedules returns all schedule entries.
func (s *Store) ListSchedules(ctx context.Context) ([]*cron.Entry, error) {
	ids, err := s.client.SMembers(ctx, scheduleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("chalk/redis: list schedules: %w", err)
	}

	entries := make([]*cron.Entry, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, scheduleKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		entry, convErr := mapToSchedule(vals)
		if convErr != nil {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, k int) bool {
		return entries[i].CreatedAt.Before(entries[k].CreatedAt)
	})
	return entries, nil
}

// AcquireScheduleLock attempts to take the per-entry lock via SET NX
// with a TTL. Redis expires the lock on its own, so a crashed holder
// never wedges the entry.
func (s *Store) AcquireScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	eID := entryID.String()
	wID := workerID.String()

	exists, err := s.client.Exists(ctx, scheduleKey(eID)).Result()
	if err != nil {
		return false, fmt.Errorf("chalk/redis: acquire lock exists: %w", err)
	}
	if exists == 0 {
		return false, chalk.ErrScheduleNotFound
	}

	lk := scheduleLockKey(eID)
	ok, err := s.client.SetNX(ctx, lk, wID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("chalk/redis: acquire lock setnx: %w", err)
	}
	if ok {
		return true, nil
	}

	// Re-acquire if we already hold it; refreshes the TTL.
	holder, err := s.client.Get(ctx, lk).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil // expired between SETNX and GET; caller retries next tick
		}
		return false, fmt.Errorf("chalk/redis: acquire lock get: %w", err)
	}
	if holder != wID {
		return false, nil
	}
	if err := s.client.Set(ctx, lk, wID, ttl).Err(); err != nil {
		return false, fmt.Errorf("chalk/redis: acquire lock refresh: %w", err)
	}
	return true, nil
}

// ReleaseScheduleLock releases the per-entry lock if held by workerID.
func (s *Store) ReleaseScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID) error {
	eID := entryID.String()

	exists, err := s.client.Exists(ctx, scheduleKey(eID)).Result()
	if err != nil {
		return fmt.Errorf("chalk/redis: release lock exists: %w", err)
	}
	if exists == 0 {
		return chalk.ErrScheduleNotFound
	}

	lk := scheduleLockKey(eID)
	holder, err := s.client.Get(ctx, lk).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil // already expired
		}
		return fmt.Errorf("chalk/redis: release lock get: %w", err)
	}
	if holder != workerID.String() {
		return nil // not our lock, no-op
	}
	if err := s.client.Del(ctx, lk).Err(); err != nil {
		return fmt.Errorf("chalk/redis: release lock del: %w", err)
	}
	return nil
}

// UpdateScheduleRun records a fire: LastRunAt and the next trigger.
func (s *Store) UpdateScheduleRun(ctx context.Context, entryID id.ScheduleID, firedAt, nextRunAt time.Time) error {
	key := scheduleKey(entryID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("chalk/redis: update run exists: %w", err)
	}
	if exists == 0 {
		return chalk.ErrScheduleNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"last_run_at", firedAt.Format(time.RFC3339Nano),
		"next_run_at", nextRunAt.Format(time.RFC3339Nano),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("chalk/redis: update run: %w", err)
	}
	return nil
}

// SetScheduleEnabled toggles whether an entry fires.
func (s *Store) SetScheduleEnabled(ctx context.Context, entryID id.ScheduleID, enabled bool) error {
	key := scheduleKey(entryID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("chalk/redis: set enabled exists: %w", err)
	}
	if exists == 0 {
		return chalk.ErrScheduleNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"enabled", strconv.FormatBool(enabled),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("chalk/redis: set enabled: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule entry by ID.
func (s *Store) DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error {
	eID := entryID.String()
	key := scheduleKey(eID)

	// Get name for name index cleanup.
	name, err := s.client.HGet(ctx, key, "name").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return chalk.ErrScheduleNotFound
		}
		return fmt.Errorf("chalk/redis: delete schedule get: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, scheduleLockKey(eID))
	pipe.SRem(ctx, scheduleIDsKey, eID)
	if name != "" {
		pipe.HDel(ctx, scheduleNamesKey, name)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("chalk/redis: delete schedule: %w", err)
	}
	return nil
}

// ── helpers ──

func scheduleToMap(e *cron.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":         e.ID.String(),
		"name":       e.Name,
		"schedule":   e.Schedule,
		"queue":      e.Queue,
		"body":       string(e.Body),
		"consumer":   e.Consumer,
		"enabled":    strconv.FormatBool(e.Enabled),
		"created_at": e.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": e.UpdatedAt.Format(time.RFC3339Nano),
	}
	if e.LastRunAt != nil {
		m["last_run_at"] = e.LastRunAt.Format(time.RFC3339Nano)
	}
	if e.NextRunAt != nil {
		m["next_run_at"] = e.NextRunAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToSchedule(m map[string]string) (*cron.Entry, error) {
	eID, err := id.ParseScheduleID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("chalk/redis: parse schedule id: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	e := &cron.Entry{
		Entity: chalk.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:       eID,
		Name:     m["name"],
		Schedule: m["schedule"],
		Queue:    m["queue"],
		Consumer: m["consumer"],
		Enabled:  m["enabled"] == "true",
	}
	if v := m["body"]; v != "" {
		e.Body = []byte(v)
	}
	if v := m["last_run_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.LastRunAt = &t
	}
	if v := m["next_run_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.NextRunAt = &t
	}
	return e, nil
}
