package cron

import (
	"context"
	"time"

	"github.com/xraph/chalk/id"
)

// Store defines the persistence contract for schedule entries.
type Store interface {
	// RegisterSchedule persists a new entry. A duplicate name is
	// chalk.ErrDuplicateSchedule.
	RegisterSchedule(ctx context.Context, entry *Entry) error

	// GetSchedule retrieves an entry by ID. A missing entry is
	// chalk.ErrScheduleNotFound.
	GetSchedule(ctx context.Context, entryID id.ScheduleID) (*Entry, error)

	// ListSchedules returns all entries.
	ListSchedules(ctx context.Context) ([]*Entry, error)

	// AcquireScheduleLock attempts to take the per-entry lock. Returns
	// true if acquired; the lock expires after ttl.
	AcquireScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error)

	// ReleaseScheduleLock releases the per-entry lock if held by workerID.
	ReleaseScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID) error

	// UpdateScheduleRun records a fire: LastRunAt and the next trigger.
	UpdateScheduleRun(ctx context.Context, entryID id.ScheduleID, firedAt time.Time, nextRunAt time.Time) error

	// SetScheduleEnabled toggles whether an entry fires.
	SetScheduleEnabled(ctx context.Context, entryID id.ScheduleID, enabled bool) error

	// DeleteSchedule removes an entry by ID.
	DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error
}
