package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/cron"
	"github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/eventlog"
	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ eventlog.Store = (*Store)(nil)
	_ queue.Store    = (*Store)(nil)
	_ dlq.Store      = (*Store)(nil)
	_ cron.Store     = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	events    map[string]*eventlog.Event           // key: eventKey(id, timestamp)
	messages  map[string]map[string]*queue.Message // queue name -> message id
	dlqs      map[string]*dlq.Entry
	schedules map[string]*cron.Entry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		events:    make(map[string]*eventlog.Event),
		messages:  make(map[string]map[string]*queue.Message),
		dlqs:      make(map[string]*dlq.Entry),
		schedules: make(map[string]*cron.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Event Store
// ──────────────────────────────────────────────────

// eventKey builds the composite primary key: record id plus timestamp.
func eventKey(eventID, timestamp string) string {
	return eventID + "\x00" + timestamp
}

// AppendEvent persists an event under its (id, timestamp) key. An
// identical re-append is a silent no-op; a conflicting one fails.
func (m *Store) AppendEvent(_ context.Context, evt *eventlog.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := eventKey(evt.ID, evt.Timestamp)
	if existing, ok := m.events[key]; ok {
		if existing.ContentEquals(evt) {
			return nil
		}
		return chalk.ErrEventConflict
	}
	m.events[key] = evt.Clone()
	return nil
}

// QueryEvents scans the log for events whose index key matches, within
// the inclusive time range, ordered by ascending timestamp.
func (m *Store) QueryEvents(_ context.Context, ix eventlog.Index, key string, tr eventlog.TimeRange) ([]*eventlog.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !ix.Valid() {
		return nil, chalk.ErrUnknownIndex
	}
	if key == "" {
		// Events with an empty attribute are not indexed.
		return nil, nil
	}

	var result []*eventlog.Event
	for _, evt := range m.events {
		if ix.Key(evt) != key {
			continue
		}
		if !tr.Contains(evt.Timestamp) {
			continue
		}
		result = append(result, evt.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].Timestamp < result[k].Timestamp
	})
	return result, nil
}

// ExpireEvents removes events whose expire_at is at or before now.
func (m *Store) ExpireEvents(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for key, evt := range m.events {
		if evt.Expired(now) {
			delete(m.events, key)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Queue Store
// ──────────────────────────────────────────────────

// SendMessage persists a new message on its queue.
func (m *Store) SendMessage(_ context.Context, msg *queue.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.messages[msg.Queue]
	if q == nil {
		q = make(map[string]*queue.Message)
		m.messages[msg.Queue] = q
	}
	q[msg.ID.String()] = msg.Clone()
	return nil
}

// ReceiveMessages hands out up to opts.Max visible messages, oldest
// first. Each handed-out message gets its receive count incremented and
// a fresh visibility deadline; a message whose incremented count would
// exceed opts.MaxReceiveCount is moved to the dead-letter queue instead.
func (m *Store) ReceiveMessages(_ context.Context, opts queue.ReceiveOpts) ([]*queue.Message, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.messages[opts.Queue]
	if len(q) == 0 {
		return nil, nil, nil
	}

	candidates := make([]*queue.Message, 0, len(q))
	for _, msg := range q {
		if msg.Visible(opts.Now) {
			candidates = append(candidates, msg)
		}
	}
	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].EnqueuedAt.Before(candidates[k].EnqueuedAt)
	})

	var result []*queue.Message
	var deadLettered []string
	for _, msg := range candidates {
		if opts.Max > 0 && len(result) >= opts.Max {
			break
		}
		msg.ReceiveCount++

		if opts.MaxReceiveCount > 0 && msg.ReceiveCount > opts.MaxReceiveCount {
			// Delivery budget exhausted: transfer verbatim, count intact.
			entry := dlq.NewEntry(msg, opts.DeadLetterQueue, "max receive count exceeded")
			m.dlqs[entry.ID.String()] = entry
			delete(q, msg.ID.String())
			deadLettered = append(deadLettered, entry.ID.String())
			continue
		}

		msg.VisibilityDeadline = opts.Now.Add(opts.VisibilityTimeout)
		msg.UpdatedAt = opts.Now
		result = append(result, msg.Clone())
	}
	return result, deadLettered, nil
}

// AckMessage permanently removes a message from its queue.
func (m *Store) AckMessage(_ context.Context, queueName, msgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.messages[queueName]
	if _, ok := q[msgID]; !ok {
		return chalk.ErrMessageNotFound
	}
	delete(q, msgID)
	return nil
}

// PurgeMessages removes messages enqueued at or before cutoff.
func (m *Store) PurgeMessages(_ context.Context, queueName string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for key, msg := range m.messages[queueName] {
		if !msg.EnqueuedAt.After(cutoff) {
			delete(m.messages[queueName], key)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds an entry to the dead-letter queue.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dlqs[entry.ID.String()] = entry.Clone()
	return nil
}

// ListDLQ returns entries matching the given options, newest first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		result = append(result, e.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.After(result[k].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, chalk.ErrEntryNotFound
	}
	return e.Clone(), nil
}

// MarkReplayedDLQ sets ReplayedAt on a DLQ entry.
func (m *Store) MarkReplayedDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return chalk.ErrEntryNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes DLQ entries that failed at or before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.dlqs {
		if !e.FailedAt.After(before) {
			delete(m.dlqs, key)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of entries in the dead-letter queue.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.dlqs)), nil
}

// ──────────────────────────────────────────────────
// Schedule Store
// ──────────────────────────────────────────────────

// RegisterSchedule persists a new schedule entry. Returns an error if
// the name already exists.
func (m *Store) RegisterSchedule(_ context.Context, entry *cron.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.schedules {
		if e.Name == entry.Name {
			return chalk.ErrDuplicateSchedule
		}
	}

	m.schedules[entry.ID.String()] = entry
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (m *Store) GetSchedule(_ context.Context, entryID id.ScheduleID) (*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.schedules[entryID.String()]
	if !ok {
		return nil, chalk.ErrScheduleNotFound
	}
	cp := *e
	return &cp, nil
}

// ListSchedules returns all schedule entries.
func (m *Store) ListSchedules(_ context.Context) ([]*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cron.Entry, 0, len(m.schedules))
	for _, e := range m.schedules {
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// AcquireScheduleLock attempts to acquire the per-entry lock.
func (m *Store) AcquireScheduleLock(_ context.Context, entryID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.schedules[entryID.String()]
	if !ok {
		return false, chalk.ErrScheduleNotFound
	}

	now := time.Now().UTC()

	// If already locked by someone else and the lock hasn't expired, fail.
	if e.LockedBy != "" && e.LockedUntil != nil && e.LockedUntil.After(now) {
		if e.LockedBy != workerID.String() {
			return false, nil
		}
	}

	e.LockedBy = workerID.String()
	until := now.Add(ttl)
	e.LockedUntil = &until
	return true, nil
}

// ReleaseScheduleLock releases the per-entry lock.
func (m *Store) ReleaseScheduleLock(_ context.Context, entryID id.ScheduleID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.schedules[entryID.String()]
	if !ok {
		return chalk.ErrScheduleNotFound
	}

	if e.LockedBy != workerID.String() {
		return nil // not holding the lock; no-op
	}

	e.LockedBy = ""
	e.LockedUntil = nil
	return nil
}

// UpdateScheduleRun records a fire and the next trigger.
func (m *Store) UpdateScheduleRun(_ context.Context, entryID id.ScheduleID, firedAt, nextRunAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.schedules[entryID.String()]
	if !ok {
		return chalk.ErrScheduleNotFound
	}
	fired := firedAt
	next := nextRunAt
	e.LastRunAt = &fired
	e.NextRunAt = &next
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// SetScheduleEnabled toggles whether a schedule entry fires.
func (m *Store) SetScheduleEnabled(_ context.Context, entryID id.ScheduleID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.schedules[entryID.String()]
	if !ok {
		return chalk.ErrScheduleNotFound
	}
	e.Enabled = enabled
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteSchedule removes a schedule entry by ID.
func (m *Store) DeleteSchedule(_ context.Context, entryID id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryID.String()
	if _, ok := m.schedules[key]; !ok {
		return chalk.ErrScheduleNotFound
	}
	delete(m.schedules, key)
	return nil
}
