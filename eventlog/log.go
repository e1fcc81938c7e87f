package eventlog

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/id"
)

// Log provides high-level operations over an event Store: validated
// appends, index queries as lazy sequences, and the TTL sweep.
type Log struct {
	store  Store
	logger *slog.Logger
}

// NewLog creates a Log backed by the given store.
func NewLog(store Store, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{store: store, logger: logger}
}

// Append validates the event, mints an id if the producer supplied none,
// and persists the record together with all its index entries. It returns
// the event id. Re-appending identical content succeeds silently;
// conflicting content fails with chalk.ErrEventConflict.
func (l *Log) Append(ctx context.Context, evt *Event) (string, error) {
	if evt.Type == "" {
		return "", fmt.Errorf("%w: event_type is required", chalk.ErrInvalidEvent)
	}
	if evt.Timestamp == "" {
		return "", fmt.Errorf("%w: timestamp is required", chalk.ErrInvalidEvent)
	}

	cp := evt.Clone()
	if cp.ID == "" {
		cp.ID = id.NewEventID()
	}

	if err := l.store.AppendEvent(ctx, cp); err != nil {
		return "", err
	}

	l.logger.Debug("event appended",
		slog.String("event_id", cp.ID),
		slog.String("event_type", cp.Type),
		slog.String("timestamp", cp.Timestamp),
	)
	return cp.ID, nil
}

// Query returns the events under key in the given index, ordered by
// ascending timestamp, as a lazy sequence. The sequence is restartable:
// each range re-reads the store, so a second pass observes later appends.
// An unsupported index name fails synchronously with chalk.ErrUnknownIndex.
func (l *Log) Query(ctx context.Context, ix Index, key string, tr TimeRange) (iter.Seq2[*Event, error], error) {
	if !ix.Valid() {
		return nil, fmt.Errorf("%w: %q", chalk.ErrUnknownIndex, ix)
	}

	return func(yield func(*Event, error) bool) {
		evts, err := l.store.QueryEvents(ctx, ix, key, tr)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, e := range evts {
			if !yield(e, nil) {
				return
			}
		}
	}, nil
}

// ExpireSweep removes every record whose expire_at is at or before now
// and returns the count. A record appended while the sweep runs may or
// may not be swept; there is no ordering guarantee across the sweep
// boundary.
func (l *Log) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	n, err := l.store.ExpireEvents(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.logger.Info("event log sweep removed expired records", slog.Int("count", n))
	}
	return n, nil
}
