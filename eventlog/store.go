package eventlog

import (
	"context"
	"time"
)

// Store defines the persistence contract for the event log.
//
// AppendEvent must write the primary record and every applicable index
// entry as one atomic unit: no index entry is ever visible without its
// primary record, and vice versa.
type Store interface {
	// AppendEvent persists a new event. Re-appending an event whose
	// (id, timestamp) exists with identical content is a silent no-op;
	// differing content fails with chalk.ErrEventConflict.
	AppendEvent(ctx context.Context, evt *Event) error

	// QueryEvents returns the events under key in the given index whose
	// timestamps fall inside tr, ordered by ascending timestamp.
	// An unsupported index fails with chalk.ErrUnknownIndex. Events
	// with an empty attribute are not indexed, so an empty key
	// matches nothing.
	QueryEvents(ctx context.Context, ix Index, key string, tr TimeRange) ([]*Event, error)

	// ExpireEvents removes every record (primary plus index entries)
	// whose expire_at is at or before now. Returns the number of
	// records removed. Idempotent; safe to run concurrently with
	// appends.
	ExpireEvents(ctx context.Context, now time.Time) (int, error)
}
