package dlq

import (
	"context"
	"time"

	"github.com/xraph/chalk/id"
)

// ListOpts controls pagination and filtering for DLQ list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// Queue filters by origin queue name. Empty means all queues.
	Queue string
}

// Store defines the persistence contract for the dead-letter queue.
type Store interface {
	// PushDLQ adds an entry to the dead-letter queue.
	PushDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries matching the given options, newest first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ retrieves an entry by ID. A missing entry is
	// chalk.ErrEntryNotFound.
	GetDLQ(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// MarkReplayedDLQ sets ReplayedAt on an entry. The re-enqueue is
	// handled at the service layer.
	MarkReplayedDLQ(ctx context.Context, entryID id.DLQID) error

	// PurgeDLQ removes entries with FailedAt at or before the given
	// time and returns the number removed.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total number of entries.
	CountDLQ(ctx context.Context) (int64, error)
}
