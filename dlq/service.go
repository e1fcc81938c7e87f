package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
)

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store  Store
	queues *queue.Service
	logger *slog.Logger
}

// NewService creates a DLQ service. The queue service is used by Replay
// to re-enqueue entries on their origin queue.
func NewService(store Store, queues *queue.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, queues: queues, logger: logger}
}

// Push records a failed message in the dead-letter queue. Stores call
// this path implicitly during the receive-time transfer; it is exposed
// for consumers that dead-letter explicitly.
func (s *Service) Push(ctx context.Context, msg *queue.Message, deadLetterQueue, reason string) error {
	entry := NewEntry(msg, deadLetterQueue, reason)
	if err := s.store.PushDLQ(ctx, entry); err != nil {
		return err
	}
	s.logger.Warn("message dead-lettered",
		slog.String("queue", msg.Queue),
		slog.String("message_id", msg.ID.String()),
		slog.Int("receive_count", msg.ReceiveCount),
		slog.String("reason", reason),
	)
	return nil
}

// List returns entries matching opts, newest first.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return s.store.ListDLQ(ctx, opts)
}

// Get retrieves a single entry by ID.
func (s *Service) Get(ctx context.Context, entryID id.DLQID) (*Entry, error) {
	return s.store.GetDLQ(ctx, entryID)
}

// Count returns the total number of entries.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.CountDLQ(ctx)
}

// Purge removes entries that failed at or before the given time and
// returns the number removed.
func (s *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.store.PurgeDLQ(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("dead-letter purge removed entries", slog.Int64("count", n))
	}
	return n, nil
}
