package dlq

import (
	"context"
	"log/slog"

	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
)

// Replay re-enqueues a DLQ entry's body on its origin queue as a fresh
// message (new id, zero receive count) and marks the entry as replayed.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*queue.Message, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	msg, err := s.queues.Send(ctx, entry.Queue, entry.Body)
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkReplayedDLQ(ctx, entryID); err != nil {
		// The message is already enqueued; report but keep it.
		s.logger.Error("replayed entry could not be marked",
			slog.String("entry_id", entryID.String()),
			slog.String("error", err.Error()),
		)
		return msg, err
	}

	s.logger.Info("dead-letter entry replayed",
		slog.String("entry_id", entryID.String()),
		slog.String("queue", entry.Queue),
		slog.String("message_id", msg.ID.String()),
	)
	return msg, nil
}
