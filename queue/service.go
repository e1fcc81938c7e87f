package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/chalk"
)

// DeadLetterFunc observes a dead-letter entry created during a receive,
// identified by its entry id.
type DeadLetterFunc func(ctx context.Context, entryID string)

// Service exposes the queue operations over a Store, applying each
// queue's declared semantics. It is safe for concurrent use; the
// definition set is fixed at construction.
type Service struct {
	store        Store
	defs         map[string]Definition
	logger       *slog.Logger
	onDeadLetter DeadLetterFunc
}

// NewService creates a Service operating on the given queue definitions.
func NewService(store Store, logger *slog.Logger, defs ...Definition) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[string]Definition, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	return &Service{store: store, defs: m, logger: logger}
}

// OnDeadLetter registers the observer invoked for each dead-letter
// entry created during a receive. Set once at wiring, before any
// Receive calls.
func (s *Service) OnDeadLetter(fn DeadLetterFunc) {
	s.onDeadLetter = fn
}

// Definition returns the declared semantics for a queue.
func (s *Service) Definition(queueName string) (Definition, bool) {
	d, ok := s.defs[queueName]
	return d, ok
}

// Definitions returns all declared queues.
func (s *Service) Definitions() []Definition {
	out := make([]Definition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d)
	}
	return out
}

// Send enqueues a body on the named queue and returns the stored message.
// Undeclared queues fail with chalk.ErrUnknownQueue; a store failure is
// reported as chalk.ErrTransport so callers can retry with backoff.
func (s *Service) Send(ctx context.Context, queueName string, body []byte) (*Message, error) {
	if _, ok := s.defs[queueName]; !ok {
		return nil, fmt.Errorf("%w: %q", chalk.ErrUnknownQueue, queueName)
	}

	msg := NewMessage(queueName, body)
	if err := s.store.SendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: send to %q: %w", chalk.ErrTransport, queueName, err)
	}

	s.logger.Debug("message enqueued",
		slog.String("queue", queueName),
		slog.String("message_id", msg.ID.String()),
	)
	return msg, nil
}

// Receive returns up to max visible messages from the named queue. Each
// returned message is hidden until its new visibility deadline and has
// its receive count incremented; messages over the queue's delivery
// ceiling are moved to the paired dead-letter queue instead.
func (s *Service) Receive(ctx context.Context, queueName string, max int) ([]*Message, error) {
	def, ok := s.defs[queueName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", chalk.ErrUnknownQueue, queueName)
	}
	if max <= 0 {
		max = 1
	}

	msgs, deadLettered, err := s.store.ReceiveMessages(ctx, ReceiveOpts{
		Queue:             queueName,
		Max:               max,
		Now:               time.Now().UTC(),
		VisibilityTimeout: def.VisibilityTimeout,
		MaxReceiveCount:   def.MaxReceiveCount,
		DeadLetterQueue:   def.DeadLetterQueue,
	})
	for _, entryID := range deadLettered {
		s.logger.Warn("message dead-lettered during receive",
			slog.String("queue", queueName),
			slog.String("dead_letter_queue", def.DeadLetterQueue),
			slog.String("entry_id", entryID),
		)
		if s.onDeadLetter != nil {
			s.onDeadLetter(ctx, entryID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: receive from %q: %w", chalk.ErrTransport, queueName, err)
	}
	return msgs, nil
}

// Ack permanently removes a delivered message.
func (s *Service) Ack(ctx context.Context, queueName string, msgID string) error {
	if _, ok := s.defs[queueName]; !ok {
		return fmt.Errorf("%w: %q", chalk.ErrUnknownQueue, queueName)
	}
	return s.store.AckMessage(ctx, queueName, msgID)
}

// PurgeExpired removes messages past each queue's retention window and
// returns the total removed.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for name, def := range s.defs {
		if def.Retention <= 0 {
			continue
		}
		n, err := s.store.PurgeMessages(ctx, name, now.Add(-def.Retention))
		if err != nil {
			return total, fmt.Errorf("purge %q: %w", name, err)
		}
		if n > 0 {
			s.logger.Info("retention purge removed messages",
				slog.String("queue", name),
				slog.Int("count", n),
			)
		}
		total += n
	}
	return total, nil
}
