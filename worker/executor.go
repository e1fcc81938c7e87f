package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/chalk/ext"
	"github.com/xraph/chalk/middleware"
	"github.com/xraph/chalk/queue"
)

// Executor runs a single message through a per-consumer middleware
// chain and the consumer handler, acknowledges on success, and emits
// lifecycle events. Failed messages are left unacknowledged so they
// become receivable again after their visibility timeout lapses.
type Executor struct {
	queues     *queue.Service
	extensions *ext.Registry
	logger     *slog.Logger

	// Middleware chains are built once per consumer; the metrics and
	// tracing instruments they hold are reused across invocations.
	mu     sync.Mutex
	chains map[string]middleware.Middleware
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(queues *queue.Service, extensions *ext.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		queues:     queues,
		extensions: extensions,
		logger:     logger,
		chains:     make(map[string]middleware.Middleware),
	}
}

// Execute runs a message through the consumer's middleware chain and
// handler.
// On success: acknowledges the message and emits MessageCompleted.
// On failure: emits MessageFailed and returns the handler error; the
// message stays in flight and is redelivered after its visibility
// timeout. No error classification is applied.
func (e *Executor) Execute(ctx context.Context, c *Consumer, msg *queue.Message) error {
	chain := e.chainFor(c)

	start := time.Now()
	err := chain(ctx, msg, func(ctx context.Context) error {
		return c.Handler(ctx, msg)
	})
	elapsed := time.Since(start)

	if err != nil {
		e.extensions.EmitMessageFailed(ctx, msg, err)
		return err
	}

	if ackErr := e.queues.Ack(ctx, msg.Queue, msg.ID.String()); ackErr != nil {
		e.logger.Error("failed to ack message",
			slog.String("consumer", c.Name),
			slog.String("message_id", msg.ID.String()),
			slog.String("queue", msg.Queue),
			slog.String("error", ackErr.Error()),
		)
		return ackErr
	}

	e.extensions.EmitMessageCompleted(ctx, msg, elapsed)
	return nil
}

// chainFor returns the middleware chain for a consumer, building it on
// first use.
func (e *Executor) chainFor(c *Consumer) middleware.Middleware {
	e.mu.Lock()
	defer e.mu.Unlock()

	if chain, ok := e.chains[c.Name]; ok {
		return chain
	}

	logger := e.logger.With(slog.String("consumer", c.Name))
	chain := middleware.Chain(
		middleware.Recover(logger),
		middleware.Tracing(),
		middleware.Metrics(),
		middleware.Logging(logger),
		middleware.Timeout(c.Timeout),
	)
	e.chains[c.Name] = chain
	return chain
}
