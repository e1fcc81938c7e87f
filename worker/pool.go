package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
)

// QueueManager controls queue-level rate limiting and concurrency. The
// pool calls Acquire to reserve capacity before receiving and Release
// after processing completes.
type QueueManager interface {
	// Acquire checks rate limits and concurrency for the queue.
	// Returns true if the message is allowed to proceed.
	Acquire(queueName string) bool
	// Release decrements the active count for the queue.
	Release(queueName string)
}

var _ QueueManager = (*queue.Manager)(nil)

// Pool runs one poll loop per registered consumer. Each loop receives
// batches from the consumer's queue and processes messages concurrently
// up to the consumer's MaxInFlight ceiling.
type Pool struct {
	queues       *queue.Service
	registry     *Registry
	executor     *Executor
	pollInterval time.Duration
	workerID     id.WorkerID
	logger       *slog.Logger

	// Queue manager (optional).
	queueManager QueueManager

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeMsgs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPollInterval sets how often consumer loops poll an empty queue.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithQueueManager sets the queue manager for rate limiting and
// concurrency control.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.queueManager = m }
}

// NewPool creates a consumer pool.
func NewPool(
	queues *queue.Service,
	registry *Registry,
	executor *Executor,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		queues:       queues,
		registry:     registry,
		executor:     executor,
		pollInterval: time.Second,
		workerID:     id.NewWorkerID(),
		logger:       logger,
		stopCh:       make(chan struct{}),
		activeMsgs:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches one consume loop per registered consumer. It returns
// immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	consumers := p.registry.Consumers()

	p.logger.Info("consumer pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("consumers", len(consumers)),
	)

	for _, c := range consumers {
		p.wg.Add(1)
		go p.consumeLoop(c)
	}

	return nil
}

// Stop signals all consume loops to stop and waits for them to finish.
// If the context has a deadline, in-flight handlers are cancelled when
// time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("consumer pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("consumer pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("consumer pool shutdown timed out, cancelling in-flight messages")
		p.cancelActiveMessages()
		p.wg.Wait()
	}

	return nil
}

// consumeLoop polls one consumer's queue and processes messages up to
// the consumer's MaxInFlight ceiling.
func (p *Pool) consumeLoop(c *Consumer) {
	defer p.wg.Done()

	sem := make(chan struct{}, c.MaxInFlight)
	var inFlight sync.WaitGroup
	defer inFlight.Wait()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		// Reserve queue capacity before receiving. Every received
		// message burns delivery budget, so a message must never be
		// received just to be dropped by the rate limiter.
		reserved := 0
		if p.queueManager != nil {
			want := c.BatchSize
			if want <= 0 {
				want = 1
			}
			for reserved < want && p.queueManager.Acquire(c.Queue) {
				reserved++
			}
			if reserved == 0 {
				p.sleep()
				continue
			}
		}

		batch := c.BatchSize
		if p.queueManager != nil {
			batch = reserved
		}

		msgs, err := p.queues.Receive(context.Background(), c.Queue, batch)
		if err != nil {
			p.releaseReserved(c.Queue, reserved)
			p.logger.Error("receive error",
				slog.String("consumer", c.Name),
				slog.String("queue", c.Queue),
				slog.String("error", err.Error()),
			)
			p.sleep()
			continue
		}

		if len(msgs) == 0 {
			p.releaseReserved(c.Queue, reserved)
			p.sleep()
			continue
		}

		// Tokens not matched by a message go back immediately; each
		// message's token is released when its processing completes.
		if p.queueManager != nil {
			p.releaseReserved(c.Queue, reserved-len(msgs))
		}

		for i, msg := range msgs {
			select {
			case sem <- struct{}{}:
			case <-p.stopCh:
				p.releaseReserved(c.Queue, len(msgs)-i)
				return
			}

			inFlight.Add(1)
			go func(msg *queue.Message) {
				defer inFlight.Done()
				defer func() { <-sem }()

				ctx, cancel := context.WithCancel(context.Background())
				p.trackMessage(msg.ID.String(), cancel)

				if execErr := p.executor.Execute(ctx, c, msg); execErr != nil {
					p.logger.Debug("message processing failed",
						slog.String("consumer", c.Name),
						slog.String("message_id", msg.ID.String()),
						slog.String("error", execErr.Error()),
					)
				}

				p.untrackMessage(msg.ID.String())
				cancel()

				if p.queueManager != nil {
					p.queueManager.Release(c.Queue)
				}
			}(msg)
		}
	}
}

func (p *Pool) releaseReserved(queueName string, n int) {
	if p.queueManager == nil {
		return
	}
	for i := 0; i < n; i++ {
		p.queueManager.Release(queueName)
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) trackMessage(msgID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeMsgs[msgID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackMessage(msgID string) {
	p.activeMu.Lock()
	delete(p.activeMsgs, msgID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveMessages() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for msgID, cancel := range p.activeMsgs {
		p.logger.Warn("cancelling in-flight message", slog.String("message_id", msgID))
		cancel()
	}
}
