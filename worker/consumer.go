// Package worker provides the message consumption engine — a Registry of
// consumers, an Executor that runs messages through middleware and the
// consumer handler, and a Pool that manages per-consumer poll loops.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/queue"
)

// Defaults applied by Registry.Register when a Consumer leaves the
// corresponding field zero.
const (
	DefaultMaxInFlight = 2
	DefaultBatchSize   = 10
	DefaultTimeout     = 30 * time.Second
)

// HandlerFunc processes a single received message. A nil return
// acknowledges the message; any error leaves it in flight so it becomes
// receivable again after its visibility timeout lapses.
type HandlerFunc func(ctx context.Context, msg *queue.Message) error

// Consumer binds a queue to a handler with execution constraints.
type Consumer struct {
	// Name is a stable identifier, used in logs and traces.
	Name string

	// Queue is the queue this consumer polls.
	Queue string

	// Handler processes received messages.
	Handler HandlerFunc

	// MaxInFlight caps concurrent handler invocations. Zero means
	// DefaultMaxInFlight. A value of 1 serializes processing.
	MaxInFlight int

	// Timeout bounds a single handler invocation. Zero means
	// DefaultTimeout.
	Timeout time.Duration

	// BatchSize is the maximum number of messages fetched per receive.
	// Zero means DefaultBatchSize.
	BatchSize int
}

// Registry maps consumer names to consumers. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	consumers map[string]*Consumer
	order     []string
}

// NewRegistry creates an empty consumer registry.
func NewRegistry() *Registry {
	return &Registry{
		consumers: make(map[string]*Consumer),
	}
}

// Register validates the consumer, applies defaults, and adds it.
// Consumer names must be unique.
func (r *Registry) Register(c Consumer) error {
	if c.Name == "" {
		return fmt.Errorf("%w: name required", chalk.ErrInvalidConsumer)
	}
	if c.Queue == "" {
		return fmt.Errorf("%w: consumer %q: queue required", chalk.ErrInvalidConsumer, c.Name)
	}
	if c.Handler == nil {
		return fmt.Errorf("%w: consumer %q: handler required", chalk.ErrInvalidConsumer, c.Name)
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.consumers[c.Name]; exists {
		return fmt.Errorf("%w: %q", chalk.ErrDuplicateConsumer, c.Name)
	}
	r.consumers[c.Name] = &c
	r.order = append(r.order, c.Name)
	return nil
}

// Get returns the consumer registered under the given name.
func (r *Registry) Get(name string) (*Consumer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.consumers[name]
	return c, ok
}

// Consumers returns all registered consumers in registration order.
func (r *Registry) Consumers() []*Consumer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Consumer, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.consumers[name])
	}
	return out
}
