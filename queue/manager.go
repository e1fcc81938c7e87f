package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limits defines runtime dequeue limits for a queue: a concurrency
// ceiling and an optional token-bucket rate limit.
type Limits struct {
	// Name is the queue identifier.
	Name string

	// MaxConcurrency limits how many messages from this queue may be
	// processing simultaneously in the local worker pool. Zero means no
	// queue-specific ceiling (pool-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained messages per second that may
	// be dequeued. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token bucket. Defaults to 1
	// when RateLimit is set but RateBurst is zero.
	RateBurst int
}

// queueState tracks runtime state for a single queue.
type queueState struct {
	limits  Limits
	limiter *rate.Limiter
	active  int
}

// Manager enforces per-queue concurrency ceilings and rate limits at
// dequeue time. It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*queueState
}

// NewManager creates a Manager with the given limits. Queues not listed
// have no limits.
func NewManager(limits ...Limits) *Manager {
	m := &Manager{queues: make(map[string]*queueState, len(limits))}
	for _, l := range limits {
		m.queues[l.Name] = newQueueState(l)
	}
	return m
}

func newQueueState(l Limits) *queueState {
	qs := &queueState{limits: l}
	if l.RateLimit > 0 {
		burst := l.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(l.RateLimit), burst)
	}
	return qs
}

// Acquire checks the rate limit and concurrency ceiling for the queue.
// If processing may proceed it increments the active counter and returns
// true. The caller MUST call Release when processing completes.
func (m *Manager) Acquire(queueName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[queueName]
	if qs == nil {
		return true
	}
	if qs.limiter != nil && !qs.limiter.Allow() {
		return false
	}
	if qs.limits.MaxConcurrency > 0 && qs.active >= qs.limits.MaxConcurrency {
		return false
	}
	qs.active++
	return true
}

// Release decrements the active count for the queue.
func (m *Manager) Release(queueName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qs := m.queues[queueName]; qs != nil && qs.active > 0 {
		qs.active--
	}
}

// SetLimits dynamically updates (or creates) a queue's limits, preserving
// the current active count.
func (m *Manager) SetLimits(l Limits) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.queues[l.Name]
	qs := newQueueState(l)
	if existing != nil {
		qs.active = existing.active
	}
	m.queues[l.Name] = qs
}

// ActiveCount returns the current number of processing messages for a
// queue.
func (m *Manager) ActiveCount(queueName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[queueName]; qs != nil {
		return qs.active
	}
	return 0
}
