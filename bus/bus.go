package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/backoff"
	"github.com/xraph/chalk/eventlog"
)

// Option configures a Bus.
type Option func(*Bus)

// WithBackoff sets the retry delay strategy between delivery attempts.
func WithBackoff(strategy backoff.Strategy) Option {
	return func(b *Bus) { b.backoff = strategy }
}

// Bus fans published events out to matching subscriptions. The
// subscription set is fixed at construction; Publish is safe for
// concurrent use.
type Bus struct {
	logger  *slog.Logger
	backoff backoff.Strategy
	subs    []*subscriber
	wg      sync.WaitGroup
}

// subscriber pairs a Subscription with its in-flight semaphore.
type subscriber struct {
	sub Subscription
	sem chan struct{}
}

// New creates a Bus with the given subscriptions. A repeated
// subscription name is chalk.ErrDuplicateSubscription.
func New(logger *slog.Logger, subs []Subscription, opts ...Option) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		logger:  logger,
		backoff: backoff.DefaultStrategy(),
	}
	for _, opt := range opts {
		opt(b)
	}

	seen := make(map[string]struct{}, len(subs))
	for _, sub := range subs {
		if _, dup := seen[sub.Name]; dup {
			return nil, fmt.Errorf("%w: %q", chalk.ErrDuplicateSubscription, sub.Name)
		}
		seen[sub.Name] = struct{}{}

		inFlight := sub.MaxInFlight
		if inFlight <= 0 {
			inFlight = DefaultMaxInFlight
		}
		b.subs = append(b.subs, &subscriber{
			sub: sub,
			sem: make(chan struct{}, inFlight),
		})
	}
	return b, nil
}

// Subscriptions returns the declared subscription set.
func (b *Bus) Subscriptions() []Subscription {
	out := make([]Subscription, len(b.subs))
	for i, s := range b.subs {
		out[i] = s.sub
	}
	return out
}

// Publish hands an independent copy of the event to every subscription
// whose allow-list matches its event_type. Dispatch happens on
// subscription goroutines; Publish returns once all dispatches have
// been initiated. An event matching no subscription is a no-op.
//
// Deliveries must outlive the publisher: a request context cancelled
// right after Publish returns would otherwise lose the fan-out with
// zero attempts. The delivery context keeps the publisher's trace and
// values but not its cancellation; Drain bounds delivery lifetime.
func (b *Bus) Publish(ctx context.Context, evt *eventlog.Event) {
	dctx := context.WithoutCancel(ctx)
	for _, s := range b.subs {
		if !s.sub.Matches(evt.Type) {
			continue
		}
		cp := evt.Clone()
		b.wg.Add(1)
		go b.deliver(dctx, s, cp)
	}
}

// Drain blocks until all in-flight deliveries have finished.
func (b *Bus) Drain() {
	b.wg.Wait()
}

func (b *Bus) deliver(ctx context.Context, s *subscriber, evt *eventlog.Event) {
	defer b.wg.Done()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		b.logger.Warn("delivery abandoned before start",
			slog.String("subscription", s.sub.Name),
			slog.String("event_id", evt.ID),
		)
		return
	}
	defer func() { <-s.sem }()

	attempts := s.sub.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = b.attempt(ctx, s.sub, evt)
		if lastErr == nil {
			return
		}
		if attempt == attempts {
			break
		}

		delay := b.backoff.Delay(attempt)
		b.logger.Debug("delivery retry scheduled",
			slog.String("subscription", s.sub.Name),
			slog.String("event_id", evt.ID),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = attempts
		}
	}

	b.logger.Error("delivery dropped after exhausting attempts",
		slog.String("subscription", s.sub.Name),
		slog.String("event_id", evt.ID),
		slog.String("event_type", evt.Type),
		slog.Int("attempts", attempts),
		slog.String("error", lastErr.Error()),
	)
}

// attempt runs one delivery under the subscription's timeout.
func (b *Bus) attempt(ctx context.Context, sub Subscription, evt *eventlog.Event) (err error) {
	if sub.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sub.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panic: %v", r)
		}
	}()
	return sub.Deliver(ctx, evt)
}
