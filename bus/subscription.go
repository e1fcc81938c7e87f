package bus

import (
	"context"
	"slices"
	"time"

	"github.com/xraph/chalk/eventlog"
)

// DeliverFunc handles one event for a subscription. A non-nil error
// triggers a redelivery attempt.
type DeliverFunc func(ctx context.Context, evt *eventlog.Event) error

// Subscription declares a named listener on the topic.
type Subscription struct {
	// Name uniquely identifies the subscription.
	Name string

	// EventTypes is the allow-list predicate: the subscription sees an
	// event only when its event_type is listed. Nil or empty matches
	// every event.
	EventTypes []string

	// Deliver is invoked once per matching event.
	Deliver DeliverFunc

	// MaxInFlight bounds concurrent deliveries for this subscription.
	// Zero means DefaultMaxInFlight.
	MaxInFlight int

	// Timeout bounds a single delivery attempt. Zero means no limit.
	Timeout time.Duration

	// MaxAttempts is the delivery budget including the first attempt.
	// Zero means DefaultMaxAttempts.
	MaxAttempts int
}

// Defaults applied by New when a Subscription leaves fields zero.
const (
	DefaultMaxInFlight = 2
	DefaultMaxAttempts = 3
)

// Matches reports whether the subscription's allow-list admits the
// given event type.
func (s *Subscription) Matches(eventType string) bool {
	if len(s.EventTypes) == 0 {
		return true
	}
	return slices.Contains(s.EventTypes, eventType)
}
