package bus_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/backoff"
	"github.com/xraph/chalk/bus"
	"github.com/xraph/chalk/eventlog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEvent(typ string) *eventlog.Event {
	return &eventlog.Event{
		ID:        "evt_test",
		Timestamp: eventlog.NewTimestamp(time.Now()),
		Type:      typ,
		StudentID: "student-1",
		Payload:   []byte(`{"language":"python"}`),
	}
}

func TestNew_DuplicateSubscriptionName(t *testing.T) {
	noop := func(context.Context, *eventlog.Event) error { return nil }

	_, err := bus.New(discardLogger(), []bus.Subscription{
		{Name: "dup", Deliver: noop},
		{Name: "dup", Deliver: noop},
	})
	if !errors.Is(err, chalk.ErrDuplicateSubscription) {
		t.Fatalf("err = %v, want ErrDuplicateSubscription", err)
	}
}

func TestPublish_AllowListFanOut(t *testing.T) {
	var mu sync.Mutex
	got := make(map[string][]string) // subscription -> delivered event types

	record := func(name string) bus.DeliverFunc {
		return func(_ context.Context, evt *eventlog.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got[name] = append(got[name], evt.Type)
			return nil
		}
	}

	b, err := bus.New(discardLogger(), []bus.Subscription{
		{Name: "log-writer", Deliver: record("log-writer")}, // no filter
		{Name: "grading-router", EventTypes: []string{"grading_request"}, Deliver: record("grading-router")},
		{Name: "review-matrix-notifier", EventTypes: []string{"review"}, MaxInFlight: 1, Deliver: record("review-matrix-notifier")},
		{Name: "review-email-notifier", EventTypes: []string{"review"}, Deliver: record("review-email-notifier")},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	b.Publish(ctx, testEvent("grading_request"))
	b.Publish(ctx, testEvent("review"))
	b.Publish(ctx, testEvent("content_access"))
	b.Drain()

	mu.Lock()
	defer mu.Unlock()
	if len(got["log-writer"]) != 3 {
		t.Errorf("unfiltered subscription saw %d events, want 3", len(got["log-writer"]))
	}
	if len(got["grading-router"]) != 1 || got["grading-router"][0] != "grading_request" {
		t.Errorf("grading-router saw %v, want [grading_request]", got["grading-router"])
	}
	if len(got["review-matrix-notifier"]) != 1 || got["review-matrix-notifier"][0] != "review" {
		t.Errorf("matrix notifier saw %v, want [review]", got["review-matrix-notifier"])
	}
	if len(got["review-email-notifier"]) != 1 {
		t.Errorf("email notifier saw %v, want one review", got["review-email-notifier"])
	}
}

func TestPublish_SurvivesPublisherCancellation(t *testing.T) {
	var delivered atomic.Int64

	b, err := bus.New(discardLogger(), []bus.Subscription{
		{Name: "log-writer", Deliver: func(context.Context, *eventlog.Event) error {
			delivered.Add(1)
			return nil
		}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // publisher's request is already done
	b.Publish(ctx, testEvent(eventlog.TypeReview))
	b.Drain()

	if got := delivered.Load(); got != 1 {
		t.Fatalf("delivered %d times, want 1", got)
	}
}

func TestPublish_NoMatchIsNoOp(t *testing.T) {
	var calls atomic.Int64
	b, err := bus.New(discardLogger(), []bus.Subscription{
		{Name: "grading-only", EventTypes: []string{"grading_request"}, Deliver: func(context.Context, *eventlog.Event) error {
			calls.Add(1)
			return nil
		}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b.Publish(context.Background(), testEvent("review"))
	b.Drain()
	if calls.Load() != 0 {
		t.Errorf("expected no deliveries, got %d", calls.Load())
	}
}

func TestPublish_SubscriptionsReceiveIndependentCopies(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	mutator := func(_ context.Context, evt *eventlog.Event) error {
		evt.Payload[2] = 'X' // scribble on our copy
		return nil
	}
	reader := func(_ context.Context, evt *eventlog.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(evt.Payload))
		return nil
	}

	b, err := bus.New(discardLogger(), []bus.Subscription{
		{Name: "mutator", Deliver: mutator},
		{Name: "reader", Deliver: reader},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	evt := testEvent("review")
	b.Publish(context.Background(), evt)
	b.Drain()

	mu.Lock()
	defer mu.Unlock()
	for _, p := range seen {
		if p != `{"language":"python"}` {
			t.Errorf("reader observed mutated payload %q", p)
		}
	}
	if string(evt.Payload) != `{"language":"python"}` {
		t.Errorf("publisher's event mutated: %s", evt.Payload)
	}
}

func TestDeliver_RetriesThenDrops(t *testing.T) {
	var calls atomic.Int64
	b, err := bus.New(discardLogger(), []bus.Subscription{
		{
			Name:        "flaky",
			MaxAttempts: 3,
			Deliver: func(context.Context, *eventlog.Event) error {
				calls.Add(1)
				return errors.New("downstream unavailable")
			},
		},
	}, bus.WithBackoff(backoff.NewConstant(time.Millisecond)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b.Publish(context.Background(), testEvent("review"))
	b.Drain()

	if calls.Load() != 3 {
		t.Errorf("delivery attempts = %d, want 3", calls.Load())
	}
}

func TestDeliver_SucceedsOnRetry(t *testing.T) {
	var calls atomic.Int64
	b, err := bus.New(discardLogger(), []bus.Subscription{
		{
			Name:        "recovers",
			MaxAttempts: 3,
			Deliver: func(context.Context, *eventlog.Event) error {
				if calls.Add(1) < 2 {
					return errors.New("transient")
				}
				return nil
			},
		},
	}, bus.WithBackoff(backoff.NewConstant(time.Millisecond)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b.Publish(context.Background(), testEvent("review"))
	b.Drain()

	if calls.Load() != 2 {
		t.Errorf("delivery attempts = %d, want 2 (stop after success)", calls.Load())
	}
}

func TestDeliver_PanicIsContained(t *testing.T) {
	var calls atomic.Int64
	b, err := bus.New(discardLogger(), []bus.Subscription{
		{
			Name:        "panics",
			MaxAttempts: 2,
			Deliver: func(context.Context, *eventlog.Event) error {
				calls.Add(1)
				panic("handler bug")
			},
		},
	}, bus.WithBackoff(backoff.NewConstant(time.Millisecond)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b.Publish(context.Background(), testEvent("review"))
	b.Drain() // must not crash the test binary

	if calls.Load() != 2 {
		t.Errorf("delivery attempts = %d, want 2", calls.Load())
	}
}

func TestDeliver_MaxInFlightIsHardCeiling(t *testing.T) {
	var inFlight, peak atomic.Int64
	release := make(chan struct{})

	b, err := bus.New(discardLogger(), []bus.Subscription{
		{
			Name:        "serial",
			MaxInFlight: 1,
			Deliver: func(context.Context, *eventlog.Event) error {
				cur := inFlight.Add(1)
				for {
					p := peak.Load()
					if cur <= p || peak.CompareAndSwap(p, cur) {
						break
					}
				}
				<-release
				inFlight.Add(-1)
				return nil
			},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	for range 5 {
		b.Publish(ctx, testEvent("review"))
	}
	time.Sleep(50 * time.Millisecond) // let dispatch goroutines contend
	close(release)
	b.Drain()

	if peak.Load() != 1 {
		t.Errorf("peak in-flight = %d, want 1", peak.Load())
	}
}

func TestSubscription_Matches(t *testing.T) {
	tests := []struct {
		name      string
		types     []string
		eventType string
		want      bool
	}{
		{"nil matches all", nil, "anything", true},
		{"empty matches all", []string{}, "anything", true},
		{"listed type", []string{"review"}, "review", true},
		{"unlisted type", []string{"review"}, "grading_request", false},
		{"multiple types", []string{"review", "grading_request"}, "grading_request", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := bus.Subscription{EventTypes: tt.types}
			if got := s.Matches(tt.eventType); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.eventType, got, tt.want)
			}
		})
	}
}
