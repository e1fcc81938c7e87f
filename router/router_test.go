package router_test

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/chalk/eventlog"
	"github.com/xraph/chalk/router"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRouter() *router.Router {
	return router.New(discardLogger(),
		[]router.Rule{
			{EventType: eventlog.TypeReview, Queues: []string{"lms-notify-email-queue", "lms-notify-matrix-queue"}},
		},
		map[string]string{
			"python":  "lms-grading-python-queue",
			"jupyter": "lms-grading-jupyter-queue",
			"flutter": "lms-grading-flutter-queue",
		},
	)
}

func event(typ string, payload string) *eventlog.Event {
	return &eventlog.Event{
		ID:        "evt_r",
		Timestamp: eventlog.NewTimestamp(time.Now()),
		Type:      typ,
		Payload:   []byte(payload),
	}
}

func TestRoute_GradingLanguageDiscriminator(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		language string
		want     string
	}{
		{"python", "lms-grading-python-queue"},
		{"jupyter", "lms-grading-jupyter-queue"},
		{"flutter", "lms-grading-flutter-queue"},
	}
	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			got := r.Route(event(eventlog.TypeGradingRequest, `{"language":"`+tt.language+`","activity_id":"a1"}`))
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("Route = %v, want [%s]", got, tt.want)
			}
		})
	}
}

func TestRoute_GradingRoutesToExactlyOneQueue(t *testing.T) {
	r := newTestRouter()

	got := r.Route(event(eventlog.TypeGradingRequest, `{"language":"python"}`))
	if len(got) != 1 {
		t.Fatalf("python grading routed to %d queues, want exactly 1", len(got))
	}
	for _, q := range got {
		if q == "lms-grading-jupyter-queue" || q == "lms-grading-flutter-queue" {
			t.Errorf("python grading reached %s", q)
		}
	}
}

func TestRoute_UnknownLanguageDropsSilently(t *testing.T) {
	r := newTestRouter()

	if got := r.Route(event(eventlog.TypeGradingRequest, `{"language":"cobol"}`)); len(got) != 0 {
		t.Errorf("Route = %v, want no queues for unknown language", got)
	}
	if got := r.Route(event(eventlog.TypeGradingRequest, `{}`)); len(got) != 0 {
		t.Errorf("Route = %v, want no queues for missing language", got)
	}
	if got := r.Route(event(eventlog.TypeGradingRequest, `not json`)); len(got) != 0 {
		t.Errorf("Route = %v, want no queues for malformed payload", got)
	}
}

func TestRoute_StaticRules(t *testing.T) {
	r := newTestRouter()

	got := r.Route(event(eventlog.TypeReview, `{}`))
	if len(got) != 2 || got[0] != "lms-notify-email-queue" || got[1] != "lms-notify-matrix-queue" {
		t.Errorf("Route = %v, want both notify queues in order", got)
	}
}

func TestRoute_UnknownEventType(t *testing.T) {
	r := newTestRouter()

	if got := r.Route(event("enrollment", `{}`)); len(got) != 0 {
		t.Errorf("Route = %v, want no queues for unknown event type", got)
	}
}

func TestRoute_ReturnsCopy(t *testing.T) {
	r := newTestRouter()

	first := r.Route(event(eventlog.TypeReview, `{}`))
	first[0] = "scribbled"

	second := r.Route(event(eventlog.TypeReview, `{}`))
	if second[0] != "lms-notify-email-queue" {
		t.Errorf("rule table mutated through returned slice: %v", second)
	}
}
