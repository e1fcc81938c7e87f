// Package router maps events to the work queues that should process
// them. Routing is advisory: an event that matches no rule routes to
// zero queues and is silently skipped.
package router

import (
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/xraph/chalk/eventlog"
)

// Rule maps one event type to its destination queues.
type Rule struct {
	EventType string
	Queues    []string
}

// Router resolves events against a static rule table. Grading requests
// are special-cased: the destination grader queue is selected by the
// language discriminator in the event payload.
type Router struct {
	logger  *slog.Logger
	rules   map[string][]string
	grading map[string]string // payload language -> grader queue
}

// New creates a Router. gradingQueues keys are the payload language
// values (e.g. "python"); an event type listed in both rules and the
// grading map resolves through the grading map.
func New(logger *slog.Logger, rules []Rule, gradingQueues map[string]string) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		logger:  logger,
		rules:   make(map[string][]string, len(rules)),
		grading: gradingQueues,
	}
	for _, rule := range rules {
		r.rules[rule.EventType] = slices.Clone(rule.Queues)
	}
	return r
}

// gradingPayload is the slice of the event payload routing cares about.
type gradingPayload struct {
	Language string `json:"language"`
}

// Route returns the queues that should receive the event, in rule
// order. Unknown event types and unknown grading languages route to
// zero queues.
func (r *Router) Route(evt *eventlog.Event) []string {
	if evt.Type == eventlog.TypeGradingRequest && len(r.grading) > 0 {
		return r.routeGrading(evt)
	}

	queues, ok := r.rules[evt.Type]
	if !ok {
		r.logger.Debug("no route for event type",
			slog.String("event_type", evt.Type),
			slog.String("event_id", evt.ID),
		)
		return nil
	}
	return slices.Clone(queues)
}

func (r *Router) routeGrading(evt *eventlog.Event) []string {
	var p gradingPayload
	if len(evt.Payload) > 0 {
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			r.logger.Debug("grading payload not parseable",
				slog.String("event_id", evt.ID),
				slog.String("error", err.Error()),
			)
			return nil
		}
	}

	queueName, ok := r.grading[p.Language]
	if !ok {
		r.logger.Debug("no grader queue for language",
			slog.String("event_id", evt.ID),
			slog.String("language", p.Language),
		)
		return nil
	}
	return []string{queueName}
}
