package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/eventlog"
	"github.com/xraph/chalk/ext"
	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
)

// Compile-time interface checks.
var (
	_ ext.Extension           = (*Extension)(nil)
	_ ext.EventAppended       = (*Extension)(nil)
	_ ext.EventPublished      = (*Extension)(nil)
	_ ext.MessageEnqueued     = (*Extension)(nil)
	_ ext.MessageCompleted    = (*Extension)(nil)
	_ ext.MessageFailed       = (*Extension)(nil)
	_ ext.MessageDeadLettered = (*Extension)(nil)
	_ ext.ScheduleFired       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so this package carries no dependency on any concrete
// audit system — callers inject their backend at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit record.
	Record(ctx context.Context, rec *Record) error
}

// Record is one audit trail entry.
type Record struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, rec *Record) error

func (f RecorderFunc) Record(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges chalk lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured record through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit records through the provided
// Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Event lifecycle hooks ───────────────────────────

// OnEventAppended implements ext.EventAppended.
func (e *Extension) OnEventAppended(ctx context.Context, evt *eventlog.Event) error {
	return e.record(ctx, ActionEventAppended, SeverityInfo, OutcomeSuccess,
		ResourceEvent, evt.ID, CategoryEvent, nil,
		"event_type", evt.Type,
		"timestamp", evt.Timestamp,
	)
}

// OnEventPublished implements ext.EventPublished.
func (e *Extension) OnEventPublished(ctx context.Context, evt *eventlog.Event) error {
	return e.record(ctx, ActionEventPublished, SeverityInfo, OutcomeSuccess,
		ResourceEvent, evt.ID, CategoryEvent, nil,
		"event_type", evt.Type,
	)
}

// ── Message lifecycle hooks ─────────────────────────

// OnMessageEnqueued implements ext.MessageEnqueued.
func (e *Extension) OnMessageEnqueued(ctx context.Context, msg *queue.Message) error {
	return e.record(ctx, ActionMessageEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceMessage, msg.ID.String(), CategoryMessage, nil,
		"queue", msg.Queue,
	)
}

// OnMessageCompleted implements ext.MessageCompleted.
func (e *Extension) OnMessageCompleted(ctx context.Context, msg *queue.Message, elapsed time.Duration) error {
	return e.record(ctx, ActionMessageCompleted, SeverityInfo, OutcomeSuccess,
		ResourceMessage, msg.ID.String(), CategoryMessage, nil,
		"queue", msg.Queue,
		"receive_count", msg.ReceiveCount,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnMessageFailed implements ext.MessageFailed.
func (e *Extension) OnMessageFailed(ctx context.Context, msg *queue.Message, msgErr error) error {
	return e.record(ctx, ActionMessageFailed, SeverityWarning, OutcomeFailure,
		ResourceMessage, msg.ID.String(), CategoryMessage, msgErr,
		"queue", msg.Queue,
		"receive_count", msg.ReceiveCount,
	)
}

// OnMessageDeadLettered implements ext.MessageDeadLettered.
func (e *Extension) OnMessageDeadLettered(ctx context.Context, entry *dlq.Entry) error {
	return e.record(ctx, ActionMessageDeadLettered, SeverityCritical, OutcomeFailure,
		ResourceDLQEntry, entry.ID.String(), CategoryMessage, nil,
		"message_id", entry.MessageID.String(),
		"queue", entry.Queue,
		"dead_letter_queue", entry.DeadLetterQueue,
		"receive_count", entry.ReceiveCount,
		"reason", entry.Reason,
	)
}

// ── Schedule lifecycle hooks ────────────────────────

// OnScheduleFired implements ext.ScheduleFired.
func (e *Extension) OnScheduleFired(ctx context.Context, entryName string, msgID id.MessageID) error {
	return e.record(ctx, ActionScheduleFired, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, entryName, CategorySchedule, nil,
		"message_id", msgID.String(),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit record if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	rec := &Record{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, rec); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
