package ext

import (
	"context"
	"time"

	"github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/eventlog"
	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
)

// Extension is the base interface all extensions implement. Lifecycle
// hooks are separate interfaces; an extension implements only the ones
// it cares about.
type Extension interface {
	// Name returns a stable identifier for the extension, used in logs.
	Name() string
}

// ──────────────────────────────────────────────────
// Event hooks
// ──────────────────────────────────────────────────

// EventAppended is notified after an event is durably written to the
// event log.
type EventAppended interface {
	OnEventAppended(ctx context.Context, evt *eventlog.Event) error
}

// EventPublished is notified when an event is handed to the bus for
// subscription fan-out.
type EventPublished interface {
	OnEventPublished(ctx context.Context, evt *eventlog.Event) error
}

// ──────────────────────────────────────────────────
// Message hooks
// ──────────────────────────────────────────────────

// MessageEnqueued is notified after a message is accepted into a queue.
type MessageEnqueued interface {
	OnMessageEnqueued(ctx context.Context, msg *queue.Message) error
}

// MessageCompleted is notified after a consumer successfully processed
// and acknowledged a message.
type MessageCompleted interface {
	OnMessageCompleted(ctx context.Context, msg *queue.Message, elapsed time.Duration) error
}

// MessageFailed is notified when a consumer returns an error. The
// message remains in flight and becomes receivable again after its
// visibility timeout lapses.
type MessageFailed interface {
	OnMessageFailed(ctx context.Context, msg *queue.Message, msgErr error) error
}

// MessageDeadLettered is notified when a message exhausts its receive
// budget and is transferred to the dead letter queue.
type MessageDeadLettered interface {
	OnMessageDeadLettered(ctx context.Context, entry *dlq.Entry) error
}

// ──────────────────────────────────────────────────
// Other hooks
// ──────────────────────────────────────────────────

// ScheduleFired is notified when a cron entry fires and its message is
// enqueued.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, entryName string, msgID id.MessageID) error
}

// Shutdown is notified when the engine is shutting down gracefully.
// Extensions should flush buffers and release resources.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
