package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/eventlog"
	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type eventAppendedEntry struct {
	name string
	hook EventAppended
}

type eventPublishedEntry struct {
	name string
	hook EventPublished
}

type messageEnqueuedEntry struct {
	name string
	hook MessageEnqueued
}

type messageCompletedEntry struct {
	name string
	hook MessageCompleted
}

type messageFailedEntry struct {
	name string
	hook MessageFailed
}

type messageDeadLetteredEntry struct {
	name string
	hook MessageDeadLettered
}

type scheduleFiredEntry struct {
	name string
	hook ScheduleFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	eventAppended       []eventAppendedEntry
	eventPublished      []eventPublishedEntry
	messageEnqueued     []messageEnqueuedEntry
	messageCompleted    []messageCompletedEntry
	messageFailed       []messageFailedEntry
	messageDeadLettered []messageDeadLetteredEntry
	scheduleFired       []scheduleFiredEntry
	shutdown            []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(EventAppended); ok {
		r.eventAppended = append(r.eventAppended, eventAppendedEntry{name, h})
	}
	if h, ok := e.(EventPublished); ok {
		r.eventPublished = append(r.eventPublished, eventPublishedEntry{name, h})
	}
	if h, ok := e.(MessageEnqueued); ok {
		r.messageEnqueued = append(r.messageEnqueued, messageEnqueuedEntry{name, h})
	}
	if h, ok := e.(MessageCompleted); ok {
		r.messageCompleted = append(r.messageCompleted, messageCompletedEntry{name, h})
	}
	if h, ok := e.(MessageFailed); ok {
		r.messageFailed = append(r.messageFailed, messageFailedEntry{name, h})
	}
	if h, ok := e.(MessageDeadLettered); ok {
		r.messageDeadLettered = append(r.messageDeadLettered, messageDeadLetteredEntry{name, h})
	}
	if h, ok := e.(ScheduleFired); ok {
		r.scheduleFired = append(r.scheduleFired, scheduleFiredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitEventAppended notifies all extensions that implement EventAppended.
func (r *Registry) EmitEventAppended(ctx context.Context, evt *eventlog.Event) {
	for _, e := range r.eventAppended {
		if err := e.hook.OnEventAppended(ctx, evt); err != nil {
			r.logHookError("OnEventAppended", e.name, err)
		}
	}
}

// EmitEventPublished notifies all extensions that implement EventPublished.
func (r *Registry) EmitEventPublished(ctx context.Context, evt *eventlog.Event) {
	for _, e := range r.eventPublished {
		if err := e.hook.OnEventPublished(ctx, evt); err != nil {
			r.logHookError("OnEventPublished", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Message emitters
// ──────────────────────────────────────────────────

// EmitMessageEnqueued notifies all extensions that implement MessageEnqueued.
func (r *Registry) EmitMessageEnqueued(ctx context.Context, msg *queue.Message) {
	for _, e := range r.messageEnqueued {
		if err := e.hook.OnMessageEnqueued(ctx, msg); err != nil {
			r.logHookError("OnMessageEnqueued", e.name, err)
		}
	}
}

// EmitMessageCompleted notifies all extensions that implement MessageCompleted.
func (r *Registry) EmitMessageCompleted(ctx context.Context, msg *queue.Message, elapsed time.Duration) {
	for _, e := range r.messageCompleted {
		if err := e.hook.OnMessageCompleted(ctx, msg, elapsed); err != nil {
			r.logHookError("OnMessageCompleted", e.name, err)
		}
	}
}

// EmitMessageFailed notifies all extensions that implement MessageFailed.
func (r *Registry) EmitMessageFailed(ctx context.Context, msg *queue.Message, msgErr error) {
	for _, e := range r.messageFailed {
		if err := e.hook.OnMessageFailed(ctx, msg, msgErr); err != nil {
			r.logHookError("OnMessageFailed", e.name, err)
		}
	}
}

// EmitMessageDeadLettered notifies all extensions that implement MessageDeadLettered.
func (r *Registry) EmitMessageDeadLettered(ctx context.Context, entry *dlq.Entry) {
	for _, e := range r.messageDeadLettered {
		if err := e.hook.OnMessageDeadLettered(ctx, entry); err != nil {
			r.logHookError("OnMessageDeadLettered", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other emitters
// ──────────────────────────────────────────────────

// EmitScheduleFired notifies all extensions that implement ScheduleFired.
func (r *Registry) EmitScheduleFired(ctx context.Context, entryName string, msgID id.MessageID) {
	for _, e := range r.scheduleFired {
		if err := e.hook.OnScheduleFired(ctx, entryName, msgID); err != nil {
			r.logHookError("OnScheduleFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
