// Package ext defines the extension system for Chalk.
//
// Extensions are notified of lifecycle events and can react to them —
// recording metrics, emitting webhooks, writing audit logs, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnMessageCompleted(ctx context.Context, msg *queue.Message, elapsed time.Duration) error {
//	    log.Printf("message %s completed in %s", msg.ID, elapsed)
//	    return nil
//	}
//
// # Event Hooks
//
//   - [EventAppended] — an event was written to the event log
//   - [EventPublished] — an event was handed to the bus for fan-out
//
// # Message Hooks
//
//   - [MessageEnqueued] — a message was accepted into a queue
//   - [MessageCompleted] — a consumer processed and acknowledged a message
//   - [MessageFailed] — a consumer returned an error; the message stays
//     in flight until its visibility timeout lapses
//   - [MessageDeadLettered] — a message exhausted its receive budget and
//     was moved to the dead letter queue
//
// # Other Hooks
//
//   - [ScheduleFired] — a cron entry was triggered and a message was enqueued
//   - [Shutdown] — the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
