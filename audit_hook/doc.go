// Package audithook is a chalk extension that bridges lifecycle events
// to an immutable audit trail backend.
//
// Every event, message, and schedule lifecycle hook emits a structured
// audit record through the [Recorder] interface. The extension assigns
// severity levels (info for normal operations, warning for delivery
// failures, critical for dead-lettered messages) and metadata (event
// type, queue, receive count, elapsed time, errors).
//
// # Usage
//
//	eng, err := engine.New(store, cfg,
//	    engine.WithExtension(audithook.New(audithook.RecorderFunc(
//	        func(ctx context.Context, rec *audithook.Record) error {
//	            return trail.Write(ctx, rec.Action, rec.ResourceID, rec.Metadata)
//	        },
//	    ))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionMessageFailed,
//	        audithook.ActionMessageDeadLettered,
//	    ),
//	)
package audithook
