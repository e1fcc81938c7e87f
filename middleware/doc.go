// Package middleware provides composable middleware for message
// processing.
//
// A [Middleware] is a function that wraps a consumer handler. Middleware
// are composed into a chain using [Chain] and applied before each
// message is processed. They are applied right-to-left: the first
// middleware in the slice is the outermost wrapper.
//
//	// recover → logging → handler
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Logging(logger))
//
// # Built-in Middleware
//
//   - [Recover] — catches panics and converts them to errors
//   - [Logging] — logs queue, message id, duration, and outcome
//   - [Timeout] — cancels the handler context after a configured duration
//   - [Tracing] — wraps processing in an OpenTelemetry span
//   - [Metrics] — records per-message duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, msg *queue.Message, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
