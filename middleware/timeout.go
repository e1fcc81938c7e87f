package middleware

import (
	"context"
	"time"

	"github.com/xraph/chalk/queue"
)

// Timeout returns middleware that enforces a per-consumer processing
// deadline. A non-positive duration disables the deadline. When the
// deadline is exceeded the context is cancelled and the handler should
// return context.DeadlineExceeded.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *queue.Message, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
