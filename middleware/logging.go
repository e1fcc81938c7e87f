package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/chalk/queue"
)

// Logging returns middleware that logs processing start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, msg *queue.Message, next Handler) error {
		logger.Info("message processing started",
			slog.String("queue", msg.Queue),
			slog.String("message_id", msg.ID.String()),
			slog.Int("receive_count", msg.ReceiveCount),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("message processing failed",
				slog.String("queue", msg.Queue),
				slog.String("message_id", msg.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("message processing completed",
				slog.String("queue", msg.Queue),
				slog.String("message_id", msg.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
