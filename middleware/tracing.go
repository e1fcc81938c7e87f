package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/chalk/queue"
)

// tracerName is the instrumentation scope name for chalk tracing.
const tracerName = "github.com/xraph/chalk"

// Tracing returns middleware that wraps message processing in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: chalk.message.id, chalk.queue,
// chalk.receive_count. On error, the span status is set to codes.Error
// with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, msg *queue.Message, next Handler) error {
		ctx, span := tracer.Start(ctx, "chalk.message.process",
			trace.WithAttributes(
				attribute.String("chalk.message.id", msg.ID.String()),
				attribute.String("chalk.queue", msg.Queue),
				attribute.Int("chalk.receive_count", msg.ReceiveCount),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
