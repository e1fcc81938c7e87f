package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/eventlog"
	"github.com/xraph/chalk/ext"
	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
)

// meterName is the instrumentation scope name for chalk metrics.
const meterName = "github.com/xraph/chalk"

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.EventAppended       = (*MetricsExtension)(nil)
	_ ext.EventPublished      = (*MetricsExtension)(nil)
	_ ext.MessageEnqueued     = (*MetricsExtension)(nil)
	_ ext.MessageCompleted    = (*MetricsExtension)(nil)
	_ ext.MessageFailed       = (*MetricsExtension)(nil)
	_ ext.MessageDeadLettered = (*MetricsExtension)(nil)
	_ ext.ScheduleFired       = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters via OTel.
// Register it as a Chalk extension to automatically track append rates,
// publish counts, enqueue rates, completion and failure counts, dead
// letter transfers, and schedule fires.
type MetricsExtension struct {
	eventAppended       metric.Int64Counter
	eventPublished      metric.Int64Counter
	messageEnqueued     metric.Int64Counter
	messageCompleted    metric.Int64Counter
	messageFailed       metric.Int64Counter
	messageDeadLettered metric.Int64Counter
	scheduleFired       metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. If no MeterProvider is configured, noop instruments
// are used and the extension is a pass-through.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific
// MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// Instrument creation errors fall back to noop instruments per the
	// OTel API contract, so they are safe to ignore here.
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name,
			metric.WithDescription(desc),
			metric.WithUnit(unit),
		)
		return c
	}

	return &MetricsExtension{
		eventAppended:       counter("chalk.event.appended", "Total events written to the event log", "{event}"),
		eventPublished:      counter("chalk.event.published", "Total events handed to the bus for fan-out", "{event}"),
		messageEnqueued:     counter("chalk.message.enqueued", "Total messages accepted into queues", "{message}"),
		messageCompleted:    counter("chalk.message.completed", "Total messages processed and acknowledged", "{message}"),
		messageFailed:       counter("chalk.message.failed", "Total consumer failures", "{message}"),
		messageDeadLettered: counter("chalk.message.dead_lettered", "Total messages moved to dead letter queues", "{message}"),
		scheduleFired:       counter("chalk.schedule.fired", "Total cron entry fires", "{fire}"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Event lifecycle hooks ───────────────────────────

// OnEventAppended implements ext.EventAppended.
func (m *MetricsExtension) OnEventAppended(ctx context.Context, evt *eventlog.Event) error {
	m.eventAppended.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", evt.Type),
	))
	return nil
}

// OnEventPublished implements ext.EventPublished.
func (m *MetricsExtension) OnEventPublished(ctx context.Context, evt *eventlog.Event) error {
	m.eventPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", evt.Type),
	))
	return nil
}

// ── Message lifecycle hooks ─────────────────────────

// OnMessageEnqueued implements ext.MessageEnqueued.
func (m *MetricsExtension) OnMessageEnqueued(ctx context.Context, msg *queue.Message) error {
	m.messageEnqueued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", msg.Queue),
	))
	return nil
}

// OnMessageCompleted implements ext.MessageCompleted.
func (m *MetricsExtension) OnMessageCompleted(ctx context.Context, msg *queue.Message, _ time.Duration) error {
	m.messageCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", msg.Queue),
	))
	return nil
}

// OnMessageFailed implements ext.MessageFailed.
func (m *MetricsExtension) OnMessageFailed(ctx context.Context, msg *queue.Message, _ error) error {
	m.messageFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", msg.Queue),
	))
	return nil
}

// OnMessageDeadLettered implements ext.MessageDeadLettered.
func (m *MetricsExtension) OnMessageDeadLettered(ctx context.Context, entry *dlq.Entry) error {
	m.messageDeadLettered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", entry.Queue),
	))
	return nil
}

// ── Schedule lifecycle hooks ────────────────────────

// OnScheduleFired implements ext.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(ctx context.Context, entryName string, _ id.MessageID) error {
	m.scheduleFired.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entry", entryName),
	))
	return nil
}
