package engine

import (
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/bus"
	"github.com/xraph/chalk/cron"
	"github.com/xraph/chalk/eventlog"
	"github.com/xraph/chalk/queue"
	"github.com/xraph/chalk/router"
	"github.com/xraph/chalk/worker"
)

// Subscription names in the default topology.
const (
	SubEventsLogWriter      = "events-log-writer"
	SubGradingRouter        = "grading-router"
	SubReviewMatrixNotifier = "review-matrix-notifier"
	SubReviewEmailNotifier  = "review-email-notifier"
)

// Consumer slot names in the default topology. Handlers are injected
// via Engine.RegisterConsumer.
const (
	ConsumerGradingPython     = "grading-python"
	ConsumerGradingJupyter    = "grading-jupyter"
	ConsumerGradingFlutter    = "grading-flutter"
	ConsumerNotifyEmail       = "notify-email"
	ConsumerNotifyMatrix      = "notify-matrix"
	ConsumerProgressPublisher = "progress-publisher"
)

// Cron entry names in the default topology.
const (
	CronPublish   = "lms-publish-cron"
	CronStdReport = "lms-stdreport-cron"
)

// Topology declares the messaging layout the engine wires at startup:
// queues with their dead-letter pairing, the event routing table, the
// consumer slots, and the cron cadences.
type Topology struct {
	// Queues holds every queue definition, dead-letter queues included.
	Queues []queue.Definition

	// Rules is the static event-type routing table.
	Rules []router.Rule

	// GradingQueues maps the grading payload language discriminator to
	// the grader queue that handles it.
	GradingQueues map[string]string

	// Consumers are the consumer slots. Handler is nil until the
	// application injects one via Engine.RegisterConsumer.
	Consumers []worker.Consumer

	// Crons are the schedules registered at startup.
	Crons []cron.Definition
}

// DefaultTopology returns the LMS topology: three grader queues keyed
// by submission language, two notification queues, one progress publish
// queue, each with a paired dead-letter queue; review fan-out to both
// notifiers; hourly weekday publish and twice-weekly report cadences.
func DefaultTopology(cfg chalk.Config) Topology {
	var queues []queue.Definition
	pair := func(name string, visibility, retention, dlqRetention time.Duration) {
		dlqName := name + "-dlq"
		queues = append(queues,
			queue.Definition{
				Name:              name,
				VisibilityTimeout: visibility,
				Retention:         retention,
				MaxReceiveCount:   cfg.MaxReceiveCount,
				DeadLetterQueue:   dlqName,
			},
			queue.Definition{
				Name:              dlqName,
				VisibilityTimeout: visibility,
				Retention:         dlqRetention,
			},
		)
	}
	pair(cfg.GradingPythonQueue, cfg.VisibilityTimeout, cfg.Retention, cfg.DeadLetterRetention)
	pair(cfg.GradingJupyterQueue, cfg.VisibilityTimeout, cfg.Retention, cfg.DeadLetterRetention)
	pair(cfg.GradingFlutterQueue, cfg.VisibilityTimeout, cfg.Retention, cfg.DeadLetterRetention)
	pair(cfg.NotifyEmailQueue, cfg.VisibilityTimeout, cfg.Retention, cfg.DeadLetterRetention)
	pair(cfg.NotifyMatrixQueue, cfg.VisibilityTimeout, cfg.Retention, cfg.DeadLetterRetention)
	pair(cfg.ProgressPublishQueue, cfg.PublishVisibilityTimeout, cfg.Retention, cfg.DeadLetterRetention)

	return Topology{
		Queues: queues,
		Rules: []router.Rule{
			{
				EventType: eventlog.TypeReview,
				Queues:    []string{cfg.NotifyMatrixQueue, cfg.NotifyEmailQueue},
			},
		},
		GradingQueues: map[string]string{
			"python":  cfg.GradingPythonQueue,
			"jupyter": cfg.GradingJupyterQueue,
			"flutter": cfg.GradingFlutterQueue,
		},
		Consumers: []worker.Consumer{
			{Name: ConsumerGradingPython, Queue: cfg.GradingPythonQueue, MaxInFlight: 2, Timeout: cfg.BulkTimeout},
			{Name: ConsumerGradingJupyter, Queue: cfg.GradingJupyterQueue, MaxInFlight: 2, Timeout: cfg.BulkTimeout},
			{Name: ConsumerGradingFlutter, Queue: cfg.GradingFlutterQueue, MaxInFlight: 2, Timeout: cfg.BulkTimeout},
			{Name: ConsumerNotifyEmail, Queue: cfg.NotifyEmailQueue, MaxInFlight: 2, Timeout: cfg.HandlerTimeout},
			{Name: ConsumerNotifyMatrix, Queue: cfg.NotifyMatrixQueue, MaxInFlight: 1, Timeout: cfg.HandlerTimeout},
			{Name: ConsumerProgressPublisher, Queue: cfg.ProgressPublishQueue, MaxInFlight: 2, Timeout: cfg.BulkTimeout},
		},
		Crons: []cron.Definition{
			{
				Name:     CronPublish,
				Schedule: "0 6-20 * * MON-FRI",
				Queue:    cfg.ProgressPublishQueue,
				Body:     []byte(`{"task":"progress_publish"}`),
				Consumer: ConsumerProgressPublisher,
			},
			{
				Name:     CronStdReport,
				Schedule: "0 4 * * MON,WED",
				Queue:    cfg.NotifyEmailQueue,
				Body:     []byte(`{"task":"student_report"}`),
				Consumer: ConsumerNotifyEmail,
			},
		},
	}
}

// subscriptions builds the bus fan-out for the topology. The log writer
// sees every event; the grading router resolves grading requests to a
// single grader queue; the review notifiers copy review events into
// their notification queues. The matrix notifier is serialized because
// the matrix homeserver rate-limits aggressively.
func (eng *Engine) subscriptions() []bus.Subscription {
	return []bus.Subscription{
		{
			Name:        SubEventsLogWriter,
			Deliver:     eng.deliverAppend,
			MaxInFlight: 2,
			Timeout:     eng.cfg.HandlerTimeout,
		},
		{
			Name:        SubGradingRouter,
			EventTypes:  []string{eventlog.TypeGradingRequest},
			Deliver:     eng.deliverRouted,
			MaxInFlight: 2,
			Timeout:     eng.cfg.HandlerTimeout,
		},
		{
			Name:        SubReviewMatrixNotifier,
			EventTypes:  []string{eventlog.TypeReview},
			Deliver:     eng.deliverTo(eng.cfg.NotifyMatrixQueue),
			MaxInFlight: 1,
			Timeout:     eng.cfg.HandlerTimeout,
		},
		{
			Name:        SubReviewEmailNotifier,
			EventTypes:  []string{eventlog.TypeReview},
			Deliver:     eng.deliverTo(eng.cfg.NotifyEmailQueue),
			MaxInFlight: 2,
			Timeout:     eng.cfg.HandlerTimeout,
		},
	}
}
