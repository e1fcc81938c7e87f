package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/backoff"
	"github.com/xraph/chalk/bus"
	"github.com/xraph/chalk/cron"
	"github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/eventlog"
	"github.com/xraph/chalk/ext"
	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/observability"
	"github.com/xraph/chalk/queue"
	"github.com/xraph/chalk/router"
	"github.com/xraph/chalk/worker"
)

// sendAttempts is the budget for enqueue retries on transport errors,
// including the first attempt.
const sendAttempts = 3

// Engine wires the event log, bus, queues, router, scheduler, and
// consumer pool into one unit. Use New to create one.
type Engine struct {
	cfg        chalk.Config
	logger     *slog.Logger
	extensions *ext.Registry
	bo         backoff.Strategy
	topology   Topology

	log        *eventlog.Log
	bus        *bus.Bus
	queues     *queue.Service
	dlqService *dlq.Service
	router     *router.Router

	cronStore cron.Store
	scheduler *cron.Scheduler

	consumers    *worker.Registry
	pool         *worker.Pool
	queueLimits  []queue.Limits
	queueManager *queue.Manager
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. If not set, a text handler on
// stdout at the stage's log level is used.
func WithLogger(logger *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = logger }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.extensions.Register(e) }
}

// WithBackoff sets the retry backoff strategy used for bus redelivery
// and transport retries. If not set, backoff.DefaultStrategy()
// (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithQueueLimits registers queue-level rate limiting and concurrency
// configurations. Queues not listed have no limits.
func WithQueueLimits(limits ...queue.Limits) Option {
	return func(eng *Engine) { eng.queueLimits = append(eng.queueLimits, limits...) }
}

// WithTopology replaces the default topology. Intended for tests and
// alternate deployments; production uses DefaultTopology(cfg).
func WithTopology(t Topology) Option {
	return func(eng *Engine) { eng.topology = t }
}

// New creates an Engine on the given store. The store must implement
// eventlog.Store, queue.Store, dlq.Store, and cron.Store; the backend
// packages (store/memory, store/postgres, store/redis) all do.
func New(store any, cfg chalk.Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, chalk.ErrNoStore
	}

	es, ok := store.(eventlog.Store)
	if !ok {
		return nil, fmt.Errorf("chalk: store does not implement eventlog.Store")
	}
	qs, ok := store.(queue.Store)
	if !ok {
		return nil, fmt.Errorf("chalk: store does not implement queue.Store")
	}
	ds, ok := store.(dlq.Store)
	if !ok {
		return nil, fmt.Errorf("chalk: store does not implement dlq.Store")
	}
	cs, ok := store.(cron.Store)
	if !ok {
		return nil, fmt.Errorf("chalk: store does not implement cron.Store")
	}

	eng := &Engine{
		cfg:       cfg,
		cronStore: cs,
	}
	eng.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	eng.extensions = ext.NewRegistry(eng.logger)
	eng.topology = DefaultTopology(cfg)

	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	// Always record lifecycle counters.
	eng.extensions.Register(observability.NewMetricsExtension())

	eng.log = eventlog.NewLog(es, eng.logger)
	eng.queues = queue.NewService(qs, eng.logger, eng.topology.Queues...)
	eng.dlqService = dlq.NewService(ds, eng.queues, eng.logger)
	eng.router = router.New(eng.logger, eng.topology.Rules, eng.topology.GradingQueues)

	// Dead-letter transfers happen inside store receive transactions;
	// surface each one to the extension hooks from here.
	eng.queues.OnDeadLetter(func(ctx context.Context, entryID string) {
		eID, parseErr := id.ParseDLQID(entryID)
		if parseErr != nil {
			eng.logger.Warn("unparseable dead-letter entry id",
				slog.String("entry_id", entryID),
				slog.String("error", parseErr.Error()),
			)
			return
		}
		entry, getErr := eng.dlqService.Get(ctx, eID)
		if getErr != nil {
			eng.logger.Warn("dead-letter entry lookup failed",
				slog.String("entry_id", entryID),
				slog.String("error", getErr.Error()),
			)
			return
		}
		eng.extensions.EmitMessageDeadLettered(ctx, entry)
	})

	b, err := bus.New(eng.logger, eng.subscriptions(), bus.WithBackoff(eng.bo))
	if err != nil {
		return nil, err
	}
	eng.bus = b

	eng.consumers = worker.NewRegistry()
	executor := worker.NewExecutor(eng.queues, eng.extensions, eng.logger)
	poolOpts := []worker.PoolOption{
		worker.WithPollInterval(cfg.PollInterval),
	}
	if len(eng.queueLimits) > 0 {
		eng.queueManager = queue.NewManager(eng.queueLimits...)
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queueManager))
	}
	eng.pool = worker.NewPool(eng.queues, eng.consumers, executor, eng.logger, poolOpts...)

	enqueueFunc := func(ctx context.Context, queueName string, body []byte) (*queue.Message, error) {
		return eng.Enqueue(ctx, queueName, body)
	}
	eng.scheduler = cron.NewScheduler(cs, enqueueFunc, eng.extensions, eng.pool.WorkerID(), eng.logger)

	return eng, nil
}

// RegisterConsumer injects the handler for a consumer slot declared in
// the topology. The slot fixes the queue, in-flight ceiling, and
// timeout; the handler supplies the business logic.
func (eng *Engine) RegisterConsumer(name string, handler worker.HandlerFunc) error {
	for _, c := range eng.topology.Consumers {
		if c.Name == name {
			c.Handler = handler
			return eng.consumers.Register(c)
		}
	}
	return fmt.Errorf("chalk: unknown consumer %q", name)
}

// AppendEvent durably writes the event to the log, then publishes it on
// the bus for subscription fan-out. It returns the event id (minted if
// the caller left it empty). A conflicting re-append fails before any
// fan-out happens.
func (eng *Engine) AppendEvent(ctx context.Context, evt *eventlog.Event) (string, error) {
	eventID, err := eng.log.Append(ctx, evt)
	if err != nil {
		return "", err
	}

	published := evt.Clone()
	published.ID = eventID
	eng.extensions.EmitEventAppended(ctx, published)

	eng.PublishEvent(ctx, published)
	return eventID, nil
}

// PublishEvent hands the event to the bus without writing it to the
// log. Dispatch is asynchronous; PublishEvent returns after initiating
// delivery to every matching subscription.
func (eng *Engine) PublishEvent(ctx context.Context, evt *eventlog.Event) {
	eng.extensions.EmitEventPublished(ctx, evt)
	eng.bus.Publish(ctx, evt)
}

// Enqueue sends a message to the named queue, retrying transport
// failures with backoff. Non-transport errors fail immediately.
func (eng *Engine) Enqueue(ctx context.Context, queueName string, body []byte) (*queue.Message, error) {
	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		msg, err := eng.queues.Send(ctx, queueName, body)
		if err == nil {
			eng.extensions.EmitMessageEnqueued(ctx, msg)
			return msg, nil
		}
		if !errors.Is(err, chalk.ErrTransport) {
			return nil, err
		}
		lastErr = err

		if attempt < sendAttempts {
			delay := eng.bo.Delay(attempt)
			eng.logger.Warn("enqueue transport error, retrying",
				slog.String("queue", queueName),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// ReplayDLQ re-enqueues a dead-letter entry's original body as a fresh
// message and marks the entry replayed.
func (eng *Engine) ReplayDLQ(ctx context.Context, entryID id.DLQID) (*queue.Message, error) {
	return eng.dlqService.Replay(ctx, entryID)
}

// MaintenanceReport summarizes one maintenance pass.
type MaintenanceReport struct {
	// EventsExpired is the number of log records removed by the TTL sweep.
	EventsExpired int
	// MessagesPurged is the number of messages removed by retention purge.
	MessagesPurged int
	// EntriesPurged is the number of dead-letter entries past the
	// dead-letter retention window.
	EntriesPurged int64
}

// RunMaintenance performs the TTL sweep on the event log, the retention
// purge on every queue, and the dead-letter entry purge. Each step runs
// even if an earlier one fails; the first error is returned.
func (eng *Engine) RunMaintenance(ctx context.Context, now time.Time) (MaintenanceReport, error) {
	var report MaintenanceReport
	var firstErr error

	expired, err := eng.log.ExpireSweep(ctx, now)
	report.EventsExpired = expired
	if err != nil && firstErr == nil {
		firstErr = err
	}

	purged, err := eng.queues.PurgeExpired(ctx, now)
	report.MessagesPurged = purged
	if err != nil && firstErr == nil {
		firstErr = err
	}

	entries, err := eng.dlqService.Purge(ctx, now.Add(-eng.cfg.DeadLetterRetention))
	report.EntriesPurged = entries
	if err != nil && firstErr == nil {
		firstErr = err
	}

	eng.logger.Info("maintenance pass complete",
		slog.Int("events_expired", report.EventsExpired),
		slog.Int("messages_purged", report.MessagesPurged),
		slog.Int64("dlq_entries_purged", report.EntriesPurged),
	)

	return report, firstErr
}

// Start registers the topology's cron entries, then starts the
// scheduler and the consumer pool.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.registerSchedules(ctx); err != nil {
		return err
	}
	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	return eng.pool.Start(ctx)
}

// Stop gracefully shuts down the engine: scheduler first, then the
// consumer pool, then bus drain and extension shutdown. If ctx has no
// deadline, the configured ShutdownTimeout applies.
func (eng *Engine) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}

	if err := eng.scheduler.Stop(ctx); err != nil {
		eng.logger.Error("scheduler stop error", slog.String("error", err.Error()))
	}
	if err := eng.pool.Stop(ctx); err != nil {
		eng.logger.Error("pool stop error", slog.String("error", err.Error()))
	}

	eng.bus.Drain()
	eng.extensions.EmitShutdown(ctx)
	return nil
}

// registerSchedules persists the topology's cron entries. Entries that
// already exist are left untouched, so restarts are idempotent.
func (eng *Engine) registerSchedules(ctx context.Context) error {
	now := time.Now().UTC()
	for _, def := range eng.topology.Crons {
		entry, err := cron.NewEntry(def, now)
		if err != nil {
			return fmt.Errorf("schedule %q: %w", def.Name, err)
		}
		if err := eng.cronStore.RegisterSchedule(ctx, entry); err != nil {
			if errors.Is(err, chalk.ErrDuplicateSchedule) {
				continue
			}
			return fmt.Errorf("register schedule %q: %w", def.Name, err)
		}
		eng.logger.Info("schedule registered",
			slog.String("name", def.Name),
			slog.String("schedule", def.Schedule),
			slog.String("queue", def.Queue),
			slog.Time("next_run_at", *entry.NextRunAt),
		)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Subscription delivery
// ──────────────────────────────────────────────────

// deliverAppend writes every published event to the log. Identical
// re-deliveries are absorbed by the log's idempotent append.
func (eng *Engine) deliverAppend(ctx context.Context, evt *eventlog.Event) error {
	_, err := eng.log.Append(ctx, evt)
	return err
}

// deliverRouted resolves the event through the router and enqueues one
// copy per destination queue.
func (eng *Engine) deliverRouted(ctx context.Context, evt *eventlog.Event) error {
	destinations := eng.router.Route(evt)
	if len(destinations) == 0 {
		return nil
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", evt.ID, err)
	}
	for _, queueName := range destinations {
		if _, err := eng.Enqueue(ctx, queueName, body); err != nil {
			return err
		}
	}
	return nil
}

// deliverTo returns a delivery function that copies the event into one
// fixed queue.
func (eng *Engine) deliverTo(queueName string) bus.DeliverFunc {
	return func(ctx context.Context, evt *eventlog.Event) error {
		body, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", evt.ID, err)
		}
		_, err = eng.Enqueue(ctx, queueName, body)
		return err
	}
}

// ──────────────────────────────────────────────────
// Subsystem access
// ──────────────────────────────────────────────────

// Log returns the event log service.
func (eng *Engine) Log() *eventlog.Log { return eng.log }

// Bus returns the event bus.
func (eng *Engine) Bus() *bus.Bus { return eng.bus }

// Queues returns the queue service.
func (eng *Engine) Queues() *queue.Service { return eng.queues }

// DLQ returns the dead-letter service for inspection and replay.
func (eng *Engine) DLQ() *dlq.Service { return eng.dlqService }

// Router returns the event router.
func (eng *Engine) Router() *router.Router { return eng.router }

// Scheduler returns the cron scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// QueueManager returns the queue manager, or nil when no queue limits
// were configured.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// WorkerID returns this engine instance's worker identity, used for
// schedule locks.
func (eng *Engine) WorkerID() id.WorkerID { return eng.pool.WorkerID() }
