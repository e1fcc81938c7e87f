package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/engine"
	"github.com/xraph/chalk/eventlog"
	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
	"github.com/xraph/chalk/store/memory"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() chalk.Config {
	cfg := chalk.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func newTestEngine(t *testing.T, cfg chalk.Config, opts ...engine.Option) *engine.Engine {
	t.Helper()
	opts = append([]engine.Option{engine.WithLogger(discardLogger())}, opts...)
	eng, err := engine.New(memory.New(), cfg, opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func newReviewEvent() *eventlog.Event {
	return &eventlog.Event{
		ID:        id.NewEventID(),
		Timestamp: eventlog.NewTimestamp(time.Now()),
		Type:      eventlog.TypeReview,
		SourceID:  "teacher-7",
		StudentID: "student-42",
		Payload:   json.RawMessage(`{"grade":"passed"}`),
	}
}

func newGradingEvent(language string) *eventlog.Event {
	return &eventlog.Event{
		ID:         id.NewEventID(),
		Timestamp:  eventlog.NewTimestamp(time.Now()),
		Type:       eventlog.TypeGradingRequest,
		StudentID:  "student-42",
		ActivityID: "exercise-3",
		Payload:    json.RawMessage(`{"language":"` + language + `"}`),
	}
}

func receiveAll(t *testing.T, eng *engine.Engine, queueName string) []*queue.Message {
	t.Helper()
	msgs, err := eng.Queues().Receive(context.Background(), queueName, 10)
	if err != nil {
		t.Fatalf("receive from %s: %v", queueName, err)
	}
	return msgs
}

func queryLog(t *testing.T, eng *engine.Engine, ix eventlog.Index, key string) []*eventlog.Event {
	t.Helper()
	seq, err := eng.Log().Query(context.Background(), ix, key, eventlog.TimeRange{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var out []*eventlog.Event
	for evt, err := range seq {
		if err != nil {
			t.Fatalf("query iteration: %v", err)
		}
		out = append(out, evt)
	}
	return out
}

// ──────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────

func TestNew_NilStoreRejected(t *testing.T) {
	_, err := engine.New(nil, testConfig())
	if !errors.Is(err, chalk.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestNew_IncompleteStoreRejected(t *testing.T) {
	_, err := engine.New(struct{}{}, testConfig())
	if err == nil {
		t.Fatal("expected error for store missing subsystem interfaces")
	}
}

func TestDefaultTopology_QueuePairs(t *testing.T) {
	cfg := chalk.DefaultConfig()
	top := engine.DefaultTopology(cfg)

	if len(top.Queues) != 12 {
		t.Fatalf("expected 12 queue definitions, got %d", len(top.Queues))
	}

	byName := make(map[string]queue.Definition, len(top.Queues))
	for _, def := range top.Queues {
		byName[def.Name] = def
	}

	primaries := []string{
		chalk.QueueGradingPython, chalk.QueueGradingJupyter, chalk.QueueGradingFlutter,
		chalk.QueueNotifyEmail, chalk.QueueNotifyMatrix, chalk.QueueProgressPublish,
	}
	for _, name := range primaries {
		def, ok := byName[name]
		if !ok {
			t.Errorf("missing queue %s", name)
			continue
		}
		if def.DeadLetterQueue != name+"-dlq" {
			t.Errorf("%s: DeadLetterQueue = %q, want %q", name, def.DeadLetterQueue, name+"-dlq")
		}
		if def.MaxReceiveCount != 2 {
			t.Errorf("%s: MaxReceiveCount = %d, want 2", name, def.MaxReceiveCount)
		}
		if def.Retention != 14400*time.Second {
			t.Errorf("%s: Retention = %v, want 4h", name, def.Retention)
		}
		dlqDef, ok := byName[name+"-dlq"]
		if !ok {
			t.Errorf("missing dead-letter queue for %s", name)
			continue
		}
		if dlqDef.Retention != 1209600*time.Second {
			t.Errorf("%s-dlq: Retention = %v, want 14d", name, dlqDef.Retention)
		}
	}

	if got := byName[chalk.QueueGradingPython].VisibilityTimeout; got != 910*time.Second {
		t.Errorf("grading visibility = %v, want 910s", got)
	}
	if got := byName[chalk.QueueProgressPublish].VisibilityTimeout; got != 2700*time.Second {
		t.Errorf("publish visibility = %v, want 2700s", got)
	}
}

func TestDefaultTopology_CronCadences(t *testing.T) {
	top := engine.DefaultTopology(chalk.DefaultConfig())

	if len(top.Crons) != 2 {
		t.Fatalf("expected 2 cron definitions, got %d", len(top.Crons))
	}
	schedules := map[string]string{}
	for _, def := range top.Crons {
		schedules[def.Name] = def.Schedule
	}
	if schedules[engine.CronPublish] != "0 6-20 * * MON-FRI" {
		t.Errorf("publish schedule = %q", schedules[engine.CronPublish])
	}
	if schedules[engine.CronStdReport] != "0 4 * * MON,WED" {
		t.Errorf("stdreport schedule = %q", schedules[engine.CronStdReport])
	}
}

func TestDefaultTopology_GradingLanguages(t *testing.T) {
	cfg := chalk.DefaultConfig()
	top := engine.DefaultTopology(cfg)

	want := map[string]string{
		"python":  chalk.QueueGradingPython,
		"jupyter": chalk.QueueGradingJupyter,
		"flutter": chalk.QueueGradingFlutter,
	}
	for language, queueName := range want {
		if got := top.GradingQueues[language]; got != queueName {
			t.Errorf("grading[%s] = %q, want %q", language, got, queueName)
		}
	}
}

// ──────────────────────────────────────────────────
// Event flow
// ──────────────────────────────────────────────────

func TestAppendEvent_WritesLogAndMintsID(t *testing.T) {
	eng := newTestEngine(t, testConfig())
	ctx := context.Background()

	evt := newReviewEvent()
	evt.ID = ""
	eventID, err := eng.AppendEvent(ctx, evt)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if eventID == "" {
		t.Fatal("expected minted event id")
	}
	eng.Bus().Drain()

	events := queryLog(t, eng, eventlog.ByStudentID, "student-42")
	if len(events) != 1 {
		t.Fatalf("expected 1 event in log, got %d", len(events))
	}
	if events[0].ID != eventID {
		t.Errorf("logged id = %q, want %q", events[0].ID, eventID)
	}
}

func TestAppendEvent_ReviewFansOutToBothNotifiers(t *testing.T) {
	eng := newTestEngine(t, testConfig())
	ctx := context.Background()

	evt := newReviewEvent()
	if _, err := eng.AppendEvent(ctx, evt); err != nil {
		t.Fatalf("append: %v", err)
	}
	eng.Bus().Drain()

	for _, queueName := range []string{chalk.QueueNotifyMatrix, chalk.QueueNotifyEmail} {
		msgs := receiveAll(t, eng, queueName)
		if len(msgs) != 1 {
			t.Fatalf("%s: expected 1 message, got %d", queueName, len(msgs))
		}
		var delivered eventlog.Event
		if err := json.Unmarshal(msgs[0].Body, &delivered); err != nil {
			t.Fatalf("%s: unmarshal body: %v", queueName, err)
		}
		if delivered.ID != evt.ID {
			t.Errorf("%s: delivered id = %q, want %q", queueName, delivered.ID, evt.ID)
		}
	}
}

func TestAppendEvent_GradingRoutedByLanguage(t *testing.T) {
	tests := []struct {
		language string
		want     string
	}{
		{"python", chalk.QueueGradingPython},
		{"jupyter", chalk.QueueGradingJupyter},
		{"flutter", chalk.QueueGradingFlutter},
	}
	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			eng := newTestEngine(t, testConfig())
			ctx := context.Background()

			if _, err := eng.AppendEvent(ctx, newGradingEvent(tt.language)); err != nil {
				t.Fatalf("append: %v", err)
			}
			eng.Bus().Drain()

			if msgs := receiveAll(t, eng, tt.want); len(msgs) != 1 {
				t.Errorf("%s: expected 1 message, got %d", tt.want, len(msgs))
			}
			// Exactly one grader queue receives the event.
			for _, other := range []string{chalk.QueueGradingPython, chalk.QueueGradingJupyter, chalk.QueueGradingFlutter} {
				if other == tt.want {
					continue
				}
				if msgs := receiveAll(t, eng, other); len(msgs) != 0 {
					t.Errorf("%s: expected 0 messages, got %d", other, len(msgs))
				}
			}
		})
	}
}

func TestAppendEvent_UnknownGradingLanguageDropped(t *testing.T) {
	eng := newTestEngine(t, testConfig())
	ctx := context.Background()

	if _, err := eng.AppendEvent(ctx, newGradingEvent("cobol")); err != nil {
		t.Fatalf("append: %v", err)
	}
	eng.Bus().Drain()

	for _, queueName := range []string{chalk.QueueGradingPython, chalk.QueueGradingJupyter, chalk.QueueGradingFlutter} {
		if msgs := receiveAll(t, eng, queueName); len(msgs) != 0 {
			t.Errorf("%s: expected 0 messages, got %d", queueName, len(msgs))
		}
	}

	// The event is still durably logged.
	if events := queryLog(t, eng, eventlog.ByStudentID, "student-42"); len(events) != 1 {
		t.Errorf("expected event in log, got %d", len(events))
	}
}

func TestAppendEvent_ConflictFailsBeforeFanOut(t *testing.T) {
	eng := newTestEngine(t, testConfig())
	ctx := context.Background()

	evt := newReviewEvent()
	if _, err := eng.AppendEvent(ctx, evt); err != nil {
		t.Fatalf("first append: %v", err)
	}
	eng.Bus().Drain()
	// Drain the first fan-out.
	receiveAll(t, eng, chalk.QueueNotifyMatrix)
	receiveAll(t, eng, chalk.QueueNotifyEmail)

	conflicting := evt.Clone()
	conflicting.Payload = json.RawMessage(`{"grade":"failed"}`)
	if _, err := eng.AppendEvent(ctx, conflicting); !errors.Is(err, chalk.ErrEventConflict) {
		t.Fatalf("expected ErrEventConflict, got %v", err)
	}
	eng.Bus().Drain()

	if msgs := receiveAll(t, eng, chalk.QueueNotifyMatrix); len(msgs) != 0 {
		t.Errorf("conflicting append fanned out %d messages", len(msgs))
	}
}

func TestPublishEvent_LogWriterAppends(t *testing.T) {
	eng := newTestEngine(t, testConfig())
	ctx := context.Background()

	evt := newReviewEvent()
	eng.PublishEvent(ctx, evt)
	eng.Bus().Drain()

	events := queryLog(t, eng, eventlog.ByStudentID, "student-42")
	if len(events) != 1 {
		t.Fatalf("expected published event in log, got %d", len(events))
	}
	if events[0].ID != evt.ID {
		t.Errorf("logged id = %q, want %q", events[0].ID, evt.ID)
	}
}

// ──────────────────────────────────────────────────
// Enqueue and replay
// ──────────────────────────────────────────────────

func TestEnqueue_UnknownQueueFailsWithoutRetry(t *testing.T) {
	eng := newTestEngine(t, testConfig())
	if _, err := eng.Enqueue(context.Background(), "no-such-queue", nil); !errors.Is(err, chalk.ErrUnknownQueue) {
		t.Fatalf("expected ErrUnknownQueue, got %v", err)
	}
}

func TestEnqueue_RoundTrip(t *testing.T) {
	eng := newTestEngine(t, testConfig())
	ctx := context.Background()

	msg, err := eng.Enqueue(ctx, chalk.QueueNotifyEmail, []byte(`{"to":"student-42"}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	msgs := receiveAll(t, eng, chalk.QueueNotifyEmail)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID != msg.ID {
		t.Errorf("received id = %s, want %s", msgs[0].ID, msg.ID)
	}
}

func TestReplayDLQ_ReDrivesOriginalBody(t *testing.T) {
	cfg := testConfig()
	cfg.VisibilityTimeout = 20 * time.Millisecond
	eng := newTestEngine(t, cfg)
	ctx := context.Background()

	body := []byte(`{"language":"python"}`)
	if _, err := eng.Enqueue(ctx, chalk.QueueGradingPython, body); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Exhaust the delivery budget: two receives, then the third attempt
	// transfers to the dead-letter queue.
	for i := 0; i < 3; i++ {
		receiveAll(t, eng, chalk.QueueGradingPython)
		time.Sleep(30 * time.Millisecond)
	}

	entries, err := eng.DLQ().List(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 dead-letter entry, got %d", len(entries))
	}

	replayed, err := eng.ReplayDLQ(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if string(replayed.Body) != string(body) {
		t.Errorf("replayed body = %s, want %s", replayed.Body, body)
	}

	msgs := receiveAll(t, eng, chalk.QueueGradingPython)
	if len(msgs) != 1 {
		t.Fatalf("expected replayed message receivable, got %d", len(msgs))
	}
	if msgs[0].ReceiveCount != 1 {
		t.Errorf("replayed ReceiveCount = %d, want 1", msgs[0].ReceiveCount)
	}
}

// ──────────────────────────────────────────────────
// Maintenance
// ──────────────────────────────────────────────────

type deadLetterRecorder struct {
	entries []*dlq.Entry
}

func (r *deadLetterRecorder) Name() string { return "dead-letter-recorder" }

func (r *deadLetterRecorder) OnMessageDeadLettered(_ context.Context, entry *dlq.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func TestReceive_DeadLetterTransferReachesExtensions(t *testing.T) {
	rec := &deadLetterRecorder{}
	cfg := testConfig()
	eng := newTestEngine(t, cfg,
		engine.WithExtension(rec),
		engine.WithTopology(engine.Topology{
			Queues: []queue.Definition{
				{
					Name:            "q",
					MaxReceiveCount: 2,
					DeadLetterQueue: "q-dlq",
					// Zero visibility timeout: every receive sees it again.
				},
				{Name: "q-dlq"},
			},
		}),
	)
	ctx := context.Background()

	sent, err := eng.Enqueue(ctx, "q", []byte("poison"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := eng.Queues().Receive(ctx, "q", 1); err != nil {
			t.Fatalf("receive %d: %v", i+1, err)
		}
	}

	if len(rec.entries) != 1 {
		t.Fatalf("extension saw %d dead-letter entries, want 1", len(rec.entries))
	}
	entry := rec.entries[0]
	if entry.MessageID != sent.ID {
		t.Errorf("entry message id = %v, want %v", entry.MessageID, sent.ID)
	}
	if entry.Queue != "q" || entry.DeadLetterQueue != "q-dlq" {
		t.Errorf("entry queues = %q/%q", entry.Queue, entry.DeadLetterQueue)
	}
	if entry.ReceiveCount != 3 {
		t.Errorf("entry receive count = %d, want 3", entry.ReceiveCount)
	}
}

func TestRunMaintenance_SweepsAndPurges(t *testing.T) {
	cfg := testConfig()
	cfg.Retention = 10 * time.Millisecond
	eng := newTestEngine(t, cfg)
	ctx := context.Background()

	// An event already past its TTL.
	expired := newReviewEvent()
	expired.ExpireAt = eventlog.ExpireAt(time.Now().Add(-time.Hour))
	if _, err := eng.Log().Append(ctx, expired); err != nil {
		t.Fatalf("append: %v", err)
	}

	// A message past the retention window.
	if _, err := eng.Enqueue(ctx, chalk.QueueNotifyEmail, []byte(`{}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	report, err := eng.RunMaintenance(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if report.EventsExpired != 1 {
		t.Errorf("EventsExpired = %d, want 1", report.EventsExpired)
	}
	if report.MessagesPurged != 1 {
		t.Errorf("MessagesPurged = %d, want 1", report.MessagesPurged)
	}

	if msgs := receiveAll(t, eng, chalk.QueueNotifyEmail); len(msgs) != 0 {
		t.Errorf("expected purged queue, got %d messages", len(msgs))
	}
}

// ──────────────────────────────────────────────────
// Consumers and lifecycle
// ──────────────────────────────────────────────────

func TestRegisterConsumer_UnknownSlotRejected(t *testing.T) {
	eng := newTestEngine(t, testConfig())
	err := eng.RegisterConsumer("no-such-consumer", func(_ context.Context, _ *queue.Message) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected error for unknown consumer slot")
	}
}

func TestEngine_EndToEndGradingFlow(t *testing.T) {
	eng := newTestEngine(t, testConfig())
	ctx := context.Background()

	var graded atomic.Int64
	err := eng.RegisterConsumer(engine.ConsumerGradingPython, func(_ context.Context, msg *queue.Message) error {
		var evt eventlog.Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			return err
		}
		if evt.Type == eventlog.TypeGradingRequest {
			graded.Add(1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("register consumer: %v", err)
	}

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop(ctx)

	if _, err := eng.AppendEvent(ctx, newGradingEvent("python")); err != nil {
		t.Fatalf("append: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && graded.Load() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if graded.Load() != 1 {
		t.Fatalf("graded = %d, want 1", graded.Load())
	}
}

func TestStart_RegistersSchedulesIdempotently(t *testing.T) {
	store := memory.New()
	cfg := testConfig()
	ctx := context.Background()

	eng1, err := engine.New(store, cfg, engine.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := eng1.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := eng1.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// A second engine on the same store re-registers without error and
	// without duplicating entries.
	eng2, err := engine.New(store, cfg, engine.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := eng2.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	defer eng2.Stop(ctx)

	entries, err := store.ListSchedules(ctx)
	if err != nil {
		t.Fatalf("list schedules: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 schedule entries, got %d", len(entries))
	}
}

// shutdownRecorder records the shutdown hook.
type shutdownRecorder struct {
	called atomic.Bool
}

func (s *shutdownRecorder) Name() string { return "shutdown-recorder" }

func (s *shutdownRecorder) OnShutdown(_ context.Context) error {
	s.called.Store(true)
	return nil
}

func TestStop_EmitsShutdown(t *testing.T) {
	rec := &shutdownRecorder{}
	eng := newTestEngine(t, testConfig(), engine.WithExtension(rec))
	ctx := context.Background()

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !rec.called.Load() {
		t.Error("shutdown hook not called")
	}
}
