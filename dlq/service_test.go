package dlq_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/chalk"
	chalkDLQ "github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
	"github.com/xraph/chalk/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServices() (*chalkDLQ.Service, *queue.Service, *memory.Store) {
	s := memory.New()
	queues := queue.NewService(s, discardLogger(), queue.Definition{
		Name:              "lms-grading-python-queue",
		VisibilityTimeout: 910 * time.Second,
		MaxReceiveCount:   2,
		DeadLetterQueue:   "lms-grading-python-dlq",
	})
	return chalkDLQ.NewService(s, queues, discardLogger()), queues, s
}

func failedMessage() *queue.Message {
	msg := queue.NewMessage("lms-grading-python-queue", []byte(`{"activity":"a1","language":"python"}`))
	msg.ReceiveCount = 3
	return msg
}

func TestService_Push_BuildsEntryFromMessage(t *testing.T) {
	svc, _, _ := newTestServices()
	ctx := context.Background()

	msg := failedMessage()
	if err := svc.Push(ctx, msg, "lms-grading-python-dlq", "max receive count exceeded"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := svc.List(ctx, chalkDLQ.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.MessageID != msg.ID {
		t.Errorf("MessageID = %v, want %v", entry.MessageID, msg.ID)
	}
	if entry.Queue != "lms-grading-python-queue" {
		t.Errorf("Queue = %q", entry.Queue)
	}
	if string(entry.Body) != `{"activity":"a1","language":"python"}` {
		t.Errorf("Body = %q", entry.Body)
	}
	if entry.ReceiveCount != 3 {
		t.Errorf("ReceiveCount = %d, want 3", entry.ReceiveCount)
	}
	if entry.Reason != "max receive count exceeded" {
		t.Errorf("Reason = %q", entry.Reason)
	}
	if entry.FailedAt.IsZero() {
		t.Error("expected FailedAt to be set")
	}
}

func TestService_Count(t *testing.T) {
	svc, _, _ := newTestServices()
	ctx := context.Background()

	for range 3 {
		if err := svc.Push(ctx, failedMessage(), "lms-grading-python-dlq", "fail"); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	count, err := svc.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}
}

func TestService_Replay_ReenqueuesFreshMessage(t *testing.T) {
	svc, queues, _ := newTestServices()
	ctx := context.Background()

	original := failedMessage()
	if err := svc.Push(ctx, original, "lms-grading-python-dlq", "fail"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := svc.List(ctx, chalkDLQ.ListOpts{Limit: 1})
	if err != nil || len(entries) != 1 {
		t.Fatalf("List: entries=%d err=%v", len(entries), err)
	}

	replayed, err := svc.Replay(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if replayed.ID == original.ID {
		t.Error("replayed message should have a new ID")
	}
	if replayed.ReceiveCount != 0 {
		t.Errorf("ReceiveCount = %d, want 0", replayed.ReceiveCount)
	}
	if string(replayed.Body) != string(original.Body) {
		t.Errorf("Body = %q, want original body", replayed.Body)
	}

	// The fresh message is receivable from the origin queue.
	got, err := queues.Receive(ctx, "lms-grading-python-queue", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("Receive: msgs=%d err=%v", len(got), err)
	}
	if got[0].ID != replayed.ID {
		t.Errorf("received ID = %v, want %v", got[0].ID, replayed.ID)
	}

	// The entry is marked replayed.
	entry, err := svc.Get(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.ReplayedAt == nil {
		t.Error("expected ReplayedAt to be set after replay")
	}
}

func TestService_Replay_NotFoundReturnsError(t *testing.T) {
	svc, _, _ := newTestServices()

	_, err := svc.Replay(context.Background(), id.NewDLQID())
	if !errors.Is(err, chalk.ErrEntryNotFound) {
		t.Fatalf("err = %v, want ErrEntryNotFound", err)
	}
}

func TestService_Purge_RespectsCutoff(t *testing.T) {
	svc, _, store := newTestServices()
	ctx := context.Background()

	old := chalkDLQ.NewEntry(failedMessage(), "lms-grading-python-dlq", "fail")
	old.FailedAt = old.FailedAt.Add(-15 * 24 * time.Hour)
	recent := chalkDLQ.NewEntry(failedMessage(), "lms-grading-python-dlq", "fail")

	if err := store.PushDLQ(ctx, old); err != nil {
		t.Fatalf("PushDLQ: %v", err)
	}
	if err := store.PushDLQ(ctx, recent); err != nil {
		t.Fatalf("PushDLQ: %v", err)
	}

	// Fourteen-day window: only the old entry goes.
	n, err := svc.Purge(ctx, time.Now().UTC().Add(-14*24*time.Hour))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
}
