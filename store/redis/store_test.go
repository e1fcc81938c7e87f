package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/eventlog"
	"github.com/xraph/chalk/queue"
)

func TestKeyConstruction(t *testing.T) {
	member := eventMember("evt_01abc", "2026-01-05T10:00:00Z")
	if member != "evt_01abc:2026-01-05T10:00:00Z" {
		t.Fatalf("eventMember = %q", member)
	}
	if got := eventKey(member); got != "chalk:event:evt_01abc:2026-01-05T10:00:00Z" {
		t.Fatalf("eventKey = %q", got)
	}
	if got := eventIndexKey("student_id", "s-42"); got != "chalk:event_ix:student_id:s-42" {
		t.Fatalf("eventIndexKey = %q", got)
	}
	if got := queueKey("lms-grading-python-queue"); got != "chalk:queue:lms-grading-python-queue" {
		t.Fatalf("queueKey = %q", got)
	}
	if got := msgKey("lms-notify-email-queue", "msg_01abc"); got != "chalk:msg:lms-notify-email-queue:msg_01abc" {
		t.Fatalf("msgKey = %q", got)
	}
	if got := scheduleLockKey("sched_01abc"); got != "chalk:schedule_lock:sched_01abc" {
		t.Fatalf("scheduleLockKey = %q", got)
	}
}

func TestDeadLetterTransferQueuesOneTransaction(t *testing.T) {
	// Commands only queue client-side here; no server is contacted.
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	defer client.Close()
	pipe := client.TxPipeline()

	msg := queue.NewMessage("q", []byte("poison"))
	msg.ReceiveCount = 3
	entry := dlq.NewEntry(msg, "q-dlq", "max receive count exceeded")

	queueDeadLetterTransfer(context.Background(), pipe, entry,
		queueKey("q"), msgKey("q", msg.ID.String()))

	// DLQ hash write, DLQ index add, message delete, queue index
	// removal — all four must ride the same MULTI/EXEC.
	if pipe.Len() != 4 {
		t.Fatalf("pipeline holds %d commands, want 4", pipe.Len())
	}
}

// stringify converts an HSET field map into the string form HGetAll
// returns.
func stringify(t *testing.T, m map[string]interface{}) map[string]string {
	t.Helper()
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			t.Fatalf("field %q is %T, want string", k, v)
		}
		out[k] = s
	}
	return out
}

func TestEventModelRoundTrip(t *testing.T) {
	exp := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	evt := &eventlog.Event{
		ID:        "evt_test",
		Timestamp: eventlog.NewTimestamp(time.Date(2026, 1, 5, 10, 0, 0, 123456789, time.UTC)),
		Type:      eventlog.TypeGradingRequest,
		SourceID:  "teacher-1",
		StudentID: "student-9",
		Payload:   []byte(`{"language":"python"}`),
		ExpireAt:  eventlog.ExpireAt(exp),
	}

	got, err := mapToEvent(stringify(t, eventToMap(evt)))
	if err != nil {
		t.Fatalf("mapToEvent: %v", err)
	}
	if !got.ContentEquals(evt) {
		t.Fatalf("round trip changed content: %+v != %+v", got, evt)
	}
	if got.ExpireAt == nil || *got.ExpireAt != exp.Unix() {
		t.Fatalf("expire_at lost: %v", got.ExpireAt)
	}
}

func TestMessageModelRoundTrip(t *testing.T) {
	msg := queue.NewMessage("lms-grading-jupyter-queue", []byte(`{"id":"evt_1"}`))
	msg.ReceiveCount = 2
	msg.VisibilityDeadline = time.Now().UTC().Add(910 * time.Second)

	got, err := mapToMsg(stringify(t, msgToMap(msg)))
	if err != nil {
		t.Fatalf("mapToMsg: %v", err)
	}
	if got.ID != msg.ID || got.Queue != msg.Queue {
		t.Fatalf("identity changed: %v %q", got.ID, got.Queue)
	}
	if got.ReceiveCount != 2 {
		t.Fatalf("ReceiveCount = %d, want 2", got.ReceiveCount)
	}
	if !got.VisibilityDeadline.Equal(msg.VisibilityDeadline) {
		t.Fatalf("VisibilityDeadline = %v, want %v", got.VisibilityDeadline, msg.VisibilityDeadline)
	}
	if string(got.Body) != string(msg.Body) {
		t.Fatalf("Body = %q", got.Body)
	}

	// A never-received message must come back with a zero deadline so
	// Visible() still reports true.
	fresh := queue.NewMessage("lms-notify-matrix-queue", nil)
	got, err = mapToMsg(stringify(t, msgToMap(fresh)))
	if err != nil {
		t.Fatalf("mapToMsg fresh: %v", err)
	}
	if !got.VisibilityDeadline.IsZero() {
		t.Fatalf("fresh message has deadline %v", got.VisibilityDeadline)
	}
	if !got.Visible(time.Now()) {
		t.Fatal("fresh message not visible")
	}
}

func TestTimestampScoreOrdersChronologically(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	var prev float64
	for i := 0; i < 5; i++ {
		ts := eventlog.NewTimestamp(base.Add(time.Duration(i) * time.Second))
		score := timestampScore(ts)
		if i > 0 && score <= prev {
			t.Fatalf("score %v not increasing after %v", score, prev)
		}
		prev = score
	}
}

func TestRangeBoundWidensTruncation(t *testing.T) {
	if got := rangeBound("", "-inf", -1); got != "-inf" {
		t.Fatalf("empty bound = %q", got)
	}

	// A sub-millisecond timestamp truncates down; the low bound must be
	// widened so the exact string filter sees the candidate at all.
	ts := eventlog.NewTimestamp(time.Date(2026, 1, 5, 10, 0, 0, 400000, time.UTC))
	low := rangeBound(ts, "-inf", -1)
	high := rangeBound(ts, "+inf", +1)
	ms := timestampScore(ts)
	if low != fmt.Sprintf("%d", int64(ms)-1) {
		t.Fatalf("low bound = %q", low)
	}
	if high != fmt.Sprintf("%d", int64(ms)+1) {
		t.Fatalf("high bound = %q", high)
	}
}
