package dlq

import (
	"time"

	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
)

// Entry represents a message that exhausted its delivery budget and was
// moved to the dead-letter queue for inspection or replay.
type Entry struct {
	ID              id.DLQID     `json:"id"`
	MessageID       id.MessageID `json:"message_id"`
	Queue           string       `json:"queue"`
	DeadLetterQueue string       `json:"dead_letter_queue"`
	Body            []byte       `json:"body"`
	ReceiveCount    int          `json:"receive_count"`
	Reason          string       `json:"reason"`
	FailedAt        time.Time    `json:"failed_at"`
	ReplayedAt      *time.Time   `json:"replayed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Clone returns a deep copy of the entry. Body bytes and the ReplayedAt
// pointer are copied so the caller cannot reach store-owned state.
func (e *Entry) Clone() *Entry {
	cp := *e
	if e.Body != nil {
		cp.Body = append([]byte(nil), e.Body...)
	}
	if e.ReplayedAt != nil {
		v := *e.ReplayedAt
		cp.ReplayedAt = &v
	}
	return &cp
}

// NewEntry builds a DLQ entry from a failed message, preserving its body
// and receive count verbatim. Called by stores during the dead-letter
// transfer and by anything pushing directly.
func NewEntry(msg *queue.Message, deadLetterQueue, reason string) *Entry {
	now := time.Now().UTC()
	return &Entry{
		ID:              id.NewDLQID(),
		MessageID:       msg.ID,
		Queue:           msg.Queue,
		DeadLetterQueue: deadLetterQueue,
		Body:            msg.Body,
		ReceiveCount:    msg.ReceiveCount,
		Reason:          reason,
		FailedAt:        now,
		CreatedAt:       now,
	}
}
