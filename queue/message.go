package queue

import (
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/id"
)

// Message is a unit of work on a named queue. The body is opaque to the
// queue layer; producers and consumers agree on its encoding.
type Message struct {
	chalk.Entity

	// ID is the message identifier (msg_ prefix).
	ID id.MessageID `json:"id"`

	// Queue is the name of the queue the message lives on.
	Queue string `json:"queue"`

	// Body is the opaque message payload.
	Body []byte `json:"body"`

	// ReceiveCount is how many times the message has been handed to a
	// receiver. It is incremented on every receive and carried over,
	// not reset, when the message is moved to a dead-letter queue.
	ReceiveCount int `json:"receive_count"`

	// VisibilityDeadline is the instant until which the message is
	// hidden from receivers. Zero means the message has never been
	// received.
	VisibilityDeadline time.Time `json:"visibility_deadline,omitempty"`

	// EnqueuedAt is when the message was first sent. Retention is
	// measured from this instant.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewMessage creates a message for the given queue with a fresh id.
func NewMessage(queueName string, body []byte) *Message {
	now := time.Now().UTC()
	return &Message{
		Entity:     chalk.NewEntity(),
		ID:         id.NewMessageID(),
		Queue:      queueName,
		Body:       body,
		EnqueuedAt: now,
	}
}

// Visible reports whether the message may be handed to a receiver at now.
func (m *Message) Visible(now time.Time) bool {
	return m.VisibilityDeadline.IsZero() || !now.Before(m.VisibilityDeadline)
}

// Expired reports whether the message has outlived the given retention
// window, measured from EnqueuedAt.
func (m *Message) Expired(now time.Time, retention time.Duration) bool {
	if retention <= 0 {
		return false
	}
	return now.Sub(m.EnqueuedAt) > retention
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Body != nil {
		cp.Body = make([]byte, len(m.Body))
		copy(cp.Body, m.Body)
	}
	return &cp
}
