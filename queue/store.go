package queue

import (
	"context"
	"time"
)

// ReceiveOpts carries the per-queue semantics a store needs to apply
// atomically when handing out messages.
type ReceiveOpts struct {
	// Queue is the queue to receive from.
	Queue string

	// Max is the maximum number of messages to return.
	Max int

	// Now is the receive instant; visibility and deadlines are computed
	// against it.
	Now time.Time

	// VisibilityTimeout sets the new deadline on returned messages.
	VisibilityTimeout time.Duration

	// MaxReceiveCount and DeadLetterQueue mirror the queue's Definition.
	MaxReceiveCount int
	DeadLetterQueue string
}

// Store persists queue messages. Implementations must apply the receive
// transition atomically per message: increment the receive count, and
// either set the new visibility deadline and return the message, or —
// when the incremented count exceeds MaxReceiveCount — move it verbatim
// (count preserved) to a dead-letter entry under DeadLetterQueue and not
// return it.
type Store interface {
	// SendMessage persists a new message.
	SendMessage(ctx context.Context, msg *Message) error

	// ReceiveMessages returns up to opts.Max visible messages from
	// opts.Queue, oldest first, applying the receive transition above.
	// The second return lists the ids of dead-letter entries created
	// by transfers during this receive, so callers can observe them.
	ReceiveMessages(ctx context.Context, opts ReceiveOpts) ([]*Message, []string, error)

	// AckMessage permanently removes a message. A missing message is
	// chalk.ErrMessageNotFound.
	AckMessage(ctx context.Context, queueName string, msgID string) error

	// PurgeMessages removes messages on the queue enqueued at or before
	// cutoff and returns the count.
	PurgeMessages(ctx context.Context, queueName string, cutoff time.Time) (int, error)
}
