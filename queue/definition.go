package queue

import "time"

// Definition declares a queue's storage behaviour. Every queue the
// Service operates on must be declared up front; sends to undeclared
// queues fail with chalk.ErrUnknownQueue.
type Definition struct {
	// Name is the queue identifier.
	Name string

	// VisibilityTimeout is how long a received message stays hidden
	// before it becomes eligible for redelivery.
	VisibilityTimeout time.Duration

	// Retention is how long an unacked message is kept, measured from
	// enqueue. Zero disables retention purging for this queue.
	Retention time.Duration

	// MaxReceiveCount is the delivery ceiling. A message whose receive
	// count would exceed this is transferred to DeadLetterQueue instead
	// of being delivered. Zero disables dead-lettering.
	MaxReceiveCount int

	// DeadLetterQueue names the paired dead-letter destination. Ignored
	// when MaxReceiveCount is zero.
	DeadLetterQueue string
}
