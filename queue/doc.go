// Package queue implements named work queues with visibility timeouts,
// receive counting, dead-letter transfer, and retention.
//
// A queue holds opaque message bodies. Receiving a message hides it from
// other receivers for the queue's visibility timeout and increments its
// receive count; acking removes it permanently. A message that is received
// but never acked becomes visible again when its deadline passes and is
// redelivered. Once its receive count would exceed the queue's
// MaxReceiveCount it is moved to the paired dead-letter queue instead of
// being delivered again.
//
// # Per-Queue Semantics
//
// Use [Definition] to declare a queue's storage behaviour:
//
//	queue.Definition{
//	    Name:              "lms-grading-python-queue",
//	    VisibilityTimeout: 910 * time.Second,
//	    Retention:         4 * time.Hour,
//	    MaxReceiveCount:   2,
//	    DeadLetterQueue:   "lms-grading-python-dlq",
//	}
//
// # Manager
//
// [Manager] enforces per-queue concurrency ceilings and rate limits at
// dequeue time. It uses a token-bucket rate limiter
// (golang.org/x/time/rate) and an active-count gate:
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(queueName) {
//	    defer m.Release(queueName)
//	    // process the message
//	}
//
// Queues without a [Limits] entry have no ceiling beyond the pool size.
package queue
