// Package dlq provides the dead-letter queue for messages that have
// exhausted their delivery budget. It supports inspection, replay, and
// purging.
//
// When a message's receive count would exceed its queue's
// MaxReceiveCount, the store moves it into the DLQ during receive. The
// original body and receive count are preserved for debugging.
//
// # Entry
//
// An [Entry] captures:
//   - MessageID / Queue: original message identity and origin queue
//   - Body: the verbatim message body at time of failure
//   - ReceiveCount: the exhausted delivery budget (not reset)
//   - Reason: why the message was dead-lettered
//   - FailedAt: when the transfer occurred
//   - ReplayedAt: set when the entry is replayed (nil if not yet replayed)
//
// # Replay
//
// Replaying an entry re-enqueues the original body on the origin queue
// as a fresh message with a zero receive count, then sets ReplayedAt on
// the entry. There is no automatic redrive; replay is always an explicit
// operator action.
//
//	svc := dlq.NewService(store, queues, logger)
//	msg, err := svc.Replay(ctx, entryID)
package dlq
