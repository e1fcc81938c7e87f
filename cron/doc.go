// Package cron fires scheduled messages onto work queues.
//
// Schedule entries are stored in the backing store and evaluated on a
// tick loop. Every worker runs a scheduler; a per-entry store lock
// guarantees each due entry fires at most once per tick across workers.
//
// # Entry
//
// An [Entry] represents a recurring schedule:
//   - Schedule: standard 5-field cron expression (e.g., "0 6-20 * * MON-FRI")
//   - Queue: the queue that receives one synthetic message per fire
//   - Body: static message body sent on every fire
//   - Consumer: the consumer expected to process the message (informational)
//   - Enabled: whether the entry fires
//   - LockedBy / LockedUntil: per-entry lock fields (managed internally)
//
// # No Backfill
//
// NextRunAt is always computed from the actual fire time. Ticks missed
// while no worker was running are skipped, never replayed: after a
// restart the scheduler fires at the next future trigger only.
//
// # Scheduler
//
// The [Scheduler] evaluates due entries on every tick, acquires the
// entry lock, sends the synthetic message, and updates LastRunAt and
// NextRunAt. The [ext.ScheduleFired] extension hook fires after each
// send.
package cron
