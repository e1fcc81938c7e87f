// Package chalk is the event-sourced messaging core of a learning-management
// backend. Every domain occurrence — a grading request, a completed review, a
// content access, a progress update — is appended to a durable event log and
// selectively fanned out to interested consumers through filtered topic
// subscriptions and point-to-point work queues, with at-least-once delivery,
// dead-letter isolation, and scheduled re-drive.
//
// Chalk is designed as a library, not a service. Import it, configure a
// store, register consumers as ordinary Go functions, and start the engine.
//
// # Quick Start
//
//	cfg := chalk.ConfigFromEnv()
//	eng, err := engine.New(memory.New(), cfg)
//	if err != nil { ... }
//	eng.RegisterConsumer("lms-grader-python", gradePython)
//	if err := eng.Start(ctx); err != nil { ... }
//
// # Architecture
//
// Chalk follows a composable store pattern where each subsystem (eventlog,
// queue, dlq, cron) defines its own store interface. A single backend
// implements all of them; store/memory, store/postgres, and store/redis
// are provided.
//
// The engine package wires the subsystems into the fan-out topology:
// producers append to the event log, the topic bus evaluates each
// subscription's event-type allow-list, matching subscriptions run
// asynchronously, and derived work lands on visibility-timeout queues that
// bounded-concurrency worker pools drain. Messages that exhaust their
// receive budget move to a paired dead-letter queue for manual replay.
//
// Queue messages, dead-letter entries, and schedule entries use TypeID —
// type-prefixed, K-sortable, UUIDv7-based identifiers. Event ids supplied by
// producers are kept verbatim; absent ids are minted.
package chalk
