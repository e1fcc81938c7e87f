package chalk

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("chalk: no store configured")
	ErrStoreClosed = errors.New("chalk: store closed")

	// Transport errors. Wrapped around backend failures; callers retry
	// with backoff, they never surface to consumers.
	ErrTransport = errors.New("chalk: transport unavailable")

	// Event log errors. Surfaced synchronously to the producer and
	// never retried.
	ErrInvalidEvent  = errors.New("chalk: invalid event")
	ErrEventConflict = errors.New("chalk: event id/timestamp already exists with different content")
	ErrUnknownIndex  = errors.New("chalk: unknown event index")
	ErrEventNotFound = errors.New("chalk: event not found")

	// Queue errors.
	ErrUnknownQueue    = errors.New("chalk: unknown queue")
	ErrMessageNotFound = errors.New("chalk: message not found")

	// Bus errors.
	ErrDuplicateSubscription = errors.New("chalk: duplicate subscription")

	// Consumer errors.
	ErrDuplicateConsumer = errors.New("chalk: duplicate consumer")
	ErrInvalidConsumer   = errors.New("chalk: invalid consumer")

	// Dead-letter errors.
	ErrEntryNotFound = errors.New("chalk: dead-letter entry not found")

	// Schedule errors.
	ErrScheduleNotFound  = errors.New("chalk: schedule entry not found")
	ErrDuplicateSchedule = errors.New("chalk: duplicate schedule entry")
)
