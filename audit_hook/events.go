package audithook

// Audit actions. Each constant corresponds to one ext lifecycle hook and
// becomes the Action field of the audit record.
const (
	ActionEventAppended       = "event.appended"
	ActionEventPublished      = "event.published"
	ActionMessageEnqueued     = "message.enqueued"
	ActionMessageCompleted    = "message.completed"
	ActionMessageFailed       = "message.failed"
	ActionMessageDeadLettered = "message.dead_lettered"
	ActionScheduleFired       = "schedule.fired"
)

// Audit categories group related actions.
const (
	CategoryEvent    = "chalk.event"
	CategoryMessage  = "chalk.message"
	CategorySchedule = "chalk.schedule"
)

// Resource types used as the Resource field in audit records.
const (
	ResourceEvent    = "event"
	ResourceMessage  = "message"
	ResourceDLQEntry = "dlq_entry"
	ResourceSchedule = "schedule_entry"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionEventAppended,
		ActionEventPublished,
		ActionMessageEnqueued,
		ActionMessageCompleted,
		ActionMessageFailed,
		ActionMessageDeadLettered,
		ActionScheduleFired,
	}
}
