package cron

import (
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/id"
)

// Entry represents a stored recurring schedule.
type Entry struct {
	chalk.Entity

	ID          id.ScheduleID `json:"id"`
	Name        string        `json:"name"`
	Schedule    string        `json:"schedule"`
	Queue       string        `json:"queue"`
	Body        []byte        `json:"body,omitempty"`
	Consumer    string        `json:"consumer,omitempty"`
	LastRunAt   *time.Time    `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time    `json:"next_run_at,omitempty"`
	LockedBy    string        `json:"locked_by,omitempty"`
	LockedUntil *time.Time    `json:"locked_until,omitempty"`
	Enabled     bool          `json:"enabled"`
}

// NewEntry builds an enabled Entry from a definition, validating the
// schedule expression and computing the first NextRunAt from now. The
// first fire is the next future trigger; past triggers are never
// backfilled.
func NewEntry(def Definition, now time.Time) (*Entry, error) {
	sched, err := ParseSchedule(def.Schedule)
	if err != nil {
		return nil, err
	}
	next := sched.Next(now)
	return &Entry{
		Entity:    chalk.NewEntity(),
		ID:        id.NewScheduleID(),
		Name:      def.Name,
		Schedule:  def.Schedule,
		Queue:     def.Queue,
		Body:      def.Body,
		Consumer:  def.Consumer,
		NextRunAt: &next,
		Enabled:   true,
	}, nil
}

// Definition declares a schedule to register at startup.
type Definition struct {
	// Name is the unique identifier for this schedule.
	Name string

	// Schedule is a cron expression (e.g., "0 4 * * MON,WED").
	Schedule string

	// Queue receives one synthetic message per fire.
	Queue string

	// Body is the static message body sent on every fire.
	Body []byte

	// Consumer names the consumer expected to process the message.
	Consumer string
}
