package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/eventlog"
)

const eventColumns = `id, ts, event_type, source_id, student_id, cohort_id, activity_id, payload, expire_at`

// AppendEvent persists an event record. An identical re-append is a
// silent no-op; a conflicting one fails with chalk.ErrEventConflict.
func (s *Store) AppendEvent(ctx context.Context, evt *eventlog.Event) error {
	var expireAt *int64
	if evt.ExpireAt != nil {
		v := *evt.ExpireAt
		expireAt = &v
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO chalk_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id, ts) DO NOTHING`,
		evt.ID, evt.Timestamp, evt.Type,
		evt.SourceID, evt.StudentID, evt.CohortID, evt.ActivityID,
		[]byte(evt.Payload), expireAt,
	)
	if err != nil {
		return fmt.Errorf("chalk/postgres: append event: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Key taken: idempotent re-append or conflict.
	row := s.pool.QueryRow(ctx, `
		SELECT `+eventColumns+` FROM chalk_events WHERE id = $1 AND ts = $2`,
		evt.ID, evt.Timestamp,
	)
	existing, err := scanEvent(row)
	if err != nil {
		return fmt.Errorf("chalk/postgres: append event reread: %w", err)
	}
	if existing.ContentEquals(evt) {
		return nil
	}
	return chalk.ErrEventConflict
}

// QueryEvents returns the events under key in the given index whose
// timestamps fall inside tr, ordered by ascending timestamp.
func (s *Store) QueryEvents(ctx context.Context, ix eventlog.Index, key string, tr eventlog.TimeRange) ([]*eventlog.Event, error) {
	col, ok := indexColumn(ix)
	if !ok {
		return nil, chalk.ErrUnknownIndex
	}
	if key == "" {
		// Events with an empty attribute are not indexed.
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM chalk_events
		WHERE `+col+` = $1
		  AND ($2 = '' OR ts >= $2)
		  AND ($3 = '' OR ts <= $3)
		ORDER BY ts ASC`,
		key, tr.From, tr.To,
	)
	if err != nil {
		return nil, fmt.Errorf("chalk/postgres: query events: %w", err)
	}
	defer rows.Close()

	var events []*eventlog.Event
	for rows.Next() {
		evt, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("chalk/postgres: query events scan: %w", scanErr)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chalk/postgres: query events rows: %w", err)
	}
	return events, nil
}

// ExpireEvents removes every record whose expire_at is at or before now.
func (s *Store) ExpireEvents(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM chalk_events
		WHERE expire_at IS NOT NULL AND expire_at <= $1`,
		now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("chalk/postgres: expire events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ── helpers ──

// indexColumn maps an index name to its storage column. The explicit
// switch doubles as the whitelist keeping index names out of raw SQL.
func indexColumn(ix eventlog.Index) (string, bool) {
	switch ix {
	case eventlog.BySourceID:
		return "source_id", true
	case eventlog.ByStudentID:
		return "student_id", true
	case eventlog.ByCohortID:
		return "cohort_id", true
	case eventlog.ByActivityID:
		return "activity_id", true
	case eventlog.ByEventType:
		return "event_type", true
	}
	return "", false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*eventlog.Event, error) {
	var (
		evt      eventlog.Event
		payload  []byte
		expireAt *int64
	)
	err := row.Scan(
		&evt.ID, &evt.Timestamp, &evt.Type,
		&evt.SourceID, &evt.StudentID, &evt.CohortID, &evt.ActivityID,
		&payload, &expireAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		evt.Payload = json.RawMessage(payload)
	}
	evt.ExpireAt = expireAt
	return &evt, nil
}
