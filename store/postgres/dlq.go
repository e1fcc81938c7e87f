package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/id"
)

const dlqColumns = `id, message_id, queue, dead_letter_queue, body, receive_count, reason, failed_at, replayed_at, created_at`

// execer is satisfied by both *pgxpool.Pool and pgx.Tx, so the DLQ
// insert can run inside the receive transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertDLQ(ctx context.Context, db execer, entry *dlq.Entry) error {
	_, err := db.Exec(ctx, `
		INSERT INTO chalk_dlq (`+dlqColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID.String(), entry.MessageID.String(),
		entry.Queue, entry.DeadLetterQueue, entry.Body,
		entry.ReceiveCount, entry.Reason,
		entry.FailedAt, entry.ReplayedAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("chalk/postgres: push dlq: %w", err)
	}
	return nil
}

// PushDLQ adds an entry to the dead-letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	return insertDLQ(ctx, s.pool, entry)
}

// ListDLQ returns entries matching the given options, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM chalk_dlq`
	args := []any{}
	if opts.Queue != "" {
		query += ` WHERE queue = $1`
		args = append(args, opts.Queue)
	}
	query += ` ORDER BY failed_at DESC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chalk/postgres: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("chalk/postgres: list dlq scan: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chalk/postgres: list dlq rows: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+dlqColumns+` FROM chalk_dlq WHERE id = $1`,
		entryID.String(),
	)
	e, err := scanDLQ(row)
	if err != nil {
		if isNoRows(err) {
			return nil, chalk.ErrEntryNotFound
		}
		return nil, fmt.Errorf("chalk/postgres: get dlq: %w", err)
	}
	return e, nil
}

// MarkReplayedDLQ sets ReplayedAt on a DLQ entry.
func (s *Store) MarkReplayedDLQ(ctx context.Context, entryID id.DLQID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chalk_dlq SET replayed_at = NOW() WHERE id = $1`,
		entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("chalk/postgres: mark replayed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chalk.ErrEntryNotFound
	}
	return nil
}

// PurgeDLQ removes entries that failed at or before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chalk_dlq WHERE failed_at <= $1`, before,
	)
	if err != nil {
		return 0, fmt.Errorf("chalk/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the total number of entries in the dead-letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chalk_dlq`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("chalk/postgres: count dlq: %w", err)
	}
	return count, nil
}

// ── helpers ──

func scanDLQ(row rowScanner) (*dlq.Entry, error) {
	var (
		e            dlq.Entry
		entryID      string
		messageID    string
		replayedAt   *time.Time
	)
	err := row.Scan(
		&entryID, &messageID, &e.Queue, &e.DeadLetterQueue, &e.Body,
		&e.ReceiveCount, &e.Reason, &e.FailedAt, &replayedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ID, err = id.ParseDLQID(entryID)
	if err != nil {
		return nil, fmt.Errorf("chalk/postgres: parse dlq id: %w", err)
	}
	e.MessageID, _ = id.ParseMessageID(messageID) //nolint:errcheck // best-effort parse from trusted rows
	e.ReplayedAt = replayedAt
	return &e, nil
}
