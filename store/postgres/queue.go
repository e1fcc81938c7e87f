package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
)

// SendMessage persists a new message on its queue.
func (s *Store) SendMessage(ctx context.Context, msg *queue.Message) error {
	var deadline *time.Time
	if !msg.VisibilityDeadline.IsZero() {
		d := msg.VisibilityDeadline
		deadline = &d
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO chalk_messages (
			id, queue, body, receive_count, visibility_deadline,
			enqueued_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID.String(), msg.Queue, msg.Body, msg.ReceiveCount, deadline,
		msg.EnqueuedAt, msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("chalk/postgres: send message: %w", err)
	}
	return nil
}

// ReceiveMessages hands out up to opts.Max visible messages, oldest
// first. The whole transition runs in one transaction; FOR UPDATE SKIP
// LOCKED keeps concurrent receivers off each other's rows.
func (s *Store) ReceiveMessages(ctx context.Context, opts queue.ReceiveOpts) ([]*queue.Message, []string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("chalk/postgres: receive begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	limit := opts.Max
	if limit <= 0 {
		limit = 100
	}

	rows, err := tx.Query(ctx, `
		SELECT id, body, receive_count, enqueued_at, created_at
		FROM chalk_messages
		WHERE queue = $1
		  AND (visibility_deadline IS NULL OR visibility_deadline <= $2)
		ORDER BY enqueued_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		opts.Queue, opts.Now, limit,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("chalk/postgres: receive select: %w", err)
	}

	var claimed []*queue.Message
	for rows.Next() {
		var (
			msgID     string
			body      []byte
			count     int
			enqueued  time.Time
			createdAt time.Time
		)
		if scanErr := rows.Scan(&msgID, &body, &count, &enqueued, &createdAt); scanErr != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("chalk/postgres: receive scan: %w", scanErr)
		}
		mID, parseErr := id.ParseMessageID(msgID)
		if parseErr != nil {
			continue
		}
		claimed = append(claimed, &queue.Message{
			Entity:       chalk.Entity{CreatedAt: createdAt, UpdatedAt: opts.Now},
			ID:           mID,
			Queue:        opts.Queue,
			Body:         body,
			ReceiveCount: count,
			EnqueuedAt:   enqueued,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("chalk/postgres: receive rows: %w", err)
	}

	deadline := opts.Now.Add(opts.VisibilityTimeout)

	var result []*queue.Message
	var deadLettered []string
	for _, msg := range claimed {
		msg.ReceiveCount++

		if opts.MaxReceiveCount > 0 && msg.ReceiveCount > opts.MaxReceiveCount {
			// Delivery budget exhausted: transfer verbatim, count intact.
			entry := dlq.NewEntry(msg, opts.DeadLetterQueue, "max receive count exceeded")
			if insErr := insertDLQ(ctx, tx, entry); insErr != nil {
				return nil, nil, insErr
			}
			if _, delErr := tx.Exec(ctx,
				`DELETE FROM chalk_messages WHERE id = $1`, msg.ID.String(),
			); delErr != nil {
				return nil, nil, fmt.Errorf("chalk/postgres: receive dead-letter: %w", delErr)
			}
			deadLettered = append(deadLettered, entry.ID.String())
			continue
		}

		if _, updErr := tx.Exec(ctx, `
			UPDATE chalk_messages
			SET receive_count = $2, visibility_deadline = $3, updated_at = $4
			WHERE id = $1`,
			msg.ID.String(), msg.ReceiveCount, deadline, opts.Now,
		); updErr != nil {
			return nil, nil, fmt.Errorf("chalk/postgres: receive update: %w", updErr)
		}
		msg.VisibilityDeadline = deadline
		result = append(result, msg)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("chalk/postgres: receive commit: %w", err)
	}
	return result, deadLettered, nil
}

// AckMessage permanently removes a message from its queue.
func (s *Store) AckMessage(ctx context.Context, queueName, msgID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chalk_messages WHERE queue = $1 AND id = $2`,
		queueName, msgID,
	)
	if err != nil {
		return fmt.Errorf("chalk/postgres: ack message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chalk.ErrMessageNotFound
	}
	return nil
}

// PurgeMessages removes messages on the queue enqueued at or before
// cutoff and returns the count.
func (s *Store) PurgeMessages(ctx context.Context, queueName string, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chalk_messages WHERE queue = $1 AND enqueued_at <= $2`,
		queueName, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("chalk/postgres: purge messages: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
