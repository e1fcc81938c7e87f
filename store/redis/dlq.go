package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/id"
)

// PushDLQ adds an entry to the dead-letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	eID := entry.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, dlqKey(eID), dlqToMap(entry))
	pipe.ZAdd(ctx, dlqFailedKey, goredis.Z{
		Score:  float64(entry.FailedAt.UnixMilli()),
		Member: eID,
	})
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("chalk/redis: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns entries matching the given options, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	ids, err := s.client.ZRevRange(ctx, dlqFailedKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("chalk/redis: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, dlqKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		e, convErr := mapToDLQ(vals)
		if convErr != nil {
			continue
		}
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		entries = append(entries, e)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	vals, err := s.client.HGetAll(ctx, dlqKey(entryID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("chalk/redis: get dlq: %w", err)
	}
	if len(vals) == 0 {
		return nil, chalk.ErrEntryNotFound
	}
	return mapToDLQ(vals)
}

// MarkReplayedDLQ sets ReplayedAt on a DLQ entry.
func (s *Store) MarkReplayedDLQ(ctx context.Context, entryID id.DLQID) error {
	key := dlqKey(entryID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("chalk/redis: mark replayed exists: %w", err)
	}
	if exists == 0 {
		return chalk.ErrEntryNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"replayed_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("chalk/redis: mark replayed: %w", err)
	}
	return nil
}

// PurgeDLQ removes entries that failed at or before the given time and
// returns the number removed.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.ZRange(ctx, dlqFailedKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("chalk/redis: purge dlq zrange: %w", err)
	}

	var purged int64
	for _, eID := range ids {
		key := dlqKey(eID)
		failedAtStr, getErr := s.client.HGet(ctx, key, "failed_at").Result()
		if getErr != nil {
			continue
		}
		failedAt, _ := time.Parse(time.RFC3339Nano, failedAtStr) //nolint:errcheck // best-effort parse from trusted Redis data
		if failedAt.After(before) {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, dlqFailedKey, eID)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return purged, fmt.Errorf("chalk/redis: purge dlq del: %w", pErr)
		}
		purged++
	}
	return purged, nil
}

// CountDLQ returns the total number of entries in the dead-letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, dlqFailedKey).Result()
	if err != nil {
		return 0, fmt.Errorf("chalk/redis: count dlq: %w", err)
	}
	return count, nil
}

// ── helpers ──

func dlqToMap(e *dlq.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":                e.ID.String(),
		"message_id":        e.MessageID.String(),
		"queue":             e.Queue,
		"dead_letter_queue": e.DeadLetterQueue,
		"body":              string(e.Body),
		"receive_count":     strconv.Itoa(e.ReceiveCount),
		"reason":            e.Reason,
		"failed_at":         e.FailedAt.Format(time.RFC3339Nano),
		"created_at":        e.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.ReplayedAt != nil {
		m["replayed_at"] = e.ReplayedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToDLQ(m map[string]string) (*dlq.Entry, error) {
	eID, err := id.ParseDLQID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("chalk/redis: parse dlq id: %w", err)
	}
	msgID, _ := id.ParseMessageID(m["message_id"])                //nolint:errcheck // best-effort parse from trusted Redis data
	receiveCount, _ := strconv.Atoi(m["receive_count"])           //nolint:errcheck // best-effort parse from trusted Redis data
	failedAt, _ := time.Parse(time.RFC3339Nano, m["failed_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	e := &dlq.Entry{
		ID:              eID,
		MessageID:       msgID,
		Queue:           m["queue"],
		DeadLetterQueue: m["dead_letter_queue"],
		Body:            []byte(m["body"]),
		ReceiveCount:    receiveCount,
		Reason:          m["reason"],
		FailedAt:        failedAt,
		CreatedAt:       createdAt,
	}
	if v := m["replayed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.ReplayedAt = &t
	}
	return e, nil
}
