package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/dlq"
	"github.com/xraph/chalk/id"
	"github.com/xraph/chalk/queue"
)

// claimScript applies the receive transition for one message if its
// queue score is still what the caller observed. Losing the race returns
// 0; winning returns the incremented receive count.
//
// KEYS[1] = queue sorted set, KEYS[2] = message hash
// ARGV[1] = message id, ARGV[2] = expected score,
// ARGV[3] = new deadline score, ARGV[4] = deadline, ARGV[5] = now
var claimScript = goredis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) ~= tonumber(ARGV[2]) then
	return 0
end
if redis.call('EXISTS', KEYS[2]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
local n = redis.call('HINCRBY', KEYS[2], 'receive_count', 1)
redis.call('HSET', KEYS[2], 'visibility_deadline', ARGV[4], 'updated_at', ARGV[5])
return n
`)

// SendMessage stores the message as a Hash and adds it to the queue's
// Sorted Set with a zero score, meaning immediately visible.
func (s *Store) SendMessage(ctx context.Context, msg *queue.Message) error {
	mID := msg.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, msgKey(msg.Queue, mID), msgToMap(msg))
	pipe.ZAdd(ctx, queueKey(msg.Queue), goredis.Z{Score: 0, Member: mID})
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("chalk/redis: send message: %w", err)
	}
	return nil
}

// ReceiveMessages hands out up to opts.Max visible messages, oldest
// first. Each claim is atomic: the receive count increments and either a
// fresh visibility deadline is set, or the message moves to the
// dead-letter queue when the count exceeds opts.MaxReceiveCount.
func (s *Store) ReceiveMessages(ctx context.Context, opts queue.ReceiveOpts) ([]*queue.Message, []string, error) {
	qk := queueKey(opts.Queue)
	nowScore := strconv.FormatInt(opts.Now.UnixMilli(), 10)

	visible, err := s.client.ZRangeByScoreWithScores(ctx, qk, &goredis.ZRangeBy{
		Min: "-inf",
		Max: nowScore,
	}).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("chalk/redis: receive zrange: %w", err)
	}
	if len(visible) == 0 {
		return nil, nil, nil
	}

	scores := make(map[string]float64, len(visible))
	candidates := make([]*queue.Message, 0, len(visible))
	for _, z := range visible {
		mID, ok := z.Member.(string)
		if !ok {
			continue
		}
		vals, getErr := s.client.HGetAll(ctx, msgKey(opts.Queue, mID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // acked or purged under us
		}
		msg, convErr := mapToMsg(vals)
		if convErr != nil {
			continue
		}
		if !msg.Visible(opts.Now) {
			continue // score truncation put it a hair early
		}
		scores[mID] = z.Score
		candidates = append(candidates, msg)
	}
	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].EnqueuedAt.Before(candidates[k].EnqueuedAt)
	})

	deadline := opts.Now.Add(opts.VisibilityTimeout)
	deadlineScore := strconv.FormatInt(deadline.UnixMilli(), 10)

	var result []*queue.Message
	var deadLettered []string
	for _, msg := range candidates {
		if opts.Max > 0 && len(result) >= opts.Max {
			break
		}
		mID := msg.ID.String()
		mk := msgKey(opts.Queue, mID)

		count, runErr := claimScript.Run(ctx, s.client,
			[]string{qk, mk},
			mID,
			strconv.FormatFloat(scores[mID], 'f', -1, 64),
			deadlineScore,
			deadline.Format(time.RFC3339Nano),
			opts.Now.Format(time.RFC3339Nano),
		).Int()
		if runErr != nil {
			return result, deadLettered, fmt.Errorf("chalk/redis: receive claim: %w", runErr)
		}
		if count == 0 {
			continue // another receiver claimed it first
		}

		msg.ReceiveCount = count
		msg.VisibilityDeadline = deadline
		msg.UpdatedAt = opts.Now

		if opts.MaxReceiveCount > 0 && count > opts.MaxReceiveCount {
			// Delivery budget exhausted: transfer verbatim, count intact.
			// DLQ write and primary delete commit in one MULTI/EXEC so a
			// crash cannot leave the message in both queues.
			entry := dlq.NewEntry(msg, opts.DeadLetterQueue, "max receive count exceeded")
			pipe := s.client.TxPipeline()
			queueDeadLetterTransfer(ctx, pipe, entry, qk, mk)
			if _, pErr := pipe.Exec(ctx); pErr != nil {
				return result, deadLettered, fmt.Errorf("chalk/redis: receive dead-letter: %w", pErr)
			}
			deadLettered = append(deadLettered, entry.ID.String())
			continue
		}

		result = append(result, msg)
	}
	return result, deadLettered, nil
}

// queueDeadLetterTransfer queues the full dead-letter transfer (DLQ
// hash and index write, primary hash and index delete) on one pipeline
// so it commits as a single transaction.
func queueDeadLetterTransfer(ctx context.Context, pipe goredis.Pipeliner, entry *dlq.Entry, queueSetKey, messageKey string) {
	eID := entry.ID.String()
	pipe.HSet(ctx, dlqKey(eID), dlqToMap(entry))
	pipe.ZAdd(ctx, dlqFailedKey, goredis.Z{
		Score:  float64(entry.FailedAt.UnixMilli()),
		Member: eID,
	})
	pipe.Del(ctx, messageKey)
	pipe.ZRem(ctx, queueSetKey, entry.MessageID.String())
}

// AckMessage permanently removes a message from its queue.
func (s *Store) AckMessage(ctx context.Context, queueName, msgID string) error {
	mk := msgKey(queueName, msgID)

	exists, err := s.client.Exists(ctx, mk).Result()
	if err != nil {
		return fmt.Errorf("chalk/redis: ack exists: %w", err)
	}
	if exists == 0 {
		return chalk.ErrMessageNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, mk)
	pipe.ZRem(ctx, queueKey(queueName), msgID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("chalk/redis: ack message: %w", err)
	}
	return nil
}

// PurgeMessages removes messages on the queue enqueued at or before
// cutoff and returns the count.
func (s *Store) PurgeMessages(ctx context.Context, queueName string, cutoff time.Time) (int, error) {
	qk := queueKey(queueName)

	ids, err := s.client.ZRange(ctx, qk, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("chalk/redis: purge zrange: %w", err)
	}

	count := 0
	for _, mID := range ids {
		mk := msgKey(queueName, mID)
		enqueuedStr, getErr := s.client.HGet(ctx, mk, "enqueued_at").Result()
		if getErr != nil {
			continue
		}
		enqueuedAt, _ := time.Parse(time.RFC3339Nano, enqueuedStr) //nolint:errcheck // best-effort parse from trusted Redis data
		if enqueuedAt.After(cutoff) {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, mk)
		pipe.ZRem(ctx, qk, mID)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return count, fmt.Errorf("chalk/redis: purge message: %w", pErr)
		}
		count++
	}
	return count, nil
}

// ── helpers ──

func msgToMap(m *queue.Message) map[string]interface{} {
	fields := map[string]interface{}{
		"id":            m.ID.String(),
		"queue":         m.Queue,
		"body":          string(m.Body),
		"receive_count": strconv.Itoa(m.ReceiveCount),
		"enqueued_at":   m.EnqueuedAt.Format(time.RFC3339Nano),
		"created_at":    m.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    m.UpdatedAt.Format(time.RFC3339Nano),
	}
	if !m.VisibilityDeadline.IsZero() {
		fields["visibility_deadline"] = m.VisibilityDeadline.Format(time.RFC3339Nano)
	}
	return fields
}

func mapToMsg(m map[string]string) (*queue.Message, error) {
	mID, err := id.ParseMessageID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("chalk/redis: parse message id: %w", err)
	}

	receiveCount, _ := strconv.Atoi(m["receive_count"])             //nolint:errcheck // best-effort parse from trusted Redis data
	enqueuedAt, _ := time.Parse(time.RFC3339Nano, m["enqueued_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])   //nolint:errcheck // best-effort parse from trusted Redis data

	msg := &queue.Message{
		Entity: chalk.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:           mID,
		Queue:        m["queue"],
		Body:         []byte(m["body"]),
		ReceiveCount: receiveCount,
		EnqueuedAt:   enqueuedAt,
	}
	if v := m["visibility_deadline"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		msg.VisibilityDeadline = t
	}
	return msg, nil
}
