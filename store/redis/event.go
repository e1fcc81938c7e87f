package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/chalk"
	"github.com/xraph/chalk/eventlog"
)

// AppendEvent persists an event record and adds it to every index whose
// key attribute is set. An identical re-append is a silent no-op; a
// conflicting one fails with chalk.ErrEventConflict.
func (s *Store) AppendEvent(ctx context.Context, evt *eventlog.Event) error {
	member := eventMember(evt.ID, evt.Timestamp)
	key := eventKey(member)

	existing, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("chalk/redis: append event get: %w", err)
	}
	if len(existing) > 0 {
		prev, convErr := mapToEvent(existing)
		if convErr != nil {
			return convErr
		}
		if prev.ContentEquals(evt) {
			return nil
		}
		return chalk.ErrEventConflict
	}

	score := timestampScore(evt.Timestamp)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, eventToMap(evt))
	for _, ix := range eventlog.Indexes() {
		if k := ix.Key(evt); k != "" {
			pipe.ZAdd(ctx, eventIndexKey(string(ix), k), goredis.Z{Score: score, Member: member})
		}
	}
	if evt.ExpireAt != nil {
		pipe.ZAdd(ctx, eventExpiryKey, goredis.Z{Score: float64(*evt.ExpireAt), Member: member})
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("chalk/redis: append event: %w", err)
	}
	return nil
}

// QueryEvents returns the events under key in the given index whose
// timestamps fall inside tr, ordered by ascending timestamp. The Sorted
// Set score is a millisecond-granularity prefilter; exact range checks
// use the canonical timestamp strings.
func (s *Store) QueryEvents(ctx context.Context, ix eventlog.Index, key string, tr eventlog.TimeRange) ([]*eventlog.Event, error) {
	if !ix.Valid() {
		return nil, chalk.ErrUnknownIndex
	}

	members, err := s.client.ZRangeByScore(ctx, eventIndexKey(string(ix), key), &goredis.ZRangeBy{
		Min: rangeBound(tr.From, "-inf", -1),
		Max: rangeBound(tr.To, "+inf", +1),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("chalk/redis: query events zrange: %w", err)
	}

	events := make([]*eventlog.Event, 0, len(members))
	for _, member := range members {
		vals, getErr := s.client.HGetAll(ctx, eventKey(member)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // expired under us
		}
		evt, convErr := mapToEvent(vals)
		if convErr != nil {
			continue
		}
		if !tr.Contains(evt.Timestamp) {
			continue
		}
		events = append(events, evt)
	}

	sort.Slice(events, func(i, k int) bool {
		return events[i].Timestamp < events[k].Timestamp
	})
	return events, nil
}

// ExpireEvents removes every record whose expire_at is at or before now,
// including its index entries. Returns the number of records removed.
func (s *Store) ExpireEvents(ctx context.Context, now time.Time) (int, error) {
	members, err := s.client.ZRangeByScore(ctx, eventExpiryKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("chalk/redis: expire events zrange: %w", err)
	}

	count := 0
	for _, member := range members {
		key := eventKey(member)
		vals, getErr := s.client.HGetAll(ctx, key).Result()
		if getErr != nil {
			return count, fmt.Errorf("chalk/redis: expire events get: %w", getErr)
		}
		if len(vals) == 0 {
			// Hash already gone; drop the stale expiry entry.
			s.client.ZRem(ctx, eventExpiryKey, member)
			continue
		}
		evt, convErr := mapToEvent(vals)
		if convErr != nil {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, key)
		for _, ix := range eventlog.Indexes() {
			if k := ix.Key(evt); k != "" {
				pipe.ZRem(ctx, eventIndexKey(string(ix), k), member)
			}
		}
		pipe.ZRem(ctx, eventExpiryKey, member)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return count, fmt.Errorf("chalk/redis: expire events del: %w", pErr)
		}
		count++
	}
	return count, nil
}

// ── helpers ──

// timestampScore converts a canonical timestamp to a Sorted Set score in
// epoch milliseconds.
func timestampScore(ts string) float64 {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return 0
	}
	return float64(t.UnixMilli())
}

// rangeBound converts an optional canonical timestamp bound into a
// ZRANGEBYSCORE bound. The score is millisecond-truncated, so the bound
// is widened by one millisecond in the given direction; exact filtering
// happens against the timestamp strings afterward.
func rangeBound(ts, unbounded string, widen int64) string {
	if ts == "" {
		return unbounded
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return unbounded
	}
	return strconv.FormatInt(t.UnixMilli()+widen, 10)
}

func eventToMap(e *eventlog.Event) map[string]interface{} {
	m := map[string]interface{}{
		"id":          e.ID,
		"timestamp":   e.Timestamp,
		"event_type":  e.Type,
		"source_id":   e.SourceID,
		"student_id":  e.StudentID,
		"cohort_id":   e.CohortID,
		"activity_id": e.ActivityID,
		"payload":     string(e.Payload),
	}
	if e.ExpireAt != nil {
		m["expire_at"] = strconv.FormatInt(*e.ExpireAt, 10)
	}
	return m
}

func mapToEvent(m map[string]string) (*eventlog.Event, error) {
	if m["id"] == "" {
		return nil, fmt.Errorf("chalk/redis: event record missing id")
	}

	e := &eventlog.Event{
		ID:         m["id"],
		Timestamp:  m["timestamp"],
		Type:       m["event_type"],
		SourceID:   m["source_id"],
		StudentID:  m["student_id"],
		CohortID:   m["cohort_id"],
		ActivityID: m["activity_id"],
	}
	if v := m["payload"]; v != "" {
		e.Payload = json.RawMessage(v)
	}
	if v := m["expire_at"]; v != "" {
		sec, _ := strconv.ParseInt(v, 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data
		e.ExpireAt = &sec
	}
	return e, nil
}
