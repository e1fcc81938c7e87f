// Package eventlog provides the append-only event log at the heart of
// chalk: immutable domain event records, five secondary indexes ordered by
// timestamp, and the Log service exposing Append, Query, and the TTL sweep.
package eventlog

import (
	"bytes"
	"encoding/json"
	"time"
)

// Event is an immutable record of a domain occurrence. The JSON field
// names form the wire contract other services depend on; they must not
// change. All fields except id, timestamp, and event_type are optional.
//
// Once appended, a record is never mutated or deleted except by the TTL
// sweep. The log owns its records; everything handed out is a copy.
type Event struct {
	ID         string          `json:"id"`
	Timestamp  string          `json:"timestamp"`
	Type       string          `json:"event_type"`
	SourceID   string          `json:"source_id,omitempty"`
	StudentID  string          `json:"student_id,omitempty"`
	CohortID   string          `json:"cohort_id,omitempty"`
	ActivityID string          `json:"activity_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ExpireAt   *int64          `json:"expire_at,omitempty"`
}

// Well-known event types. The set is open: producers may append types the
// core has never seen, and routing simply ignores them.
const (
	TypeGradingRequest = "grading_request"
	TypeReview         = "review"
	TypeContentAccess  = "content_access"
	TypeProgressUpdate = "progress_update"
)

// timestampLayout is the canonical wire form: UTC, fixed-width, nine
// fractional digits always present. RFC3339Nano is unsuitable here — it
// trims trailing zeros, so "10:00:00.5Z" would sort before "10:00:00Z"
// as a string while being the later instant.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// NewTimestamp returns the canonical timestamp string for t. Canonical
// timestamps sort lexicographically in time order, which the index
// ordering and TimeRange bounds rely on.
func NewTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ExpireAt converts an absolute expiry time to the epoch-seconds pointer
// form the wire contract uses.
func ExpireAt(t time.Time) *int64 {
	s := t.Unix()
	return &s
}

// Clone returns a deep copy of the event. Payload bytes and the ExpireAt
// pointer are copied so the caller cannot reach back into log-owned state.
func (e *Event) Clone() *Event {
	cp := *e
	if e.Payload != nil {
		cp.Payload = bytes.Clone(e.Payload)
	}
	if e.ExpireAt != nil {
		v := *e.ExpireAt
		cp.ExpireAt = &v
	}
	return &cp
}

// ContentEquals reports whether two events carry identical content.
// Payloads are compared after JSON compaction so formatting differences
// do not turn an idempotent re-append into a conflict.
func (e *Event) ContentEquals(other *Event) bool {
	if e.ID != other.ID ||
		e.Timestamp != other.Timestamp ||
		e.Type != other.Type ||
		e.SourceID != other.SourceID ||
		e.StudentID != other.StudentID ||
		e.CohortID != other.CohortID ||
		e.ActivityID != other.ActivityID {
		return false
	}
	if (e.ExpireAt == nil) != (other.ExpireAt == nil) {
		return false
	}
	if e.ExpireAt != nil && *e.ExpireAt != *other.ExpireAt {
		return false
	}
	return bytes.Equal(compactJSON(e.Payload), compactJSON(other.Payload))
}

// Expired reports whether the record's TTL has passed as of now.
// Records without expire_at never expire.
func (e *Event) Expired(now time.Time) bool {
	return e.ExpireAt != nil && *e.ExpireAt <= now.Unix()
}

func compactJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
