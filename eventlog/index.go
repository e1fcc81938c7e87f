package eventlog

// Index names a secondary view over the log, keyed by one event attribute
// and ordered by timestamp within each key. Five indexes exist because
// downstream consumers need disjoint access patterns — by actor, by
// student, by cohort, by activity, by type — without scanning the log.
type Index string

const (
	BySourceID   Index = "source_id"
	ByStudentID  Index = "student_id"
	ByCohortID   Index = "cohort_id"
	ByActivityID Index = "activity_id"
	ByEventType  Index = "event_type"
)

// Indexes returns all supported index names.
func Indexes() []Index {
	return []Index{BySourceID, ByStudentID, ByCohortID, ByActivityID, ByEventType}
}

// Valid reports whether ix is a supported index name.
func (ix Index) Valid() bool {
	switch ix {
	case BySourceID, ByStudentID, ByCohortID, ByActivityID, ByEventType:
		return true
	}
	return false
}

// Key extracts the event attribute this index is keyed on. An empty key
// means the event does not appear in this index.
func (ix Index) Key(e *Event) string {
	switch ix {
	case BySourceID:
		return e.SourceID
	case ByStudentID:
		return e.StudentID
	case ByCohortID:
		return e.CohortID
	case ByActivityID:
		return e.ActivityID
	case ByEventType:
		return e.Type
	}
	return ""
}

// TimeRange bounds a Query by canonical timestamp strings, inclusive on
// both ends. The zero value is unbounded.
type TimeRange struct {
	From string
	To   string
}

// Contains reports whether ts falls inside the range. Canonical
// timestamps compare correctly as strings.
func (r TimeRange) Contains(ts string) bool {
	if r.From != "" && ts < r.From {
		return false
	}
	if r.To != "" && ts > r.To {
		return false
	}
	return true
}
