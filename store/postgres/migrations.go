package postgres

// migration is one named, ordered schema change. Statements run
// individually so index creation failures point at the exact statement.
type migration struct {
	name       string
	statements []string
}

var migrations = []migration{
	{
		name: "001_create_events",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS chalk_events (
				id          TEXT NOT NULL,
				ts          TEXT NOT NULL,
				event_type  TEXT NOT NULL,
				source_id   TEXT NOT NULL DEFAULT '',
				student_id  TEXT NOT NULL DEFAULT '',
				cohort_id   TEXT NOT NULL DEFAULT '',
				activity_id TEXT NOT NULL DEFAULT '',
				payload     JSONB,
				expire_at   BIGINT,
				PRIMARY KEY (id, ts)
			)`,
			// One index per secondary view. Canonical timestamps sort
			// lexicographically in time order, so (key, ts) btrees give
			// range scans directly.
			`CREATE INDEX IF NOT EXISTS idx_chalk_events_source
				ON chalk_events (source_id, ts) WHERE source_id <> ''`,
			`CREATE INDEX IF NOT EXISTS idx_chalk_events_student
				ON chalk_events (student_id, ts) WHERE student_id <> ''`,
			`CREATE INDEX IF NOT EXISTS idx_chalk_events_cohort
				ON chalk_events (cohort_id, ts) WHERE cohort_id <> ''`,
			`CREATE INDEX IF NOT EXISTS idx_chalk_events_activity
				ON chalk_events (activity_id, ts) WHERE activity_id <> ''`,
			`CREATE INDEX IF NOT EXISTS idx_chalk_events_type
				ON chalk_events (event_type, ts)`,
			`CREATE INDEX IF NOT EXISTS idx_chalk_events_expiry
				ON chalk_events (expire_at) WHERE expire_at IS NOT NULL`,
		},
	},
	{
		name: "002_create_messages",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS chalk_messages (
				id                  TEXT PRIMARY KEY,
				queue               TEXT NOT NULL,
				body                BYTEA,
				receive_count       INTEGER NOT NULL DEFAULT 0,
				visibility_deadline TIMESTAMPTZ,
				enqueued_at         TIMESTAMPTZ NOT NULL,
				created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chalk_messages_receive
				ON chalk_messages (queue, enqueued_at)`,
		},
	},
	{
		name: "003_create_dlq",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS chalk_dlq (
				id                TEXT PRIMARY KEY,
				message_id        TEXT NOT NULL,
				queue             TEXT NOT NULL,
				dead_letter_queue TEXT NOT NULL,
				body              BYTEA,
				receive_count     INTEGER NOT NULL,
				reason            TEXT NOT NULL DEFAULT '',
				failed_at         TIMESTAMPTZ NOT NULL,
				replayed_at       TIMESTAMPTZ,
				created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chalk_dlq_queue
				ON chalk_dlq (queue, failed_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_chalk_dlq_failed
				ON chalk_dlq (failed_at DESC)`,
		},
	},
	{
		name: "004_create_schedules",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS chalk_schedules (
				id           TEXT PRIMARY KEY,
				name         TEXT NOT NULL UNIQUE,
				schedule     TEXT NOT NULL,
				queue        TEXT NOT NULL,
				body         BYTEA,
				consumer     TEXT NOT NULL DEFAULT '',
				last_run_at  TIMESTAMPTZ,
				next_run_at  TIMESTAMPTZ,
				locked_by    TEXT NOT NULL DEFAULT '',
				locked_until TIMESTAMPTZ,
				enabled      BOOLEAN NOT NULL DEFAULT TRUE,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chalk_schedules_next
				ON chalk_schedules (next_run_at) WHERE enabled = TRUE`,
		},
	},
}
