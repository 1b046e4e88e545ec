package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	version int
	upSQL   string
}

var migrations = []migration{
	{
		version: 1,
		upSQL: `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL CHECK(kind IN ('PRE_FALL','FALL','EMERGENCY')),
	episode_id TEXT NOT NULL,
	device_id TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dispatch_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	channel TEXT NOT NULL,
	kind TEXT NOT NULL,
	episode_id TEXT NOT NULL,
	device_id TEXT NOT NULL,
	started_at TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	outcome TEXT NOT NULL CHECK(outcome IN ('SUCCESS','FAILED','SKIPPED','DEDUPED','TIMED_OUT')),
	error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS dispatch_attempts_episode
ON dispatch_attempts(episode_id);
`,
	},
}

func migrate(ctx context.Context, db *sql.DB) error {
	var current int
	row := db.QueryRowContext(ctx, `
SELECT COALESCE(MAX(version), 0) FROM schema_migrations
`)
	if err := row.Scan(&current); err != nil {
		// First run: the migrations table doesn't exist yet.
		current = 0
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := db.ExecContext(ctx, m.upSQL); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := db.ExecContext(ctx, `
INSERT INTO schema_migrations(version, applied_at) VALUES (?, ?)
`, m.version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}
