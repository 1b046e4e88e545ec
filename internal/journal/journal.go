// Package journal persists an append-only record of alert events and
// dispatch attempts. It exists for post-incident review and telemetry; it
// is never read back into runtime state, so a restart always starts from a
// clean NORMAL/Idle slate.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sweeney/belt-sentinel/internal/alert"
	"github.com/sweeney/belt-sentinel/internal/logic"
)

// Store is the SQLite-backed journal.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordEvent appends one alert event.
func (s *Store) RecordEvent(ctx context.Context, event logic.AlertEvent) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO alert_events(kind, episode_id, device_id, message, created_at)
VALUES (?, ?, ?, ?, ?)
`, string(event.Kind), event.EpisodeID, event.DeviceID, event.Message, ts(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert alert event: %w", err)
	}
	return nil
}

// RecordAttempt appends one channel attempt.
func (s *Store) RecordAttempt(ctx context.Context, a alert.Attempt) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dispatch_attempts(channel, kind, episode_id, device_id, started_at, duration_ms, outcome, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, a.Channel, string(a.Event.Kind), a.Event.EpisodeID, a.Event.DeviceID,
		ts(a.StartedAt), a.Duration.Milliseconds(), string(a.Outcome), a.Err)
	if err != nil {
		return fmt.Errorf("insert dispatch attempt: %w", err)
	}
	return nil
}

// AttemptRecord is one persisted channel attempt.
type AttemptRecord struct {
	Channel    string
	Kind       logic.AlertKind
	EpisodeID  string
	DeviceID   string
	StartedAt  time.Time
	DurationMs int64
	Outcome    alert.Outcome
	Err        string
}

// RecentAttempts returns the newest attempts, most recent first.
func (s *Store) RecentAttempts(ctx context.Context, limit int) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT channel, kind, episode_id, device_id, started_at, duration_ms, outcome, error
FROM dispatch_attempts
ORDER BY id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var r AttemptRecord
		var kind, outcome, startedAt string
		if err := rows.Scan(&r.Channel, &kind, &r.EpisodeID, &r.DeviceID, &startedAt, &r.DurationMs, &outcome, &r.Err); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		r.Kind = logic.AlertKind(kind)
		r.Outcome = alert.Outcome(outcome)
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			r.StartedAt = t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

// UndeliveredEpisodes returns episode IDs that have attempts but no
// success, for operator review after total delivery failures.
func (s *Store) UndeliveredEpisodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT episode_id FROM dispatch_attempts
GROUP BY episode_id
HAVING SUM(CASE WHEN outcome = 'SUCCESS' THEN 1 ELSE 0 END) = 0
`)
	if err != nil {
		return nil, fmt.Errorf("query undelivered: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate undelivered: %w", err)
	}
	return ids, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var errNoDB = errors.New("journal: store not open")

// DB exposes the underlying handle for diagnostics tooling.
func (s *Store) DB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	return s.db, nil
}
