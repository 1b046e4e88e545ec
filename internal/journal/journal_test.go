package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/belt-sentinel/internal/alert"
	"github.com/sweeney/belt-sentinel/internal/logic"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testAttempt(episode, channel string, outcome alert.Outcome) alert.Attempt {
	return alert.Attempt{
		Channel: channel,
		Event: logic.AlertEvent{
			Kind:      logic.KindFall,
			EpisodeID: episode,
			DeviceID:  "belt-test",
			Message:   "Fall detected (2.20g)",
			CreatedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		StartedAt: time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC),
		Duration:  150 * time.Millisecond,
		Outcome:   outcome,
	}
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)

	db, err := s.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	for _, table := range []string{"schema_migrations", "alert_events", "dispatch_attempts"} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s1, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := s1.RecordEvent(context.Background(), logic.AlertEvent{
		Kind: logic.KindFall, EpisodeID: "ep-1", DeviceID: "belt-test",
		Message: "m", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	s1.Close()

	// Reopening must not re-run migrations or lose data.
	s2, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	db, _ := s2.DB()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM alert_events`).Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Errorf("events after reopen: got %d, want 1", count)
	}
}

func TestRecordAndQueryAttempts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testAttempt("ep-1", "remote", alert.OutcomeFailed)
	a.Err = "503 from portal"
	if err := s.RecordAttempt(ctx, a); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if err := s.RecordAttempt(ctx, testAttempt("ep-1", "modem", alert.OutcomeSuccess)); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	got, err := s.RecentAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAttempts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(got))
	}

	// Most recent first.
	if got[0].Channel != "modem" || got[0].Outcome != alert.OutcomeSuccess {
		t.Errorf("newest attempt: %+v", got[0])
	}
	if got[1].Channel != "remote" || got[1].Outcome != alert.OutcomeFailed {
		t.Errorf("older attempt: %+v", got[1])
	}
	if got[1].Err != "503 from portal" {
		t.Errorf("error text: got %q", got[1].Err)
	}
	if got[0].Kind != logic.KindFall {
		t.Errorf("kind: got %s", got[0].Kind)
	}
	if got[0].DurationMs != 150 {
		t.Errorf("duration_ms: got %d, want 150", got[0].DurationMs)
	}
	if !got[0].StartedAt.Equal(time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC)) {
		t.Errorf("started_at: got %v", got[0].StartedAt)
	}
}

func TestRecentAttemptsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.RecordAttempt(ctx, testAttempt("ep-1", "remote", alert.OutcomeFailed)); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	got, err := s.RecentAttempts(ctx, 3)
	if err != nil {
		t.Fatalf("RecentAttempts: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(got))
	}
}

func TestUndeliveredEpisodes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// ep-1: failed then delivered. ep-2: all attempts failed.
	s.RecordAttempt(ctx, testAttempt("ep-1", "remote", alert.OutcomeFailed))
	s.RecordAttempt(ctx, testAttempt("ep-1", "modem", alert.OutcomeSuccess))
	s.RecordAttempt(ctx, testAttempt("ep-2", "remote", alert.OutcomeFailed))
	s.RecordAttempt(ctx, testAttempt("ep-2", "modem", alert.OutcomeTimedOut))

	ids, err := s.UndeliveredEpisodes(ctx)
	if err != nil {
		t.Fatalf("UndeliveredEpisodes: %v", err)
	}
	if len(ids) != 1 || ids[0] != "ep-2" {
		t.Errorf("undelivered: got %v, want [ep-2]", ids)
	}
}

func TestRecordEventRejectsUnknownKind(t *testing.T) {
	s := openTestStore(t)

	err := s.RecordEvent(context.Background(), logic.AlertEvent{
		Kind: "BOGUS", EpisodeID: "ep-1", DeviceID: "belt-test",
		Message: "m", CreatedAt: time.Now(),
	})
	if err == nil {
		t.Error("expected the kind CHECK constraint to reject BOGUS")
	}
}

func TestClosedStoreDB(t *testing.T) {
	var s *Store
	if _, err := s.DB(); err == nil {
		t.Error("expected error from nil store")
	}
	if err := s.Close(); err != nil {
		t.Errorf("nil store Close: %v", err)
	}
}
