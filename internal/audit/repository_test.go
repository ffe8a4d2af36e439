package audit

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the audit schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "audit-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			username TEXT,
			action TEXT NOT NULL,
			resource_type TEXT,
			resource_id TEXT,
			details TEXT,
			ip_address TEXT,
			user_agent TEXT,
			status TEXT NOT NULL DEFAULT 'success',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE INDEX idx_audit_logs_action ON audit_logs(action);
		CREATE INDEX idx_audit_logs_user ON audit_logs(user_id);
		CREATE INDEX idx_audit_logs_created ON audit_logs(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying audit schema: %v", err)
	}

	return db
}

func seedEntry(t *testing.T, repo *SQLiteRepository, e Entry) *Entry {
	t.Helper()
	if err := repo.Create(context.Background(), &e); err != nil {
		t.Fatalf("creating audit entry: %v", err)
	}
	return &e
}

func TestRepository_CreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	entry := seedEntry(t, repo, Entry{
		UserID:       "usr-1",
		Username:     "admin",
		Action:       ActionAssignRole,
		ResourceType: "user",
		ResourceID:   "usr-2",
		Details:      map[string]any{"role": "hospital_user"},
		IPAddress:    "10.0.0.5",
		UserAgent:    "curl/8.0",
	})

	if entry.ID == "" {
		t.Fatal("Create() should generate an ID")
	}
	if entry.Status != StatusSuccess {
		t.Errorf("Status = %q, want default %q", entry.Status, StatusSuccess)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("List() total=%d entries=%d, want 1/1", result.Total, len(result.Entries))
	}

	got := result.Entries[0]
	if got.Action != ActionAssignRole {
		t.Errorf("Action = %q, want %q", got.Action, ActionAssignRole)
	}
	if got.Details["role"] != "hospital_user" {
		t.Errorf("Details = %v, want role round trip", got.Details)
	}
	if got.IPAddress != "10.0.0.5" {
		t.Errorf("IPAddress = %q, want round trip", got.IPAddress)
	}
}

func TestRepository_List_ConjunctiveFilters(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	seedEntry(t, repo, Entry{UserID: "usr-1", Username: "alice", Action: ActionLogin, Status: StatusSuccess})
	seedEntry(t, repo, Entry{UserID: "usr-1", Username: "alice", Action: ActionLogin, Status: StatusFailure})
	seedEntry(t, repo, Entry{UserID: "usr-2", Username: "bob", Action: ActionLogin, Status: StatusFailure})
	seedEntry(t, repo, Entry{UserID: "usr-1", Username: "alice", Action: ActionLogout})

	// Single filter
	result, err := repo.List(ctx, Filter{Action: ActionLogin})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 3 {
		t.Errorf("action filter total = %d, want 3", result.Total)
	}

	// Filters combine with AND
	result, err = repo.List(ctx, Filter{UserID: "usr-1", Action: ActionLogin, Status: StatusFailure})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("combined filter total = %d, want 1", result.Total)
	}
	if result.Entries[0].Username != "alice" {
		t.Errorf("Username = %q, want alice", result.Entries[0].Username)
	}
}

func TestRepository_List_TimeRange(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedEntry(t, repo, Entry{Action: ActionLogin, CreatedAt: base.Add(-2 * time.Hour)})
	seedEntry(t, repo, Entry{Action: ActionLogin, CreatedAt: base.Add(-time.Hour)})
	seedEntry(t, repo, Entry{Action: ActionLogin, CreatedAt: base})

	result, err := repo.List(ctx, Filter{
		From: base.Add(-90 * time.Minute),
		To:   base, // exclusive
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("time range total = %d, want 1", result.Total)
	}
}

func TestRepository_List_PaginationAndClamp(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedEntry(t, repo, Entry{Action: ActionLogin, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	// Newest first, offset paging, total unaffected by paging
	result, err := repo.List(ctx, Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want 5", result.Total)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("page size = %d, want 2", len(result.Entries))
	}
	if !result.Entries[0].CreatedAt.After(result.Entries[1].CreatedAt) {
		t.Error("entries should be newest first")
	}
	if !result.Entries[0].CreatedAt.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("offset should skip the newest entry, got %v", result.Entries[0].CreatedAt)
	}

	// Limit clamps to the ceiling
	result, err = repo.List(ctx, Filter{Limit: 99999})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != maxLimit {
		t.Errorf("Limit = %d, want clamped to %d", result.Limit, maxLimit)
	}
}

func TestRepository_Stats(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	// Inside 24h
	seedEntry(t, repo, Entry{Username: "alice", Action: ActionLogin, Status: StatusFailure, CreatedAt: now.Add(-time.Hour)})
	seedEntry(t, repo, Entry{Username: "alice", Action: ActionLogin, CreatedAt: now.Add(-2 * time.Hour)})
	// Inside 7d but not 24h
	seedEntry(t, repo, Entry{Username: "bob", Action: ActionAssignRole, CreatedAt: now.Add(-3 * 24 * time.Hour)})
	// Inside 30d but not 7d
	seedEntry(t, repo, Entry{Username: "alice", Action: ActionKeyRevoke, CreatedAt: now.Add(-10 * 24 * time.Hour)})
	// Older than 30d: invisible to stats
	seedEntry(t, repo, Entry{Username: "carol", Action: ActionLogin, CreatedAt: now.Add(-40 * 24 * time.Hour)})

	stats, err := repo.Stats(ctx, now)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	if stats.Events24h != 2 {
		t.Errorf("Events24h = %d, want 2", stats.Events24h)
	}
	if stats.Events7d != 3 {
		t.Errorf("Events7d = %d, want 3", stats.Events7d)
	}
	if stats.Events30d != 4 {
		t.Errorf("Events30d = %d, want 4", stats.Events30d)
	}
	if stats.FailedLogins24h != 1 {
		t.Errorf("FailedLogins24h = %d, want 1", stats.FailedLogins24h)
	}

	if len(stats.TopActors) == 0 || stats.TopActors[0].Username != "alice" {
		t.Errorf("TopActors = %v, want alice first", stats.TopActors)
	}

	// Critical feed carries the role change and the key revocation, newest first
	if len(stats.RecentCritical) != 2 {
		t.Fatalf("RecentCritical has %d entries, want 2", len(stats.RecentCritical))
	}
	if stats.RecentCritical[0].Action != ActionAssignRole {
		t.Errorf("newest critical = %q, want %q", stats.RecentCritical[0].Action, ActionAssignRole)
	}
}
