package auth

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the auth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
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

	// Create prerequisite tables (users references regions and hospitals)
	prerequisiteSQL := `
		CREATE TABLE regions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			code TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE hospitals (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			code TEXT NOT NULL UNIQUE,
			region_id TEXT NOT NULL,
			address TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (region_id) REFERENCES regions(id)
		) STRICT;
	`
	if _, err := db.Exec(prerequisiteSQL); err != nil {
		t.Fatalf("creating prerequisite tables: %v", err)
	}

	// Apply the auth migration
	migrationSQL := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			totp_secret TEXT,
			is_2fa_enabled INTEGER NOT NULL DEFAULT 0,
			role TEXT NOT NULL DEFAULT 'pending',
			region_id TEXT,
			hospital_id TEXT,
			failed_login_attempts INTEGER NOT NULL DEFAULT 0,
			locked_until TEXT,
			last_login TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (region_id) REFERENCES regions(id) ON DELETE SET NULL,
			FOREIGN KEY (hospital_id) REFERENCES hospitals(id) ON DELETE SET NULL
		) STRICT;

		CREATE INDEX idx_users_role ON users(role);

		CREATE TABLE allowed_emails (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			created_by TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (created_by) REFERENCES users(id) ON DELETE SET NULL
		) STRICT;

		CREATE TABLE login_challenges (
			user_id TEXT PRIMARY KEY,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE revoked_tokens (
			token_hash TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			revoked_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE INDEX idx_revoked_tokens_expires ON revoked_tokens(expires_at);
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("applying auth migration: %v", err)
	}

	return db
}

// seedTestUser inserts a test user and returns it.
func seedTestUser(t *testing.T, db *sql.DB, username string, role Role) *User {
	t.Helper()

	hash, err := HashPassword("Test-password1")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	repo := NewUserRepository(db)
	user := &User{
		Username:     username,
		Email:        username + "@stmarys.org",
		PasswordHash: hash,
		Role:         role,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}
