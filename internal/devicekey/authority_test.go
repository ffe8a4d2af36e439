package devicekey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the api_keys schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "devicekey-test-*.db")
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

		INSERT INTO regions (id, name, code) VALUES ('reg-north', 'North', 'N');
		INSERT INTO hospitals (id, name, code, region_id) VALUES ('hos-stmarys', 'St Marys', 'STM', 'reg-north');

		CREATE TABLE api_keys (
			id TEXT PRIMARY KEY,
			key_hash TEXT NOT NULL UNIQUE,
			key_prefix TEXT NOT NULL,
			sensor_id TEXT NOT NULL UNIQUE,
			hospital_id TEXT NOT NULL,
			description TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			is_validated INTEGER NOT NULL DEFAULT 0,
			created_by TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			last_used TEXT,
			FOREIGN KEY (hospital_id) REFERENCES hospitals(id)
		) STRICT;

		CREATE INDEX idx_api_keys_hospital ON api_keys(hospital_id);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying api_keys schema: %v", err)
	}

	return db
}

func testAuthority(t *testing.T) (*Authority, *SQLiteRepository) {
	t.Helper()
	repo := NewSQLiteRepository(testDB(t))
	return NewAuthority(repo, Config{RequestsPerMinute: 100}), repo
}

func TestAuthority_Issue(t *testing.T) {
	authority, repo := testAuthority(t)
	ctx := context.Background()

	key, plaintext, err := authority.Issue(ctx, "icu-temp-01", "hos-stmarys", "ICU fridge", "usr-admin")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if !strings.HasPrefix(plaintext, "cw_") {
		t.Errorf("plaintext = %q, want cw_ prefix", plaintext)
	}
	if key.KeyPrefix != plaintext[:8] {
		t.Errorf("KeyPrefix = %q, want first 8 chars of plaintext", key.KeyPrefix)
	}
	if key.KeyHash == plaintext || strings.Contains(key.KeyHash, plaintext) {
		t.Error("plaintext must not appear in the stored hash")
	}
	if key.IsValidated {
		t.Error("a freshly issued key must await admin validation")
	}
	if !key.IsActive {
		t.Error("a freshly issued key should be active")
	}

	// Only the hash lands in the store
	stored, err := repo.GetByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.KeyHash != HashKey(plaintext) {
		t.Error("stored hash should match the plaintext's SHA-256")
	}
}

func TestAuthority_Issue_DuplicateSensor(t *testing.T) {
	authority, _ := testAuthority(t)
	ctx := context.Background()

	key, _, err := authority.Issue(ctx, "icu-temp-01", "hos-stmarys", "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, _, err = authority.Issue(ctx, "icu-temp-01", "hos-stmarys", "", "")
	if !errors.Is(err, ErrSensorIDTaken) {
		t.Errorf("error = %v, want ErrSensorIDTaken", err)
	}

	// Revoking does not free the sensor id
	if err := authority.Revoke(ctx, key.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	_, _, err = authority.Issue(ctx, "icu-temp-01", "hos-stmarys", "", "")
	if !errors.Is(err, ErrSensorIDTaken) {
		t.Errorf("post-revoke error = %v, want ErrSensorIDTaken", err)
	}
}

func TestAuthority_Issue_InvalidSensorID(t *testing.T) {
	authority, _ := testAuthority(t)

	for _, id := range []string{"", "has space", "has/slash", "has+plus", "has#hash"} {
		_, _, err := authority.Issue(context.Background(), id, "hos-stmarys", "", "")
		if !errors.Is(err, ErrInvalidSensorID) {
			t.Errorf("Issue(%q) error = %v, want ErrInvalidSensorID", id, err)
		}
	}
}

func TestAuthority_Authenticate_Precedence(t *testing.T) {
	authority, _ := testAuthority(t)
	ctx := context.Background()

	key, plaintext, err := authority.Issue(ctx, "icu-temp-01", "hos-stmarys", "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// 1. Unknown key: invalid before anything else is considered
	_, err = authority.Authenticate(ctx, "cw_not-a-real-key", "icu-temp-01")
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("unknown key error = %v, want ErrInvalidKey", err)
	}

	// 2. Known but unvalidated: pending-validation wins over sensor mismatch
	_, err = authority.Authenticate(ctx, plaintext, "some-other-sensor")
	if !errors.Is(err, ErrKeyNotValidated) {
		t.Errorf("unvalidated key error = %v, want ErrKeyNotValidated", err)
	}

	if err := authority.Validate(ctx, key.ID); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	// 3. Validated but claiming another sensor
	_, err = authority.Authenticate(ctx, plaintext, "some-other-sensor")
	if !errors.Is(err, ErrSensorMismatch) {
		t.Errorf("mismatched sensor error = %v, want ErrSensorMismatch", err)
	}

	// 4. Fully valid
	identity, err := authority.Authenticate(ctx, plaintext, "icu-temp-01")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if identity.HospitalID != "hos-stmarys" {
		t.Errorf("HospitalID = %q, want %q", identity.HospitalID, "hos-stmarys")
	}
	if identity.SensorID != "icu-temp-01" {
		t.Errorf("SensorID = %q, want %q", identity.SensorID, "icu-temp-01")
	}
}

func TestAuthority_Authenticate_StampsLastUsedOnSuccessOnly(t *testing.T) {
	authority, repo := testAuthority(t)
	ctx := context.Background()

	key, plaintext, err := authority.Issue(ctx, "icu-temp-01", "hos-stmarys", "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// Failed attempts leave no trace on the key
	authority.Authenticate(ctx, plaintext, "icu-temp-01") //nolint:errcheck // unvalidated, expected to fail
	stored, _ := repo.GetByID(ctx, key.ID)
	if stored.LastUsed != nil {
		t.Error("failed authentication must not stamp last_used")
	}

	if err := authority.Validate(ctx, key.ID); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, err := authority.Authenticate(ctx, plaintext, "icu-temp-01"); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	stored, _ = repo.GetByID(ctx, key.ID)
	if stored.LastUsed == nil {
		t.Error("successful authentication should stamp last_used")
	}
}

func TestAuthority_Authenticate_RevokedLooksUnknown(t *testing.T) {
	authority, _ := testAuthority(t)
	ctx := context.Background()

	key, plaintext, err := authority.Issue(ctx, "icu-temp-01", "hos-stmarys", "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := authority.Validate(ctx, key.ID); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := authority.Revoke(ctx, key.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	_, err = authority.Authenticate(ctx, plaintext, "icu-temp-01")
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("revoked key error = %v, want ErrInvalidKey — same as unknown", err)
	}
}

func TestAuthority_Validate_Idempotent(t *testing.T) {
	authority, repo := testAuthority(t)
	ctx := context.Background()

	key, _, err := authority.Issue(ctx, "icu-temp-01", "hos-stmarys", "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if err := authority.Validate(ctx, key.ID); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := authority.Validate(ctx, key.ID); err != nil {
		t.Errorf("repeat Validate() error = %v, want nil", err)
	}

	stored, _ := repo.GetByID(ctx, key.ID)
	if !stored.IsValidated {
		t.Error("key should be validated")
	}
}

func TestAuthority_Validate_NotFound(t *testing.T) {
	authority, _ := testAuthority(t)

	err := authority.Validate(context.Background(), "key-missing")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("error = %v, want ErrKeyNotFound", err)
	}
}

func TestAuthority_RateLimit(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	authority := NewAuthority(repo, Config{RequestsPerMinute: 2})
	ctx := context.Background()

	key, plaintext, err := authority.Issue(ctx, "icu-temp-01", "hos-stmarys", "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := authority.Validate(ctx, key.ID); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	// The burst budget covers the first two requests
	for i := 0; i < 2; i++ {
		if _, err := authority.Authenticate(ctx, plaintext, "icu-temp-01"); err != nil {
			t.Fatalf("request #%d error = %v", i+1, err)
		}
	}

	_, err = authority.Authenticate(ctx, plaintext, "icu-temp-01")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("over-budget error = %v, want ErrRateLimited", err)
	}

	// Another key has its own budget
	key2, plaintext2, err := authority.Issue(ctx, "ward-temp-02", "hos-stmarys", "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := authority.Validate(ctx, key2.ID); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, err := authority.Authenticate(ctx, plaintext2, "ward-temp-02"); err != nil {
		t.Errorf("fresh key should not inherit another key's exhaustion: %v", err)
	}
}

func TestRepository_ListByHospital(t *testing.T) {
	authority, repo := testAuthority(t)
	ctx := context.Background()

	if _, err := repo.db.Exec(
		`INSERT INTO hospitals (id, name, code, region_id) VALUES ('hos-other', 'Other', 'OTH', 'reg-north')`); err != nil {
		t.Fatalf("seeding second hospital: %v", err)
	}

	if _, _, err := authority.Issue(ctx, "s1", "hos-stmarys", "", ""); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, _, err := authority.Issue(ctx, "s2", "hos-stmarys", "", ""); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, _, err := authority.Issue(ctx, "s3", "hos-other", "", ""); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	keys, err := repo.ListByHospital(ctx, "hos-stmarys")
	if err != nil {
		t.Fatalf("ListByHospital() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("ListByHospital() returned %d, want 2", len(keys))
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() returned %d, want 3", len(all))
	}
}

func TestAuthority_LimiterMapBounded(t *testing.T) {
	authority, _ := testAuthority(t)
	ctx := context.Background()

	// Spray far more distinct (unknown) keys than the tracking cap.
	for i := 0; i < maxTrackedLimiters+500; i++ {
		rawKey := fmt.Sprintf("cw_sprayed-key-%d", i)
		if _, err := authority.Authenticate(ctx, rawKey, "icu-temp-01"); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Authenticate(#%d) error = %v, want ErrInvalidKey", i, err)
		}
	}

	authority.mu.Lock()
	tracked := len(authority.limiters)
	authority.mu.Unlock()
	if tracked > maxTrackedLimiters {
		t.Errorf("tracked limiters = %d, want at most %d", tracked, maxTrackedLimiters)
	}
}
