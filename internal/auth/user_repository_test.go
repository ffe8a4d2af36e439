package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUserRepository_CreateAndGetByID(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("Password123")
	user := &User{
		Username:     "testuser",
		Email:        "Test@Example.com",
		PasswordHash: hash,
		Role:         RoleHospitalUser,
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if got.Username != "testuser" {
		t.Errorf("Username = %q, want %q", got.Username, "testuser")
	}
	if got.Email != "test@example.com" {
		t.Errorf("Email = %q, want lowercased %q", got.Email, "test@example.com")
	}
	if got.Role != RoleHospitalUser {
		t.Errorf("Role = %q, want %q", got.Role, RoleHospitalUser)
	}
	if got.Is2FAEnabled {
		t.Error("Is2FAEnabled should default to false")
	}
	if got.FailedLoginAttempts != 0 {
		t.Errorf("FailedLoginAttempts = %d, want 0", got.FailedLoginAttempts)
	}
	if got.LockedUntil != nil {
		t.Error("LockedUntil should be nil for a fresh account")
	}
	if got.PasswordHash == "" {
		t.Error("PasswordHash should be populated")
	}
}

func TestUserRepository_Create_DefaultsToPending(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	hash, _ := HashPassword("Password123")
	user := &User{Username: "fresh", Email: "fresh@example.com", PasswordHash: hash}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.Role != RolePending {
		t.Errorf("Role = %q, want %q", user.Role, RolePending)
	}
}

func TestUserRepository_GetByUsername(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	user := seedTestUser(t, db, "admin", RoleAdmin)

	got, err := repo.GetByUsername(context.Background(), "admin")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}

	if got.ID != user.ID {
		t.Errorf("ID = %q, want %q", got.ID, user.ID)
	}
}

func TestUserRepository_GetByUsername_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	_, err := repo.GetByUsername(context.Background(), "nonexistent")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_GetByEmail_CaseInsensitive(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	user := seedTestUser(t, db, "nurse", RoleHospitalUser)

	got, err := repo.GetByEmail(context.Background(), "NURSE@stmarys.org")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("ID = %q, want %q", got.ID, user.ID)
	}
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("Password123")
	user1 := &User{Username: "duplicate", Email: "one@example.com", PasswordHash: hash}
	if err := repo.Create(ctx, user1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	user2 := &User{Username: "duplicate", Email: "two@example.com", PasswordHash: hash}
	err := repo.Create(ctx, user2)
	if !errors.Is(err, ErrUsernameExists) {
		t.Errorf("error = %v, want ErrUsernameExists", err)
	}
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("Password123")
	user1 := &User{Username: "first", Email: "shared@example.com", PasswordHash: hash}
	if err := repo.Create(ctx, user1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Same address with different casing still collides
	user2 := &User{Username: "second", Email: "Shared@Example.com", PasswordHash: hash}
	err := repo.Create(ctx, user2)
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("error = %v, want ErrEmailExists", err)
	}
}

func TestUserRepository_List(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	// Empty list
	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 0 {
		t.Errorf("List() should return empty, got %d", len(users))
	}

	for _, name := range []string{"alice", "bob", "charlie"} {
		seedTestUser(t, db, name, RoleHospitalUser)
	}

	users, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 3 {
		t.Errorf("List() returned %d users, want 3", len(users))
	}
}

func TestUserRepository_UpdateAssignment(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	if _, err := db.Exec(`
		INSERT INTO regions (id, name, code) VALUES ('reg-north', 'North', 'N');
		INSERT INTO hospitals (id, name, code, region_id) VALUES ('hos-stmarys', 'St Marys', 'STM', 'reg-north');
	`); err != nil {
		t.Fatalf("seeding org rows: %v", err)
	}

	user := seedTestUser(t, db, "promoteme", RolePending)

	if err := repo.UpdateAssignment(ctx, user.ID, RoleHospitalUser, "reg-north", "hos-stmarys"); err != nil {
		t.Fatalf("UpdateAssignment() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, user.ID)
	if got.Role != RoleHospitalUser {
		t.Errorf("Role = %q, want %q", got.Role, RoleHospitalUser)
	}
	if got.RegionID != "reg-north" {
		t.Errorf("RegionID = %q, want %q", got.RegionID, "reg-north")
	}
	if got.HospitalID != "hos-stmarys" {
		t.Errorf("HospitalID = %q, want %q", got.HospitalID, "hos-stmarys")
	}

	// Demoting back to pending clears scope
	if err := repo.UpdateAssignment(ctx, user.ID, RolePending, "", ""); err != nil {
		t.Fatalf("UpdateAssignment() error = %v", err)
	}
	got, _ = repo.GetByID(ctx, user.ID)
	if got.RegionID != "" || got.HospitalID != "" {
		t.Errorf("scope should clear, got region %q hospital %q", got.RegionID, got.HospitalID)
	}
}

func TestUserRepository_UpdateAssignment_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	err := repo.UpdateAssignment(context.Background(), "nonexistent", RoleAdmin, "", "")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "passchange", RoleHospitalUser)

	newHash, _ := HashPassword("New-password1")
	if err := repo.UpdatePassword(ctx, user.ID, newHash); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, user.ID)
	ok, _ := VerifyPassword("New-password1", got.PasswordHash)
	if !ok {
		t.Error("new password should verify after UpdatePassword")
	}
}

func TestUserRepository_UpdateTOTP(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "twofactor", RoleHospitalUser)

	if err := repo.UpdateTOTP(ctx, user.ID, "JBSWY3DPEHPK3PXP", true); err != nil {
		t.Fatalf("UpdateTOTP() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, user.ID)
	if got.TOTPSecret != "JBSWY3DPEHPK3PXP" {
		t.Errorf("TOTPSecret = %q, want stored secret", got.TOTPSecret)
	}
	if !got.Is2FAEnabled {
		t.Error("Is2FAEnabled should be true after enabling")
	}

	// Disabling clears the secret
	if err := repo.UpdateTOTP(ctx, user.ID, "", false); err != nil {
		t.Fatalf("UpdateTOTP() error = %v", err)
	}
	got, _ = repo.GetByID(ctx, user.ID)
	if got.TOTPSecret != "" || got.Is2FAEnabled {
		t.Error("disabling should clear the secret and the flag")
	}
}

func TestUserRepository_Delete(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "deleteme", RoleHospitalUser)

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := repo.GetByID(ctx, user.ID)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("after delete, GetByID error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_Delete_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	err := repo.Delete(context.Background(), "nonexistent")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_Count(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}

	seedTestUser(t, db, "one", RoleHospitalUser)
	seedTestUser(t, db, "two", RoleHospitalUser)

	count, err = repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestUserRepository_RecordFailedAttempt_LocksAtThreshold(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "locktarget", RoleHospitalUser)
	lockUntil := time.Now().Add(15 * time.Minute)

	// Attempts 1-4 accumulate without locking
	for i := 1; i <= 4; i++ {
		locked, err := repo.RecordFailedAttempt(ctx, user.ID, 5, lockUntil)
		if err != nil {
			t.Fatalf("RecordFailedAttempt(#%d) error = %v", i, err)
		}
		if locked {
			t.Fatalf("attempt #%d should not lock", i)
		}
		got, _ := repo.GetByID(ctx, user.ID)
		if got.FailedLoginAttempts != i {
			t.Errorf("after attempt #%d, counter = %d, want %d", i, got.FailedLoginAttempts, i)
		}
	}

	// The 5th attempt trips the lock and resets the counter
	locked, err := repo.RecordFailedAttempt(ctx, user.ID, 5, lockUntil)
	if err != nil {
		t.Fatalf("RecordFailedAttempt(#5) error = %v", err)
	}
	if !locked {
		t.Fatal("attempt #5 should lock the account")
	}

	got, _ := repo.GetByID(ctx, user.ID)
	if got.FailedLoginAttempts != 0 {
		t.Errorf("counter = %d after lock, want 0", got.FailedLoginAttempts)
	}
	if got.LockedUntil == nil {
		t.Fatal("LockedUntil should be set after lock")
	}
	if !got.IsLocked(time.Now()) {
		t.Error("IsLocked() should report true while the lockout is active")
	}
	if got.IsLocked(time.Now().Add(16 * time.Minute)) {
		t.Error("IsLocked() should report false once the lockout lapses")
	}
}

func TestUserRepository_RecordFailedAttempt_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	_, err := repo.RecordFailedAttempt(context.Background(), "nonexistent", 5, time.Now().Add(time.Minute))
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_RecordLoginSuccess_ClearsLockout(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "recoverer", RoleHospitalUser)

	for i := 0; i < 5; i++ {
		if _, err := repo.RecordFailedAttempt(ctx, user.ID, 5, time.Now().Add(15*time.Minute)); err != nil {
			t.Fatalf("RecordFailedAttempt() error = %v", err)
		}
	}

	if err := repo.RecordLoginSuccess(ctx, user.ID); err != nil {
		t.Fatalf("RecordLoginSuccess() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, user.ID)
	if got.FailedLoginAttempts != 0 {
		t.Errorf("counter = %d, want 0", got.FailedLoginAttempts)
	}
	if got.LockedUntil != nil {
		t.Error("LockedUntil should clear on successful login")
	}
	if got.LastLogin == nil {
		t.Error("LastLogin should be stamped")
	}
}

func TestUserRepository_AllowedEmails(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	entry := &AllowedEmail{Email: "Nurse@StMarys.org"}
	if err := repo.AddAllowedEmail(ctx, entry); err != nil {
		t.Fatalf("AddAllowedEmail() error = %v", err)
	}
	if entry.ID == "" {
		t.Fatal("AddAllowedEmail() should generate an ID")
	}

	// Duplicate (after lowercasing) is rejected
	err := repo.AddAllowedEmail(ctx, &AllowedEmail{Email: "nurse@stmarys.org"})
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("duplicate error = %v, want ErrEmailExists", err)
	}

	entries, err := repo.ListAllowedEmails(ctx)
	if err != nil {
		t.Fatalf("ListAllowedEmails() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ListAllowedEmails() returned %d entries, want 1", len(entries))
	}
	if entries[0].Email != "nurse@stmarys.org" {
		t.Errorf("Email = %q, want lowercased", entries[0].Email)
	}

	if err := repo.RemoveAllowedEmail(ctx, entry.ID); err != nil {
		t.Fatalf("RemoveAllowedEmail() error = %v", err)
	}
	entries, _ = repo.ListAllowedEmails(ctx)
	if len(entries) != 0 {
		t.Errorf("whitelist should be empty after removal, got %d entries", len(entries))
	}
}

func TestUserRepository_IsEmailAllowed(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	// Empty whitelist admits nobody
	allowed, err := repo.IsEmailAllowed(ctx, "anyone@anywhere.org")
	if err != nil {
		t.Fatalf("IsEmailAllowed() error = %v", err)
	}
	if allowed {
		t.Error("empty whitelist should admit nobody")
	}

	for _, e := range []string{"exact@clinic.org", "@stmarys.org"} {
		if err := repo.AddAllowedEmail(ctx, &AllowedEmail{Email: e}); err != nil {
			t.Fatalf("AddAllowedEmail(%s) error = %v", e, err)
		}
	}

	tests := []struct {
		email string
		want  bool
	}{
		{"exact@clinic.org", true},
		{"EXACT@CLINIC.ORG", true},       // case-insensitive
		{"other@clinic.org", false},      // exact entries admit only the full address
		{"nurse@stmarys.org", true},      // domain entry
		{"doc@icu.stmarys.org", true},    // subdomain of a domain entry
		{"evil@notstmarys.org", false},   // suffix without a dot boundary
		{"nurse@stmarys.org.evil", false}, // domain must terminate the address
	}

	for _, tt := range tests {
		got, err := repo.IsEmailAllowed(ctx, tt.email)
		if err != nil {
			t.Fatalf("IsEmailAllowed(%s) error = %v", tt.email, err)
		}
		if got != tt.want {
			t.Errorf("IsEmailAllowed(%s) = %v, want %v", tt.email, got, tt.want)
		}
	}
}
