package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, username, email, password_hash, totp_secret, is_2fa_enabled,
	role, region_id, hospital_id, failed_login_attempts, locked_until, last_login,
	created_at, updated_at`

// UserRepository defines the interface for user account persistence,
// including the registration whitelist and lockout accounting.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	UpdateAssignment(ctx context.Context, id string, role Role, regionID, hospitalID string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateTOTP(ctx context.Context, id, secret string, enabled bool) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)

	RecordFailedAttempt(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (locked bool, err error)
	RecordLoginSuccess(ctx context.Context, id string) error

	AddAllowedEmail(ctx context.Context, entry *AllowedEmail) error
	RemoveAllowedEmail(ctx context.Context, id string) error
	ListAllowedEmails(ctx context.Context) ([]AllowedEmail, error)
	IsEmailAllowed(ctx context.Context, email string) (bool, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Create inserts a new user account. The ID is generated if empty.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}
	if user.Role == "" {
		user.Role = RolePending
	}

	now := time.Now().UTC().Format(time.RFC3339)
	user.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	user.UpdatedAt = user.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, totp_secret, is_2fa_enabled,
		   role, region_id, hospital_id, failed_login_attempts, locked_until, last_login,
		   created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, NULL, ?, ?)`,
		user.ID, user.Username, strings.ToLower(user.Email), user.PasswordHash,
		nullString(user.TOTPSecret), boolToInt(user.Is2FAEnabled),
		string(user.Role), nullString(user.RegionID), nullString(user.HospitalID),
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "users.email") {
				return ErrEmailExists
			}
			return ErrUsernameExists
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their unique ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetByUsername retrieves a user by their username.
func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

// GetByEmail retrieves a user by their email address.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", strings.ToLower(email))
}

// List returns all users ordered by creation date.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	if users == nil {
		users = []User{}
	}
	return users, nil
}

// UpdateAssignment sets a user's role and scope in one statement so the
// role and the region/hospital bindings can never disagree. Callers
// validate the hospital-belongs-to-region invariant before this runs.
func (r *SQLiteUserRepository) UpdateAssignment(ctx context.Context, id string, role Role, regionID, hospitalID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = ?, region_id = ?, hospital_id = ?, updated_at = ? WHERE id = ?`,
		string(role), nullString(regionID), nullString(hospitalID), now, id,
	)
	if err != nil {
		return fmt.Errorf("updating user assignment: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword changes a user's password hash.
func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateTOTP sets or clears a user's TOTP secret. Enabling and disabling
// the second factor both go through here.
func (r *SQLiteUserRepository) UpdateTOTP(ctx context.Context, id, secret string, enabled bool) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET totp_secret = ?, is_2fa_enabled = ?, updated_at = ? WHERE id = ?`,
		nullString(secret), boolToInt(enabled), now, id,
	)
	if err != nil {
		return fmt.Errorf("updating totp: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes a user account by ID.
func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Count returns the total number of user accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// RecordFailedAttempt increments the consecutive-failure counter and,
// when the threshold is reached, sets the lockout and resets the counter.
// The whole decision is one UPDATE: two racing failures cannot both read
// a stale counter and each conclude the threshold was not reached.
func (r *SQLiteUserRepository) RecordFailedAttempt(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET
		   locked_until = CASE WHEN failed_login_attempts + 1 >= ? THEN ? ELSE locked_until END,
		   failed_login_attempts = CASE WHEN failed_login_attempts + 1 >= ? THEN 0 ELSE failed_login_attempts + 1 END,
		   updated_at = ?
		 WHERE id = ?`,
		maxAttempts, lockUntil.UTC().Format(time.RFC3339), maxAttempts, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("recording failed attempt: %w", err)
	}

	var lockedUntil sql.NullString
	if err := r.db.QueryRowContext(ctx,
		"SELECT locked_until FROM users WHERE id = ?", id).Scan(&lockedUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("reading lockout state: %w", err)
	}

	if !lockedUntil.Valid {
		return false, nil
	}
	until, _ := time.Parse(time.RFC3339, lockedUntil.String) //nolint:errcheck // format is controlled
	return time.Now().Before(until), nil
}

// RecordLoginSuccess clears the failure counter and lockout, and stamps
// the last successful login.
func (r *SQLiteUserRepository) RecordLoginSuccess(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET failed_login_attempts = 0, locked_until = NULL,
		   last_login = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("recording login success: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AddAllowedEmail inserts a registration whitelist entry.
func (r *SQLiteUserRepository) AddAllowedEmail(ctx context.Context, entry *AllowedEmail) error {
	if entry.ID == "" {
		entry.ID = "wle-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	entry.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO allowed_emails (id, email, created_by, created_at) VALUES (?, ?, ?, ?)`,
		entry.ID, strings.ToLower(strings.TrimSpace(entry.Email)), nullString(entry.CreatedBy), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("adding allowed email: %w", err)
	}
	return nil
}

// RemoveAllowedEmail deletes a whitelist entry by ID.
func (r *SQLiteUserRepository) RemoveAllowedEmail(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM allowed_emails WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("removing allowed email: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListAllowedEmails returns every whitelist entry, oldest first.
func (r *SQLiteUserRepository) ListAllowedEmails(ctx context.Context) ([]AllowedEmail, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, email, created_by, created_at FROM allowed_emails ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing allowed emails: %w", err)
	}
	defer rows.Close()

	var entries []AllowedEmail
	for rows.Next() {
		var e AllowedEmail
		var createdBy sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Email, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning allowed email: %w", err)
		}
		if createdBy.Valid {
			e.CreatedBy = createdBy.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating allowed emails: %w", err)
	}

	if entries == nil {
		entries = []AllowedEmail{}
	}
	return entries, nil
}

// IsEmailAllowed checks a candidate email against the whitelist: exact
// entries must match the full address, "@domain" entries admit the
// domain and any of its subdomains. An empty whitelist admits nobody.
func (r *SQLiteUserRepository) IsEmailAllowed(ctx context.Context, email string) (bool, error) {
	entries, err := r.ListAllowedEmails(ctx)
	if err != nil {
		return false, err
	}
	for i := range entries {
		if entries[i].Matches(email) {
			return true, nil
		}
	}
	return false, nil
}

// getUser executes a query and scans a single user result.
func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	return scanUserFrom(row)
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanUserFrom scans a user from any scanner (Row or Rows).
func scanUserFrom(s scanner) (*User, error) {
	var u User
	var totpSecret, regionID, hospitalID, lockedUntil, lastLogin sql.NullString
	var role string
	var is2FA int
	var createdAt, updatedAt string

	err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &totpSecret, &is2FA,
		&role, &regionID, &hospitalID, &u.FailedLoginAttempts, &lockedUntil, &lastLogin,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.Is2FAEnabled = is2FA != 0
	if totpSecret.Valid {
		u.TOTPSecret = totpSecret.String
	}
	if regionID.Valid {
		u.RegionID = regionID.String
	}
	if hospitalID.Valid {
		u.HospitalID = hospitalID.String
	}
	if lockedUntil.Valid {
		t, _ := time.Parse(time.RFC3339, lockedUntil.String) //nolint:errcheck // format is controlled
		u.LockedUntil = &t
	}
	if lastLogin.Valid {
		t, _ := time.Parse(time.RFC3339, lastLogin.String) //nolint:errcheck // format is controlled
		u.LastLogin = &t
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &u, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}
