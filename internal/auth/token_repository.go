package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// TokenRepository defines the interface for the refresh-token blacklist
// and persisted two-factor login challenges.
//
// Refresh tokens are stateless JWTs; only revocations are stored. A
// token is live if its signature and expiry check out AND its hash is
// absent from revoked_tokens. Logout and rotation both insert here.
type TokenRepository interface {
	RevokeToken(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, tokenHash string) (bool, error)
	DeleteExpiredRevocations(ctx context.Context) (int64, error)

	CreateChallenge(ctx context.Context, userID string, expiresAt time.Time) error
	GetChallenge(ctx context.Context, userID string) (*LoginChallenge, error)
	DeleteChallenge(ctx context.Context, userID string) error
	DeleteExpiredChallenges(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
// Raw tokens are never stored — only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// RevokeToken adds a token hash to the blacklist. The token's own expiry
// is kept so DeleteExpiredRevocations can prune rows that no longer
// guard anything. Revoking an already-revoked token is a no-op.
func (r *SQLiteTokenRepository) RevokeToken(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (token_hash, user_id, revoked_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(token_hash) DO NOTHING`,
		tokenHash, userID, now, expiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether a token hash is on the blacklist.
func (r *SQLiteTokenRepository) IsTokenRevoked(ctx context.Context, tokenHash string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM revoked_tokens WHERE token_hash = ?", tokenHash).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return true, nil
}

// DeleteExpiredRevocations prunes blacklist rows for tokens that have
// expired on their own. Returns the number of deleted rows.
func (r *SQLiteTokenRepository) DeleteExpiredRevocations(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM revoked_tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired revocations: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

// CreateChallenge records that a user has passed the password check and
// owes a TOTP code. One challenge per user: a repeat login before the
// code arrives replaces the previous challenge and its deadline.
func (r *SQLiteTokenRepository) CreateChallenge(ctx context.Context, userID string, expiresAt time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_challenges (user_id, expires_at, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET expires_at = excluded.expires_at, created_at = excluded.created_at`,
		userID, expiresAt.UTC().Format(time.RFC3339), now,
	)
	if err != nil {
		return fmt.Errorf("creating login challenge: %w", err)
	}
	return nil
}

// GetChallenge returns the pending challenge for a user, or
// ErrChallengeExpired if none exists or it has lapsed.
func (r *SQLiteTokenRepository) GetChallenge(ctx context.Context, userID string) (*LoginChallenge, error) {
	var c LoginChallenge
	var expiresAt, createdAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, expires_at, created_at FROM login_challenges WHERE user_id = ?",
		userID).Scan(&c.UserID, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChallengeExpired
		}
		return nil, fmt.Errorf("getting login challenge: %w", err)
	}

	c.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	if time.Now().After(c.ExpiresAt) {
		return nil, ErrChallengeExpired
	}
	return &c, nil
}

// DeleteChallenge removes a user's pending challenge. Deleting a
// challenge that does not exist is not an error.
func (r *SQLiteTokenRepository) DeleteChallenge(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM login_challenges WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("deleting login challenge: %w", err)
	}
	return nil
}

// DeleteExpiredChallenges prunes lapsed challenges.
// Returns the number of deleted rows.
func (r *SQLiteTokenRepository) DeleteExpiredChallenges(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM login_challenges WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired challenges: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}
