package devicekey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"golang.org/x/time/rate"
)

const (
	// keyPrefixLen is how much of the plaintext is kept for display
	// ("cw_Ab12…"), enough to tell keys apart in an admin list.
	keyPrefixLen = 8

	// keySecretBytes is the entropy of the secret part of a key.
	keySecretBytes = 32
)

// sensorIDPattern keeps sensor ids safe for MQTT topic segments: no
// separators, no wildcards.
var sensorIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// IsValidSensorID reports whether a sensor id is acceptable.
func IsValidSensorID(sensorID string) bool {
	return sensorIDPattern.MatchString(sensorID)
}

// HashKey computes the SHA-256 hash of a plaintext key for storage and
// lookup. Plaintext keys are never stored.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Config carries the tunables for the key authority.
type Config struct {
	// RequestsPerMinute is the per-key authentication budget.
	RequestsPerMinute int
}

// Authority issues, validates, revokes, and authenticates device keys.
type Authority struct {
	keys Repository
	cfg  Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // keyed by key hash
}

// NewAuthority creates a key authority over the given repository.
func NewAuthority(keys Repository, cfg Config) *Authority {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 100
	}
	return &Authority{
		keys:     keys,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Issue creates a key for a sensor and returns the record plus the
// plaintext secret — the only time the plaintext exists outside the
// caller's hands. A sensor that already has a key, validated or revoked,
// cannot get another.
func (a *Authority) Issue(ctx context.Context, sensorID, hospitalID, description, createdBy string) (*APIKey, string, error) {
	if !IsValidSensorID(sensorID) {
		return nil, "", ErrInvalidSensorID
	}

	secret := make([]byte, keySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, "", fmt.Errorf("generating key secret: %w", err)
	}
	plaintext := "cw_" + base64.RawURLEncoding.EncodeToString(secret)

	key := &APIKey{
		KeyHash:     HashKey(plaintext),
		KeyPrefix:   plaintext[:keyPrefixLen],
		SensorID:    sensorID,
		HospitalID:  hospitalID,
		Description: description,
		IsActive:    true,
		IsValidated: false,
		CreatedBy:   createdBy,
	}
	if err := a.keys.Create(ctx, key); err != nil {
		return nil, "", err
	}
	return key, plaintext, nil
}

// Validate marks a key as approved by an admin. Idempotent.
func (a *Authority) Validate(ctx context.Context, id string) error {
	return a.keys.SetValidated(ctx, id)
}

// Revoke permanently deactivates a key.
func (a *Authority) Revoke(ctx context.Context, id string) error {
	return a.keys.Revoke(ctx, id)
}

// Authenticate resolves a raw key into a device identity.
//
// Checks run in a fixed order: rate limit, key existence, admin
// validation, sensor ownership. A revoked key is indistinguishable from
// an unknown one — devices learn nothing about key state from a 401.
// Only a fully successful authentication stamps last_used.
func (a *Authority) Authenticate(ctx context.Context, rawKey, claimedSensorID string) (*Identity, error) {
	hash := HashKey(rawKey)

	if !a.limiter(hash).Allow() {
		return nil, ErrRateLimited
	}

	key, err := a.keys.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}
	if !key.IsActive {
		return nil, ErrInvalidKey
	}

	if !key.IsValidated {
		return nil, ErrKeyNotValidated
	}

	if key.SensorID != claimedSensorID {
		return nil, ErrSensorMismatch
	}

	if err := a.keys.UpdateLastUsed(ctx, key.ID); err != nil {
		return nil, err
	}

	return &Identity{KeyID: key.ID, SensorID: key.SensorID, HospitalID: key.HospitalID}, nil
}

// maxTrackedLimiters bounds the limiter map. Unknown keys get buckets
// too, so an attacker spraying random keys would otherwise grow the map
// without limit.
const maxTrackedLimiters = 4096

// limiter returns the token bucket for a key hash, creating it on first
// sight. Buckets are per-process; with one core instance that is the
// global budget. At capacity an arbitrary bucket is evicted: a key seen
// again after eviction starts over with a full budget.
func (a *Authority) limiter(hash string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.limiters[hash]
	if !ok {
		if len(a.limiters) >= maxTrackedLimiters {
			for k := range a.limiters {
				delete(a.limiters, k)
				break
			}
		}
		perMin := a.cfg.RequestsPerMinute
		l = rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin)
		a.limiters[hash] = l
	}
	return l
}
