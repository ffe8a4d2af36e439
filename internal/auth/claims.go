package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the "kind" claim. Access tokens authorise API
// requests; refresh tokens can only be exchanged for a new pair.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// CustomClaims extends JWT standard claims with ClearWave-specific fields.
// Role and scope travel in the token so request authorisation needs no
// database hit; role changes take effect on the next refresh.
type CustomClaims struct {
	jwt.RegisteredClaims
	Kind       string `json:"kind"`
	Username   string `json:"username"`
	Role       Role   `json:"role"`
	RegionID   string `json:"region_id,omitempty"`
	HospitalID string `json:"hospital_id,omitempty"`
}

// GenerateToken creates a signed JWT of the given kind for a user.
func GenerateToken(user *User, kind, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Kind:       kind,
		Username:   user.Username,
		Role:       user.Role,
		RegionID:   user.RegionID,
		HospitalID: user.HospitalID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", kind, err)
	}
	return signed, nil
}

// GenerateTokenPair creates an access/refresh token pair for a user.
// The access token never extends itself; a new pair only comes from
// a fresh login or a refresh-token exchange.
func GenerateTokenPair(user *User, secret string, accessTTL, refreshTTL time.Duration) (*TokenPair, error) {
	access, err := GenerateToken(user, TokenKindAccess, secret, accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := GenerateToken(user, TokenKindRefresh, secret, refreshTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(accessTTL.Seconds()),
	}, nil
}

// ParseToken validates and parses a JWT, returning the custom claims.
// It checks the signature, expiry, required fields, and that the token
// is of the wanted kind — an access token presented where a refresh
// token is expected (or vice versa) is rejected.
func ParseToken(tokenString, secret, wantKind string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if claims.Role == "" {
		return nil, fmt.Errorf("%w: missing role", ErrTokenInvalid)
	}

	if claims.Kind != wantKind {
		return nil, fmt.Errorf("%w: wrong token kind %q", ErrTokenInvalid, claims.Kind)
	}

	return claims, nil
}
