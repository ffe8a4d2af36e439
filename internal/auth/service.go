package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// challengeTTL is how long a passed password check waits for its TOTP code.
const challengeTTL = 5 * time.Minute

// dummyHash is verified against when the username is unknown, so a
// login probe costs the same argon2 work whether or not the account
// exists. Generated once at startup.
var dummyHash string

func init() {
	h, err := HashPassword("clearwave-timing-parity")
	if err != nil {
		panic(fmt.Sprintf("auth: generating dummy hash: %v", err))
	}
	dummyHash = h
}

// ServiceConfig carries the tunables for the auth service.
type ServiceConfig struct {
	JWTSecret          string
	Issuer             string // TOTP provisioning issuer (site name)
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	LockoutMaxAttempts int
	LockoutDuration    time.Duration
	PasswordMinLength  int
}

// Service implements the authentication state machine: registration,
// password login, the two-factor step, token refresh, and logout.
type Service struct {
	users  UserRepository
	tokens TokenRepository
	cfg    ServiceConfig
}

// NewService creates an auth service over the given repositories.
func NewService(users UserRepository, tokens TokenRepository, cfg ServiceConfig) *Service {
	return &Service{users: users, tokens: tokens, cfg: cfg}
}

// Register creates a new pending account. The email must pass the
// whitelist, the username and email must be unused, and the password
// must meet policy. Registration never issues tokens: a pending account
// cannot do anything until an admin promotes it.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	if !IsValidUsername(username) {
		return nil, fmt.Errorf("%w: invalid username", ErrInvalidCredentials)
	}
	if !IsValidEmail(email) {
		return nil, ErrEmailNotAllowed
	}
	if err := ValidatePassword(password, s.cfg.PasswordMinLength); err != nil {
		return nil, err
	}

	allowed, err := s.users.IsEmailAllowed(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("checking email whitelist: %w", err)
	}
	if !allowed {
		return nil, ErrEmailNotAllowed
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RolePending,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies a username/password pair.
//
// Unknown user, wrong password, and locked account all return the same
// ErrInvalidCredentials; unknown users incur a dummy argon2 verification
// so the timing profile does not betray which usernames exist. The
// failure counter does not advance while the account is locked.
//
// On success with 2FA enabled, a challenge is persisted and no tokens
// are issued; the caller must follow up with VerifyTwoFactor.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = VerifyPassword(password, dummyHash) //nolint:errcheck // timing parity only
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.IsLocked(time.Now()) {
		return nil, ErrInvalidCredentials
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		if _, err := s.users.RecordFailedAttempt(ctx, user.ID, s.cfg.LockoutMaxAttempts, time.Now().Add(s.cfg.LockoutDuration)); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if user.Is2FAEnabled {
		if err := s.tokens.CreateChallenge(ctx, user.ID, time.Now().Add(challengeTTL)); err != nil {
			return nil, err
		}
		return &LoginResult{User: user, TwoFactorRequired: true}, nil
	}

	return s.completeLogin(ctx, user)
}

// VerifyTwoFactor completes a login that Login left pending. It demands
// a live challenge (created by the password step) before even looking
// at the code, so the password-first ordering cannot be bypassed.
// Failed codes feed the same lockout counter as failed passwords.
func (s *Service) VerifyTwoFactor(ctx context.Context, username, code string) (*LoginResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.IsLocked(time.Now()) {
		return nil, ErrInvalidCredentials
	}

	if !user.Is2FAEnabled || user.TOTPSecret == "" {
		return nil, ErrTwoFactorNotEnabled
	}

	if _, err := s.tokens.GetChallenge(ctx, user.ID); err != nil {
		return nil, err
	}

	if !VerifyTOTPCode(code, user.TOTPSecret) {
		if _, err := s.users.RecordFailedAttempt(ctx, user.ID, s.cfg.LockoutMaxAttempts, time.Now().Add(s.cfg.LockoutDuration)); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTwoFactorCode
	}

	if err := s.tokens.DeleteChallenge(ctx, user.ID); err != nil {
		return nil, err
	}

	return s.completeLogin(ctx, user)
}

// completeLogin clears lockout state and issues a token pair.
func (s *Service) completeLogin(ctx context.Context, user *User) (*LoginResult, error) {
	if err := s.users.RecordLoginSuccess(ctx, user.ID); err != nil {
		return nil, err
	}

	pair, err := GenerateTokenPair(user, s.cfg.JWTSecret, s.cfg.AccessTokenTTL, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Tokens: pair}, nil
}

// Refresh exchanges a live refresh token for a new pair. The consumed
// token is blacklisted, so replaying it fails even before its natural
// expiry. Claims are rebuilt from the current user record: a role
// change between refreshes takes effect here.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := ParseToken(refreshToken, s.cfg.JWTSecret, TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	hash := HashToken(refreshToken)
	revoked, err := s.tokens.IsTokenRevoked(ctx, hash)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if err := s.tokens.RevokeToken(ctx, hash, user.ID, claims.ExpiresAt.Time); err != nil {
		return nil, err
	}

	return GenerateTokenPair(user, s.cfg.JWTSecret, s.cfg.AccessTokenTTL, s.cfg.RefreshTokenTTL)
}

// Logout blacklists the presented refresh token. Access tokens are not
// tracked; they expire on their own within the access TTL. Presenting a
// token that is already dead is not an error — logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := ParseToken(refreshToken, s.cfg.JWTSecret, TokenKindRefresh)
	if err != nil {
		// Expired or malformed tokens have nothing left to revoke.
		return nil
	}
	return s.tokens.RevokeToken(ctx, HashToken(refreshToken), claims.Subject, claims.ExpiresAt.Time)
}

// EnableTwoFactor generates and stores a TOTP secret for the user and
// returns the secret plus the provisioning URI — the only time either
// is disclosed. The secret is live immediately: the next login requires
// a code.
func (s *Service) EnableTwoFactor(ctx context.Context, userID string) (secret, uri string, err error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", "", err
	}

	secret, uri, err = GenerateTOTPSecret(s.cfg.Issuer, user.Username)
	if err != nil {
		return "", "", err
	}

	if err := s.users.UpdateTOTP(ctx, user.ID, secret, true); err != nil {
		return "", "", err
	}
	return secret, uri, nil
}

// DisableTwoFactor erases the user's TOTP secret after verifying a
// current code, proving possession of the factor being removed.
func (s *Service) DisableTwoFactor(ctx context.Context, userID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !user.Is2FAEnabled || user.TOTPSecret == "" {
		return ErrTwoFactorNotEnabled
	}

	if !VerifyTOTPCode(code, user.TOTPSecret) {
		return ErrInvalidTwoFactorCode
	}

	return s.users.UpdateTOTP(ctx, user.ID, "", false)
}

// ParseAccessToken validates a bearer token and returns its claims.
// Convenience for the HTTP middleware.
func (s *Service) ParseAccessToken(tokenString string) (*CustomClaims, error) {
	return ParseToken(tokenString, s.cfg.JWTSecret, TokenKindAccess)
}
