package auth

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// emailPattern is a pragmatic email shape check. Deliverability is not
// verified; the registration whitelist is the real gate.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// IsValidEmail checks if an email address has a plausible shape.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePassword enforces the password policy: minimum length plus at
// least one uppercase letter, one lowercase letter, and one digit.
func ValidatePassword(password string, minLength int) error {
	if len(password) < minLength {
		return ErrWeakPassword
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RolePending is a freshly registered account awaiting promotion.
	// Pending users can see their own profile and nothing else.
	RolePending Role = "pending"

	// RoleAdmin has full platform control: users, regions, hospitals,
	// device keys, the registration whitelist, and the audit trail.
	RoleAdmin Role = "admin"

	// RoleRegionAdmin can read telemetry and fleet status for every
	// hospital inside their assigned region.
	RoleRegionAdmin Role = "region_admin"

	// RoleHospitalUser can read telemetry for their single assigned
	// hospital. No mutating operations.
	RoleHospitalUser Role = "hospital_user"
)

// ValidRoles is the set of roles an account can be assigned.
var ValidRoles = []Role{RolePending, RoleAdmin, RoleRegionAdmin, RoleHospitalUser}

// IsValidRole returns true if the role is a recognised account role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents an authenticated human account.
type User struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"` // never serialised
	TOTPSecret          string     `json:"-"` // never serialised
	Is2FAEnabled        bool       `json:"is_2fa_enabled"`
	Role                Role       `json:"role"`
	RegionID            string     `json:"region_id,omitempty"`
	HospitalID          string     `json:"hospital_id,omitempty"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsLocked reports whether the account is under an active lockout.
// A lockout clears itself by the passage of time; no write is needed.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// AllowedEmail is a registration whitelist entry: either an exact
// address ("nurse@stmarys.org") or a domain suffix ("@stmarys.org",
// which also admits subdomains like "icu.stmarys.org").
type AllowedEmail struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Matches reports whether the candidate email is admitted by this entry.
func (a *AllowedEmail) Matches(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	entry := strings.ToLower(strings.TrimSpace(a.Email))

	if !strings.HasPrefix(entry, "@") {
		return email == entry
	}

	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	allowed := entry[1:]

	return domain == allowed || strings.HasSuffix(domain, "."+allowed)
}

// LoginChallenge is a persisted pending second factor: the password was
// accepted but the TOTP code has not been presented yet.
type LoginChallenge struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenPair is an access/refresh token pair issued on successful
// authentication or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // access token lifetime, seconds
}

// LoginResult is the outcome of a password login. Either Tokens is set,
// or TwoFactorRequired is true and the caller must follow up with a code.
type LoginResult struct {
	User              *User      `json:"-"`
	TwoFactorRequired bool       `json:"two_factor_required"`
	Tokens            *TokenPair `json:"tokens,omitempty"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserNotFound         = errors.New("user not found")
	ErrUsernameExists       = errors.New("username already exists")
	ErrEmailExists          = errors.New("email already registered")
	ErrEmailNotAllowed      = errors.New("email is not on the registration whitelist")
	ErrWeakPassword         = errors.New("password does not meet policy requirements")
	ErrTokenExpired         = errors.New("token has expired")
	ErrTokenRevoked         = errors.New("token has been revoked")
	ErrTokenInvalid         = errors.New("invalid token")
	ErrChallengeExpired     = errors.New("two-factor challenge expired or missing")
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	ErrTwoFactorNotEnabled  = errors.New("two-factor authentication is not enabled")
	ErrForbidden            = errors.New("insufficient permissions")
	ErrInvalidAssignment    = errors.New("invalid role or scope assignment")
)
