package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/clearwave/clearwave-core/internal/audit"
	"github.com/clearwave/clearwave-core/internal/auth"
)

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// verifyTwoFactorRequest is the request body for POST /auth/verify-2fa.
type verifyTwoFactorRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

// refreshRequest is the request body for POST /auth/refresh and /auth/logout.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// twoFactorCodeRequest is the request body for POST /auth/2fa/disable.
type twoFactorCodeRequest struct {
	Code string `json:"code"`
}

// handleRegister creates a new account. New users land in the pending
// role and see nothing until an administrator assigns them.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailNotAllowed):
			s.record(r, audit.Entry{
				Username: req.Username,
				Action:   audit.ActionRegister,
				Status:   audit.StatusFailure,
				Details:  map[string]any{"reason": "email not whitelisted"},
			})
			writeForbidden(w, "email is not on the registration whitelist")
		case errors.Is(err, auth.ErrUsernameExists), errors.Is(err, auth.ErrEmailExists):
			writeConflict(w, err.Error())
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			writeBadRequest(w, err.Error())
		}
		return
	}

	s.record(r, audit.Entry{
		UserID:       user.ID,
		Username:     user.Username,
		Action:       audit.ActionRegister,
		ResourceType: "user",
		ResourceID:   user.ID,
	})

	writeJSON(w, http.StatusCreated, user)
}

// handleLogin verifies a password. When the account has two-factor
// enabled the response carries no tokens; the client must follow up on
// /auth/verify-2fa. Unknown users, wrong passwords, and locked accounts
// all produce the same 401.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.record(r, audit.Entry{
			Username: req.Username,
			Action:   audit.ActionLogin,
			Status:   audit.StatusFailure,
		})
		writeUnauthorized(w, "invalid credentials")
		return
	}

	if result.TwoFactorRequired {
		writeJSON(w, http.StatusOK, result)
		return
	}

	s.record(r, audit.Entry{
		UserID:   result.User.ID,
		Username: result.User.Username,
		Action:   audit.ActionLogin,
	})

	writeJSON(w, http.StatusOK, result)
}

// handleVerifyTwoFactor completes a pending two-factor login.
func (s *Server) handleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req verifyTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.auth.VerifyTwoFactor(r.Context(), req.Username, req.Code)
	if err != nil {
		s.record(r, audit.Entry{
			Username: req.Username,
			Action:   audit.ActionLogin,
			Status:   audit.StatusFailure,
			Details:  map[string]any{"stage": "two_factor"},
		})
		switch {
		case errors.Is(err, auth.ErrChallengeExpired):
			writeUnauthorized(w, "two-factor challenge expired, log in again")
		default:
			writeUnauthorized(w, "invalid credentials")
		}
		return
	}

	s.record(r, audit.Entry{
		UserID:   result.User.ID,
		Username: result.User.Username,
		Action:   audit.ActionLogin,
		Details:  map[string]any{"stage": "two_factor"},
	})

	writeJSON(w, http.StatusOK, result)
}

// handleRefresh exchanges a refresh token for a new pair. The consumed
// token is blacklisted; presenting it again fails.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeUnauthorized(w, "invalid or expired refresh token")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout blacklists the presented refresh token. Idempotent:
// logging out twice, or with a garbage token, succeeds quietly.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeInternalError(w, "logout failed")
		return
	}

	claims := claimsFrom(r.Context())
	s.record(r, audit.Entry{
		UserID:   claims.Subject,
		Username: claims.Username,
		Action:   audit.ActionLogout,
	})

	writeJSON(w, http.StatusNoContent, nil)
}

// handleMe returns the authenticated user and their permissions.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	user, err := s.users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		writeUnauthorized(w, "account no longer exists")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"permissions": auth.PermissionsForRole(user.Role),
	})
}

// handleEnableTwoFactor provisions a TOTP secret for the caller. The
// secret and otpauth URI appear once in this response and are never
// shown again.
func (s *Server) handleEnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	secret, uri, err := s.auth.EnableTwoFactor(r.Context(), claims.Subject)
	if err != nil {
		writeInternalError(w, "failed to enable two-factor authentication")
		return
	}

	s.record(r, audit.Entry{
		UserID:   claims.Subject,
		Username: claims.Username,
		Action:   audit.ActionEnable2FA,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"secret": secret,
		"uri":    uri,
	})
}

// handleDisableTwoFactor turns off TOTP for the caller. A valid current
// code is required, so a stolen session cannot silently weaken the account.
func (s *Server) handleDisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	claims := claimsFrom(r.Context())
	if err := s.auth.DisableTwoFactor(r.Context(), claims.Subject, req.Code); err != nil {
		switch {
		case errors.Is(err, auth.ErrTwoFactorNotEnabled):
			writeConflict(w, "two-factor authentication is not enabled")
		case errors.Is(err, auth.ErrInvalidTwoFactorCode):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid two-factor code")
		default:
			writeInternalError(w, "failed to disable two-factor authentication")
		}
		return
	}

	s.record(r, audit.Entry{
		UserID:   claims.Subject,
		Username: claims.Username,
		Action:   audit.ActionDisable2FA,
	})

	writeJSON(w, http.StatusNoContent, nil)
}

// record enqueues an audit entry stamped with the request's client
// address and user agent. Best-effort: a full buffer drops the entry.
func (s *Server) record(r *http.Request, entry audit.Entry) {
	if s.recorder == nil {
		return
	}
	entry.IPAddress = clientIP(r)
	entry.UserAgent = r.UserAgent()
	s.recorder.Record(entry)
}

// clientIP extracts the remote host without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
