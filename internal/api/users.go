package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clearwave/clearwave-core/internal/audit"
	"github.com/clearwave/clearwave-core/internal/auth"
	"github.com/clearwave/clearwave-core/internal/org"
)

// assignRequest is the request body for PUT /users/{id}/assignment.
type assignRequest struct {
	Role       string `json:"role"`
	RegionID   string `json:"region_id,omitempty"`
	HospitalID string `json:"hospital_id,omitempty"`
}

// handleListUsers returns accounts, newest first. Region admins see only
// users assigned to their own region.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	if scope := scopeFrom(r.Context()); !scope.Unrestricted() {
		visible := make([]auth.User, 0, len(users))
		for _, u := range users {
			if u.RegionID != "" && u.RegionID == scope.RegionID {
				visible = append(visible, u)
			}
		}
		users = visible
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleGetUser returns a single account by ID. A user outside the
// caller's region reads as not found.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to load user")
		return
	}

	if scope := scopeFrom(r.Context()); !scope.Unrestricted() {
		if user.RegionID == "" || user.RegionID != scope.RegionID {
			writeNotFound(w, "user not found")
			return
		}
	}

	writeJSON(w, http.StatusOK, user)
}

// handleAssignUser sets a user's role and scope. The scope must be
// coherent with the role: a region admin gets a region, a hospital user
// gets a hospital (its region is derived, not trusted from the request),
// and every other role carries no scope at all.
func (s *Server) handleAssignUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	role := auth.Role(req.Role)
	if !auth.IsValidRole(role) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown role")
		return
	}

	claims := claimsFrom(r.Context())
	if claims.Subject == id {
		writeConflict(w, "administrators cannot change their own assignment")
		return
	}

	// Region admins reassign only users already in their region, only to
	// the hospital_user role, and only into their own region's hospitals.
	scope := scopeFrom(r.Context())
	if !scope.Unrestricted() {
		if role != auth.RoleHospitalUser {
			writeForbidden(w, "region admins can only assign the hospital_user role")
			return
		}
		target, err := s.users.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				writeNotFound(w, "user not found")
				return
			}
			writeInternalError(w, "failed to load user")
			return
		}
		if target.RegionID == "" || target.RegionID != scope.RegionID {
			writeNotFound(w, "user not found")
			return
		}
	}

	var regionID, hospitalID string
	switch role {
	case auth.RoleRegionAdmin:
		if req.RegionID == "" {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "region admin requires a region")
			return
		}
		if _, err := s.orgs.GetRegion(r.Context(), req.RegionID); err != nil {
			if errors.Is(err, org.ErrRegionNotFound) {
				writeError(w, http.StatusBadRequest, ErrCodeValidation, "region does not exist")
				return
			}
			writeInternalError(w, "failed to verify region")
			return
		}
		regionID = req.RegionID

	case auth.RoleHospitalUser:
		if req.HospitalID == "" {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "hospital user requires a hospital")
			return
		}
		hospital, err := s.orgs.GetHospital(r.Context(), req.HospitalID)
		if err != nil {
			if errors.Is(err, org.ErrHospitalNotFound) {
				writeError(w, http.StatusBadRequest, ErrCodeValidation, "hospital does not exist")
				return
			}
			writeInternalError(w, "failed to verify hospital")
			return
		}
		if req.RegionID != "" && req.RegionID != hospital.RegionID {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "hospital does not belong to the given region")
			return
		}
		if !scope.Unrestricted() && hospital.RegionID != scope.RegionID {
			writeForbidden(w, "hospital is outside your region")
			return
		}
		regionID = hospital.RegionID
		hospitalID = hospital.ID

	default:
		// admin and pending carry no scope
	}

	if err := s.users.UpdateAssignment(r.Context(), id, role, regionID, hospitalID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to update assignment")
		return
	}

	s.record(r, audit.Entry{
		UserID:       claims.Subject,
		Username:     claims.Username,
		Action:       audit.ActionAssignRole,
		ResourceType: "user",
		ResourceID:   id,
		Details: map[string]any{
			"role":        string(role),
			"region_id":   regionID,
			"hospital_id": hospitalID,
		},
	})

	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes an account. Administrators cannot delete
// themselves; that path to an unmanageable system is closed.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims := claimsFrom(r.Context())
	if claims.Subject == id {
		writeConflict(w, "administrators cannot delete their own account")
		return
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to delete user")
		return
	}

	s.record(r, audit.Entry{
		UserID:       claims.Subject,
		Username:     claims.Username,
		Action:       audit.ActionDeleteUser,
		ResourceType: "user",
		ResourceID:   id,
	})

	writeJSON(w, http.StatusNoContent, nil)
}

// handleListAllowedEmails returns the registration whitelist.
func (s *Server) handleListAllowedEmails(w http.ResponseWriter, r *http.Request) {
	entries, err := s.users.ListAllowedEmails(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list allowed emails")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"allowed_emails": entries,
		"count":          len(entries),
	})
}

// handleAddAllowedEmail adds a whitelist entry: an exact address, or a
// domain suffix starting with "@".
func (s *Server) handleAddAllowedEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "email is required")
		return
	}

	claims := claimsFrom(r.Context())
	entry := &auth.AllowedEmail{Email: req.Email, CreatedBy: claims.Subject}
	if err := s.users.AddAllowedEmail(r.Context(), entry); err != nil {
		if errors.Is(err, auth.ErrEmailExists) {
			writeConflict(w, "entry already exists")
			return
		}
		writeInternalError(w, "failed to add allowed email")
		return
	}

	s.record(r, audit.Entry{
		UserID:       claims.Subject,
		Username:     claims.Username,
		Action:       audit.ActionWhitelistAdd,
		ResourceType: "allowed_email",
		ResourceID:   entry.ID,
		Details:      map[string]any{"email": entry.Email},
	})

	writeJSON(w, http.StatusCreated, entry)
}

// handleRemoveAllowedEmail deletes a whitelist entry. Existing accounts
// registered under it are unaffected.
func (s *Server) handleRemoveAllowedEmail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.users.RemoveAllowedEmail(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "entry not found")
			return
		}
		writeInternalError(w, "failed to remove allowed email")
		return
	}

	claims := claimsFrom(r.Context())
	s.record(r, audit.Entry{
		UserID:       claims.Subject,
		Username:     claims.Username,
		Action:       audit.ActionWhitelistRemove,
		ResourceType: "allowed_email",
		ResourceID:   id,
	})

	writeJSON(w, http.StatusNoContent, nil)
}
