package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clearwave/clearwave-core/internal/audit"
	"github.com/clearwave/clearwave-core/internal/devicekey"
	"github.com/clearwave/clearwave-core/internal/org"
)

// issueKeyRequest is the request body for POST /api-keys.
type issueKeyRequest struct {
	SensorID    string `json:"sensor_id"`
	HospitalID  string `json:"hospital_id"`
	Description string `json:"description,omitempty"`
}

// handleListKeys returns issued device keys, optionally narrowed to one
// hospital with ?hospital_id=. Key hashes never leave the server.
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	var (
		keys []devicekey.APIKey
		err  error
	)
	if hospitalID := r.URL.Query().Get("hospital_id"); hospitalID != "" {
		keys, err = s.keyRepo.ListByHospital(r.Context(), hospitalID)
	} else {
		keys, err = s.keyRepo.List(r.Context())
	}
	if err != nil {
		writeInternalError(w, "failed to list keys")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

// handleIssueKey provisions a key for a sensor. The plaintext key
// appears once in this response and is never recoverable afterwards.
// The key starts unvalidated: it cannot submit readings until an
// administrator validates it.
func (s *Server) handleIssueKey(w http.ResponseWriter, r *http.Request) {
	var req issueKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if _, err := s.orgs.GetHospital(r.Context(), req.HospitalID); err != nil {
		if errors.Is(err, org.ErrHospitalNotFound) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "hospital does not exist")
			return
		}
		writeInternalError(w, "failed to verify hospital")
		return
	}

	claims := claimsFrom(r.Context())
	key, plaintext, err := s.keys.Issue(r.Context(), req.SensorID, req.HospitalID, req.Description, claims.Subject)
	if err != nil {
		switch {
		case errors.Is(err, devicekey.ErrInvalidSensorID):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, devicekey.ErrSensorIDTaken):
			writeConflict(w, "sensor already has a key")
		default:
			writeInternalError(w, "failed to issue key")
		}
		return
	}

	s.record(r, audit.Entry{
		UserID:       claims.Subject,
		Username:     claims.Username,
		Action:       audit.ActionKeyIssue,
		ResourceType: "api_key",
		ResourceID:   key.ID,
		Details:      map[string]any{"sensor_id": key.SensorID, "hospital_id": key.HospitalID},
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"key":     key,
		"api_key": plaintext,
	})
}

// handleValidateKey marks a key as admin-approved, letting its sensor
// submit readings. Idempotent.
func (s *Server) handleValidateKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.keys.Validate(r.Context(), id); err != nil {
		if errors.Is(err, devicekey.ErrKeyNotFound) {
			writeNotFound(w, "key not found")
			return
		}
		writeInternalError(w, "failed to validate key")
		return
	}

	claims := claimsFrom(r.Context())
	s.record(r, audit.Entry{
		UserID:       claims.Subject,
		Username:     claims.Username,
		Action:       audit.ActionKeyValidate,
		ResourceType: "api_key",
		ResourceID:   id,
	})

	writeJSON(w, http.StatusNoContent, nil)
}

// handleRevokeKey deactivates a key. To a device a revoked key is
// indistinguishable from one that never existed. The record survives
// for the audit trail, so the sensor id stays reserved.
func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.keys.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, devicekey.ErrKeyNotFound) {
			writeNotFound(w, "key not found")
			return
		}
		writeInternalError(w, "failed to revoke key")
		return
	}

	claims := claimsFrom(r.Context())
	s.record(r, audit.Entry{
		UserID:       claims.Subject,
		Username:     claims.Username,
		Action:       audit.ActionKeyRevoke,
		ResourceType: "api_key",
		ResourceID:   id,
	})

	writeJSON(w, http.StatusNoContent, nil)
}
