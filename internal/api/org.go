package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clearwave/clearwave-core/internal/org"
)

// regionRequest is the request body for region create/update.
type regionRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// hospitalRequest is the request body for hospital create/update.
type hospitalRequest struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	RegionID string `json:"region_id"`
	Address  string `json:"address,omitempty"`
}

// handleListRegions returns regions, ordered by name. Region admins see
// only their own region.
func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.orgs.ListRegions(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list regions")
		return
	}

	if scope := scopeFrom(r.Context()); !scope.Unrestricted() {
		visible := make([]org.Region, 0, 1)
		for _, region := range regions {
			if region.ID == scope.RegionID {
				visible = append(visible, region)
			}
		}
		regions = visible
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"regions": regions,
		"count":   len(regions),
	})
}

// handleCreateRegion creates a region.
func (s *Server) handleCreateRegion(w http.ResponseWriter, r *http.Request) {
	var req regionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	region := &org.Region{Name: req.Name, Code: req.Code}
	if err := s.orgs.CreateRegion(r.Context(), region); err != nil {
		writeOrgError(w, err, "failed to create region")
		return
	}

	writeJSON(w, http.StatusCreated, region)
}

// handleGetRegion returns a single region. An out-of-scope region reads
// as not found, leaking nothing about its existence.
func (s *Server) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if scope := scopeFrom(r.Context()); !scope.Unrestricted() && scope.RegionID != id {
		writeNotFound(w, "region not found")
		return
	}

	region, err := s.orgs.GetRegion(r.Context(), id)
	if err != nil {
		writeOrgError(w, err, "failed to load region")
		return
	}

	writeJSON(w, http.StatusOK, region)
}

// handleUpdateRegion renames or recodes a region.
func (s *Server) handleUpdateRegion(w http.ResponseWriter, r *http.Request) {
	var req regionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	region := &org.Region{ID: chi.URLParam(r, "id"), Name: req.Name, Code: req.Code}
	if err := s.orgs.UpdateRegion(r.Context(), region); err != nil {
		writeOrgError(w, err, "failed to update region")
		return
	}

	writeJSON(w, http.StatusOK, region)
}

// handleDeleteRegion deletes a region. Refused while any hospital still
// belongs to it.
func (s *Server) handleDeleteRegion(w http.ResponseWriter, r *http.Request) {
	if err := s.orgs.DeleteRegion(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeOrgError(w, err, "failed to delete region")
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

// handleListRegionHospitals returns the hospitals of one region.
func (s *Server) handleListRegionHospitals(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if scope := scopeFrom(r.Context()); !scope.Unrestricted() && scope.RegionID != id {
		writeNotFound(w, "region not found")
		return
	}

	if _, err := s.orgs.GetRegion(r.Context(), id); err != nil {
		writeOrgError(w, err, "failed to load region")
		return
	}

	hospitals, err := s.orgs.ListHospitalsByRegion(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to list hospitals")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hospitals": hospitals,
		"count":     len(hospitals),
	})
}

// handleListHospitals returns hospitals, ordered by name. Region admins
// see only the hospitals of their own region.
func (s *Server) handleListHospitals(w http.ResponseWriter, r *http.Request) {
	var hospitals []org.Hospital
	var err error
	if scope := scopeFrom(r.Context()); scope.Unrestricted() {
		hospitals, err = s.orgs.ListHospitals(r.Context())
	} else {
		hospitals, err = s.orgs.ListHospitalsByRegion(r.Context(), scope.RegionID)
	}
	if err != nil {
		writeInternalError(w, "failed to list hospitals")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hospitals": hospitals,
		"count":     len(hospitals),
	})
}

// handleCreateHospital creates a hospital inside an existing region.
func (s *Server) handleCreateHospital(w http.ResponseWriter, r *http.Request) {
	var req hospitalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	hospital := &org.Hospital{Name: req.Name, Code: req.Code, RegionID: req.RegionID, Address: req.Address}
	if err := s.orgs.CreateHospital(r.Context(), hospital); err != nil {
		writeOrgError(w, err, "failed to create hospital")
		return
	}

	writeJSON(w, http.StatusCreated, hospital)
}

// handleGetHospital returns a single hospital. Out-of-scope hospitals
// read as not found.
func (s *Server) handleGetHospital(w http.ResponseWriter, r *http.Request) {
	hospital, err := s.orgs.GetHospital(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeOrgError(w, err, "failed to load hospital")
		return
	}

	if scope := scopeFrom(r.Context()); !scope.Unrestricted() && scope.RegionID != hospital.RegionID {
		writeNotFound(w, "hospital not found")
		return
	}

	writeJSON(w, http.StatusOK, hospital)
}

// handleUpdateHospital updates a hospital, including moving it between
// regions.
func (s *Server) handleUpdateHospital(w http.ResponseWriter, r *http.Request) {
	var req hospitalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	hospital := &org.Hospital{
		ID:       chi.URLParam(r, "id"),
		Name:     req.Name,
		Code:     req.Code,
		RegionID: req.RegionID,
		Address:  req.Address,
	}
	if err := s.orgs.UpdateHospital(r.Context(), hospital); err != nil {
		writeOrgError(w, err, "failed to update hospital")
		return
	}

	writeJSON(w, http.StatusOK, hospital)
}

// handleDeleteHospital deletes a hospital. Foreign key references from
// users, device keys, or readings make the delete fail.
func (s *Server) handleDeleteHospital(w http.ResponseWriter, r *http.Request) {
	if err := s.orgs.DeleteHospital(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, org.ErrHospitalNotFound) {
			writeNotFound(w, "hospital not found")
			return
		}
		// FK refusal surfaces as a conflict, not a server fault
		writeConflict(w, "hospital is still referenced by users, keys, or readings")
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

// writeOrgError maps org sentinel errors onto HTTP responses.
func writeOrgError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, org.ErrRegionNotFound):
		writeNotFound(w, "region not found")
	case errors.Is(err, org.ErrHospitalNotFound):
		writeNotFound(w, "hospital not found")
	case errors.Is(err, org.ErrRegionExists), errors.Is(err, org.ErrHospitalExists):
		writeConflict(w, "name or code already in use")
	case errors.Is(err, org.ErrRegionHasHospitals):
		writeConflict(w, "region still contains hospitals")
	case errors.Is(err, org.ErrInvalidName), errors.Is(err, org.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		writeInternalError(w, fallback)
	}
}
