package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/clearwave/clearwave-core/internal/audit"
)

// handleListAuditLogs returns paginated audit log entries with optional filters.
//
// Query parameters:
//   - user_id: filter by acting user
//   - action: filter by action type (auth.login, user.assign_role, ...)
//   - resource_type: filter by resource type (user, api_key, sensor, ...)
//   - status: success or failure
//   - from / to: RFC3339 bounds on the event time (from inclusive, to exclusive)
//   - limit: max results (default 50, max 1000)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		UserID:       q.Get("user_id"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		Status:       q.Get("status"),
	}

	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleAuditStats returns dashboard statistics: event volumes over the
// last day, week, and month, failed logins, top actors, and recent
// critical actions.
func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.auditRepo.Stats(r.Context(), time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to compute audit stats", "error", err)
		writeInternalError(w, "failed to compute audit stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
