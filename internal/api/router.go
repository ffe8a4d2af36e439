package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clearwave/clearwave-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Auth endpoints (no auth required)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/verify-2fa", s.handleVerifyTwoFactor)
		r.Post("/auth/refresh", s.handleRefresh)

		// Sensor ingest authenticates with a device key, not a JWT
		r.Post("/sensors/data", s.handleIngestReading)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/2fa/enable", s.handleEnableTwoFactor)
			r.Post("/auth/2fa/disable", s.handleDisableTwoFactor)

			// User administration. Region admins hold user:manage too;
			// the handlers narrow reads and assignments to their region,
			// and deletion stays admin-only.
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUserManage))
				r.Get("/", s.handleListUsers)
				r.Get("/{id}", s.handleGetUser)
				r.Put("/{id}/assignment", s.handleAssignUser)
				r.With(s.requireAdmin).Delete("/{id}", s.handleDeleteUser)
			})

			// Organisational structure: reads are scope-narrowed, every
			// mutation is admin-only.
			r.Route("/regions", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermOrgRead)).
					Get("/", s.handleListRegions)
				r.With(s.requirePermission(auth.PermOrgRead)).
					Get("/{id}", s.handleGetRegion)
				r.With(s.requirePermission(auth.PermOrgRead)).
					Get("/{id}/hospitals", s.handleListRegionHospitals)
				r.With(s.requirePermission(auth.PermOrgManage)).
					Post("/", s.handleCreateRegion)
				r.With(s.requirePermission(auth.PermOrgManage)).
					Put("/{id}", s.handleUpdateRegion)
				r.With(s.requirePermission(auth.PermOrgManage)).
					Delete("/{id}", s.handleDeleteRegion)
			})
			r.Route("/hospitals", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermOrgRead)).
					Get("/", s.handleListHospitals)
				r.With(s.requirePermission(auth.PermOrgRead)).
					Get("/{id}", s.handleGetHospital)
				r.With(s.requirePermission(auth.PermOrgManage)).
					Post("/", s.handleCreateHospital)
				r.With(s.requirePermission(auth.PermOrgManage)).
					Put("/{id}", s.handleUpdateHospital)
				r.With(s.requirePermission(auth.PermOrgManage)).
					Delete("/{id}", s.handleDeleteHospital)
			})

			// Device keys
			r.Route("/api-keys", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermKeyManage))
				r.Get("/", s.handleListKeys)
				r.Post("/", s.handleIssueKey)
				r.Post("/{id}/validate", s.handleValidateKey)
				r.Delete("/{id}", s.handleRevokeKey)
			})

			// Registration whitelist
			r.Route("/allowed-emails", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermWhitelistManage))
				r.Get("/", s.handleListAllowedEmails)
				r.Post("/", s.handleAddAllowedEmail)
				r.Delete("/{id}", s.handleRemoveAllowedEmail)
			})

			// Telemetry reads
			r.Route("/sensors", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermTelemetryRead)).
					Get("/data", s.handleListReadings)
				r.With(s.requirePermission(auth.PermTelemetryRead)).
					Get("/latest", s.handleLatestReadings)
				r.With(s.requirePermission(auth.PermTelemetryRead)).
					Get("/{sensorID}/history", s.handleSensorHistory)
				r.With(s.requirePermission(auth.PermSensorOverview)).
					Get("/overview", s.handleSensorOverview)
				r.With(s.requireAdmin).
					Get("/stats", s.handleSensorStats)
			})

			// Audit trail
			r.Route("/audit", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermAuditRead))
				r.Get("/logs", s.handleListAuditLogs)
				r.Get("/stats", s.handleAuditStats)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
