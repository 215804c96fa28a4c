package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/schooltrack/asset-core/internal/auth"
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

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/logout", s.handleLogout)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Get("/stats", s.handleDeviceStats)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermDeviceWrite))
					r.Post("/", s.handleCreateDevice)
					r.Post("/bulk", s.handleBulkCreateDevices)
				})
				r.With(s.requirePermission(auth.PermDeviceAssign)).
					Post("/bulk-assign", s.handleBulkAssignDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Get("/metrics", s.handleGetDeviceMetrics)

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermDeviceWrite))
						r.Patch("/", s.handleUpdateDevice)
						r.Delete("/", s.handleDeleteDevice)
					})
					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermDeviceAssign))
						r.Post("/assign", s.handleAssignDevice)
						r.Post("/unassign", s.handleUnassignDevice)
					})
				})
			})

			// School endpoints
			r.Route("/schools", func(r chi.Router) {
				r.Get("/", s.handleListSchools)
				r.With(s.requirePermission(auth.PermSchoolManage)).
					Post("/", s.handleCreateSchool)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetSchool)
					r.Get("/devices", s.handleListSchoolDevices)

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermSchoolManage))
						r.Patch("/", s.handleUpdateSchool)
						r.Delete("/", s.handleDeleteSchool)
					})
				})
			})

			// Automation rule endpoints
			r.Route("/rules", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermRuleRun)).
					Get("/", s.handleListRules)
				r.With(s.requirePermission(auth.PermRuleManage)).
					Post("/", s.handleCreateRule)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermRuleRun)).
						Get("/", s.handleGetRule)
					r.With(s.requirePermission(auth.PermRuleRun)).
						Get("/runs", s.handleListRuleRuns)
					r.With(s.requirePermission(auth.PermRuleRun)).
						Post("/run", s.handleRunRule)

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermRuleManage))
						r.Patch("/", s.handleUpdateRule)
						r.Delete("/", s.handleDeleteRule)
					})
				})
			})

			// User management (admin only)
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUserManage))

				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Patch("/", s.handleUpdateUser)
					r.Delete("/", s.handleDeleteUser)
					r.Get("/sessions", s.handleListUserSessions)
					r.Delete("/sessions", s.handleRevokeUserSessions)
				})
			})

			// Audit trail
			r.With(s.requirePermission(auth.PermAuditRead)).
				Get("/audit", s.handleListAuditLogs)

			// Destructive system operations (admin only)
			r.With(s.requirePermission(auth.PermSystemDangerous)).
				Post("/system/reset", s.handleSystemReset)
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
