// Package api implements the HTTP REST API for SchoolTrack Asset Core.
//
// This package provides:
//   - REST endpoints for device, school, rule, and user CRUD
//   - Derived device metrics and fleet statistics endpoints
//   - JWT bearer authentication with role-based permission checks
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Asynchronous best-effort audit logging on mutations
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between operator tooling (web admin, import scripts,
// district dashboards) and the asset registry. All writes go through the
// device manager / repositories; the server itself holds no state beyond
// the audit write queue.
//
// # Security
//
// Authentication uses short-lived JWT access tokens plus rotating refresh
// tokens with family-based reuse detection. School owners see only the
// schools they own and the devices assigned to them; coordinators and
// admins are unscoped.
package api
