// Package auth provides authentication and authorisation for SchoolTrack.
//
// It implements a 3-tier role model (school_owner → coordinator → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - JWT access/refresh token rotation with family-based theft detection
//   - School-scoped visibility for school owners via device assignment
//   - Static role-permission mapping (compile-time, no database lookup)
//
// School scoping derives from ownership rather than explicit grants: a
// school owner sees exactly the schools whose owner_user_id matches their
// account, and the devices assigned to those schools. Coordinator and
// admin roles bypass school scoping entirely.
package auth
