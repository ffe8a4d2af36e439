// Package auth provides authentication and authorisation for ClearWave Core.
//
// It implements a 4-tier role model (pending → hospital_user → region_admin
// → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - JWT access/refresh token rotation with a revocation blacklist
//   - Optional TOTP two-factor login via a persisted challenge step
//   - Email whitelist gating self-registration
//   - Static role-permission mapping (compile-time, no database lookup)
//
// Data visibility uses a "zero access by default" model: new accounts land
// in the pending role and can do nothing until an admin promotes them.
// Region admins see every hospital in their region; hospital users see
// exactly one hospital. Admin bypasses scope narrowing entirely.
package auth
