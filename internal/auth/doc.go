// Package auth issues and verifies the credentials used by devices and
// controllers.
//
// It provides:
//   - HS256 JWT access and refresh tokens carrying a subject and a role
//     (device or controller)
//   - Argon2id hashing of device secrets (OWASP 2025 recommendation)
//   - One-time pairing codes that gate device registration
//
// Refresh tokens may be issued without an expiry so headless devices keep
// working indefinitely without re-pairing. They are marked with a refresh
// claim and are never accepted where an access token is expected.
package auth
