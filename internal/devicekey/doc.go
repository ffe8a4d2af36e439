// Package devicekey is the authority for sensor API keys: issuance,
// admin validation, revocation, and request authentication.
//
// A key is born inactive in practice — it exists but cannot authenticate
// until an admin validates it. The plaintext secret is disclosed exactly
// once, in the issue response; only its SHA-256 and a short display
// prefix are stored. Authentication follows a fixed precedence: does the
// key exist, has it been validated, does it claim its own sensor. Each
// key also carries a token-bucket rate limit checked before any side
// effect, so a runaway sensor cannot grind the store.
package devicekey
