// Package tokenAuth is a bearer-token lifecycle engine: it issues signed
// access/refresh token pairs, classifies presented tokens, and rotates
// refresh tokens with reuse detection.
//
// Build an [Engine] with [New] and [Builder.Build]; after that it is
// immutable and safe for concurrent use.
//
// # Architecture boundaries
//
// The root package is the public surface ([Engine], [Builder], [Config],
// sentinel errors). Signing lives in jwt/, the shared value types in token/,
// the refresh ledger backends in ledger/. Flow orchestration, throttling,
// audit dispatch and counters live under internal/.
//
// # Time
//
// Issue, Classify and Refresh take "now" from the caller. Login, Revoke,
// Authenticate and ExpiresAt read the injected [Clock].
//
// # What this package must NOT do
//
//   - Log or audit raw token strings.
//   - Read identity from anything but an explicit context value or the
//     token payload.
//   - Import a sub-package that re-imports tokenAuth.
package tokenAuth
