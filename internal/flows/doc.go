// Package flows contains the pure orchestrators behind every Engine
// operation.
//
// Each flow (RunIssue, RunClassify, RunRefresh, RunLogin, RunRevoke) takes a
// typed dependency struct and returns a result carrying a failure kind. The
// root package maps failure kinds to its sentinel errors, metrics and audit
// events; flows never log, count, or audit on their own.
//
// # Architecture boundaries
//
// Flows coordinate the signer, the refresh ledger, the identity source and
// the login throttle. They own none of them.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tokenAuth (to avoid import cycles).
//   - Read the wall clock. "now" is always passed in.
package flows
