// Package ledger records consumed refresh token ids and revoked rotation
// families so a refresh token can be exchanged at most once.
//
// # Semantics
//
// Consume is an atomic check-and-mark keyed by the token id:
//
//   - the family is revoked: OutcomeFamilyRevoked, nothing is marked.
//   - the id is unseen: it is marked until the token expires, OutcomeConsumed.
//   - the id was already consumed: the family is revoked until
//     Record.RevokeUntil, OutcomeReplayed.
//
// A replay therefore also kills the token the first consumer received, so a
// leaked refresh token cannot keep a session alive once both parties use it.
//
// # Implementations
//
//   - [Memory]: process-local maps behind a mutex. Default.
//   - [Redis]: one Lua script per Consume; keys expire with the token.
//   - [Postgres]: INSERT ... ON CONFLICT DO NOTHING inside a transaction.
package ledger
