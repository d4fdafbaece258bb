// Package token holds the value types shared by every layer of the token
// lifecycle: identities, token kinds, issued pairs, and classification results.
//
// # Architecture boundaries
//
// This package is a leaf. It owns no keys, performs no I/O, and never reads a
// clock. The jwt package encodes these values, internal/flows orchestrates
// them, and the root package re-exports them.
//
// # What this package must NOT do
//
//   - Import tokenAuth, jwt, ledger, or any other sibling package.
//   - Hold mutable state.
package token
