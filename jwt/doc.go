// Package jwt signs and verifies compact JWS tokens carrying a subject, its
// authorization claims, and the token kind.
//
// Verification checks structure first, then algorithm, key id, and signature
// over the raw signing input, and only then decodes the payload. Any change to
// the payload segment therefore surfaces as a signature mismatch, never as a
// parse error. Expiry is not checked here: the caller supplies "now" to the
// classifier instead.
package jwt
