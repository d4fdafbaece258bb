// Package middleware adapts the tokenAuth engine to net/http.
//
// # Handlers
//
//   - [Guard] authenticates the bearer access token and stores the identity
//     in the request context.
//   - [RequireClaims] enforces role claims on an identity set by Guard.
//
// Token decisions are delegated to Engine.Authenticate; this package only
// maps its errors to status codes and challenges.
package middleware
