// Package httpapi serves the token endpoints over net/http:
//
//	GET       /api/hello              guarded greeting
//	POST      /api/authenticate       login, sets the refresh_token cookie
//	GET|POST  /api/token/refresh      rotates the refresh_token cookie
//	GET       /api/token/expiry-time  expiry of the bearer and cookie tokens
//	POST      /api/logout             revokes and clears the cookie
//
// Handlers never log token strings.
package httpapi
