// Package middleware adapts goGuard.Engine to net/http.
//
// # Handlers
//
//   - [Guard] validates the request and enforces a role set before calling next.
//   - [RefreshHandler] exchanges a refresh token for a new access token.
//
// Rejections are written as JSON {"error", "code", "details"} with the status the
// engine assigns to the rejection reason.
//
// This package translates HTTP semantics into Engine calls. It does not parse tokens
// or touch the revocation store.
package middleware
