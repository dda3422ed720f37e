// Package goGuard authenticates HTTP requests carrying signed session tokens.
//
// An [Engine] verifies a bearer or cookie credential, consults a revocation store for
// blacklisted token ids, resolves the token subject, rejects tokens issued before the
// subject's last password change, enforces optional device binding and, in production
// mode, a transport policy. [Engine.Authorize] then gates on the subject's current
// role. [Engine.Refresh] mints new access tokens from refresh tokens.
//
// Every failure is a [*RejectionError] whose [Reason] carries the wire code, HTTP
// status and client message. The middleware package is the only place that turns a
// rejection into a response.
//
// Engines are built with [New]:
//
//	engine, err := goGuard.New().
//		WithConfig(cfg).
//		WithRevocationStore(revocation.NewRedisStore(rdb, "gg", 0)).
//		WithIdentityResolver(resolver).
//		Build()
//
// Engine methods are safe for concurrent use.
package goGuard
