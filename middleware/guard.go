package middleware

import (
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

// Guard validates each request with engine and lets it through only when the subject's
// current role is in roles. An empty RoleSet admits every authenticated subject.
//
// Handlers downstream read the outcome with goGuard.AuthenticatedFromContext.
func Guard(engine *goGuard.Engine, roles goGuard.RoleSet) func(http.Handler) http.Handler {
	var trustProxy bool
	if engine != nil {
		trustProxy = engine.Config().Transport.TrustForwardedProto
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteRejection(w, goGuard.ErrEngineNotReady)
				return
			}

			req := goGuard.RequestFromHTTP(r, trustProxy)
			ctx := goGuard.WithClientIP(r.Context(), req.ClientIP)
			ctx = goGuard.WithUserAgent(ctx, req.UserAgent)

			auth, err := engine.ValidateAndAuthorize(ctx, req, roles)
			if err != nil {
				WriteRejection(w, err)
				return
			}

			ctx = goGuard.WithAuthenticated(ctx, auth)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
