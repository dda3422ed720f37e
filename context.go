package goGuard

import "context"

type authenticatedContextKey struct{}
type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithAuthenticated attaches a validated outcome to ctx. The middleware does this for
// every request it lets through.
func WithAuthenticated(ctx context.Context, auth *Authenticated) context.Context {
	return context.WithValue(ctx, authenticatedContextKey{}, auth)
}

// AuthenticatedFromContext returns the outcome stored by WithAuthenticated.
func AuthenticatedFromContext(ctx context.Context) (*Authenticated, bool) {
	if ctx == nil {
		return nil, false
	}
	auth, ok := ctx.Value(authenticatedContextKey{}).(*Authenticated)
	return auth, ok && auth != nil
}

// WithClientIP attaches the caller's IP address to ctx. Refresh and IssueSession store
// it on the revocation record of the tokens they mint, and audit events carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}
