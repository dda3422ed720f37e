package flows

import "strings"

const bearerScheme = "bearer"

// ExtractToken returns the bearer credential from an Authorization header value, or
// the cookie value when the header carries no bearer token.
func ExtractToken(authorization, cookie string) (string, bool) {
	if token, ok := BearerToken(authorization); ok {
		return token, true
	}
	cookie = strings.TrimSpace(cookie)
	return cookie, cookie != ""
}

// BearerToken parses "Bearer <token>" with a case-insensitive scheme.
func BearerToken(value string) (string, bool) {
	value = strings.TrimSpace(value)
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
