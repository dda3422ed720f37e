package middleware

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/fingerprint"
)

const maxRefreshBody = 16 << 10

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RefreshHandler serves the refresh endpoint. The refresh token comes from the
// refresh cookie or, failing that, a JSON body {"refresh_token": "..."}. On success it
// answers with the new access token and sets it as the access cookie.
func RefreshHandler(engine *goGuard.Engine) http.Handler {
	var cfg goGuard.Config
	if engine != nil {
		cfg = engine.Config()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			WriteRejection(w, goGuard.ErrEngineNotReady)
			return
		}
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed", Code: "METHOD_NOT_ALLOWED"})
			return
		}

		req := goGuard.RequestFromHTTP(r, cfg.Transport.TrustForwardedProto)

		token := req.Cookies[cfg.Cookies.RefreshName]
		if token == "" {
			token = refreshTokenFromBody(r)
		}
		if token == "" {
			WriteRejection(w, &goGuard.RejectionError{Reason: goGuard.ReasonInvalidRefreshToken, Err: goGuard.ErrNoToken})
			return
		}

		ctx := goGuard.WithClientIP(r.Context(), req.ClientIP)
		ctx = goGuard.WithUserAgent(ctx, req.UserAgent)

		access, err := engine.Refresh(ctx, token, fingerprint.FromHeader(r.Header, cfg.FingerprintHeader))
		if err != nil {
			WriteRejection(w, err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     cfg.Cookies.AccessName,
			Value:    access.Value,
			Path:     cfg.Cookies.Path,
			Domain:   cfg.Cookies.Domain,
			Expires:  access.ExpiresAt,
			HttpOnly: true,
			Secure:   cfg.Cookies.Secure || cfg.Mode == goGuard.ModeProduction,
			SameSite: cfg.Cookies.SameSite,
		})
		writeJSON(w, http.StatusOK, refreshResponse{
			AccessToken: access.Value,
			TokenType:   "Bearer",
			ExpiresIn:   int64(access.ExpiresAt.Sub(access.IssuedAt).Seconds()),
		})
	})
}

func refreshTokenFromBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return ""
	}
	var body refreshRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRefreshBody)).Decode(&body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.RefreshToken)
}
