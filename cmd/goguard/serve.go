package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/fingerprint"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/revocation"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo HTTP server",
		Long: `Serve a small API protected by the guard: /me for any authenticated subject,
/admin for the admin role, /auth/refresh and /auth/logout, plus /metrics and /healthz.
In development mode /auth/dev-login issues a session for any known subject.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				c.env.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides GOGUARD_ADDR)")
	return cmd
}

func serve(ctx context.Context, c *cli) error {
	rt, err := openRuntime(ctx, c.env, c.logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.engine.Config()
	pruner := revocation.NewPruner(rt.store, cfg.Revocation.PruneInterval, c.logger)
	pruner.Start()
	defer pruner.Close()

	srv := &http.Server{
		Addr:              c.env.Server.Addr,
		Handler:           newRouter(rt, c.logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info("listening", "addr", srv.Addr, "mode", cfg.Mode, "store", c.env.Server.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.env.Server.ShutdownTimeout)
		defer cancel()
		c.logger.Info("shutting down", "timeout", c.env.Server.ShutdownTimeout)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(rt *runtime, logger *slog.Logger) http.Handler {
	engine := rt.engine
	cfg := engine.Config()
	h := &handlers{engine: engine, resolver: rt.resolver, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Get("/healthz", h.health)
	r.Handle("/metrics", prometheus.NewExporter(engine).Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Method(http.MethodPost, "/refresh", middleware.RefreshHandler(engine))
		if cfg.Mode == goGuard.ModeDevelopment {
			r.Post("/dev-login", h.devLogin)
		}
		r.With(middleware.Guard(engine, goGuard.RoleSet{})).Post("/logout", h.logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(engine, goGuard.RoleSet{}))
		r.Get("/me", h.me)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Guard(engine, goGuard.Roles("admin")))
		r.Get("/", h.me)
		r.Post("/blacklist", h.blacklist)
	})

	return r
}

type handlers struct {
	engine   *goGuard.Engine
	resolver identity.Resolver
	cfg      goGuard.Config
	logger   *slog.Logger
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type devLoginRequest struct {
	Subject string `json:"subject"`
}

type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (h *handlers) devLogin(w http.ResponseWriter, r *http.Request) {
	var body devLoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil || body.Subject == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "subject required", "code": "BAD_REQUEST"})
		return
	}

	id, err := h.resolver.FindByID(r.Context(), body.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			middleware.WriteRejection(w, &goGuard.RejectionError{Reason: goGuard.ReasonUserNotFound, Err: err})
			return
		}
		middleware.WriteRejection(w, &goGuard.RejectionError{Reason: goGuard.ReasonUpstreamUnavailable, Err: err})
		return
	}

	req := goGuard.RequestFromHTTP(r, h.cfg.Transport.TrustForwardedProto)
	pair, err := h.engine.IssueSession(r.Context(), goGuard.SessionInput{
		Subject:     id.SubjectID,
		Role:        id.Role,
		Fingerprint: fingerprint.FromHeader(r.Header, h.cfg.FingerprintHeader),
		IP:          req.ClientIP,
		UserAgent:   req.UserAgent,
	})
	if err != nil {
		h.logger.Error("issue session", "sub", id.SubjectID, "err", err)
		middleware.WriteRejection(w, err)
		return
	}

	h.setCookie(w, h.cfg.Cookies.AccessName, pair.Access.Value, pair.Access.ExpiresAt)
	h.setCookie(w, h.cfg.Cookies.RefreshName, pair.Refresh.Value, pair.Refresh.ExpiresAt)
	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
		TokenType:    "Bearer",
		ExpiresIn:    int64(pair.Access.ExpiresAt.Sub(pair.Access.IssuedAt).Seconds()),
	})
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	auth, ok := goGuard.AuthenticatedFromContext(r.Context())
	if !ok {
		middleware.WriteRejection(w, &goGuard.RejectionError{Reason: goGuard.ReasonNoToken})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject":    auth.Subject(),
		"role":       auth.Role(),
		"token_id":   auth.TokenID(),
		"expires_at": auth.ExpiresAt().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	auth, ok := goGuard.AuthenticatedFromContext(r.Context())
	if !ok {
		middleware.WriteRejection(w, &goGuard.RejectionError{Reason: goGuard.ReasonNoToken})
		return
	}
	if err := h.engine.Blacklist(r.Context(), auth.TokenID()); err != nil {
		middleware.WriteRejection(w, err)
		return
	}
	if c, err := r.Cookie(h.cfg.Cookies.RefreshName); err == nil && c.Value != "" {
		if err := h.engine.Revoke(r.Context(), c.Value); err != nil {
			h.logger.Debug("refresh cookie not revoked", "sub", auth.Subject(), "err", err)
		}
	}

	h.clearCookie(w, h.cfg.Cookies.AccessName)
	h.clearCookie(w, h.cfg.Cookies.RefreshName)
	w.WriteHeader(http.StatusNoContent)
}

type blacklistRequest struct {
	TokenID string `json:"token_id"`
}

func (h *handlers) blacklist(w http.ResponseWriter, r *http.Request) {
	var body blacklistRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body", "code": "BAD_REQUEST"})
		return
	}
	if err := h.engine.Blacklist(r.Context(), body.TokenID); err != nil {
		if errors.Is(err, goGuard.ErrEmptyTokenID) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token_id required", "code": "BAD_REQUEST"})
			return
		}
		middleware.WriteRejection(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.Cookies.Path,
		Domain:   h.cfg.Cookies.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.Cookies.Secure || h.cfg.Mode == goGuard.ModeProduction,
		SameSite: h.cfg.Cookies.SameSite,
	})
}

func (h *handlers) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.cfg.Cookies.Path,
		Domain:   h.cfg.Cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Cookies.Secure || h.cfg.Mode == goGuard.ModeProduction,
		SameSite: h.cfg.Cookies.SameSite,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
