package goGuard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/fingerprint"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/revocation"
)

// ErrEmptyTokenID is returned by Blacklist for a blank identifier.
var ErrEmptyTokenID = errors.New("goGuard: empty token id")

// Engine validates, authorizes, refreshes and revokes session tokens. It is safe for
// concurrent use once returned by Builder.Build.
type Engine struct {
	config   Config
	jwt      *jwt.Manager
	store    revocation.Store
	resolver identity.Resolver
	flows    flows.Deps
	audit    *audit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Close flushes pending audit events. The revocation store and resolver belong to
// the caller and stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// Validate authenticates req. The checks run in a fixed order and the first failure
// wins: token presence, decode, blacklist, identity, password change, device binding,
// then the transport policy in production mode. Every failure is a *RejectionError.
func (e *Engine) Validate(ctx context.Context, req Request) (*Authenticated, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()

	res := flows.RunValidate(ctx, flows.ValidateInput{
		Authorization: req.header("Authorization"),
		Cookie:        req.cookie(e.config.Cookies.AccessName),
		Fingerprint:   req.fingerprint(e.config.FingerprintHeader),
		Secure:        req.Secure,
		Header:        req.Header,
	}, e.flows.Validate)

	if res.Failure != flows.ValidateFailureNone {
		rej := validateRejection(res)
		e.recordValidateRejection(ctx, req, res.Claims, rej)
		return nil, rej
	}

	auth := &Authenticated{
		Identity: res.Identity,
		Token:    res.Token,
		Claims:   res.Claims,
	}
	e.metricInc(MetricValidateSuccess)
	e.emitAudit(ctx, AuditEvent{
		Type:      auditEventValidateSuccess,
		Subject:   auth.Subject(),
		TokenID:   auth.TokenID(),
		IP:        req.ClientIP,
		UserAgent: req.UserAgent,
		Success:   true,
	})
	return auth, nil
}

func validateRejection(res flows.ValidateResult) *RejectionError {
	var reason Reason
	switch res.Failure {
	case flows.ValidateFailureNoToken:
		reason = ReasonNoToken
	case flows.ValidateFailureExpired:
		reason = ReasonTokenExpired
	case flows.ValidateFailureMalformed:
		reason = ReasonMalformedToken
	case flows.ValidateFailureBlacklisted:
		reason = ReasonTokenBlacklisted
	case flows.ValidateFailureUserNotFound:
		reason = ReasonUserNotFound
	case flows.ValidateFailurePasswordChanged:
		reason = ReasonPasswordChanged
	case flows.ValidateFailureDeviceMismatch:
		reason = ReasonDeviceMismatch
	case flows.ValidateFailureInsecureTransport:
		reason = ReasonUpgradeHTTPS
	case flows.ValidateFailureMissingHeaders:
		reason = ReasonMissingHeaders
	default:
		reason = ReasonUpstreamUnavailable
	}
	rej := newRejection(reason, res.Err)
	if len(res.Missing) > 0 {
		rej.Missing = append([]string(nil), res.Missing...)
	}
	return rej
}

func (e *Engine) recordValidateRejection(ctx context.Context, req Request, claims *jwt.Claims, rej *RejectionError) {
	e.metricInc(MetricValidateRejected)
	if id, ok := rejectionMetric(rej.Reason); ok {
		e.metricInc(id)
	}

	var subject, tokenID string
	if claims != nil {
		subject, tokenID = claims.Subject, claims.ID
	}

	attrs := []any{"code", rej.Reason.Code(), "ip", req.ClientIP}
	if tokenID != "" {
		attrs = append(attrs, "sub", subject, "jti", tokenID)
	}
	if rej.Err != nil {
		attrs = append(attrs, "err", rej.Err)
	}
	switch rej.Reason {
	case ReasonTokenBlacklisted, ReasonUpstreamUnavailable:
		e.logger.WarnContext(ctx, "request rejected", attrs...)
	default:
		e.logger.DebugContext(ctx, "request rejected", attrs...)
	}

	e.emitAudit(ctx, AuditEvent{
		Type:      auditEventValidateRejected,
		Subject:   subject,
		TokenID:   tokenID,
		IP:        req.ClientIP,
		UserAgent: req.UserAgent,
		Code:      rej.Reason.Code(),
	})
}

// Authorize checks the subject's current role against roles. An empty RoleSet lets
// every authenticated subject through.
func (e *Engine) Authorize(auth *Authenticated, roles RoleSet) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if auth == nil {
		return newRejection(ReasonForbidden, errors.New("no authenticated subject"))
	}
	if roles.Allows(auth.Identity.Role) {
		return nil
	}

	e.metricInc(MetricAuthorizeDenied)
	e.logger.Debug("authorization denied", "sub", auth.Subject(), "role", auth.Identity.Role, "allowed", roles.List())
	e.emitAudit(context.Background(), AuditEvent{
		Type:    auditEventAuthorizeDenied,
		Subject: auth.Subject(),
		TokenID: auth.TokenID(),
		Code:    ReasonForbidden.Code(),
		Metadata: map[string]string{
			"role": auth.Identity.Role,
		},
	})
	return newRejection(ReasonForbidden, fmt.Errorf("role %q not in %v", auth.Identity.Role, roles.List()))
}

// ValidateAndAuthorize runs Validate then Authorize.
func (e *Engine) ValidateAndAuthorize(ctx context.Context, req Request, roles RoleSet) (*Authenticated, error) {
	auth, err := e.Validate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := e.Authorize(auth, roles); err != nil {
		return nil, err
	}
	return auth, nil
}

// Refresh exchanges a refresh token for a new access token bound to presented. Every
// credential failure collapses into ReasonInvalidRefreshToken; backend failures are
// ReasonUpstreamUnavailable.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, presented fingerprint.Fingerprint) (jwt.Token, error) {
	if e == nil {
		return jwt.Token{}, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, presented, e.flows.Refresh)
	if res.Failure != flows.RefreshFailureNone {
		rej := refreshRejection(res)
		e.metricInc(MetricRefreshFailure)
		if rej.Reason == ReasonUpstreamUnavailable {
			e.metricInc(MetricUpstreamFailure)
		}

		var subject, tokenID string
		if res.Claims != nil {
			subject, tokenID = res.Claims.Subject, res.Claims.ID
		}
		level := slog.LevelDebug
		if res.Failure == flows.RefreshFailureBlacklisted || rej.Reason == ReasonUpstreamUnavailable {
			level = slog.LevelWarn
		}
		e.logger.Log(ctx, level, "refresh rejected", "code", rej.Reason.Code(), "sub", subject, "jti", tokenID, "err", rej.Err)
		e.emitAudit(ctx, AuditEvent{
			Type:    auditEventRefreshFailure,
			Subject: subject,
			TokenID: tokenID,
			Code:    rej.Reason.Code(),
		})
		return jwt.Token{}, rej
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditEvent{
		Type:    auditEventRefreshSuccess,
		Subject: res.Identity.SubjectID,
		TokenID: res.Access.ID,
		Success: true,
		Metadata: map[string]string{
			"refresh_jti": res.Claims.ID,
		},
	})
	return res.Access, nil
}

func refreshRejection(res flows.RefreshResult) *RejectionError {
	switch res.Failure {
	case flows.RefreshFailureUpstream, flows.RefreshFailureRecord:
		return newRejection(ReasonUpstreamUnavailable, res.Err)
	case flows.RefreshFailureBlacklisted:
		return newRejection(ReasonInvalidRefreshToken, ErrTokenBlacklisted)
	case flows.RefreshFailurePasswordChanged:
		return newRejection(ReasonInvalidRefreshToken, ErrPasswordChanged)
	default:
		return newRejection(ReasonInvalidRefreshToken, res.Err)
	}
}

// IssueSession mints an access and refresh token pair for a subject whose credentials
// the caller has already verified, and records both in the revocation store.
func (e *Engine) IssueSession(ctx context.Context, in SessionInput) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	access, err := e.jwt.Issue(jwt.IssueInput{
		Kind:        jwt.KindAccess,
		Subject:     in.Subject,
		Role:        in.Role,
		Fingerprint: in.Fingerprint,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("goGuard: issue access token: %w", err)
	}
	refresh, err := e.jwt.Issue(jwt.IssueInput{
		Kind:    jwt.KindRefresh,
		Subject: in.Subject,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("goGuard: issue refresh token: %w", err)
	}

	ip, ua := in.IP, in.UserAgent
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}
	if ua == "" {
		ua = userAgentFromContext(ctx)
	}
	for _, tok := range []jwt.Token{access, refresh} {
		if err := e.insertRecord(ctx, tok, ip, ua); err != nil {
			e.metricInc(MetricUpstreamFailure)
			e.logger.WarnContext(ctx, "session record insert failed", "sub", in.Subject, "jti", tok.ID, "err", err)
			return TokenPair{}, newRejection(ReasonUpstreamUnavailable, err)
		}
	}

	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, AuditEvent{
		Type:      auditEventSessionIssued,
		Subject:   in.Subject,
		TokenID:   access.ID,
		IP:        ip,
		UserAgent: ua,
		Success:   true,
		Metadata: map[string]string{
			"refresh_jti":  refresh.ID,
			"device_bound": fmt.Sprint(in.Fingerprint.Present()),
		},
	})
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Revoke blacklists the token carried by tokenStr. Tokens that fail to decode are
// rejected with their decode reason; an expired token needs no revocation.
func (e *Engine) Revoke(ctx context.Context, tokenStr string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return newRejection(ReasonNoToken, nil)
	}

	claims, err := e.jwt.Decode(tokenStr, jwt.KindAccess)
	if errors.Is(err, jwt.ErrMalformed) {
		if rc, rerr := e.jwt.Decode(tokenStr, jwt.KindRefresh); rerr == nil || errors.Is(rerr, jwt.ErrExpired) {
			claims, err = rc, rerr
		}
	}
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return newRejection(ReasonTokenExpired, err)
		}
		return newRejection(ReasonMalformedToken, err)
	}

	return e.blacklist(ctx, claims.ID, claims.Subject)
}

// Blacklist revokes a token identifier directly. Unknown identifiers are recorded so a
// token minted later under the same id is rejected too.
func (e *Engine) Blacklist(ctx context.Context, tokenID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return ErrEmptyTokenID
	}
	return e.blacklist(ctx, tokenID, "")
}

func (e *Engine) blacklist(ctx context.Context, tokenID, subject string) error {
	lookupCtx, cancel := context.WithTimeout(ctx, e.config.Upstream.Timeout)
	defer cancel()

	if err := e.store.Blacklist(lookupCtx, tokenID); err != nil {
		e.metricInc(MetricUpstreamFailure)
		e.logger.WarnContext(ctx, "blacklist failed", "jti", tokenID, "err", err)
		return newRejection(ReasonUpstreamUnavailable, err)
	}

	e.metricInc(MetricTokenRevoked)
	e.logger.InfoContext(ctx, "token blacklisted", "jti", tokenID, "sub", subject)
	e.emitAudit(ctx, AuditEvent{
		Type:    auditEventTokenBlacklisted,
		Subject: subject,
		TokenID: tokenID,
		Success: true,
	})
	return nil
}

// Prune removes expired revocation records and returns how many were removed.
func (e *Engine) Prune(ctx context.Context) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.store.Prune(ctx)
	if err != nil {
		e.metricInc(MetricUpstreamFailure)
		return 0, err
	}
	if n > 0 {
		e.metrics.Add(MetricRecordsPruned, uint64(n))
	}
	return n, nil
}

func (e *Engine) isBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Upstream.Timeout)
	defer cancel()
	blacklisted, err := e.store.IsBlacklisted(ctx, tokenID)
	if err != nil {
		return false, err
	}
	// A store that ignores ctx must not answer past the deadline.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, fmt.Errorf("%w: %w", revocation.ErrUnavailable, ctxErr)
	}
	return blacklisted, nil
}

func (e *Engine) findIdentity(ctx context.Context, subjectID string) (identity.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Upstream.Timeout)
	defer cancel()
	id, err := e.resolver.FindByID(ctx, subjectID)
	if err != nil {
		return identity.Identity{}, err
	}
	// A resolver that ignores ctx must not succeed past the deadline.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return identity.Identity{}, fmt.Errorf("%w: %w", identity.ErrUnavailable, ctxErr)
	}
	return id, nil
}

func (e *Engine) issueAccess(id identity.Identity, fp fingerprint.Fingerprint) (jwt.Token, error) {
	return e.jwt.Issue(jwt.IssueInput{
		Kind:        jwt.KindAccess,
		Subject:     id.SubjectID,
		Role:        id.Role,
		Fingerprint: fp,
	})
}

func (e *Engine) recordAccess(ctx context.Context, tok jwt.Token) error {
	return e.insertRecord(ctx, tok, clientIPFromContext(ctx), userAgentFromContext(ctx))
}

func (e *Engine) insertRecord(ctx context.Context, tok jwt.Token, ip, userAgent string) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.Upstream.Timeout)
	defer cancel()
	return e.store.Insert(ctx, revocation.Record{
		TokenID:   tok.ID,
		Subject:   tok.Subject,
		Kind:      string(tok.Kind),
		ExpiresAt: tok.ExpiresAt,
		IssuedIP:  ip,
		UserAgent: userAgent,
		CreatedAt: tok.IssuedAt,
	})
}
