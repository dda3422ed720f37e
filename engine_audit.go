package goGuard

import (
	"context"
)

const (
	auditEventValidateSuccess  = "validate_success"
	auditEventValidateRejected = "validate_rejected"
	auditEventAuthorizeDenied  = "authorize_denied"
	auditEventRefreshSuccess   = "refresh_success"
	auditEventRefreshFailure   = "refresh_failure"
	auditEventSessionIssued    = "session_issued"
	auditEventTokenBlacklisted = "token_blacklisted"
)

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now().UTC()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = userAgentFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

// rejectionCode returns the wire code carried by audit events for err.
func rejectionCode(err error) string {
	if err == nil {
		return ""
	}
	if rej, ok := AsRejection(err); ok {
		return rej.Reason.Code()
	}
	return "INTERNAL"
}
