package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goGuard/fingerprint"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/jwt"
)

// RefreshFailureKind classifies refresh failures. The root package collapses every
// credential failure into a single generic rejection.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNoToken
	RefreshFailureDecode
	RefreshFailureBlacklisted
	RefreshFailureUserNotFound
	RefreshFailurePasswordChanged
	RefreshFailureUpstream
	RefreshFailureIssue
	RefreshFailureRecord
)

// RefreshResult carries the minted access token or failure metadata.
type RefreshResult struct {
	Failure  RefreshFailureKind
	Err      error
	Claims   *jwt.Claims
	Identity identity.Identity
	Access   jwt.Token
}

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	Decode        func(token string) (*jwt.Claims, error)
	IsBlacklisted BlacklistLookup
	FindIdentity  IdentityLookup
	IssueAccess   func(id identity.Identity, fp fingerprint.Fingerprint) (jwt.Token, error)
	// RecordAccess persists the revocation record of the new access token.
	RecordAccess func(ctx context.Context, tok jwt.Token) error
	// SkipRevocationChecks disables the blacklist and password-change checks.
	SkipRevocationChecks bool
}

// RunRefresh exchanges a refresh token for a new access token bound to presented.
func RunRefresh(ctx context.Context, refreshToken string, presented fingerprint.Fingerprint, deps RefreshDeps) RefreshResult {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureNoToken}
	}

	claims, err := deps.Decode(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	if !deps.SkipRevocationChecks {
		blacklisted, err := deps.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureUpstream, Err: err, Claims: claims}
		}
		if blacklisted {
			return RefreshResult{Failure: RefreshFailureBlacklisted, Claims: claims}
		}
	}

	id, err := deps.FindIdentity(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureUserNotFound, Err: err, Claims: claims}
		}
		return RefreshResult{Failure: RefreshFailureUpstream, Err: err, Claims: claims}
	}

	if !deps.SkipRevocationChecks && id.SupersedesIssuedAt(claims.IssuedAtTime()) {
		return RefreshResult{Failure: RefreshFailurePasswordChanged, Claims: claims, Identity: id}
	}

	access, err := deps.IssueAccess(id, presented)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, Claims: claims, Identity: id}
	}

	if deps.RecordAccess != nil {
		if err := deps.RecordAccess(ctx, access); err != nil {
			return RefreshResult{Failure: RefreshFailureRecord, Err: err, Claims: claims, Identity: id}
		}
	}

	return RefreshResult{Claims: claims, Identity: id, Access: access}
}
