package flows

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/goGuard/fingerprint"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureNoToken
	ValidateFailureExpired
	ValidateFailureMalformed
	ValidateFailureBlacklisted
	ValidateFailureUserNotFound
	ValidateFailurePasswordChanged
	ValidateFailureDeviceMismatch
	ValidateFailureInsecureTransport
	ValidateFailureMissingHeaders
	ValidateFailureUpstream
)

// ValidateInput is the transport-neutral view of an inbound request.
type ValidateInput struct {
	Authorization string
	Cookie        string
	Fingerprint   fingerprint.Fingerprint
	Secure        bool
	Header        http.Header
}

// ValidateResult carries the authenticated claims and identity, or a failure.
type ValidateResult struct {
	Failure  ValidateFailureKind
	Err      error
	Token    string
	Claims   *jwt.Claims
	Identity identity.Identity
	Missing  []string
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	Decode        func(token string) (*jwt.Claims, error)
	IsBlacklisted BlacklistLookup
	FindIdentity  IdentityLookup
	Transport     TransportPolicy
}

// RunValidate runs the fixed check sequence and stops at the first failure:
// extract, decode, blacklist, identity, password change, device, transport.
func RunValidate(ctx context.Context, in ValidateInput, deps ValidateDeps) ValidateResult {
	token, ok := ExtractToken(in.Authorization, in.Cookie)
	if !ok {
		return ValidateResult{Failure: ValidateFailureNoToken}
	}

	claims, err := deps.Decode(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return ValidateResult{Failure: ValidateFailureExpired, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureMalformed, Err: err}
	}

	blacklisted, err := deps.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureUpstream, Err: err, Claims: claims}
	}
	if blacklisted {
		return ValidateResult{Failure: ValidateFailureBlacklisted, Claims: claims}
	}

	id, err := deps.FindIdentity(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return ValidateResult{Failure: ValidateFailureUserNotFound, Err: err, Claims: claims}
		}
		return ValidateResult{Failure: ValidateFailureUpstream, Err: err, Claims: claims}
	}

	if id.SupersedesIssuedAt(claims.IssuedAtTime()) {
		return ValidateResult{Failure: ValidateFailurePasswordChanged, Claims: claims, Identity: id}
	}

	if deviceMismatch(claims, in.Fingerprint) {
		return ValidateResult{Failure: ValidateFailureDeviceMismatch, Claims: claims, Identity: id}
	}

	if failure, missing := CheckTransport(deps.Transport, in.Secure, in.Header); failure != ValidateFailureNone {
		return ValidateResult{Failure: failure, Claims: claims, Identity: id, Missing: missing}
	}

	return ValidateResult{Token: token, Claims: claims, Identity: id}
}

// deviceMismatch reports whether the token is bound to a device and the presented
// fingerprint is absent or different.
func deviceMismatch(claims *jwt.Claims, presented fingerprint.Fingerprint) bool {
	digest, bound := claims.BoundFingerprint()
	if !bound {
		return false
	}
	return !presented.Matches(digest)
}
