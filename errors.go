package goGuard

import (
	"errors"
	"net/http"
	"strings"
)

// Reason is the closed set of rejection causes. Every Reason maps to exactly one
// wire code, HTTP status and client message.
type Reason uint8

const (
	ReasonNoToken Reason = iota + 1
	ReasonTokenExpired
	ReasonMalformedToken
	ReasonTokenBlacklisted
	ReasonUserNotFound
	ReasonPasswordChanged
	ReasonForbidden
	ReasonDeviceMismatch
	ReasonUpgradeHTTPS
	ReasonMissingHeaders
	ReasonInvalidRefreshToken
	ReasonUpstreamUnavailable
)

var (
	ErrNoToken             = errors.New("no token")
	ErrTokenExpired        = errors.New("token expired")
	ErrMalformedToken      = errors.New("malformed token")
	ErrTokenBlacklisted    = errors.New("token blacklisted")
	ErrUserNotFound        = errors.New("user not found")
	ErrPasswordChanged     = errors.New("password changed after token issuance")
	ErrForbidden           = errors.New("forbidden")
	ErrDeviceMismatch      = errors.New("device mismatch")
	ErrUpgradeHTTPS        = errors.New("https required")
	ErrMissingHeaders      = errors.New("missing security headers")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrEngineNotReady is returned by Engine methods called on a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Code returns the stable machine-readable code sent to clients.
func (r Reason) Code() string {
	switch r {
	case ReasonNoToken:
		return "NO_TOKEN"
	case ReasonTokenExpired:
		return "TOKEN_EXPIRED"
	case ReasonMalformedToken:
		return "MALFORMED_TOKEN"
	case ReasonTokenBlacklisted:
		return "TOKEN_BLACKLISTED"
	case ReasonUserNotFound:
		return "USER_NOT_FOUND"
	case ReasonPasswordChanged:
		return "PASSWORD_CHANGED"
	case ReasonForbidden:
		return "FORBIDDEN"
	case ReasonDeviceMismatch:
		return "DEVICE_MISMATCH"
	case ReasonUpgradeHTTPS:
		return "UPGRADE_HTTPS"
	case ReasonMissingHeaders:
		return "MISSING_HEADERS"
	case ReasonInvalidRefreshToken:
		return "INVALID_REFRESH_TOKEN"
	case ReasonUpstreamUnavailable:
		return "UPSTREAM_UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// HTTPStatus returns the response status for the rejection.
func (r Reason) HTTPStatus() int {
	switch r {
	case ReasonNoToken,
		ReasonTokenExpired,
		ReasonMalformedToken,
		ReasonTokenBlacklisted,
		ReasonUserNotFound,
		ReasonPasswordChanged,
		ReasonDeviceMismatch,
		ReasonInvalidRefreshToken:
		return http.StatusUnauthorized
	case ReasonForbidden:
		return http.StatusForbidden
	case ReasonUpgradeHTTPS:
		return http.StatusUpgradeRequired
	case ReasonMissingHeaders:
		return http.StatusBadRequest
	case ReasonUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the human-readable client message.
func (r Reason) Message() string {
	switch r {
	case ReasonNoToken:
		return "Authentication required"
	case ReasonTokenExpired:
		return "Token expired"
	case ReasonMalformedToken:
		return "Malformed token"
	case ReasonTokenBlacklisted:
		return "Invalid session"
	case ReasonUserNotFound:
		return "User not found"
	case ReasonPasswordChanged:
		return "Password changed. Please login again"
	case ReasonForbidden:
		return "Insufficient permissions"
	case ReasonDeviceMismatch:
		return "Session compromised"
	case ReasonUpgradeHTTPS:
		return "HTTPS required"
	case ReasonMissingHeaders:
		return "Missing security headers"
	case ReasonInvalidRefreshToken:
		return "Invalid refresh token"
	case ReasonUpstreamUnavailable:
		return "Service temporarily unavailable"
	default:
		return "Internal error"
	}
}

func (r Reason) String() string {
	return r.Code()
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonNoToken:
		return ErrNoToken
	case ReasonTokenExpired:
		return ErrTokenExpired
	case ReasonMalformedToken:
		return ErrMalformedToken
	case ReasonTokenBlacklisted:
		return ErrTokenBlacklisted
	case ReasonUserNotFound:
		return ErrUserNotFound
	case ReasonPasswordChanged:
		return ErrPasswordChanged
	case ReasonForbidden:
		return ErrForbidden
	case ReasonDeviceMismatch:
		return ErrDeviceMismatch
	case ReasonUpgradeHTTPS:
		return ErrUpgradeHTTPS
	case ReasonMissingHeaders:
		return ErrMissingHeaders
	case ReasonInvalidRefreshToken:
		return ErrInvalidRefreshToken
	case ReasonUpstreamUnavailable:
		return ErrUpstreamUnavailable
	default:
		return nil
	}
}

// RejectionError is the only error kind returned by Validate, Authorize and Refresh.
// Err holds the internal cause for logs and is never sent to clients.
type RejectionError struct {
	Reason  Reason
	Err     error
	Missing []string
}

func newRejection(reason Reason, cause error) *RejectionError {
	return &RejectionError{Reason: reason, Err: cause}
}

func (e *RejectionError) Error() string {
	var b strings.Builder
	b.WriteString("goGuard: ")
	b.WriteString(e.Reason.Code())
	if len(e.Missing) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Missing, ", "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of e.Reason, so errors.Is(err, ErrTokenExpired) works on
// any rejection.
func (e *RejectionError) Is(target error) bool {
	s := e.Reason.sentinel()
	return s != nil && target == s
}

// AsRejection extracts a *RejectionError from err.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
