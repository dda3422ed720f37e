package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported from Engine.AuditDropped.
const (
	AuditDroppedName = "goguard_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

var CounterDefs = []CounterDef{
	{ID: goGuard.MetricValidateSuccess, Name: "goguard_validate_success_total", Help: "Requests that passed validation."},
	{ID: goGuard.MetricValidateRejected, Name: "goguard_validate_rejected_total", Help: "Requests rejected by validation."},
	{ID: goGuard.MetricNoToken, Name: "goguard_no_token_total", Help: "Requests without a credential."},
	{ID: goGuard.MetricTokenExpired, Name: "goguard_token_expired_total", Help: "Requests with an expired access token."},
	{ID: goGuard.MetricTokenMalformed, Name: "goguard_token_malformed_total", Help: "Requests with an undecodable or tampered token."},
	{ID: goGuard.MetricTokenBlacklisted, Name: "goguard_token_blacklisted_total", Help: "Requests presenting a blacklisted token."},
	{ID: goGuard.MetricUserNotFound, Name: "goguard_user_not_found_total", Help: "Requests whose subject no longer exists."},
	{ID: goGuard.MetricPasswordChanged, Name: "goguard_password_changed_total", Help: "Requests with a token issued before the last password change."},
	{ID: goGuard.MetricDeviceMismatch, Name: "goguard_device_mismatch_total", Help: "Requests whose device fingerprint did not match the token."},
	{ID: goGuard.MetricTransportRejected, Name: "goguard_transport_rejected_total", Help: "Requests rejected by the production transport policy."},
	{ID: goGuard.MetricAuthorizeDenied, Name: "goguard_authorize_denied_total", Help: "Authenticated requests denied by the role gate."},
	{ID: goGuard.MetricRefreshSuccess, Name: "goguard_refresh_success_total", Help: "Successful refresh operations."},
	{ID: goGuard.MetricRefreshFailure, Name: "goguard_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: goGuard.MetricSessionIssued, Name: "goguard_session_issued_total", Help: "Issued token pairs."},
	{ID: goGuard.MetricTokenRevoked, Name: "goguard_token_revoked_total", Help: "Token identifiers added to the blacklist."},
	{ID: goGuard.MetricUpstreamFailure, Name: "goguard_upstream_failure_total", Help: "Revocation store or identity lookups that failed or timed out."},
	{ID: goGuard.MetricRecordsPruned, Name: "goguard_records_pruned_total", Help: "Revocation records removed by pruning."},
}

var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricValidateLatency, Name: "goguard_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bounds of the engine latency buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds for instrument names that cannot carry
// labels.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size bucket array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
