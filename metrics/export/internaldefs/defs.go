package internaldefs

import (
	"github.com/MrEthical07/authsession"
)

// CounterDef names one client counter for export.
type CounterDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// HistogramDef names one client histogram for export.
type HistogramDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: authsession.MetricLoginSuccess, Name: "authsession_login_success_total", Help: "Sign-ins that established a session."},
	{ID: authsession.MetricLoginFailure, Name: "authsession_login_failure_total", Help: "Rejected or failed sign-ins."},
	{ID: authsession.MetricRegisterSuccess, Name: "authsession_register_success_total", Help: "Sign-ups that established a session."},
	{ID: authsession.MetricRegisterFailure, Name: "authsession_register_failure_total", Help: "Rejected or failed sign-ups."},
	{ID: authsession.MetricRefreshSuccess, Name: "authsession_refresh_success_total", Help: "Refresh exchanges that rotated the credentials."},
	{ID: authsession.MetricRefreshFailure, Name: "authsession_refresh_failure_total", Help: "Failed refresh exchanges."},
	{ID: authsession.MetricRefreshCoalesced, Name: "authsession_refresh_coalesced_total", Help: "Callers that shared an in-flight renewal."},
	{ID: authsession.MetricRefreshSkipped, Name: "authsession_refresh_skipped_total", Help: "Renewals skipped because the credential was already rotated."},
	{ID: authsession.MetricForcedSignOut, Name: "authsession_forced_sign_out_total", Help: "Sessions cleared after a failed renewal."},
	{ID: authsession.MetricLogout, Name: "authsession_logout_total", Help: "Explicit sign-outs."},
	{ID: authsession.MetricRevokeFailure, Name: "authsession_revoke_failure_total", Help: "Sign-outs whose remote revocation failed."},
	{ID: authsession.MetricSessionRestored, Name: "authsession_session_restored_total", Help: "Restores that found a complete session record."},
	{ID: authsession.MetricSessionRestoredAnonymous, Name: "authsession_session_restored_anonymous_total", Help: "Restores that resolved anonymous."},
	{ID: authsession.MetricSessionCorrupt, Name: "authsession_session_corrupt_total", Help: "Restores that discarded a partial or undecodable record."},
	{ID: authsession.MetricSessionEstablished, Name: "authsession_session_established_total", Help: "Published authenticated snapshots."},
	{ID: authsession.MetricSessionCleared, Name: "authsession_session_cleared_total", Help: "Authenticated to anonymous transitions."},
	{ID: authsession.MetricPersistenceFailure, Name: "authsession_persistence_failure_total", Help: "Failed session record writes and removals."},
	{ID: authsession.MetricRequestSent, Name: "authsession_request_sent_total", Help: "Logical requests sent through the client."},
	{ID: authsession.MetricRequestReplayed, Name: "authsession_request_replayed_total", Help: "Requests replayed after a renewal."},
	{ID: authsession.MetricRequestRetryExhausted, Name: "authsession_request_retry_exhausted_total", Help: "Requests still unauthorized after renewal."},
	{ID: authsession.MetricRequestFailure, Name: "authsession_request_failure_total", Help: "Requests that produced no usable response."},
	{ID: authsession.MetricPasswordResetRequest, Name: "authsession_password_reset_request_total", Help: "Forgot-password submissions."},
	{ID: authsession.MetricPasswordResetConfirm, Name: "authsession_password_reset_confirm_total", Help: "Accepted password resets."},
	{ID: authsession.MetricProfileSync, Name: "authsession_profile_sync_total", Help: "User records refreshed from the remote service."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authsession.MetricRequestLatency, Name: "authsession_request_latency_seconds", Help: "Logical request latency histogram."},
}

// HistogramBounds are the upper bounds of the eight latency buckets, in seconds.
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

// AuthenticatedGaugeName is the 0/1 gauge of the client's session phase.
const AuthenticatedGaugeName = "authsession_session_authenticated"

// AuthenticatedGaugeHelp describes AuthenticatedGaugeName.
const AuthenticatedGaugeHelp = "1 while the client holds an authenticated session."

// NormalizeBuckets pads or truncates raw to the eight fixed buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the running totals both
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
