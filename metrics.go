package authsession

import (
	"time"

	internalmetrics "github.com/MrEthical07/authsession/internal/metrics"
)

// MetricID identifies a client counter or histogram.
//
// MetricID values are stable within a release; exporters map them to names.
type MetricID uint16

const (
	// MetricLoginSuccess counts sign-ins that established a session.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected or failed sign-ins.
	MetricLoginFailure
	// MetricRegisterSuccess counts sign-ups that established a session.
	MetricRegisterSuccess
	// MetricRegisterFailure counts rejected or failed sign-ups.
	MetricRegisterFailure
	// MetricRefreshSuccess counts refresh exchanges that rotated the credentials.
	MetricRefreshSuccess
	// MetricRefreshFailure counts failed refresh exchanges.
	MetricRefreshFailure
	// MetricRefreshCoalesced counts callers that shared another caller's renewal.
	MetricRefreshCoalesced
	// MetricRefreshSkipped counts renewals avoided because the credential had already been rotated.
	MetricRefreshSkipped
	// MetricForcedSignOut counts sessions cleared after a failed renewal.
	MetricForcedSignOut
	// MetricLogout counts explicit sign-outs.
	MetricLogout
	// MetricRevokeFailure counts sign-outs whose remote revocation failed.
	MetricRevokeFailure
	// MetricSessionRestored counts restores that found a complete record.
	MetricSessionRestored
	// MetricSessionRestoredAnonymous counts restores that resolved Anonymous.
	MetricSessionRestoredAnonymous
	// MetricSessionCorrupt counts restores that discarded a partial or undecodable record.
	MetricSessionCorrupt
	// MetricSessionEstablished counts published Authenticated snapshots.
	MetricSessionEstablished
	// MetricSessionCleared counts Authenticated to Anonymous transitions.
	MetricSessionCleared
	// MetricPersistenceFailure counts failed session record writes and removals.
	MetricPersistenceFailure
	// MetricRequestSent counts logical requests sent through the client.
	MetricRequestSent
	// MetricRequestReplayed counts requests replayed after a renewal.
	MetricRequestReplayed
	// MetricRequestRetryExhausted counts requests still unauthorized after renewal.
	MetricRequestRetryExhausted
	// MetricRequestFailure counts requests that produced no usable response.
	MetricRequestFailure
	// MetricPasswordResetRequest counts forgot-password submissions.
	MetricPasswordResetRequest
	// MetricPasswordResetConfirm counts accepted password resets.
	MetricPasswordResetConfirm
	// MetricProfileSync counts user records refreshed from the remote service.
	MetricProfileSync
	// MetricRequestLatency is the latency histogram of logical requests.
	MetricRequestLatency
	metricIDCount
)

// Metrics holds the client's counters. A nil or disabled Metrics records
// nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	registry      *internalmetrics.Registry
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics allocates metrics according to cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
		registry:      internalmetrics.NewRegistry(int(metricIDCount)),
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.registry.Inc(int(id))
}

// Observe records d in histogram id. Only MetricRequestLatency is a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricRequestLatency {
		return
	}
	m.registry.Observe(int(id), d)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.registry.Value(int(id))
}

// Snapshot copies every counter, and the latency histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRequestLatency {
			continue
		}
		s.Counters[id] = m.registry.Value(int(id))
	}
	if m.enableLatency {
		s.Histograms[MetricRequestLatency] = m.registry.Buckets(int(MetricRequestLatency))
	}
	return s
}
