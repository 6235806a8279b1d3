package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() authsession.MetricsSnapshot
	AuditDropped() uint64
}

// phaseSource is implemented by sources that also expose the session state,
// such as *authsession.Client.
type phaseSource interface {
	Snapshot() authsession.Snapshot
}

// PrometheusExporter renders client metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from client.
func NewPrometheusExporter(client *authsession.Client) *PrometheusExporter {
	if client == nil {
		return &PrometheusExporter{}
	}
	return &PrometheusExporter{source: client}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any value
// exposing a metrics snapshot and an audit drop count. If source also has a
// Snapshot method the session phase is exported as a gauge.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves the rendered metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", contentType)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics in Prometheus text exposition format.
//
// It returns "" when the source has metrics disabled, dropped no audit events
// and exposes no session phase.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	phases, hasPhase := p.source.(phaseSource)
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 && !hasPhase {
		return ""
	}

	w := exposition{}
	w.b.Grow(8192)

	if len(snapshot.Counters) > 0 || len(snapshot.Histograms) > 0 {
		for _, def := range internaldefs.CounterDefs {
			w.family(def.Name, def.Help, "counter")
			w.sample(def.Name, "", snapshot.Counters[def.ID])
		}
		for _, def := range internaldefs.HistogramDefs {
			w.histogram(def.Name, def.Help, snapshot.Histograms[def.ID])
		}
	}

	w.family("authsession_audit_dropped_total", "Dropped audit events due to dispatcher backpressure.", "counter")
	w.sample("authsession_audit_dropped_total", "", dropped)

	if hasPhase {
		var authenticated uint64
		if phases.Snapshot().Authenticated() {
			authenticated = 1
		}
		w.family(internaldefs.AuthenticatedGaugeName, internaldefs.AuthenticatedGaugeHelp, "gauge")
		w.sample(internaldefs.AuthenticatedGaugeName, "", authenticated)
	}

	return w.b.String()
}

type exposition struct {
	b strings.Builder
}

func (w *exposition) family(name, help, kind string) {
	w.b.WriteString("# HELP ")
	w.b.WriteString(name)
	w.b.WriteByte(' ')
	w.b.WriteString(escapeHelp(help))
	w.b.WriteString("\n# TYPE ")
	w.b.WriteString(name)
	w.b.WriteByte(' ')
	w.b.WriteString(kind)
	w.b.WriteByte('\n')
}

func (w *exposition) sample(name, le string, value uint64) {
	w.b.WriteString(name)
	if le != "" {
		w.b.WriteString(`{le="`)
		w.b.WriteString(le)
		w.b.WriteString(`"}`)
	}
	w.b.WriteByte(' ')
	w.b.WriteString(strconv.FormatUint(value, 10))
	w.b.WriteByte('\n')
}

func (w *exposition) histogram(name, help string, raw []uint64) {
	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))

	w.family(name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.sample(name+"_bucket", le, cumulative[i])
	}
	w.sample(name+"_count", "", cumulative[len(cumulative)-1])
	// Snapshots carry bucket counts only.
	w.sample(name+"_sum", "", 0)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}
