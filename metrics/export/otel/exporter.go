package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authsession.MetricsSnapshot
	AuditDropped() uint64
}

// phaseSource is implemented by sources that also expose the session state,
// such as *authsession.Client.
type phaseSource interface {
	Snapshot() authsession.Snapshot
}

// bucketSet pre-computes one attribute set per bucket bound so collection
// does not allocate them.
type bucketSet struct {
	id      authsession.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	bounds  []metric.ObserveOption
}

// OTelExporter publishes a client's metrics through observable instruments.
//
// Counters map to Int64ObservableCounter. Each latency histogram maps to a
// "<name>_bucket" gauge carrying cumulative counts under an "le" attribute
// plus a "<name>_count" gauge.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	counters      map[authsession.MetricID]metric.Int64ObservableCounter
	histograms    []bucketSet
	auditDropped  metric.Int64ObservableCounter
	authenticated metric.Int64ObservableGauge
}

// NewOTelExporter registers instruments on meter that read from client.
func NewOTelExporter(meter metric.Meter, client *authsession.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

// NewOTelExporterFromSource registers instruments on meter that read from
// source. When source also reports session snapshots an
// authsession_session_authenticated gauge is registered.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[authsession.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help), metric.WithUnit("{event}"))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = ins
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		set, err := newBucketSet(meter, def)
		if err != nil {
			return nil, err
		}
		e.histograms = append(e.histograms, set)
		observables = append(observables, set.buckets, set.count)
	}

	dropped, err := meter.Int64ObservableCounter(
		"authsession_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	if _, ok := source.(phaseSource); ok {
		gauge, err := meter.Int64ObservableGauge(
			internaldefs.AuthenticatedGaugeName,
			metric.WithDescription(internaldefs.AuthenticatedGaugeHelp),
		)
		if err != nil {
			return nil, fmt.Errorf("create session gauge: %w", err)
		}
		e.authenticated = gauge
		observables = append(observables, gauge)
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func newBucketSet(meter metric.Meter, def internaldefs.HistogramDef) (bucketSet, error) {
	set := bucketSet{id: def.ID, bounds: make([]metric.ObserveOption, len(internaldefs.HistogramBounds))}
	for i, le := range internaldefs.HistogramBounds {
		set.bounds[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
	}

	var err error
	set.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket",
		metric.WithDescription(def.Help+" Cumulative bucket counts by upper bound."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return bucketSet{}, fmt.Errorf("create histogram bucket gauge %s: %w", def.Name, err)
	}
	set.count, err = meter.Int64ObservableGauge(def.Name+"_count",
		metric.WithDescription(def.Help+" Total sample count."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return bucketSet{}, fmt.Errorf("create histogram count gauge %s: %w", def.Name, err)
	}
	return set, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snapshot.Counters[id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i, opt := range h.bounds {
			o.ObserveInt64(h.buckets, int64(cumulative[i]), opt)
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	if e.authenticated != nil {
		var v int64
		if e.source.(phaseSource).Snapshot().Authenticated() {
			v = 1
		}
		o.ObserveInt64(e.authenticated, v)
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
