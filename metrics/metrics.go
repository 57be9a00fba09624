// Package metrics exposes the optional Prometheus instrumentation for the
// registry and lifecycle packages. Every method is safe to call on a nil
// *Metrics, so core resolver/lifecycle code carries no hard dependency on
// a Prometheus registry ever being configured.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "pluginloader"

// Metrics bundles the gauges/counters/histograms the manager updates as it
// drives discovery, resolution, and lifecycle transitions.
type Metrics struct {
	RegistrySize        prometheus.Gauge
	PendingRequests      prometheus.Gauge
	LinkableRecords      prometheus.Gauge
	ConstructionFailures prometheus.Counter
	ActivationFailures   prometheus.Counter
	DeactivationFailures prometheus.Counter
	InitializeDuration   prometheus.Histogram
	SatisfyPassDuration  prometheus.Histogram
}

// New builds a Metrics bundle and registers it against reg. Passing a nil
// reg is valid: the bundle is still constructed (so callers don't need a
// nil check on the struct itself) but never exposed to a scraper.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RegistrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_records",
			Help:      "Number of records currently in the registry arena.",
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Number of outstanding dependency/parent requests.",
		}),
		LinkableRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "linkable_records",
			Help:      "Number of records whose linkability has been established.",
		}),
		ConstructionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "construction_failures_total",
			Help:      "Number of records whose constructor returned an error.",
		}),
		ActivationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activation_failures_total",
			Help:      "Number of records whose activator hooks still failed after the end-of-initialize retry.",
		}),
		DeactivationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deactivation_failures_total",
			Help:      "Number of deactivator hook invocations that failed.",
		}),
		InitializeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "initialize_duration_seconds",
			Help:      "Wall-clock duration of a full Initialize call.",
			Buckets:   prometheus.DefBuckets,
		}),
		SatisfyPassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "satisfy_pass_duration_seconds",
			Help:      "Wall-clock duration of a single resolver satisfy pass.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RegistrySize,
			m.PendingRequests,
			m.LinkableRecords,
			m.ConstructionFailures,
			m.ActivationFailures,
			m.DeactivationFailures,
			m.InitializeDuration,
			m.SatisfyPassDuration,
		)
	}
	return m
}

// ObserveRegistry records a registry/pending/linkable snapshot. Safe on nil.
func (m *Metrics) ObserveRegistry(records, pending, linkable int) {
	if m == nil {
		return
	}
	m.RegistrySize.Set(float64(records))
	m.PendingRequests.Set(float64(pending))
	m.LinkableRecords.Set(float64(linkable))
}

// IncConstructionFailure increments the construction-failure counter. Safe on nil.
func (m *Metrics) IncConstructionFailure() {
	if m == nil {
		return
	}
	m.ConstructionFailures.Inc()
}

// IncActivationFailure increments the activation-failure counter. Safe on nil.
func (m *Metrics) IncActivationFailure() {
	if m == nil {
		return
	}
	m.ActivationFailures.Inc()
}

// IncDeactivationFailure increments the deactivation-failure counter. Safe on nil.
func (m *Metrics) IncDeactivationFailure() {
	if m == nil {
		return
	}
	m.DeactivationFailures.Inc()
}

// ObserveInitializeSeconds records one Initialize call's duration. Safe on nil.
func (m *Metrics) ObserveInitializeSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.InitializeDuration.Observe(seconds)
}

// ObserveSatisfyPassSeconds records one SatisfyPass call's duration. Safe on nil.
func (m *Metrics) ObserveSatisfyPassSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.SatisfyPassDuration.Observe(seconds)
}
