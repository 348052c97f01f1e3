package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricEventsRecordedTotal  = "audit_events_recorded_total"
	MetricRecordDuration       = "audit_record_duration_seconds"
	MetricTailConflictsTotal   = "audit_tail_conflicts_total"
	MetricVerifyRunsTotal      = "audit_verify_runs_total"
	MetricVerifyAnomaliesTotal = "audit_verify_anomalies_total"
	MetricEventsExportedTotal  = "audit_events_exported_total"
)

// Status constants for record outcomes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Verify result constants.
const (
	VerifyResultValid   = "valid"
	VerifyResultInvalid = "invalid"
)

// Anomaly kind constants.
const (
	AnomalyInvalidSignature = "invalid_signature"
	AnomalyBrokenLink       = "broken_link"
)

// Metrics contains Prometheus metrics for audit trail operations.
// All operations are thread-safe.
type Metrics struct {
	eventsRecorded  *prometheus.CounterVec
	recordDuration  *prometheus.HistogramVec
	tailConflicts   prometheus.Counter
	verifyRuns      *prometheus.CounterVec
	verifyAnomalies *prometheus.CounterVec
	eventsExported  *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEventsRecordedTotal,
				Help: "Total number of audit record attempts by event type and status",
			},
			[]string{"event_type", "status"},
		),
		recordDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricRecordDuration,
				Help:    "Histogram of audit record duration in seconds by event type",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
			},
			[]string{"event_type"},
		),
		tailConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricTailConflictsTotal,
				Help: "Total number of chain tail compare-and-swap conflicts during append",
			},
		),
		verifyRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricVerifyRunsTotal,
				Help: "Total number of integrity verification runs by result",
			},
			[]string{"result"},
		),
		verifyAnomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricVerifyAnomaliesTotal,
				Help: "Total number of integrity anomalies discovered by kind",
			},
			[]string{"kind"},
		),
		eventsExported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEventsExportedTotal,
				Help: "Total number of audit events exported by format",
			},
			[]string{"format"},
		),
	}
}

// Register registers all metrics with the provided registry.
// Returns an error if any metric fails to register.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.eventsRecorded,
		m.recordDuration,
		m.tailConflicts,
		m.verifyRuns,
		m.verifyAnomalies,
		m.eventsExported,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRecord records the outcome and duration of a record attempt.
func (m *Metrics) ObserveRecord(eventType EventType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.eventsRecorded.WithLabelValues(string(eventType), status).Inc()
	m.recordDuration.WithLabelValues(string(eventType)).Observe(seconds)
}

// ObserveTailConflict counts one compare-and-swap conflict.
func (m *Metrics) ObserveTailConflict() {
	if m == nil {
		return
	}
	m.tailConflicts.Inc()
}

// ObserveVerify records the outcome of a verification run.
func (m *Metrics) ObserveVerify(report *Report) {
	if m == nil {
		return
	}
	result := VerifyResultValid
	if !report.Valid {
		result = VerifyResultInvalid
	}
	m.verifyRuns.WithLabelValues(result).Inc()
	if n := len(report.InvalidSignatures); n > 0 {
		m.verifyAnomalies.WithLabelValues(AnomalyInvalidSignature).Add(float64(n))
	}
	if report.BrokenLinks > 0 {
		m.verifyAnomalies.WithLabelValues(AnomalyBrokenLink).Add(float64(report.BrokenLinks))
	}
}

// ObserveExport counts exported events by format.
func (m *Metrics) ObserveExport(format Format, count int) {
	if m == nil {
		return
	}
	m.eventsExported.WithLabelValues(string(format)).Add(float64(count))
}
