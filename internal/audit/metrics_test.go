package audit

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterValue(mf *dto.MetricFamily, labels map[string]string) float64 {
	if mf == nil {
		return 0
	}
	for _, m := range mf.GetMetric() {
		matched := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				matched = false
				break
			}
		}
		if matched {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics_RegisterAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Double registration must surface the registry's error.
	if err := metrics.Register(reg); err == nil {
		t.Error("Register() twice should fail")
	}
}

func TestMetrics_ObserveRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	metrics.ObserveRecord(EventAuthLogin, StatusSuccess, 0.012)
	metrics.ObserveRecord(EventAuthLogin, StatusSuccess, 0.020)
	metrics.ObserveRecord(EventPaymentFailed, StatusFailure, 0.500)

	recorded := gatherMetric(t, reg, MetricEventsRecordedTotal)
	if got := counterValue(recorded, map[string]string{"event_type": string(EventAuthLogin), "status": StatusSuccess}); got != 2 {
		t.Errorf("recorded{auth.login,success} = %v, want 2", got)
	}
	if got := counterValue(recorded, map[string]string{"event_type": string(EventPaymentFailed), "status": StatusFailure}); got != 1 {
		t.Errorf("recorded{payment.failed,failure} = %v, want 1", got)
	}

	duration := gatherMetric(t, reg, MetricRecordDuration)
	if duration == nil {
		t.Fatal("record duration histogram not gathered")
	}
	for _, m := range duration.GetMetric() {
		if m.GetLabel()[0].GetValue() == string(EventAuthLogin) {
			if got := m.GetHistogram().GetSampleCount(); got != 2 {
				t.Errorf("duration{auth.login} sample count = %d, want 2", got)
			}
		}
	}
}

func TestMetrics_ObserveVerify(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	metrics.ObserveVerify(&Report{Valid: true, Scanned: 10, InvalidSignatures: []string{}})
	metrics.ObserveVerify(&Report{
		Valid:             false,
		Scanned:           10,
		InvalidSignatures: []string{"a", "b"},
		BrokenLinks:       3,
	})

	runs := gatherMetric(t, reg, MetricVerifyRunsTotal)
	if got := counterValue(runs, map[string]string{"result": VerifyResultValid}); got != 1 {
		t.Errorf("verify runs{valid} = %v, want 1", got)
	}
	if got := counterValue(runs, map[string]string{"result": VerifyResultInvalid}); got != 1 {
		t.Errorf("verify runs{invalid} = %v, want 1", got)
	}

	anomalies := gatherMetric(t, reg, MetricVerifyAnomaliesTotal)
	if got := counterValue(anomalies, map[string]string{"kind": AnomalyInvalidSignature}); got != 2 {
		t.Errorf("anomalies{invalid_signature} = %v, want 2", got)
	}
	if got := counterValue(anomalies, map[string]string{"kind": AnomalyBrokenLink}); got != 3 {
		t.Errorf("anomalies{broken_link} = %v, want 3", got)
	}
}

func TestMetrics_ObserveTailConflictAndExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	metrics.ObserveTailConflict()
	metrics.ObserveTailConflict()
	metrics.ObserveExport(FormatJSON, 25)

	conflicts := gatherMetric(t, reg, MetricTailConflictsTotal)
	if got := counterValue(conflicts, nil); got != 2 {
		t.Errorf("tail conflicts = %v, want 2", got)
	}
	exported := gatherMetric(t, reg, MetricEventsExportedTotal)
	if got := counterValue(exported, map[string]string{"format": string(FormatJSON)}); got != 25 {
		t.Errorf("exported{json} = %v, want 25", got)
	}
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveRecord(EventAuthLogin, StatusSuccess, 0.01)
	metrics.ObserveTailConflict()
	metrics.ObserveVerify(&Report{Valid: true})
	metrics.ObserveExport(FormatCSV, 1)
}
