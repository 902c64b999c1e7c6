package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RuleIssues.WithLabelValues("duplicate_billing").Add(3)
	m.AlertsCreated.WithLabelValues("CRITICAL").Inc()
	m.TrainingSamples.Set(1200)

	path := filepath.Join(t.TempDir(), "leakwatch.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`leakwatch_rule_issues_total{rule="duplicate_billing"} 3`,
		`leakwatch_alerts_created_total{priority="CRITICAL"} 1`,
		`leakwatch_training_samples 1200`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.MLAnomalies.Add(5)
	families, err := b.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "leakwatch_ml_anomalies_total" && f.GetMetric()[0].GetCounter().GetValue() != 0 {
			t.Error("registries should not share collectors")
		}
	}
}
