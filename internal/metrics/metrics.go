// Package metrics holds the Prometheus collectors for detection, alerting
// and training runs. leakwatch is a batch CLI, so collectors live in a
// private registry that is dumped to a node-exporter textfile at exit.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leakwatch"

// Metrics groups every collector. The zero value is not usable; call New.
type Metrics struct {
	reg *prometheus.Registry

	SourceFetchErrors *prometheus.CounterVec
	RuleIssues        *prometheus.CounterVec
	RuleFailures      *prometheus.CounterVec
	MLAnomalies       prometheus.Counter
	DetectionDuration prometheus.Histogram
	LeakageAmount     *prometheus.CounterVec

	AlertsCreated  *prometheus.CounterVec
	AlertsFailed   prometheus.Counter
	NotifyFailures *prometheus.CounterVec

	TrainingRuns     *prometheus.CounterVec
	TrainingDuration prometheus.Histogram
	TrainingSamples  prometheus.Gauge
	ModelAnomalyRate prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		SourceFetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_errors_total",
			Help:      "HIS collection reads that failed.",
		}, []string{"collection"}),
		RuleIssues: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_issues_total",
			Help:      "Issues raised by each rule detector.",
		}, []string{"rule"}),
		RuleFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_failures_total",
			Help:      "Rule detector runs that failed or panicked.",
		}, []string{"rule"}),
		MLAnomalies: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ml_anomalies_total",
			Help:      "Visits flagged by the anomaly model.",
		}),
		DetectionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "Wall time of a detection run.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		LeakageAmount: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leakage_amount_total",
			Help:      "Estimated leakage of combined issues, by issue type.",
		}, []string{"type"}),
		AlertsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts persisted, by priority.",
		}, []string{"priority"}),
		AlertsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_failed_total",
			Help:      "Alerts that could not be persisted.",
		}),
		NotifyFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Alert notifications that failed, by notifier.",
		}, []string{"notifier"}),
		TrainingRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Training runs, by result.",
		}, []string{"result"}),
		TrainingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Wall time of a training run.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		TrainingSamples: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_samples",
			Help:      "Rows in the last training matrix.",
		}),
		ModelAnomalyRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_training_anomaly_rate",
			Help:      "Share of training rows the last model flags as anomalous.",
		}),
	}
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteTextfile writes all collectors in the text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
