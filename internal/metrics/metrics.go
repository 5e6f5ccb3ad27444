// Package metrics exposes audit and evaluation counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"licensemedic/internal/engine"
)

const namespace = "licensemedic"

// Collector records engine evaluations and audit outcomes. It implements
// engine.Recorder and owns its own registry so tests and multiple servers in
// one process do not collide.
//
// Metrics:
//   - licensemedic_evaluations_total
//   - licensemedic_evaluation_duration_seconds
//   - licensemedic_artifacts_evaluated_total
//   - licensemedic_violations_total{rule_id,severity}
//   - licensemedic_warnings_total{rule_id,stage}
//   - licensemedic_deduplicated_total
//   - licensemedic_allowed_pairs_total
//   - licensemedic_audit_runs_total{exit_code}
//   - licensemedic_last_audit_timestamp_seconds
type Collector struct {
	registry *prometheus.Registry

	evaluations        prometheus.Counter
	evaluationDuration prometheus.Histogram
	artifacts          prometheus.Counter
	violations         *prometheus.CounterVec
	warnings           *prometheus.CounterVec
	deduplicated       prometheus.Counter
	allowed            prometheus.Counter
	auditRuns          *prometheus.CounterVec
	lastAudit          prometheus.Gauge
}

var _ engine.Recorder = (*Collector)(nil)

// NewCollector creates a collector registered with registry. A nil registry
// gets a fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total number of ruleset evaluations",
		}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of ruleset evaluation in seconds",
			// 100µs to ~13s
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 9),
		}),
		artifacts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_evaluated_total",
			Help:      "Total number of artifacts evaluated",
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Total number of unique violations reported, by rule and severity",
		}, []string{"rule_id", "severity"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Total number of rule and artifact pairs that could not be evaluated",
		}, []string{"rule_id", "stage"}),
		deduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deduplicated_total",
			Help:      "Total number of candidate violations merged into an existing violation",
		}),
		allowed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allowed_pairs_total",
			Help:      "Total number of rule and artifact pairs skipped by allow lists",
		}),
		auditRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_runs_total",
			Help:      "Total number of audit runs, by exit code",
		}, []string{"exit_code"}),
		lastAudit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_audit_timestamp_seconds",
			Help:      "Unix time of the last completed audit run",
		}),
	}

	registry.MustRegister(
		c.evaluations,
		c.evaluationDuration,
		c.artifacts,
		c.violations,
		c.warnings,
		c.deduplicated,
		c.allowed,
		c.auditRuns,
		c.lastAudit,
	)
	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveEvaluation records one finished engine evaluation.
func (c *Collector) ObserveEvaluation(res engine.Result, elapsed time.Duration) {
	c.evaluations.Inc()
	c.evaluationDuration.Observe(elapsed.Seconds())
	c.artifacts.Add(float64(res.Stats.Artifacts))
	c.deduplicated.Add(float64(res.Stats.Deduplicated))
	c.allowed.Add(float64(res.Stats.Allowed))
	for _, v := range res.Violations {
		c.violations.WithLabelValues(v.RuleID, string(v.Severity)).Inc()
	}
	for _, w := range res.Warnings {
		c.warnings.WithLabelValues(w.RuleID, string(w.Stage)).Inc()
	}
}

// ObserveAudit records a completed audit run and its exit code.
func (c *Collector) ObserveAudit(exitCode int, at time.Time) {
	c.auditRuns.WithLabelValues(exitCodeLabel(exitCode)).Inc()
	c.lastAudit.Set(float64(at.Unix()))
}

func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "0"
	case 1:
		return "1"
	case 2:
		return "2"
	default:
		return "3"
	}
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// WriteTextfile writes the current metrics for the node_exporter textfile
// collector. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
