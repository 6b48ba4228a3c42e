// Package metrics exports audit outcomes as Prometheus metrics.
package metrics

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "themis"

// Collector implements health.Observer on a private Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	ruleRuns      *prometheus.CounterVec
	ruleDuration  *prometheus.HistogramVec
	ruleDeduction *prometheus.GaugeVec
	ruleFindings  *prometheus.GaugeVec
	runs          *prometheus.CounterVec
	score         *prometheus.GaugeVec
	lastRun       *prometheus.GaugeVec
}

var _ health.Observer = (*Collector)(nil)

// New creates a collector with every metric registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ruleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "Rule evaluations by outcome.",
		}, []string{"target", "category", "rule", "status"}),
		ruleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rule_duration_seconds",
			Help:      "Rule evaluation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"category", "rule"}),
		ruleDeduction: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rule_deduction",
			Help:      "Points deducted by a rule in the latest run.",
		}, []string{"target", "category", "rule"}),
		ruleFindings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rule_findings",
			Help:      "Findings produced by a rule in the latest run.",
		}, []string{"target", "category", "rule"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed audit runs.",
		}, []string{"target", "category"}),
		score: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_score",
			Help:      "Total health score of the latest run (0-100).",
		}, []string{"target", "category"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the latest run finished.",
		}, []string{"target", "category"}),
	}
	c.registry.MustRegister(c.ruleRuns, c.ruleDuration, c.ruleDeduction, c.ruleFindings,
		c.runs, c.score, c.lastRun)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RuleFinished implements health.Observer.
func (c *Collector) RuleFinished(run health.RunInfo, result health.Result) {
	status := "ok"
	if result.Failed {
		status = "failed"
	}
	category := string(result.Category)
	c.ruleRuns.WithLabelValues(run.Target, category, result.RuleID, status).Inc()
	c.ruleDuration.WithLabelValues(category, result.RuleID).Observe(result.Duration.Seconds())
	c.ruleDeduction.WithLabelValues(run.Target, category, result.RuleID).Set(result.Deduction)
	c.ruleFindings.WithLabelValues(run.Target, category, result.RuleID).Set(float64(len(result.Findings)))
}

// RunFinished implements health.Observer.
func (c *Collector) RunFinished(report *health.ScoreReport) {
	category := string(report.Category)
	c.runs.WithLabelValues(report.Target, category).Inc()
	c.score.WithLabelValues(report.Target, category).Set(report.TotalScore)
	if !report.FinishedAt.IsZero() {
		c.lastRun.WithLabelValues(report.Target, category).Set(float64(report.FinishedAt.Unix()))
	}
}

// WriteTextfile writes every metric in the text exposition format, for the node
// exporter textfile collector. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
