package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() (health.RunInfo, []health.Result) {
	run := health.RunInfo{
		ID:         "run-1",
		Category:   health.CategoryObject,
		Target:     "prod",
		StartedAt:  time.Unix(1700000000, 0),
		FinishedAt: time.Unix(1700000005, 0),
	}
	results := []health.Result{
		{
			RuleID:    "BIG_TABLE",
			Category:  health.CategoryObject,
			Findings:  []health.Finding{{Object: "orders"}, {Object: "events"}},
			Deduction: 2,
			MaxScore:  10,
			Duration:  20 * time.Millisecond,
		},
		{
			RuleID:   "UNUSED_INDEX",
			Category: health.CategoryObject,
			Findings: []health.Finding{{Object: "UNUSED_INDEX", Error: "no sys schema"}},
			Failed:   true,
			Duration: time.Millisecond,
		},
	}
	return run, results
}

func TestCollector_Observe(t *testing.T) {
	c := New()
	run, results := sampleRun()
	for _, r := range results {
		c.RuleFinished(run, r)
	}
	c.RunFinished(health.AggregateRun(run, results))

	assert.InDelta(t, 1, testutil.ToFloat64(c.ruleRuns.WithLabelValues("prod", "object", "BIG_TABLE", "ok")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(c.ruleRuns.WithLabelValues("prod", "object", "UNUSED_INDEX", "failed")), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(c.ruleDeduction.WithLabelValues("prod", "object", "BIG_TABLE")), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(c.ruleFindings.WithLabelValues("prod", "object", "BIG_TABLE")), 1e-9)
	assert.InDelta(t, 98, testutil.ToFloat64(c.score.WithLabelValues("prod", "object")), 1e-9)
	assert.InDelta(t, 1700000005, testutil.ToFloat64(c.lastRun.WithLabelValues("prod", "object")), 1e-9)
	assert.Equal(t, 2, testutil.CollectAndCount(c.ruleDuration))
}

func TestCollector_Exposition(t *testing.T) {
	c := New()
	run, results := sampleRun()
	c.RunFinished(health.AggregateRun(run, results))

	expected := `
# HELP themis_health_score Total health score of the latest run (0-100).
# TYPE themis_health_score gauge
themis_health_score{category="object",target="prod"} 98
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "themis_health_score"))
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := New()
	run, results := sampleRun()
	for _, r := range results {
		c.RuleFinished(run, r)
	}
	c.RunFinished(health.AggregateRun(run, results))

	path := filepath.Join(t.TempDir(), "themis.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `themis_runs_total{category="object",target="prod"} 1`)
	assert.Contains(t, string(data), "themis_rule_duration_seconds_bucket")
}

func TestCollector_WriteTextfileError(t *testing.T) {
	err := New().WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "themis.prom"))
	require.Error(t, err)
}

func TestCollector_AsObserver(t *testing.T) {
	c := New()
	obs := health.MultiObserver(nil, c)
	run, results := sampleRun()
	obs.RuleFinished(run, results[0])
	assert.InDelta(t, 1, testutil.ToFloat64(c.ruleRuns.WithLabelValues("prod", "object", "BIG_TABLE", "ok")), 1e-9)
}
