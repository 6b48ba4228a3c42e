package health

import (
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of one rule in a run.
type Result struct {
	RuleID      string        `json:"rule_id" yaml:"rule_id"`
	Category    Category      `json:"category" yaml:"category"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Findings    []Finding     `json:"findings" yaml:"findings"`
	Deduction   float64       `json:"deduction" yaml:"deduction"`
	MaxScore    float64       `json:"max_score" yaml:"max_score"`
	Duration    time.Duration `json:"duration_ns" yaml:"duration"`
	Failed      bool          `json:"failed,omitempty" yaml:"failed,omitempty"`
	Err         error         `json:"-" yaml:"-"`
}

// RunInfo identifies a run.
type RunInfo struct {
	ID         string    `json:"run_id" yaml:"run_id"`
	Category   Category  `json:"category" yaml:"category"`
	Target     string    `json:"target,omitempty" yaml:"target,omitempty"`
	Schema     string    `json:"schema,omitempty" yaml:"schema,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// ScoreReport is the aggregated result of a run. It is not modified after
// construction; accessors return copies.
type ScoreReport struct {
	RunInfo    `yaml:",inline"`
	Results    []Result `json:"results" yaml:"results"`
	TotalScore float64  `json:"total_score" yaml:"total_score"`
}

// MaxTotalScore is the score of a run without deductions.
const MaxTotalScore = 100.0

// Aggregate builds a report from results: total = max(0, 100 - sum of deductions).
// Aggregate(nil) yields a total of 100 with no results.
func Aggregate(results []Result) *ScoreReport {
	return AggregateRun(RunInfo{}, results)
}

// AggregateRun is Aggregate with run metadata. A missing run id is generated.
func AggregateRun(run RunInfo, results []Result) *ScoreReport {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	kept := make([]Result, len(results))
	copy(kept, results)

	var sum float64
	for _, r := range kept {
		sum += r.Deduction
	}
	total := MaxTotalScore - sum
	if total < 0 {
		total = 0
	}
	return &ScoreReport{RunInfo: run, Results: kept, TotalScore: total}
}

// Deductions returns the sum of all rule deductions.
func (r *ScoreReport) Deductions() float64 {
	var sum float64
	for _, res := range r.Results {
		sum += res.Deduction
	}
	return sum
}

// Failed returns the number of rules that failed to execute.
func (r *ScoreReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed {
			n++
		}
	}
	return n
}

// Result returns the outcome of a rule by id.
func (r *ScoreReport) Result(id string) (Result, bool) {
	for _, res := range r.Results {
		if res.RuleID == id {
			return res, true
		}
	}
	return Result{}, false
}

// Duration returns the wall time of the run.
func (r *ScoreReport) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
