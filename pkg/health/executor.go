package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExecutorConfig holds configuration for an Executor.
type ExecutorConfig struct {
	// Catalog resolves rule ids. Defaults to a catalog seeded with the built-ins.
	Catalog *Catalog

	// Thresholds holds named thresholds for the run, e.g. {"table_size": 10}.
	Thresholds map[string]any

	// Overrides holds per-rule parameter overrides keyed by rule id,
	// e.g. {"BIG_TABLE": {"weight": 2, "max_score": 10}}. Ids match case-insensitively
	// and must name rules in the catalog.
	Overrides map[string]map[string]any

	// RuleTimeout bounds each rule invocation (0 disables the limit).
	RuleTimeout time.Duration

	// Observer is notified of each rule outcome (optional).
	Observer Observer

	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Target is the database or statement a run evaluates.
type Target struct {
	Name   string // display name, e.g. the configured target name
	Cursor Cursor // nil is allowed for text-only runs
	Schema string // schema or user whose objects are checked
	SQL    string // statement under review for text rules
}

// Executor runs rule selections against a target and aggregates the score.
// An Executor holds no per-run state and may be shared across goroutines.
type Executor struct {
	cfg    ExecutorConfig
	logger *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Catalog == nil {
		cfg.Catalog = NewCatalog()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{cfg: cfg, logger: logger}
}

// Catalog returns the catalog the executor resolves rules in.
func (e *Executor) Catalog() *Catalog {
	return e.cfg.Catalog
}

type plannedRule struct {
	def    RuleDef
	params Params
}

// Plan resolves ids in category (falling back to extended) and builds their
// parameters without touching the database. An empty selection plans every rule of
// the category in registration order.
func (e *Executor) Plan(category Category, ids []string) ([]RuleDef, error) {
	planned, err := e.plan(category, ids)
	if err != nil {
		return nil, err
	}
	defs := make([]RuleDef, len(planned))
	for i, p := range planned {
		defs[i] = p.def
	}
	return defs, nil
}

func (e *Executor) plan(category Category, ids []string) ([]plannedRule, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	if len(ids) == 0 {
		for _, def := range e.cfg.Catalog.Entries(category) {
			ids = append(ids, def.ID)
		}
	}
	if err := e.cfg.Catalog.Validate(category, ids); err != nil {
		return nil, err
	}

	overrides, err := e.overrides()
	if err != nil {
		return nil, err
	}

	planned := make([]plannedRule, 0, len(ids))
	for _, id := range ids {
		def, err := e.cfg.Catalog.ResolveWithFallback(category, id)
		if err != nil {
			return nil, err
		}
		params, err := BuildParams(def, e.cfg.Thresholds, overrides[strings.ToUpper(def.ID)])
		if err != nil {
			return nil, err
		}
		planned = append(planned, plannedRule{def: def, params: params})
	}
	return planned, nil
}

// overrides returns the configured overrides keyed by upper-cased rule id.
func (e *Executor) overrides() (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, len(e.cfg.Overrides))
	var unknown, dups []string
	for id, params := range e.cfg.Overrides {
		if !e.cfg.Catalog.Contains(id) {
			unknown = append(unknown, id)
			continue
		}
		key := strings.ToUpper(id)
		if _, ok := out[key]; ok {
			dups = append(dups, key)
			continue
		}
		out[key] = params
	}
	if len(unknown) > 0 || len(dups) > 0 {
		sort.Strings(unknown)
		sort.Strings(dups)
		return nil, &UnknownOverrideError{Unknown: unknown, Duplicates: dups}
	}
	return out, nil
}

// Execute runs the selected rules of category against target, sequentially and in
// the given order, and returns the aggregated report.
//
// Unknown rule or override ids abort the run before any query is issued, as do
// missing thresholds.
// Failures of individual rules (errors, panics, timeouts) are recorded as a single
// error finding with zero deduction and do not stop later rules.
func (e *Executor) Execute(ctx context.Context, target Target, category Category, ids []string) (*ScoreReport, error) {
	planned, err := e.plan(category, ids)
	if err != nil {
		return nil, err
	}

	run := RunInfo{
		ID:        uuid.NewString(),
		Category:  category,
		Target:    target.Name,
		Schema:    target.Schema,
		StartedAt: time.Now(),
	}

	e.logger.Info("starting run", "run_id", run.ID, "category", category, "target", target.Name, "rules", len(planned))

	results := make([]Result, 0, len(planned))
	for _, p := range planned {
		res := e.runRule(ctx, target, p)
		if res.Failed {
			e.logger.Warn("rule failed", "run_id", run.ID, "rule", res.RuleID, "error", res.Err)
		} else {
			e.logger.Debug("rule finished", "run_id", run.ID, "rule", res.RuleID,
				"findings", len(res.Findings), "deduction", res.Deduction, "duration", res.Duration)
		}
		if e.cfg.Observer != nil {
			e.cfg.Observer.RuleFinished(run, res)
		}
		results = append(results, res)
	}

	run.FinishedAt = time.Now()
	report := AggregateRun(run, results)
	e.logger.Info("run completed", "run_id", run.ID, "total_score", report.TotalScore, "failed", report.Failed())
	if e.cfg.Observer != nil {
		e.cfg.Observer.RunFinished(report)
	}
	return report, nil
}

func (e *Executor) runRule(ctx context.Context, target Target, p plannedRule) Result {
	score := p.params.Score()
	res := Result{
		RuleID:      p.def.ID,
		Category:    p.def.Category,
		Description: p.def.Description,
		MaxScore:    score.MaxScore,
	}

	ruleCtx := ctx
	if e.cfg.RuleTimeout > 0 {
		var cancel context.CancelFunc
		ruleCtx, cancel = context.WithTimeout(ctx, e.cfg.RuleTimeout)
		defer cancel()
	}

	inv := &Invocation{
		RuleID: p.def.ID,
		Cursor: target.Cursor,
		Schema: target.Schema,
		SQL:    target.SQL,
		Params: p.params,
	}

	start := time.Now()
	out, err := e.safeEvaluate(ruleCtx, p.def.Evaluator, inv)
	res.Duration = time.Since(start)

	if err != nil {
		execErr := &RuleExecutionError{
			RuleID:  p.def.ID,
			Err:     err,
			Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(ruleCtx.Err(), context.DeadlineExceeded),
		}
		res.Findings = []Finding{execErr.Finding()}
		res.Failed = true
		res.Err = execErr
		return res
	}

	res.Findings = out.Findings
	res.Deduction = Clamp(out.Deduction, score.MaxScore)
	return res
}

func (e *Executor) safeEvaluate(ctx context.Context, ev Evaluator, inv *Invocation) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule panicked", "rule", inv.RuleID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if ev == nil {
		return Outcome{}, fmt.Errorf("rule %s has no evaluator", inv.RuleID)
	}
	return ev.Evaluate(ctx, inv)
}
