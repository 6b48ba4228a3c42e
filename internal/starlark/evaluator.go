package starlark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/themis/pkg/health"
	"go.starlark.net/starlark"
)

// Evaluator runs the evaluate function of a loaded rule module.
// The module globals are frozen, so one Evaluator may serve concurrent runs.
type Evaluator struct {
	RuleID   string
	Path     string
	Fn       starlark.Callable
	Logger   *slog.Logger
	MaxSteps uint64
}

var _ health.Evaluator = (*Evaluator)(nil)

// Family implements health.Evaluator.
func (e *Evaluator) Family() health.Family { return health.FamilyExtended }

// Evaluate implements health.Evaluator. evaluate(ctx) may return:
//
//	None                      no findings
//	[finding, ...]            row-weighted deduction
//	([finding, ...], number)  explicit deduction
//
// A finding is a dict with "object" and "message" keys (other keys become attrs)
// or a plain string naming the object.
func (e *Evaluator) Evaluate(ctx context.Context, inv *health.Invocation) (health.Outcome, error) {
	ruleCtx, err := NewRuleContext(inv)
	if err != nil {
		return health.Outcome{}, err
	}

	thread := NewThread(e.RuleID, e.Logger, e.MaxSteps)
	stop := bindContext(ctx, thread)
	result, err := starlark.Call(thread, e.Fn, starlark.Tuple{ruleCtx}, nil)
	stop()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return health.Outcome{}, fmt.Errorf("%s: %w", e.Path, ctxErr)
		}
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return health.Outcome{}, fmt.Errorf("%s: %s", e.Path, evalErr.Backtrace())
		}
		return health.Outcome{}, fmt.Errorf("%s: %w", e.Path, err)
	}

	var score health.Scoring
	if inv.Params != nil {
		score = inv.Params.Score()
	}
	return parseOutcome(result, score)
}

func parseOutcome(v starlark.Value, score health.Scoring) (health.Outcome, error) {
	if v == starlark.None {
		return health.Outcome{}, nil
	}

	// (findings, deduction)
	if tuple, ok := v.(starlark.Tuple); ok && len(tuple) == 2 {
		if deduction, isNum := starlark.AsFloat(tuple[1]); isNum {
			if _, isBool := tuple[1].(starlark.Bool); !isBool {
				findings, err := parseFindings(tuple[0])
				if err != nil {
					return health.Outcome{}, err
				}
				return health.Outcome{Findings: findings, Deduction: deduction}, nil
			}
		}
	}

	findings, err := parseFindings(v)
	if err != nil {
		return health.Outcome{}, err
	}
	return health.Outcome{
		Findings:  findings,
		Deduction: health.RowWeighted(len(findings), score),
	}, nil
}

func parseFindings(v starlark.Value) ([]health.Finding, error) {
	if v == starlark.None {
		return nil, nil
	}
	_, isString := v.(starlark.String)
	seq, ok := v.(starlark.Indexable)
	if !ok || isString {
		return nil, fmt.Errorf("evaluate must return a list of findings, got %s", v.Type())
	}

	findings := make([]health.Finding, 0, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		f, err := parseFinding(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("finding %d: %w", i, err)
		}
		findings = append(findings, f)
	}
	return findings, nil
}

func parseFinding(v starlark.Value) (health.Finding, error) {
	if s, ok := starlark.AsString(v); ok {
		return health.Finding{Object: s}, nil
	}

	dict, ok := v.(*starlark.Dict)
	if !ok {
		return health.Finding{}, fmt.Errorf("expected dict or string, got %s", v.Type())
	}
	raw, err := ToGo(dict)
	if err != nil {
		return health.Finding{}, err
	}
	m := raw.(map[string]any)

	var f health.Finding
	f.Object = health.AsString(m["object"])
	f.Message = health.AsString(m["message"])
	delete(m, "object")
	delete(m, "message")
	if len(m) > 0 {
		f.Attrs = m
	}
	return f, nil
}
