package starlark

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/themis/pkg/health"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Defaults applied to rule metadata that omits them.
const (
	DefaultWeight   = 1.0
	DefaultMaxScore = 10.0
)

// ErrNoRule is returned by LoadRule when a module does not declare a top-level rule.
var ErrNoRule = errors.New("module declares no rule")

// LoadOptions configures module execution.
type LoadOptions struct {
	Logger   *slog.Logger
	MaxSteps uint64 // per evaluate call; 0 means DefaultMaxSteps
}

// LoadRule executes a rule module and builds the catalog entry it declares.
//
// A module declares a rule with a top-level dict and an evaluate function:
//
//	rule = {"id": "ORPHAN_VIEWS", "description": "...", "weight": 1.0,
//	        "max_score": 5.0, "thresholds": {"limit": 10}}
//
//	def evaluate(ctx):
//	    ...
//
// ErrNoRule is returned when rule is absent. Any other error means the module is broken.
func LoadRule(path string, src []byte, category health.Category, opts LoadOptions) (health.RuleDef, error) {
	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}

	thread := NewThread("load:"+path, opts.Logger, opts.MaxSteps)
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
	}, thread, path, src, Predeclared())
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return health.RuleDef{}, fmt.Errorf("starlark execution error: %s", evalErr.Backtrace())
		}
		return health.RuleDef{}, fmt.Errorf("starlark execution error: %w", err)
	}
	globals.Freeze()

	ruleVal, ok := globals["rule"]
	if !ok {
		return health.RuleDef{}, ErrNoRule
	}
	def, err := parseRuleMeta(ruleVal, category)
	if err != nil {
		return health.RuleDef{}, err
	}

	fn, ok := globals["evaluate"].(starlark.Callable)
	if !ok {
		return health.RuleDef{}, fmt.Errorf("rule %s: module defines no evaluate function", def.ID)
	}
	if f, isFunc := fn.(*starlark.Function); isFunc && f.NumParams() != 1 {
		return health.RuleDef{}, fmt.Errorf("rule %s: evaluate must take exactly one argument (ctx), got %d", def.ID, f.NumParams())
	}

	def.Source = path
	def.Evaluator = &Evaluator{
		RuleID:   def.ID,
		Path:     path,
		Fn:       fn,
		Logger:   opts.Logger,
		MaxSteps: opts.MaxSteps,
	}
	return def, nil
}

func parseRuleMeta(v starlark.Value, category health.Category) (health.RuleDef, error) {
	dict, ok := v.(*starlark.Dict)
	if !ok {
		return health.RuleDef{}, fmt.Errorf("rule must be a dict, got %s", v.Type())
	}
	raw, err := ToGo(dict)
	if err != nil {
		return health.RuleDef{}, fmt.Errorf("rule: %w", err)
	}
	meta := raw.(map[string]any)

	def := health.RuleDef{
		Category: category,
		Weight:   DefaultWeight,
		MaxScore: DefaultMaxScore,
	}

	for key, val := range meta {
		switch key {
		case "id":
			id, ok := val.(string)
			if !ok || strings.TrimSpace(id) == "" {
				return health.RuleDef{}, fmt.Errorf("rule: id must be a non-empty string")
			}
			def.ID = strings.TrimSpace(id)
		case "description":
			s, ok := val.(string)
			if !ok {
				return health.RuleDef{}, fmt.Errorf("rule: description must be a string")
			}
			def.Description = s
		case "weight":
			f, err := health.AsFloat(val)
			if err != nil {
				return health.RuleDef{}, fmt.Errorf("rule: weight: %w", err)
			}
			def.Weight = f
		case "max_score":
			f, err := health.AsFloat(val)
			if err != nil {
				return health.RuleDef{}, fmt.Errorf("rule: max_score: %w", err)
			}
			def.MaxScore = f
		case "thresholds":
			m, ok := val.(map[string]any)
			if !ok {
				return health.RuleDef{}, fmt.Errorf("rule: thresholds must be a dict")
			}
			def.Thresholds = m
		case "category":
			s, _ := val.(string)
			c, ok := health.ParseCategory(s)
			if !ok || c != category {
				return health.RuleDef{}, fmt.Errorf("rule: category %q does not match directory category %q", s, category)
			}
		default:
			return health.RuleDef{}, fmt.Errorf("rule: unknown key %q", key)
		}
	}

	if def.ID == "" {
		return health.RuleDef{}, fmt.Errorf("rule: missing id")
	}
	if def.Weight < 0 || def.MaxScore < 0 {
		return health.RuleDef{}, fmt.Errorf("rule %s: weight and max_score must be >= 0", def.ID)
	}
	return def, nil
}
