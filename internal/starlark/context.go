package starlark

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// NewRuleContext builds the "ctx" value handed to a rule's evaluate function.
//
// Fields:
//
//	ctx.rule_id  the rule being evaluated
//	ctx.schema   target schema or user
//	ctx.sql      statement under review (may be empty)
//	ctx.params   dict of resolved thresholds
//	ctx.weight, ctx.max_score
//	ctx.query(sql, *args)  runs sql on the target and returns a list of tuples
func NewRuleContext(inv *health.Invocation) (starlark.Value, error) {
	var p health.ExtendedParams
	if inv.Params != nil {
		ext, ok := inv.Params.(health.ExtendedParams)
		if !ok {
			return nil, fmt.Errorf("rule %s: expected extended parameters, got %T", inv.RuleID, inv.Params)
		}
		p = ext
	}

	params, err := GoToStarlark(p.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("rule %s: params: %w", inv.RuleID, err)
	}
	if params == starlark.None {
		params = starlark.NewDict(0)
	}
	params.Freeze()

	return starlarkstruct.FromStringDict(starlark.String("ctx"), starlark.StringDict{
		"rule_id":   starlark.String(inv.RuleID),
		"schema":    starlark.String(inv.Schema),
		"sql":       starlark.String(inv.SQL),
		"params":    params,
		"weight":    starlark.Float(p.Weight),
		"max_score": starlark.Float(p.MaxScore),
		"query":     starlark.NewBuiltin("query", queryBuiltin(inv.Cursor)),
	}), nil
}

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

func queryBuiltin(cur health.Cursor) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: missing sql argument", b.Name())
		}
		query, ok := starlark.AsString(args[0])
		if !ok {
			return nil, fmt.Errorf("%s: sql must be a string, got %s", b.Name(), args[0].Type())
		}
		if cur == nil {
			return nil, fmt.Errorf("%s: no database cursor (offline run)", b.Name())
		}

		goArgs := make([]any, 0, len(args)-1)
		for i, a := range args[1:] {
			v, err := ToGo(a)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", b.Name(), i+1, err)
			}
			goArgs = append(goArgs, v)
		}

		rows, err := cur.Query(contextOf(thread), query, goArgs...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return RowsToStarlark(rows)
	}
}
