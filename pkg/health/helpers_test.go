package health

import (
	"context"
	"errors"
	"sync"
)

// fakeCursor answers queries from a fixed table keyed by query text.
type fakeCursor struct {
	mu      sync.Mutex
	rows    map[string][]Row
	errs    map[string]error
	queries []string
	args    [][]any
}

func newFakeCursor() *fakeCursor {
	return &fakeCursor{rows: make(map[string][]Row), errs: make(map[string]error)}
}

func (c *fakeCursor) on(query string, rows ...Row) *fakeCursor {
	c.rows[query] = rows
	return c
}

func (c *fakeCursor) fail(query string, err error) *fakeCursor {
	c.errs[query] = err
	return c
}

func (c *fakeCursor) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.queries = append(c.queries, query)
	c.args = append(c.args, args)
	if err, ok := c.errs[query]; ok {
		return nil, err
	}
	rows, ok := c.rows[query]
	if !ok {
		return nil, errors.New("unexpected query: " + query)
	}
	return rows, nil
}

// funcEvaluator adapts a function to Evaluator.
type funcEvaluator struct {
	family Family
	fn     func(ctx context.Context, inv *Invocation) (Outcome, error)
}

func (f funcEvaluator) Family() Family { return f.family }

func (f funcEvaluator) Evaluate(ctx context.Context, inv *Invocation) (Outcome, error) {
	return f.fn(ctx, inv)
}

func fixedRule(category Category, id string, deduction float64) RuleDef {
	return RuleDef{
		ID:       id,
		Category: category,
		Weight:   1,
		MaxScore: 10,
		Evaluator: funcEvaluator{family: FamilyExtended, fn: func(context.Context, *Invocation) (Outcome, error) {
			return Outcome{Findings: []Finding{{Object: id}}, Deduction: deduction}, nil
		}},
	}
}
