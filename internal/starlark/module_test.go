package starlark

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/themis/internal/testutil"
	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCursor returns canned rows and records queries.
type stubCursor struct {
	rows    []health.Row
	err     error
	queries []string
	args    [][]any
}

func (c *stubCursor) Query(_ context.Context, query string, args ...any) ([]health.Row, error) {
	c.queries = append(c.queries, query)
	c.args = append(c.args, args)
	return c.rows, c.err
}

const orphanViews = `
rule = {
    "id": "ORPHAN_VIEWS",
    "description": "views referencing dropped tables",
    "weight": 2,
    "max_score": 5.0,
    "thresholds": {"limit": 10},
}

def evaluate(ctx):
    rows = ctx.query("select table_name from views where table_schema = ? limit ?", ctx.schema, ctx.params["limit"])
    return [{"object": r[0], "message": "orphan view", "schema": ctx.schema} for r in rows]
`

func load(t *testing.T, src string) health.RuleDef {
	t.Helper()
	def, err := LoadRule("orphan_views.star", []byte(src), health.CategoryExtended, LoadOptions{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return def
}

func invocation(def health.RuleDef, cur health.Cursor) *health.Invocation {
	params, err := health.BuildParams(def, nil, nil)
	if err != nil {
		panic(err)
	}
	return &health.Invocation{RuleID: def.ID, Cursor: cur, Schema: "shop", Params: params}
}

func TestLoadRule_Metadata(t *testing.T) {
	def := load(t, orphanViews)

	assert.Equal(t, "ORPHAN_VIEWS", def.ID)
	assert.Equal(t, health.CategoryExtended, def.Category)
	assert.Equal(t, "views referencing dropped tables", def.Description)
	assert.InDelta(t, 2.0, def.Weight, 1e-9)
	assert.InDelta(t, 5.0, def.MaxScore, 1e-9)
	assert.Equal(t, map[string]any{"limit": int64(10)}, def.Thresholds)
	assert.Equal(t, "orphan_views.star", def.Source)
	require.NotNil(t, def.Evaluator)
	assert.Equal(t, health.FamilyExtended, def.Evaluator.Family())
}

func TestLoadRule_Defaults(t *testing.T) {
	def := load(t, `
rule = {"id": "MINIMAL"}
def evaluate(ctx):
    return None
`)
	assert.InDelta(t, DefaultWeight, def.Weight, 1e-9)
	assert.InDelta(t, DefaultMaxScore, def.MaxScore, 1e-9)
	assert.Empty(t, def.Thresholds)
}

func TestLoadRule_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "syntax error", src: "rule = {", wantErr: "starlark execution error"},
		{name: "runtime error", src: "x = 1 // 0", wantErr: "starlark execution error"},
		{name: "rule not a dict", src: "rule = 3\ndef evaluate(ctx):\n    pass", wantErr: "rule must be a dict"},
		{name: "missing id", src: "rule = {}\ndef evaluate(ctx):\n    pass", wantErr: "missing id"},
		{name: "empty id", src: "rule = {\"id\": \" \"}\ndef evaluate(ctx):\n    pass", wantErr: "non-empty string"},
		{name: "bad weight", src: "rule = {\"id\": \"X\", \"weight\": True}\ndef evaluate(ctx):\n    pass", wantErr: "weight"},
		{name: "negative max", src: "rule = {\"id\": \"X\", \"max_score\": -1}\ndef evaluate(ctx):\n    pass", wantErr: ">= 0"},
		{name: "unknown key", src: "rule = {\"id\": \"X\", \"severity\": 1}\ndef evaluate(ctx):\n    pass", wantErr: "unknown key"},
		{name: "thresholds not dict", src: "rule = {\"id\": \"X\", \"thresholds\": [1]}\ndef evaluate(ctx):\n    pass", wantErr: "thresholds must be a dict"},
		{name: "category mismatch", src: "rule = {\"id\": \"X\", \"category\": \"text\"}\ndef evaluate(ctx):\n    pass", wantErr: "does not match"},
		{name: "no evaluate", src: "rule = {\"id\": \"X\"}", wantErr: "no evaluate function"},
		{name: "evaluate arity", src: "rule = {\"id\": \"X\"}\ndef evaluate():\n    pass", wantErr: "exactly one argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRule("bad.star", []byte(tt.src), health.CategoryExtended, LoadOptions{})
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrNoRule)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRule_NoRule(t *testing.T) {
	_, err := LoadRule("helpers.star", []byte("def helper():\n    return 1\n"), health.CategoryExtended, LoadOptions{})
	assert.ErrorIs(t, err, ErrNoRule)
}

func TestLoadRule_CategoryMatches(t *testing.T) {
	def, err := LoadRule("x.star", []byte("rule = {\"id\": \"X\", \"category\": \"obj\"}\ndef evaluate(ctx):\n    pass"),
		health.CategoryObject, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, health.CategoryObject, def.Category)
}

func TestEvaluator_RowWeighted(t *testing.T) {
	def := load(t, orphanViews)
	cur := &stubCursor{rows: []health.Row{{"v_old"}, {[]byte("v_stale")}, {"v_gone"}}}

	out, err := def.Evaluator.Evaluate(context.Background(), invocation(def, cur))
	require.NoError(t, err)

	require.Len(t, cur.queries, 1)
	assert.Equal(t, []any{"shop", int64(10)}, cur.args[0])

	require.Len(t, out.Findings, 3)
	assert.Equal(t, "v_old", out.Findings[0].Object)
	assert.Equal(t, "orphan view", out.Findings[0].Message)
	assert.Equal(t, map[string]any{"schema": "shop"}, out.Findings[0].Attrs)
	assert.Equal(t, "v_stale", out.Findings[1].Object)
	// 3 rows * weight 2 clamped to max_score 5
	assert.InDelta(t, 5.0, out.Deduction, 1e-9)
}

func TestEvaluator_ThresholdOverride(t *testing.T) {
	def := load(t, orphanViews)
	cur := &stubCursor{}

	params, err := health.BuildParams(def, map[string]any{"limit": 3}, nil)
	require.NoError(t, err)
	inv := &health.Invocation{RuleID: def.ID, Cursor: cur, Schema: "shop", Params: params}

	_, err = def.Evaluator.Evaluate(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, []any{"shop", int64(3)}, cur.args[0])
}

func TestEvaluator_ReturnShapes(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantFindings  int
		wantDeduction float64
		wantErr       string
	}{
		{name: "none", body: "return None", wantFindings: 0, wantDeduction: 0},
		{name: "empty list", body: "return []", wantFindings: 0, wantDeduction: 0},
		{name: "strings", body: `return ["a", "b"]`, wantFindings: 2, wantDeduction: 2},
		{name: "explicit deduction", body: `return ([{"object": "a"}], 4.5)`, wantFindings: 1, wantDeduction: 4.5},
		{name: "explicit int deduction", body: `return ([], 3)`, wantFindings: 0, wantDeduction: 3},
		{name: "tuple of findings", body: `return ("a", "b")`, wantFindings: 2, wantDeduction: 2},
		{name: "bool second element is a finding list", body: `return ("a", True)`, wantErr: "finding 1"},
		{name: "string result", body: `return "oops"`, wantErr: "list of findings"},
		{name: "bad finding", body: `return [1]`, wantErr: "finding 0"},
		{name: "fail", body: `fail("boom")`, wantErr: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "rule = {\"id\": \"SHAPES\", \"weight\": 1, \"max_score\": 10}\ndef evaluate(ctx):\n    " + tt.body + "\n"
			def := load(t, src)

			out, err := def.Evaluator.Evaluate(context.Background(), invocation(def, nil))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, out.Findings, tt.wantFindings)
			assert.InDelta(t, tt.wantDeduction, out.Deduction, 1e-9)
		})
	}
}

func TestEvaluator_QueryErrors(t *testing.T) {
	src := "rule = {\"id\": \"Q\"}\ndef evaluate(ctx):\n    return ctx.query(\"select 1\")\n"
	def := load(t, src)

	t.Run("no cursor", func(t *testing.T) {
		_, err := def.Evaluator.Evaluate(context.Background(), invocation(def, nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no database cursor")
	})

	t.Run("driver error", func(t *testing.T) {
		cur := &stubCursor{err: errors.New("table performance_schema.x doesn't exist")}
		_, err := def.Evaluator.Evaluate(context.Background(), invocation(def, cur))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "performance_schema.x")
	})
}

func TestEvaluator_Context(t *testing.T) {
	src := `
rule = {"id": "CTX", "weight": 1.5, "max_score": 3}
def evaluate(ctx):
    return [{"object": ctx.rule_id, "message": ctx.sql, "w": ctx.weight, "m": ctx.max_score}]
`
	def := load(t, src)
	inv := invocation(def, nil)
	inv.SQL = "select 1"

	out, err := def.Evaluator.Evaluate(context.Background(), inv)
	require.NoError(t, err)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "CTX", out.Findings[0].Object)
	assert.Equal(t, "select 1", out.Findings[0].Message)
	assert.Equal(t, map[string]any{"w": 1.5, "m": 3.0}, out.Findings[0].Attrs)
}

func TestEvaluator_ParamsAreFrozen(t *testing.T) {
	src := "rule = {\"id\": \"F\", \"thresholds\": {\"a\": 1}}\ndef evaluate(ctx):\n    ctx.params[\"a\"] = 2\n"
	def := load(t, src)

	_, err := def.Evaluator.Evaluate(context.Background(), invocation(def, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")
}

func TestEvaluator_Cancelled(t *testing.T) {
	src := "rule = {\"id\": \"SPIN\"}\ndef evaluate(ctx):\n    n = 0\n    while True:\n        n += 1\n"
	def := load(t, src)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := def.Evaluator.Evaluate(ctx, invocation(def, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvaluator_StepLimit(t *testing.T) {
	src := "rule = {\"id\": \"SPIN\"}\ndef evaluate(ctx):\n    n = 0\n    while True:\n        n += 1\n"
	def, err := LoadRule("spin.star", []byte(src), health.CategoryExtended, LoadOptions{MaxSteps: 1000})
	require.NoError(t, err)

	_, err = def.Evaluator.Evaluate(context.Background(), invocation(def, nil))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "too many steps"), err.Error())
}

func TestPredeclared(t *testing.T) {
	src := `
rule = {"id": "LIBS"}
def evaluate(ctx):
    s = struct(name = "x")
    return [{"object": s.name, "message": json.encode({"n": int(math.sqrt(4))})}]
`
	def := load(t, src)
	out, err := def.Evaluator.Evaluate(context.Background(), invocation(def, nil))
	require.NoError(t, err)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "x", out.Findings[0].Object)
	assert.Equal(t, `{"n":2}`, out.Findings[0].Message)
}
