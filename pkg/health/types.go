package health

import (
	"context"
	"sort"
	"strings"
)

// =============================================================================
// Categories
// =============================================================================

// Category partitions the rule catalog.
type Category string

// Rule categories.
const (
	// CategoryObject holds schema-object rules (tables, indexes, keys).
	CategoryObject Category = "object"
	// CategoryPlanStat holds execution-plan and statistics rules.
	CategoryPlanStat Category = "planstat"
	// CategoryText holds SQL-text lint rules.
	CategoryText Category = "text"
	// CategoryExtended holds operator-supplied rules.
	CategoryExtended Category = "extended"
)

// Categories returns every category in a stable order.
func Categories() []Category {
	return []Category{CategoryObject, CategoryPlanStat, CategoryText, CategoryExtended}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryObject, CategoryPlanStat, CategoryText, CategoryExtended:
		return true
	default:
		return false
	}
}

// ParseCategory converts a user-supplied name to a Category.
// "plan-stat", "plan_stat" and "obj" are accepted as aliases.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "object", "obj":
		return CategoryObject, true
	case "planstat", "plan-stat", "plan_stat":
		return CategoryPlanStat, true
	case "text", "sqltext":
		return CategoryText, true
	case "extended", "ext", "custom":
		return CategoryExtended, true
	default:
		return "", false
	}
}

// =============================================================================
// Cursor
// =============================================================================

// Row is one result row as returned by a Cursor.
type Row []any

// Cursor executes a parameterized query and returns every row.
// It is borrowed from the caller for the duration of a rule invocation and is not
// safe for concurrent use.
type Cursor interface {
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
}

// =============================================================================
// Findings and Evaluators
// =============================================================================

// Finding is one piece of evidence produced by a rule.
type Finding struct {
	Object  string         `json:"object"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Error   string         `json:"error,omitempty"` // set when the finding records a failure
}

// Outcome is what an evaluator returns for one invocation.
type Outcome struct {
	Findings  []Finding
	Deduction float64
}

// Invocation is the per-execution context handed to an evaluator.
type Invocation struct {
	RuleID string
	Cursor Cursor // nil for text rules run offline
	Schema string // target schema or user
	SQL    string // statement under review (text rules)
	Params Params
}

// Evaluator is the scoring routine bound to a rule.
type Evaluator interface {
	// Family names the parameter struct the evaluator expects in Invocation.Params.
	Family() Family

	// Evaluate runs the rule. Multiple sequential queries against inv.Cursor are allowed.
	Evaluate(ctx context.Context, inv *Invocation) (Outcome, error)
}

// =============================================================================
// Rule Definitions
// =============================================================================

// RuleDef is a catalog entry: rule metadata plus its evaluator.
type RuleDef struct {
	ID          string    // Unique within the category, e.g. "BIG_TABLE"
	Category    Category  // Catalog partition
	Description string    // Human-readable description
	Weight      float64   // Per-occurrence deduction multiplier
	MaxScore    float64   // Upper bound on the rule's total deduction
	Evaluator   Evaluator // The scoring routine
	Source      string    // "builtin" or the file the rule was loaded from

	// Thresholds holds default values keyed by threshold name, e.g. "table_size".
	Thresholds map[string]any

	// Bind maps a parameter field of the evaluator family to a threshold name,
	// e.g. {"threshold": "table_size"}.
	Bind map[string]string
}

// SourceBuiltin marks rules compiled into the binary.
const SourceBuiltin = "builtin"

// ThresholdKeys returns the threshold names the rule reads, sorted.
func (d RuleDef) ThresholdKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, name := range d.Bind {
		if !seen[name] {
			seen[name] = true
			keys = append(keys, name)
		}
	}
	for name := range d.Thresholds {
		if !seen[name] {
			seen[name] = true
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys
}

// RuleInfo provides metadata about a rule for listing and persistence.
type RuleInfo struct {
	ID          string         `json:"id" yaml:"id"`
	Category    Category       `json:"category" yaml:"category"`
	Family      Family         `json:"family" yaml:"family"`
	Description string         `json:"description" yaml:"description"`
	Weight      float64        `json:"weight" yaml:"weight"`
	MaxScore    float64        `json:"max_score" yaml:"max_score"`
	Thresholds  map[string]any `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Source      string         `json:"source" yaml:"source"`
}

// Info extracts listing metadata from a rule definition.
func (d RuleDef) Info() RuleInfo {
	info := RuleInfo{
		ID:          d.ID,
		Category:    d.Category,
		Description: d.Description,
		Weight:      d.Weight,
		MaxScore:    d.MaxScore,
		Thresholds:  d.Thresholds,
		Source:      d.Source,
	}
	if d.Evaluator != nil {
		info.Family = d.Evaluator.Family()
	}
	return info
}
