// Package health provides the rule engine that scores the health of a target database.
//
// # Architecture
//
// The package is organised in four layers:
//
//  1. Catalog: rule metadata and evaluators, partitioned by category
//  2. Shapes: reusable evaluator shapes (threshold-count, ratio, byte-width, text pattern)
//  3. Executor: resolves a rule selection, assembles typed parameters and runs each rule
//  4. Aggregator: folds per-rule deductions into a 0-100 health score
//
// # Rule Registration
//
// Built-in rules register themselves via init() functions when their packages are imported:
//
//	import _ "github.com/leapstack-labs/themis/pkg/health/rules"
//
// A Catalog created with NewCatalog starts with every built-in rule. Operator-supplied
// rules are added later by the loader; registration is append-only and the first
// registration of a (category, id) pair wins.
//
// # Categories
//
//   - object: schema-object rules (table sizes, index layout, key widths)
//   - planstat: execution-plan and statistics rules
//   - text: SQL-text lint rules, no database access required
//   - extended: operator-supplied rules, also used as fallback during resolution
//
// # Running a Health Check
//
//	exec := health.NewExecutor(health.ExecutorConfig{Catalog: catalog})
//	report, err := exec.Execute(ctx, health.Target{Cursor: cur, Schema: "shop"},
//		health.CategoryObject, []string{"BIG_TABLE", "NO_PRIMARY_KEY"})
//
// A rule that fails at runtime is recorded as a zero-deduction finding; a selection that
// names an unknown rule aborts the run before any query is issued.
package health
