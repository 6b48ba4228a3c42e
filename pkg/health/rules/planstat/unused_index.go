package planstat

import "github.com/leapstack-labs/themis/pkg/health"

func init() {
	health.Register(health.RuleDef{
		ID:          "UNUSED_INDEX",
		Category:    health.CategoryPlanStat,
		Description: "Indexes never used since the server started",
		Weight:      0.5,
		MaxScore:    5,
		Evaluator: health.CountRule{
			Query: `SELECT object_name, index_name
  FROM sys.schema_unused_indexes
 WHERE object_schema = ?
 ORDER BY object_name, index_name`,
			Args: func(inv *health.Invocation, _ health.CountParams) []any {
				return []any{inv.Schema}
			},
			Finding: func(row health.Row, _ health.CountParams) health.Finding {
				table, index := health.AsString(row.Column(0)), health.AsString(row.Column(1))
				return health.Finding{
					Object:  table + "." + index,
					Message: "index is never used",
				}
			},
		},
	})
}
