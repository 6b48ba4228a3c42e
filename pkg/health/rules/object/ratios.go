package object

import "github.com/leapstack-labs/themis/pkg/health"

func init() {
	health.Register(health.RuleDef{
		ID:          "COMBINED_INDEX_PERCENT",
		Category:    health.CategoryObject,
		Description: "Share of multi-column indexes above com_idx_percent",
		Weight:      0.2,
		MaxScore:    5,
		Thresholds:  map[string]any{"com_idx_percent": 30},
		Bind:        map[string]string{"threshold": "com_idx_percent"},
		Evaluator: health.RatioRule{
			Numerator: `SELECT COUNT(*) FROM (
  SELECT table_name, index_name
    FROM information_schema.statistics
   WHERE table_schema = ?
   GROUP BY table_name, index_name
  HAVING COUNT(*) > 1) combined`,
			Denominator: `SELECT COUNT(DISTINCT table_name, index_name)
  FROM information_schema.statistics
 WHERE table_schema = ?`,
			Subject: "combined index",
		},
	})

	health.Register(health.RuleDef{
		ID:          "BIG_TABLE_PERCENT",
		Category:    health.CategoryObject,
		Description: "Share of tables larger than table_size GB above big_table_percent",
		Weight:      0.5,
		MaxScore:    10,
		Thresholds:  map[string]any{"big_table_percent": 10, "table_size": 10},
		Bind:        map[string]string{"threshold": "big_table_percent", "bound": "table_size"},
		Evaluator: health.RatioRule{
			Numerator: `SELECT COUNT(*)
  FROM information_schema.tables
 WHERE table_schema = ?
   AND table_type = 'BASE TABLE'
   AND (data_length + index_length) / 1024 / 1024 / 1024 > ?`,
			Denominator: `SELECT COUNT(*)
  FROM information_schema.tables
 WHERE table_schema = ?
   AND table_type = 'BASE TABLE'`,
			Args: func(inv *health.Invocation, p health.RatioParams) ([]any, []any) {
				return []any{inv.Schema, p.Bound}, []any{inv.Schema}
			},
			Subject: "big table",
		},
	})
}
