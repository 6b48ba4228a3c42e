package planstat

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
)

func init() {
	health.Register(health.RuleDef{
		ID:          "LOW_SELECTIVITY_INDEX",
		Category:    health.CategoryPlanStat,
		Description: "Indexes whose leading column selectivity is below selectivity",
		Weight:      0.5,
		MaxScore:    5,
		Thresholds:  map[string]any{"selectivity": 0.1},
		Bind:        map[string]string{"threshold": "selectivity"},
		Evaluator: health.CountRule{
			Query: `SELECT s.table_name, s.index_name, s.column_name,
       s.cardinality / t.table_rows AS selectivity
  FROM information_schema.statistics s
  JOIN information_schema.tables t
    ON t.table_schema = s.table_schema
   AND t.table_name = s.table_name
 WHERE s.table_schema = ?
   AND s.seq_in_index = 1
   AND s.index_name <> 'PRIMARY'
   AND t.table_rows > 0
   AND s.cardinality / t.table_rows < ?
 ORDER BY selectivity`,
			Finding: func(row health.Row, p health.CountParams) health.Finding {
				sel, _ := health.AsFloat(row.Column(3))
				return health.Finding{
					Object:  health.AsString(row.Column(0)) + "." + health.AsString(row.Column(1)),
					Message: fmt.Sprintf("selectivity %.4f of column %s is below %g", sel, health.AsString(row.Column(2)), p.Threshold),
					Attrs:   map[string]any{"selectivity": sel, "column": health.AsString(row.Column(2))},
				}
			},
		},
	})
}
