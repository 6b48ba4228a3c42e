package planstat

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
)

func init() {
	health.Register(health.RuleDef{
		ID:          "FULL_TABLE_SCAN",
		Category:    health.CategoryPlanStat,
		Description: "Statements doing full table scans more than exec_count times",
		Weight:      0.5,
		MaxScore:    10,
		Thresholds:  map[string]any{"exec_count": 1000},
		Bind:        map[string]string{"threshold": "exec_count"},
		Evaluator: health.CountRule{
			Query: `SELECT query, exec_count, rows_examined_avg
  FROM sys.statements_with_full_table_scans
 WHERE db = ?
   AND exec_count > ?
 ORDER BY exec_count DESC`,
			Finding: func(row health.Row, _ health.CountParams) health.Finding {
				execs, _ := health.AsInt(row.Column(1))
				examined, _ := health.AsFloat(row.Column(2))
				return health.Finding{
					Object:  health.AsString(row.Column(0)),
					Message: fmt.Sprintf("full scan executed %d times, %.0f rows examined on average", execs, examined),
					Attrs:   map[string]any{"exec_count": execs, "rows_examined_avg": examined},
				}
			},
		},
	})
}
