package planstat

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
)

func init() {
	health.Register(health.RuleDef{
		ID:          "DISK_TMP_TABLE",
		Category:    health.CategoryPlanStat,
		Description: "Statements that created more than tmp_disk_tables on-disk temporary tables",
		Weight:      0.5,
		MaxScore:    5,
		Thresholds:  map[string]any{"tmp_disk_tables": 100},
		Bind:        map[string]string{"threshold": "tmp_disk_tables"},
		Evaluator: health.CountRule{
			Query: `SELECT digest_text, count_star, sum_created_tmp_disk_tables
  FROM performance_schema.events_statements_summary_by_digest
 WHERE schema_name = ?
   AND sum_created_tmp_disk_tables > ?
 ORDER BY sum_created_tmp_disk_tables DESC`,
			Finding: func(row health.Row, _ health.CountParams) health.Finding {
				calls, _ := health.AsInt(row.Column(1))
				tmp, _ := health.AsInt(row.Column(2))
				return health.Finding{
					Object:  health.AsString(row.Column(0)),
					Message: fmt.Sprintf("%d on-disk temporary tables over %d executions", tmp, calls),
					Attrs:   map[string]any{"count_star": calls, "tmp_disk_tables": tmp},
				}
			},
		},
	})
}
