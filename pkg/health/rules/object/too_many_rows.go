package object

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
)

func init() {
	health.Register(health.RuleDef{
		ID:          "TOO_MANY_ROWS",
		Category:    health.CategoryObject,
		Description: "Tables with more than table_rows rows (estimated)",
		Weight:      1,
		MaxScore:    10,
		Thresholds:  map[string]any{"table_rows": 10000000},
		Bind:        map[string]string{"threshold": "table_rows"},
		Evaluator: health.CountRule{
			Query: `SELECT table_name, table_rows
  FROM information_schema.tables
 WHERE table_schema = ?
   AND table_type = 'BASE TABLE'
   AND table_rows > ?
 ORDER BY table_rows DESC`,
			Finding: func(row health.Row, _ health.CountParams) health.Finding {
				rows, _ := health.AsInt(row.Column(1))
				return health.Finding{
					Object:  health.AsString(row.Column(0)),
					Message: fmt.Sprintf("about %d rows", rows),
					Attrs:   map[string]any{"table_rows": rows},
				}
			},
		},
	})
}
