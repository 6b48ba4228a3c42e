package object

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
)

func init() {
	health.Register(health.RuleDef{
		ID:          "TOO_MANY_COLUMNS",
		Category:    health.CategoryObject,
		Description: "Tables with more than column_num columns",
		Weight:      1,
		MaxScore:    5,
		Thresholds:  map[string]any{"column_num": 50},
		Bind:        map[string]string{"threshold": "column_num"},
		Evaluator: health.CountRule{
			Query: `SELECT table_name, COUNT(*) AS column_count
  FROM information_schema.columns
 WHERE table_schema = ?
 GROUP BY table_name
HAVING COUNT(*) > ?
 ORDER BY column_count DESC`,
			Finding: func(row health.Row, p health.CountParams) health.Finding {
				n, _ := health.AsInt(row.Column(1))
				return health.Finding{
					Object:  health.AsString(row.Column(0)),
					Message: fmt.Sprintf("%d columns (limit %g)", n, p.Threshold),
					Attrs:   map[string]any{"column_count": n},
				}
			},
		},
	})
}
