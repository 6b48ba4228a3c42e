package object

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
)

func init() {
	health.Register(health.RuleDef{
		ID:          "TOO_MANY_INDEXES",
		Category:    health.CategoryObject,
		Description: "Tables with more than index_num indexes",
		Weight:      1,
		MaxScore:    5,
		Thresholds:  map[string]any{"index_num": 6},
		Bind:        map[string]string{"threshold": "index_num"},
		Evaluator: health.CountRule{
			Query: `SELECT table_name, COUNT(DISTINCT index_name) AS index_count
  FROM information_schema.statistics
 WHERE table_schema = ?
 GROUP BY table_name
HAVING COUNT(DISTINCT index_name) > ?
 ORDER BY index_count DESC`,
			Finding: func(row health.Row, p health.CountParams) health.Finding {
				n, _ := health.AsInt(row.Column(1))
				return health.Finding{
					Object:  health.AsString(row.Column(0)),
					Message: fmt.Sprintf("%d indexes (limit %g)", n, p.Threshold),
					Attrs:   map[string]any{"index_count": n},
				}
			},
		},
	})
}
