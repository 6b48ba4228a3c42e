package object

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
)

func init() {
	health.Register(health.RuleDef{
		ID:          "BIG_TABLE",
		Category:    health.CategoryObject,
		Description: "Tables larger than table_size GB (data plus indexes)",
		Weight:      1,
		MaxScore:    10,
		Thresholds:  map[string]any{"table_size": 10},
		Bind:        map[string]string{"threshold": "table_size"},
		Evaluator: health.CountRule{
			Query: bigTableQuery,
			Finding: func(row health.Row, p health.CountParams) health.Finding {
				size, _ := health.AsFloat(row.Column(1))
				return health.Finding{
					Object:  health.AsString(row.Column(0)),
					Message: fmt.Sprintf("table size %.2f GB exceeds %.2f GB", size, p.Threshold),
					Attrs:   map[string]any{"size_gb": size},
				}
			},
		},
	})
}

const bigTableQuery = `SELECT table_name,
       ROUND((data_length + index_length) / 1024 / 1024 / 1024, 2) AS size_gb
  FROM information_schema.tables
 WHERE table_schema = ?
   AND table_type = 'BASE TABLE'
   AND (data_length + index_length) / 1024 / 1024 / 1024 > ?
 ORDER BY size_gb DESC`
