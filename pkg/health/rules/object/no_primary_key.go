package object

import "github.com/leapstack-labs/themis/pkg/health"

func init() {
	health.Register(health.RuleDef{
		ID:          "NO_PRIMARY_KEY",
		Category:    health.CategoryObject,
		Description: "Tables without a primary key",
		Weight:      2,
		MaxScore:    10,
		Evaluator: health.CountRule{
			Query: `SELECT t.table_name
  FROM information_schema.tables t
  LEFT JOIN information_schema.table_constraints c
    ON c.table_schema = t.table_schema
   AND c.table_name = t.table_name
   AND c.constraint_type = 'PRIMARY KEY'
 WHERE t.table_schema = ?
   AND t.table_type = 'BASE TABLE'
   AND c.constraint_name IS NULL
 ORDER BY t.table_name`,
			Args: schemaOnly,
			Finding: func(row health.Row, _ health.CountParams) health.Finding {
				return health.Finding{
					Object:  health.AsString(row.Column(0)),
					Message: "table has no primary key",
				}
			},
		},
	})
}
