package object

import (
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health"
)

func init() {
	health.Register(health.RuleDef{
		ID:          "FOREIGN_KEY_USED",
		Category:    health.CategoryObject,
		Description: "Foreign key constraints defined in the schema",
		Weight:      0.5,
		MaxScore:    5,
		Evaluator: health.CountRule{
			Query: `SELECT table_name, constraint_name, referenced_table_name
  FROM information_schema.referential_constraints
 WHERE constraint_schema = ?
 ORDER BY table_name, constraint_name`,
			Args: schemaOnly,
			Finding: func(row health.Row, _ health.CountParams) health.Finding {
				ref := health.AsString(row.Column(2))
				return health.Finding{
					Object:  health.AsString(row.Column(0)),
					Message: fmt.Sprintf("foreign key %s references %s", health.AsString(row.Column(1)), ref),
					Attrs:   map[string]any{"constraint": health.AsString(row.Column(1)), "referenced_table": ref},
				}
			},
		},
	})
}
