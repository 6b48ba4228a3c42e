package object

import "github.com/leapstack-labs/themis/pkg/health"

func init() {
	health.Register(health.RuleDef{
		ID:          "PRIMARYKEY_LENGTH",
		Category:    health.CategoryObject,
		Description: "Primary keys wider than primarykey_length bytes",
		Weight:      2,
		MaxScore:    5,
		Thresholds:  map[string]any{"primarykey_length": 128, "charset_width": 3},
		Bind:        map[string]string{"limit": "primarykey_length", "charset_width": "charset_width"},
		Evaluator: health.WidthRule{
			Query: `SELECT k.table_name, k.column_name, c.column_type, c.character_set_name
  FROM information_schema.key_column_usage k
  JOIN information_schema.columns c
    ON c.table_schema = k.table_schema
   AND c.table_name = k.table_name
   AND c.column_name = k.column_name
 WHERE k.table_schema = ?
   AND k.constraint_name = 'PRIMARY'
 ORDER BY k.table_name, k.ordinal_position`,
			Subject: "primary key",
		},
	})

	health.Register(health.RuleDef{
		ID:          "RECORD_LENGTH",
		Category:    health.CategoryObject,
		Description: "Rows wider than record_length bytes",
		Weight:      2,
		MaxScore:    5,
		Thresholds:  map[string]any{"record_length": 8126, "charset_width": 3},
		Bind:        map[string]string{"limit": "record_length", "charset_width": "charset_width"},
		Evaluator: health.WidthRule{
			Query: `SELECT c.table_name, c.column_name, c.column_type, c.character_set_name
  FROM information_schema.columns c
  JOIN information_schema.tables t
    ON t.table_schema = c.table_schema
   AND t.table_name = c.table_name
 WHERE c.table_schema = ?
   AND t.table_type = 'BASE TABLE'
 ORDER BY c.table_name, c.ordinal_position`,
			Subject: "record",
		},
	})
}
