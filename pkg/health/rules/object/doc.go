// Package object provides schema-object health rules.
//
// The rules read MySQL information_schema for the target schema:
//
//   - BIG_TABLE, TOO_MANY_ROWS: oversized tables
//   - NO_PRIMARY_KEY, FOREIGN_KEY_USED: key design
//   - TOO_MANY_INDEXES, TOO_MANY_COLUMNS, COMBINED_INDEX_PERCENT: table shape
//   - BIG_TABLE_PERCENT: share of oversized tables
//   - PRIMARYKEY_LENGTH, RECORD_LENGTH: byte widths of keys and rows
package object
