package object

import "github.com/leapstack-labs/themis/pkg/health"

// schemaOnly binds the target schema as the only query argument.
func schemaOnly(inv *health.Invocation, _ health.CountParams) []any {
	return []any{inv.Schema}
}
