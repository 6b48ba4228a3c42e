// Package rules registers every built-in health rule.
//
// Import it for its side effects before building a catalog:
//
//	import _ "github.com/leapstack-labs/themis/pkg/health/rules"
package rules

// Import all rule subpackages to register them with the builtin table.
// This file triggers all init() functions in the rule packages.
import (
	_ "github.com/leapstack-labs/themis/pkg/health/rules/object"
	_ "github.com/leapstack-labs/themis/pkg/health/rules/planstat"
	_ "github.com/leapstack-labs/themis/pkg/health/rules/text"
)
