// Package planstat provides execution-plan and statistics health rules.
// They read the MySQL sys schema and performance_schema, which must be enabled
// on the target; elsewhere the rules fail and are reported as execution errors.
package planstat
