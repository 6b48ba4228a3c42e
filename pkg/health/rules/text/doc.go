// Package text provides SQL-text lint rules. They inspect the statement under
// review and never query the target.
package text
