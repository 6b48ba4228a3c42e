package health

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRuleNotFound is returned when a rule id is absent from a category.
var ErrRuleNotFound = errors.New("rule not found")

// InvalidRuleSelectionError is returned when a selection names rules that exist in
// neither the requested category nor the extended category. The run is aborted.
type InvalidRuleSelectionError struct {
	Category Category
	Missing  []string
}

func (e *InvalidRuleSelectionError) Error() string {
	return fmt.Sprintf("invalid rule selection for category %q: unknown rules %s\nHint: run 'themis rules --category %s' to list available rules",
		e.Category, strings.Join(e.Missing, ", "), e.Category)
}

// Unwrap lets errors.Is match ErrRuleNotFound.
func (e *InvalidRuleSelectionError) Unwrap() error {
	return ErrRuleNotFound
}

// UnknownOverrideError is returned when rule overrides name ids the catalog does not
// hold, or name the same rule twice in different letter case. The run is aborted.
type UnknownOverrideError struct {
	Unknown    []string
	Duplicates []string
}

func (e *UnknownOverrideError) Error() string {
	var parts []string
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown rules "+strings.Join(e.Unknown, ", "))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, "rules overridden more than once "+strings.Join(e.Duplicates, ", "))
	}
	return fmt.Sprintf("invalid rules.overrides: %s\nHint: run 'themis rules' to list available rules", strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrRuleNotFound when an id is unknown.
func (e *UnknownOverrideError) Unwrap() error {
	if len(e.Unknown) > 0 {
		return ErrRuleNotFound
	}
	return nil
}

// MissingParameterError is returned when a rule reads a threshold that is neither
// configured for the run nor defaulted by the rule.
type MissingParameterError struct {
	RuleID string
	Key    string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("rule %s: missing threshold %q\nHint: set rules.thresholds.%s in themis.yaml", e.RuleID, e.Key, e.Key)
}

// RuleExecutionError records a rule that failed at runtime. It is contained: the rule
// contributes a single error finding and zero deduction.
type RuleExecutionError struct {
	RuleID  string
	Err     error
	Timeout bool
}

func (e *RuleExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("rule %s timed out: %v", e.RuleID, e.Err)
	}
	return fmt.Sprintf("rule %s failed: %v", e.RuleID, e.Err)
}

func (e *RuleExecutionError) Unwrap() error {
	return e.Err
}

// Finding converts the error into the finding recorded in the report.
func (e *RuleExecutionError) Finding() Finding {
	msg := "rule execution failed"
	if e.Timeout {
		msg = "rule execution timed out"
	}
	return Finding{
		Object:  e.RuleID,
		Message: msg,
		Error:   e.Err.Error(),
	}
}

// RuleLoadError records a rule module that could not be loaded. Load errors are logged
// and never abort a discovery scan.
type RuleLoadError struct {
	Path     string
	Category Category
	Err      error
}

func (e *RuleLoadError) Error() string {
	return fmt.Sprintf("load %s rule %s: %v", e.Category, e.Path, e.Err)
}

func (e *RuleLoadError) Unwrap() error {
	return e.Err
}
