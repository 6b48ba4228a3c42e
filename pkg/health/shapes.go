package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/themis/pkg/health/bytewidth"
)

// errNoCursor is returned by database-backed shapes invoked without a cursor.
var errNoCursor = errors.New("rule requires a database cursor")

func requireCursor(inv *Invocation) (Cursor, error) {
	if inv.Cursor == nil {
		return nil, errNoCursor
	}
	return inv.Cursor, nil
}

func paramsAs[T Params](inv *Invocation) (T, error) {
	p, ok := inv.Params.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("rule %s: expected %s parameters, got %T", inv.RuleID, zero.Family(), inv.Params)
	}
	return p, nil
}

// =============================================================================
// Threshold-count
// =============================================================================

// CountRule runs one query filtered by a threshold. Every returned row is a finding;
// the deduction is min(max_score, rows * weight).
type CountRule struct {
	// Query is the SQL run against the target. Placeholders use '?'.
	Query string

	// Args builds the query arguments. Defaults to (schema, threshold).
	Args func(inv *Invocation, p CountParams) []any

	// Finding converts a row to a finding. Defaults to the first column as the object.
	Finding func(row Row, p CountParams) Finding
}

func (CountRule) Family() Family { return FamilyCount }

func (r CountRule) Evaluate(ctx context.Context, inv *Invocation) (Outcome, error) {
	p, err := paramsAs[CountParams](inv)
	if err != nil {
		return Outcome{}, err
	}
	cur, err := requireCursor(inv)
	if err != nil {
		return Outcome{}, err
	}

	args := []any{inv.Schema, p.Threshold}
	if r.Args != nil {
		args = r.Args(inv, p)
	}
	rows, err := cur.Query(ctx, r.Query, args...)
	if err != nil {
		return Outcome{}, fmt.Errorf("query: %w", err)
	}

	findings := make([]Finding, 0, len(rows))
	for _, row := range rows {
		if r.Finding != nil {
			findings = append(findings, r.Finding(row, p))
			continue
		}
		findings = append(findings, Finding{Object: AsString(row.Column(0))})
	}
	return Outcome{Findings: findings, Deduction: RowWeighted(len(findings), p.Scoring)}, nil
}

// =============================================================================
// Ratio
// =============================================================================

// RatioRule divides a numerator count by a denominator count, both single-value
// queries, and expresses the result as a percentage.
type RatioRule struct {
	Numerator   string
	Denominator string

	// Args builds the arguments of both queries. Defaults to (schema) for each.
	Args func(inv *Invocation, p RatioParams) (num, den []any)

	// Subject names what is being counted, e.g. "combined indexes".
	Subject string
}

func (RatioRule) Family() Family { return FamilyRatio }

func (r RatioRule) Evaluate(ctx context.Context, inv *Invocation) (Outcome, error) {
	p, err := paramsAs[RatioParams](inv)
	if err != nil {
		return Outcome{}, err
	}
	cur, err := requireCursor(inv)
	if err != nil {
		return Outcome{}, err
	}

	numArgs, denArgs := []any{inv.Schema}, []any{inv.Schema}
	if r.Args != nil {
		numArgs, denArgs = r.Args(inv, p)
	}
	num, err := scalar(ctx, cur, r.Numerator, numArgs)
	if err != nil {
		return Outcome{}, fmt.Errorf("numerator: %w", err)
	}
	den, err := scalar(ctx, cur, r.Denominator, denArgs)
	if err != nil {
		return Outcome{}, fmt.Errorf("denominator: %w", err)
	}

	ratio := Ratio(num, den)
	deduction := RatioDeduction(ratio, p.Threshold, p.Scoring)
	if ratio <= p.Threshold {
		return Outcome{}, nil
	}
	return Outcome{
		Findings: []Finding{{
			Object:  inv.Schema,
			Message: fmt.Sprintf("%s ratio %.2f%% exceeds %.2f%%", r.Subject, ratio, p.Threshold),
			Attrs: map[string]any{
				"numerator":   num,
				"denominator": den,
				"ratio":       ratio,
			},
		}},
		Deduction: deduction,
	}, nil
}

func scalar(ctx context.Context, cur Cursor, query string, args []any) (float64, error) {
	rows, err := cur.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return AsFloat(rows[0].Column(0))
}

// =============================================================================
// Byte-width
// =============================================================================

// WidthRule sums column byte widths per table and reports tables wider than the
// limit. Query must return (table, column, column_type, charset) rows.
// The deduction is binary: min(max_score, weight) when any table exceeds the limit.
type WidthRule struct {
	Query string

	// Args builds the query arguments. Defaults to (schema).
	Args func(inv *Invocation, p WidthParams) []any

	// Subject names what is measured, e.g. "primary key".
	Subject string
}

func (WidthRule) Family() Family { return FamilyWidth }

func (r WidthRule) Evaluate(ctx context.Context, inv *Invocation) (Outcome, error) {
	p, err := paramsAs[WidthParams](inv)
	if err != nil {
		return Outcome{}, err
	}
	cur, err := requireCursor(inv)
	if err != nil {
		return Outcome{}, err
	}

	args := []any{inv.Schema}
	if r.Args != nil {
		args = r.Args(inv, p)
	}
	rows, err := cur.Query(ctx, r.Query, args...)
	if err != nil {
		return Outcome{}, fmt.Errorf("query: %w", err)
	}

	var (
		order    []string
		widths   = make(map[string]int)
		findings []Finding
	)
	for _, row := range rows {
		table := AsString(row.Column(0))
		column := AsString(row.Column(1))
		columnType := AsString(row.Column(2))
		if _, seen := widths[table]; !seen {
			order = append(order, table)
			widths[table] = 0
		}
		w, err := bytewidth.Of(columnType, AsString(row.Column(3)), p.CharsetWidth)
		if err != nil {
			findings = append(findings, Finding{
				Object:  table + "." + column,
				Message: fmt.Sprintf("cannot size column type %q", columnType),
				Error:   err.Error(),
			})
			continue
		}
		widths[table] += w
	}

	hit := false
	for _, table := range order {
		if widths[table] <= p.Limit {
			continue
		}
		hit = true
		findings = append(findings, Finding{
			Object:  table,
			Message: fmt.Sprintf("%s length %d bytes exceeds %d", r.Subject, widths[table], p.Limit),
			Attrs:   map[string]any{"width": widths[table], "limit": p.Limit},
		})
	}
	return Outcome{Findings: findings, Deduction: Binary(hit, p.Scoring)}, nil
}

// =============================================================================
// Text pattern
// =============================================================================

// TextRule inspects the statement under review without touching the database.
// The deduction is binary: min(max_score, weight) when Match reports a hit.
type TextRule struct {
	// Match reports whether the statement violates the rule, plus a message.
	Match func(sql string, p TextParams) (bool, string)
}

func (TextRule) Family() Family { return FamilyText }

func (r TextRule) Evaluate(_ context.Context, inv *Invocation) (Outcome, error) {
	p, err := paramsAs[TextParams](inv)
	if err != nil {
		return Outcome{}, err
	}
	hit, msg := r.Match(inv.SQL, p)
	if !hit {
		return Outcome{}, nil
	}
	return Outcome{
		Findings:  []Finding{{Object: "statement", Message: msg}},
		Deduction: Binary(true, p.Scoring),
	}, nil
}
