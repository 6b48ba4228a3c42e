package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/leapstack-labs/themis/pkg/health"
)

// PlaceholderStyle selects how bind parameters are written in SQL sent to the driver.
type PlaceholderStyle int

const (
	// PlaceholderQuestion keeps '?' placeholders (MySQL, DuckDB, SQLite).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar rewrites '?' to '$1', '$2', ... (PostgreSQL).
	PlaceholderDollar
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLCursor implements health.Cursor over database/sql.
// Rules write '?' placeholders; the cursor rebinds them for the target dialect.
type SQLCursor struct {
	q      Querier
	style  PlaceholderStyle
	closer io.Closer
}

// NewSQLCursor wraps q. The cursor does not own q; Close is a no-op.
func NewSQLCursor(q Querier, style PlaceholderStyle) *SQLCursor {
	return &SQLCursor{q: q, style: style}
}

// Query executes query and fetches every row.
func (c *SQLCursor) Query(ctx context.Context, query string, args ...any) ([]health.Row, error) {
	rows, err := c.q.QueryContext(ctx, Rebind(query, c.style), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []health.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, health.Row(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// Close returns a pooled connection checked out by Adapter.Cursor.
func (c *SQLCursor) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

var _ health.Cursor = (*SQLCursor)(nil)

// Rebind rewrites '?' placeholders for style. Question marks inside quoted
// literals and identifiers are left alone.
func Rebind(query string, style PlaceholderStyle) string {
	if style != PlaceholderDollar || !strings.Contains(query, "?") {
		return query
	}
	var (
		b     strings.Builder
		n     int
		quote byte
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
		case c == '\'' || c == '"' || c == '`':
			quote = c
			b.WriteByte(c)
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
