// Package sqltext inspects raw SQL text with a parenthesis-depth scan.
//
// Statements are split into tokens that carry the nesting depth at which they occur.
// Keywords only count for a clause when they sit at the clause's own depth, so a
// WHERE inside a subquery never terminates the outer FROM. A clause without a
// following keyword is terminated by the end of the statement.
//
// Comments are dropped, quoted literals and identifiers are kept as single tokens
// (so keywords inside strings never match), and everything else is lowercased.
package sqltext

import (
	"slices"
	"strings"
)

// Token is one lexical unit of a statement.
type Token struct {
	Text  string
	Depth int // parentheses open before the token; "(" and ")" carry the outer depth
}

// Tokenize splits sql into tokens.
func Tokenize(sql string) []Token {
	var (
		toks  []Token
		depth int
	)
	n := len(sql)
	for i := 0; i < n; {
		c := sql[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			i++
		case c == '-' && i+1 < n && sql[i+1] == '-', c == '#':
			for i < n && sql[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = n
			} else {
				i += end + 4
			}
		case c == '\'' || c == '"' || c == '`':
			j := scanQuoted(sql, i)
			toks = append(toks, Token{Text: sql[i:j], Depth: depth})
			i = j
		case c == '(':
			toks = append(toks, Token{Text: "(", Depth: depth})
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			toks = append(toks, Token{Text: ")", Depth: depth})
			i++
		case isWordByte(c):
			j := i
			for j < n && isWordByte(sql[j]) {
				j++
			}
			if j < n && sql[j] == '*' && sql[j-1] == '.' {
				j++
			}
			toks = append(toks, Token{Text: strings.ToLower(sql[i:j]), Depth: depth})
			i = j
		default:
			toks = append(toks, Token{Text: string(c), Depth: depth})
			i++
		}
	}
	return toks
}

// scanQuoted returns the index just past the literal opened at sql[start].
// Doubled quotes and backslash escapes stay inside the literal.
func scanQuoted(sql string, start int) int {
	q := sql[start]
	for i := start + 1; i < len(sql); i++ {
		switch sql[i] {
		case '\\':
			if q != '`' {
				i++
			}
		case q:
			if i+1 < len(sql) && sql[i+1] == q {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(sql)
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c == '@' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c >= 0x80
}

// Normalize returns the tokens of sql joined by single spaces.
func Normalize(sql string) string {
	return join(Tokenize(sql))
}

func join(toks []Token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// Statement
// =============================================================================

// Statement is a tokenized SQL statement.
type Statement struct {
	toks []Token
}

// Parse tokenizes sql.
func Parse(sql string) *Statement {
	return &Statement{toks: Tokenize(sql)}
}

// Tokens returns the statement's tokens.
func (s *Statement) Tokens() []Token {
	return s.toks
}

// Span is a half-open token range [Start, End).
type Span struct {
	Start, End int
}

// clauseEnds lists the keywords that close each clause at the clause's depth.
var clauseEnds = map[string][]string{
	"select": {"from", "union", "into"},
	"from":   {"where", "group", "having", "order", "limit", "union", "window"},
	"where":  {"group", "having", "order", "limit", "union", "window"},
	"having": {"order", "limit", "union", "window"},
}

// Clauses returns the body of every occurrence of keyword ("select", "from", "where"
// or "having"), at any depth. A body ends at the first terminator at the keyword's
// depth, at the parenthesis closing the enclosing group, or at the end of the statement.
func (s *Statement) Clauses(keyword string) []Span {
	ends := clauseEnds[keyword]
	var spans []Span
	for i, t := range s.toks {
		if t.Text != keyword {
			continue
		}
		d := t.Depth
		j := i + 1
		for ; j < len(s.toks); j++ {
			tok := s.toks[j]
			if tok.Depth < d {
				break
			}
			if tok.Depth == d && slices.Contains(ends, tok.Text) {
				break
			}
		}
		spans = append(spans, Span{Start: i + 1, End: j})
	}
	return spans
}

// HasSubqueryIn reports whether any clause introduced by keyword contains a SELECT.
func (s *Statement) HasSubqueryIn(keyword string) bool {
	for _, sp := range s.Clauses(keyword) {
		for _, t := range s.toks[sp.Start:sp.End] {
			if t.Text == "select" {
				return true
			}
		}
	}
	return false
}

// Subqueries returns the normalized text of every parenthesized SELECT, including
// the surrounding parentheses, outermost first.
func (s *Statement) Subqueries() []string {
	var out []string
	for i := 0; i+1 < len(s.toks); i++ {
		if s.toks[i].Text != "(" || s.toks[i+1].Text != "select" {
			continue
		}
		end := s.closing(i)
		out = append(out, join(s.toks[i:end]))
	}
	return out
}

// DuplicateSubqueries returns subqueries that occur more than once, in order of
// their second occurrence.
func (s *Statement) DuplicateSubqueries() []string {
	seen := make(map[string]int)
	var dups []string
	for _, q := range s.Subqueries() {
		seen[q]++
		if seen[q] == 2 {
			dups = append(dups, q)
		}
	}
	return dups
}

// closing returns the index just past the ")" matching the "(" at open,
// or len(tokens) when the group is unterminated.
func (s *Statement) closing(open int) int {
	d := s.toks[open].Depth
	for j := open + 1; j < len(s.toks); j++ {
		if s.toks[j].Text == ")" && s.toks[j].Depth == d {
			return j + 1
		}
	}
	return len(s.toks)
}

// InList describes one IN (...) predicate.
type InList struct {
	Commas   int  // commas directly inside the list
	Subquery bool // the list contains a SELECT
}

// InLists returns every IN (...) list in the statement.
func (s *Statement) InLists() []InList {
	var out []InList
	for i := 0; i+1 < len(s.toks); i++ {
		if s.toks[i].Text != "in" || s.toks[i+1].Text != "(" {
			continue
		}
		open := i + 1
		inner := s.toks[open].Depth + 1
		var list InList
		for _, t := range s.toks[open+1 : s.closing(open)] {
			switch {
			case t.Text == "select":
				list.Subquery = true
			case t.Text == "," && t.Depth == inner:
				list.Commas++
			}
		}
		out = append(out, list)
	}
	return out
}

// UnionsWithoutAll counts UNION operators not followed by ALL.
func (s *Statement) UnionsWithoutAll() int {
	n := 0
	for i, t := range s.toks {
		if t.Text != "union" {
			continue
		}
		if i+1 < len(s.toks) && s.toks[i+1].Text == "all" {
			continue
		}
		n++
	}
	return n
}

// SelectStar reports whether any select list projects "*" or "alias.*".
// Stars inside function calls such as count(*) are ignored.
func (s *Statement) SelectStar() bool {
	for _, sp := range s.Clauses("select") {
		if sp.Start == 0 {
			continue
		}
		d := s.toks[sp.Start-1].Depth
		for j := sp.Start; j < sp.End; j++ {
			t := s.toks[j]
			if t.Depth != d {
				continue
			}
			if strings.HasSuffix(t.Text, ".*") {
				return true
			}
			if t.Text == "*" {
				switch s.toks[j-1].Text {
				case "select", "distinct", "all", ",":
					return true
				}
			}
		}
	}
	return false
}
