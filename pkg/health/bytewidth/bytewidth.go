// Package bytewidth computes the storage width of MySQL column types.
//
// Widths follow the InnoDB storage requirements: fixed-size numeric and temporal
// types, packed decimals, character types multiplied by the charset's maximum bytes
// per character, and a fixed in-row pointer size for off-page types (TEXT, BLOB, JSON).
package bytewidth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownType is returned for column types missing from the width table.
var ErrUnknownType = errors.New("unknown data type")

// DefaultCharsetWidth is used when neither the column nor the caller names a charset width.
const DefaultCharsetWidth = 3

// fixed holds types whose width does not depend on arguments.
var fixed = map[string]int{
	"tinyint":    1,
	"bool":       1,
	"boolean":    1,
	"smallint":   2,
	"mediumint":  3,
	"int":        4,
	"integer":    4,
	"bigint":     8,
	"double":     8,
	"real":       8,
	"date":       3,
	"year":       1,
	"tinytext":   9,
	"tinyblob":   9,
	"text":       10,
	"blob":       10,
	"mediumtext": 11,
	"mediumblob": 11,
	"longtext":   12,
	"longblob":   12,
	"json":       12,
}

// charsets maps a character set to its maximum bytes per character.
var charsets = map[string]int{
	"utf8mb4": 4,
	"utf8mb3": 3,
	"utf8":    3,
	"latin1":  1,
	"ascii":   1,
	"binary":  1,
	"gbk":     2,
	"gb2312":  2,
	"big5":    2,
	"ucs2":    2,
	"utf16":   4,
	"utf32":   4,
}

// leftover is the byte count for the 0..8 digits left after packing groups of nine.
var leftover = [9]int{0, 1, 1, 2, 2, 3, 3, 4, 4}

// CharsetWidth returns the maximum bytes per character of charset.
// Unknown or empty charsets use fallback, or DefaultCharsetWidth when fallback <= 0.
func CharsetWidth(charset string, fallback int) int {
	if w, ok := charsets[strings.ToLower(strings.TrimSpace(charset))]; ok {
		return w
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultCharsetWidth
}

// Of returns the in-row byte width of a column, given its full column type as
// reported by information_schema.COLUMNS.COLUMN_TYPE (e.g. "varchar(64)",
// "decimal(10,2)", "int(11) unsigned") and its charset.
func Of(columnType, charset string, fallback int) (int, error) {
	base, args, err := parse(columnType)
	if err != nil {
		return 0, err
	}
	if w, ok := fixed[base]; ok {
		return w, nil
	}

	switch base {
	case "float":
		// float(p) with p > 24 is stored as a double
		if len(args) == 1 {
			if p := atoi(args[0], 0); p > 24 {
				return 8, nil
			}
		}
		return 4, nil
	case "decimal", "numeric", "dec", "fixed":
		precision, scale := 10, 0
		if len(args) > 0 {
			precision = atoi(args[0], 10)
		}
		if len(args) > 1 {
			scale = atoi(args[1], 0)
		}
		return packed(precision-scale) + packed(scale), nil
	case "bit":
		m := 1
		if len(args) > 0 {
			m = atoi(args[0], 1)
		}
		return (m + 7) / 8, nil
	case "time":
		return 3 + fsp(args), nil
	case "datetime":
		return 5 + fsp(args), nil
	case "timestamp":
		return 4 + fsp(args), nil
	case "char":
		return length(args, 1) * CharsetWidth(charset, fallback), nil
	case "binary":
		return length(args, 1), nil
	case "varchar":
		return withPrefix(length(args, 0) * CharsetWidth(charset, fallback)), nil
	case "varbinary":
		return withPrefix(length(args, 0)), nil
	case "enum":
		if len(args) > 255 {
			return 2, nil
		}
		return 1, nil
	case "set":
		n := (len(args) + 7) / 8
		if n > 4 {
			n = 8
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownType, columnType)
}

// parse splits "decimal(10,2) unsigned" into ("decimal", ["10", "2"]).
func parse(columnType string) (string, []string, error) {
	s := strings.ToLower(strings.TrimSpace(columnType))
	if s == "" {
		return "", nil, fmt.Errorf("%w: empty type", ErrUnknownType)
	}
	open := strings.IndexByte(s, '(')
	if open < 0 {
		base, _, _ := strings.Cut(s, " ")
		return base, nil, nil
	}
	closing := strings.LastIndexByte(s, ')')
	if closing < open {
		return "", nil, fmt.Errorf("malformed column type %q", columnType)
	}
	return strings.TrimSpace(s[:open]), splitArgs(s[open+1 : closing]), nil
}

// splitArgs splits a type argument list on commas outside single quotes.
func splitArgs(s string) []string {
	var (
		args    []string
		current strings.Builder
		quoted  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' && quoted && i+1 < len(s) && s[i+1] == '\'':
			current.WriteByte(c)
			i++
		case c == '\'':
			quoted = !quoted
			current.WriteByte(c)
		case c == ',' && !quoted:
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" || len(args) > 0 {
		args = append(args, rest)
	}
	return args
}

func packed(digits int) int {
	if digits <= 0 {
		return 0
	}
	return digits/9*4 + leftover[digits%9]
}

func fsp(args []string) int {
	if len(args) == 0 {
		return 0
	}
	return (atoi(args[0], 0) + 1) / 2
}

func length(args []string, def int) int {
	if len(args) == 0 {
		return def
	}
	return atoi(args[0], def)
}

func withPrefix(n int) int {
	if n > 255 {
		return n + 2
	}
	return n + 1
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
