package health

import (
	"fmt"
	"strconv"
	"time"
)

// Column returns row[i] or nil when the row is too short.
func (r Row) Column(i int) any {
	if i < 0 || i >= len(r) {
		return nil
	}
	return r[i]
}

// AsString converts a scanned column value to a string.
// Drivers such as go-sql-driver/mysql return text columns as []byte.
func AsString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format(time.RFC3339)
	default:
		return fmt.Sprint(s)
	}
}

// AsFloat converts a scanned numeric column value to a float64.
func AsFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unexpected numeric value %v (%T)", v, v)
	}
}

// AsInt converts a scanned integer column value to an int64.
// Fractional values are truncated.
func AsInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case []byte:
		if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
			return i, nil
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := AsFloat(v)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
