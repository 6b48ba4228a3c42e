package bytewidth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	tests := []struct {
		name       string
		columnType string
		charset    string
		want       int
	}{
		{"tinyint", "tinyint(1)", "", 1},
		{"int unsigned", "int(11) unsigned", "", 4},
		{"bigint", "BIGINT", "", 8},
		{"float single", "float", "", 4},
		{"float double precision", "float(30)", "", 8},
		{"double", "double", "", 8},
		{"decimal 10,2", "decimal(10,2)", "", 5},
		{"decimal 18,9", "decimal(18,9)", "", 8},
		{"decimal default", "decimal", "", 5},
		{"bit", "bit(10)", "", 2},
		{"date", "date", "", 3},
		{"datetime fsp", "datetime(6)", "", 8},
		{"timestamp", "timestamp", "", 4},
		{"time fsp 3", "time(3)", "", 5},
		{"char utf8mb4", "char(10)", "utf8mb4", 40},
		{"char latin1", "char(10)", "latin1", 10},
		{"varchar short", "varchar(50)", "latin1", 51},
		{"varchar long prefix", "varchar(255)", "utf8mb4", 1022},
		{"varbinary", "varbinary(16)", "", 17},
		{"binary", "binary(16)", "", 16},
		{"text pointer", "text", "utf8mb4", 10},
		{"longblob pointer", "longblob", "", 12},
		{"json", "json", "", 12},
		{"enum", "enum('a','b,c')", "", 1},
		{"set", "set('a','b','c')", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Of(tt.columnType, tt.charset, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOf_UnknownType(t *testing.T) {
	for _, typ := range []string{"geometry", "point", ""} {
		_, err := Of(typ, "", 0)
		require.Error(t, err, typ)
		assert.True(t, errors.Is(err, ErrUnknownType), typ)
	}
}

func TestCharsetWidth(t *testing.T) {
	assert.Equal(t, 4, CharsetWidth("utf8mb4", 0))
	assert.Equal(t, 3, CharsetWidth("UTF8", 0))
	assert.Equal(t, 1, CharsetWidth("latin1", 0))
	assert.Equal(t, 2, CharsetWidth("klingon", 2))
	assert.Equal(t, DefaultCharsetWidth, CharsetWidth("", 0))
}

func TestSplitArgs(t *testing.T) {
	assert.Equal(t, []string{"'a'", "'b,c'", "'it's'"}, splitArgs("'a','b,c','it''s'"))
	assert.Nil(t, splitArgs(""))
}
