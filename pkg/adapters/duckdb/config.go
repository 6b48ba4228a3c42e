package duckdb

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// Extensions to load before auditing (e.g. "json", "httpfs")
	Extensions []string `mapstructure:"extensions"`

	// Settings to apply at session level (e.g. memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`

	// ReadOnly opens file databases with access_mode=read_only
	ReadOnly bool `mapstructure:"read_only"`
}

func parseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}
	return p, nil
}
