package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Output {
	case OutputAuto, OutputText, OutputMarkdown, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("invalid output format %q\nHint: use one of auto, text, markdown, json, yaml", c.Output)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q\nHint: use text or json", c.LogFormat)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.RuleTimeout < 0 || c.RunTimeout < 0 {
		return fmt.Errorf("rule_timeout and run_timeout must not be negative")
	}

	seen := make(map[string]bool)
	for i := range c.Targets {
		t := &c.Targets[i]
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid target configuration: %w", err)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = true
	}

	for id, override := range c.Rules.Overrides {
		for _, key := range []string{"weight", "max_score"} {
			if v, ok := override[key]; ok {
				if f, ok := toFloat(v); !ok || f < 0 {
					return fmt.Errorf("rules.overrides.%s.%s must be a non-negative number, got %v", id, key, v)
				}
			}
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
