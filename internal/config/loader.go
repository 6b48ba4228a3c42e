package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment variables read by Load. A double underscore
// separates nested keys: THEMIS_CREDENTIALS__TTL sets credentials.ttl.
const EnvPrefix = "THEMIS_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// defaults returns the lowest-priority configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"state_path":          DefaultStateFile,
		"output":              DefaultOutput,
		"verbose":             false,
		"log_level":           DefaultLogLevel,
		"log_format":          DefaultLogFormat,
		"concurrency":         4,
		"rule_timeout":        DefaultRuleTimeout.String(),
		"run_timeout":         DefaultRunTimeout.String(),
		"credentials.ttl":     "10m",
		"rules.dirs.object":   []string{"rules/object"},
		"rules.dirs.planstat": []string{"rules/planstat"},
		"rules.dirs.text":     []string{"rules/text"},
		"rules.dirs.extended": []string{"rules/extended"},
	}
}

// Load loads configuration from defaults, the config file, environment variables and
// flags. Precedence (highest to lowest): flags > env vars > config file > defaults.
//
// Without an explicit cfgFile, themis.yaml (or themis.yml) is searched for in the
// current directory and its parents. Relative paths in the file are resolved
// against the file's directory.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFile := cfgFile
	if configFile == "" {
		if cwd, err := os.Getwd(); err == nil {
			configFile = findConfigUpward(cwd)
		}
	} else if _, err := os.Stat(configFile); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configFile, err)
	}
	baseDir, _ := os.Getwd()
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		if abs, err := filepath.Abs(configFile); err == nil {
			baseDir = filepath.Dir(abs)
		}
	}

	// 3. Environment variables (THEMIS_ prefix)
	// Transform: THEMIS_RULE_TIMEOUT -> rule_timeout, THEMIS_CREDENTIALS__TTL -> credentials.ttl
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (only those explicitly set)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			switch key {
			case "state":
				key = "state_path"
			case "metrics":
				key = "metrics_file"
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ConfigFile = configFile

	// 6. Resolve paths and expand credentials
	if cfg.StatePath != ":memory:" {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, baseDir)
	}
	cfg.MetricsFile = resolvePathRelativeTo(cfg.MetricsFile, baseDir)
	for _, dirs := range []*[]string{&cfg.Rules.Dirs.Object, &cfg.Rules.Dirs.PlanStat, &cfg.Rules.Dirs.Text, &cfg.Rules.Dirs.Extended} {
		for i, d := range *dirs {
			(*dirs)[i] = resolvePathRelativeTo(d, baseDir)
		}
	}
	for i := range cfg.Targets {
		t := &cfg.Targets[i]
		expandTargetEnvVars(t)
		t.PasswordFile = resolvePathRelativeTo(t.PasswordFile, baseDir)
		if t.Path != "" && t.Path != ":memory:" {
			t.Path = resolvePathRelativeTo(t.Path, baseDir)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigUpward searches upward from startDir for a themis config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
// Unset variables are left as written.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

// expandTargetEnvVars expands environment variables in connection fields.
func expandTargetEnvVars(t *TargetConfig) {
	t.Password = expandEnvVars(t.Password)
	t.User = expandEnvVars(t.User)
	t.Host = expandEnvVars(t.Host)
	t.Database = expandEnvVars(t.Database)
	t.Path = expandEnvVars(t.Path)
	for k, v := range t.Options {
		t.Options[k] = expandEnvVars(v)
	}
}

// envKey maps a THEMIS_ variable to a config key. Rule ids under rules.overrides
// keep their upper-case form: THEMIS_RULES__OVERRIDES__BIG_TABLE__WEIGHT ->
// rules.overrides.BIG_TABLE.weight.
func envKey(s string) string {
	parts := strings.Split(strings.TrimPrefix(s, EnvPrefix), "__")
	for i, p := range parts {
		if i == 2 && strings.EqualFold(parts[0], "rules") && strings.EqualFold(parts[1], "overrides") {
			parts[i] = strings.ToUpper(p)
			continue
		}
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ".")
}
