// Package config loads themis.yaml, THEMIS_ environment variables and CLI flags
// into a single Config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/themis/internal/credcache"
	"github.com/leapstack-labs/themis/pkg/adapter"
	"github.com/leapstack-labs/themis/pkg/health"
)

// Config holds all configuration options.
type Config struct {
	StatePath   string            `koanf:"state_path"`
	Output      string            `koanf:"output"`
	Verbose     bool              `koanf:"verbose"`
	LogLevel    string            `koanf:"log_level"`
	LogFormat   string            `koanf:"log_format"`
	Concurrency int               `koanf:"concurrency"`
	RuleTimeout time.Duration     `koanf:"rule_timeout"`
	RunTimeout  time.Duration     `koanf:"run_timeout"`
	MetricsFile string            `koanf:"metrics_file"`
	Credentials CredentialsConfig `koanf:"credentials"`
	Rules       RulesConfig       `koanf:"rules"`
	Targets     []TargetConfig    `koanf:"targets"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `koanf:"-"`
}

// CredentialsConfig configures the credential cache.
type CredentialsConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// RulesConfig configures rule discovery and parameters.
type RulesConfig struct {
	Dirs DirsConfig `koanf:"dirs"`

	// Thresholds holds named thresholds shared by every rule, e.g. table_size: 20.
	Thresholds map[string]any `koanf:"thresholds"`

	// Overrides holds per-rule weight, max_score and threshold overrides keyed by rule id.
	Overrides map[string]map[string]any `koanf:"overrides"`
}

// DirsConfig lists Starlark rule directories per category.
type DirsConfig struct {
	Object   []string `koanf:"object"`
	PlanStat []string `koanf:"planstat"`
	Text     []string `koanf:"text"`
	Extended []string `koanf:"extended"`
}

// ByCategory returns the directories keyed by category.
func (d DirsConfig) ByCategory() map[health.Category][]string {
	return map[health.Category][]string{
		health.CategoryObject:   d.Object,
		health.CategoryPlanStat: d.PlanStat,
		health.CategoryText:     d.Text,
		health.CategoryExtended: d.Extended,
	}
}

// TargetConfig holds the connection settings of one audited database.
type TargetConfig struct {
	Name string `koanf:"name"`
	Type string `koanf:"type"` // mysql, postgres, duckdb

	// File-based databases (DuckDB)
	Path string `koanf:"path"`

	// Network databases
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	User         string `koanf:"user"`
	Password     string `koanf:"password"`
	PasswordEnv  string `koanf:"password_env"`
	PasswordFile string `koanf:"password_file"`
	Database     string `koanf:"database"`

	// Schema audited by object and planstat rules. Defaults to the adapter's default.
	Schema string `koanf:"schema"`

	// Options holds driver options such as sslmode or tls.
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g. DuckDB extensions, settings).
	Params map[string]any `koanf:"params"`
}

// Validate checks if the target configuration is valid.
// It uses the adapter registry to determine which adapter types are available.
func (t *TargetConfig) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("target name is required")
	}
	if t.Type == "" {
		return fmt.Errorf("target %s: type is required", t.Name)
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return fmt.Errorf("target %s: %w", t.Name, &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		})
	}

	set := 0
	for _, v := range []string{t.Password, t.PasswordEnv, t.PasswordFile} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("target %s: only one of password, password_env and password_file may be set", t.Name)
	}
	return nil
}

// CredentialSource describes where the target's password comes from.
func (t *TargetConfig) CredentialSource() credcache.Source {
	return credcache.Source{
		Password:     t.Password,
		PasswordEnv:  t.PasswordEnv,
		PasswordFile: t.PasswordFile,
	}
}

// AdapterConfig builds the adapter settings using a resolved password.
func (t *TargetConfig) AdapterConfig(password string) adapter.Config {
	return adapter.Config{
		Type:     strings.ToLower(t.Type),
		Path:     t.Path,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: password,
		Schema:   t.Schema,
		Options:  t.Options,
		Params:   t.Params,
	}
}

// Output formats.
const (
	OutputAuto     = "auto" // text on a terminal, markdown otherwise
	OutputText     = "text"
	OutputMarkdown = "markdown"
	OutputJSON     = "json"
	OutputYAML     = "yaml"
)

// Default configuration values.
const (
	ConfigFileName     = "themis.yaml"
	ConfigFileNameAlt  = "themis.yml"
	DefaultStateFile   = ".themis/registry.db"
	DefaultOutput      = OutputAuto
	DefaultLogLevel    = "warn"
	DefaultLogFormat   = "text"
	DefaultRuleTimeout = 30 * time.Second
	DefaultRunTimeout  = 10 * time.Minute
)

// Target returns the target with the given name.
func (c *Config) Target(name string) (*TargetConfig, error) {
	for i := range c.Targets {
		if c.Targets[i].Name == name {
			return &c.Targets[i], nil
		}
	}
	names := make([]string, len(c.Targets))
	for i, t := range c.Targets {
		names[i] = t.Name
	}
	return nil, fmt.Errorf("unknown target %q (configured: %s)\nHint: add it under targets[] in %s",
		name, strings.Join(names, ", "), ConfigFileName)
}

// SelectTargets returns the named targets, or every target when names is empty.
func (c *Config) SelectTargets(names []string) ([]TargetConfig, error) {
	if len(names) == 0 {
		if len(c.Targets) == 0 {
			return nil, fmt.Errorf("no targets configured\nHint: add targets[] to %s", ConfigFileName)
		}
		return c.Targets, nil
	}
	out := make([]TargetConfig, 0, len(names))
	for _, name := range names {
		t, err := c.Target(name)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}
