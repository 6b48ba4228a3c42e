package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/themis/internal/cli/output"
	"github.com/leapstack-labs/themis/internal/config"
	"github.com/leapstack-labs/themis/internal/loader"
	"github.com/leapstack-labs/themis/internal/state"
	_ "github.com/leapstack-labs/themis/pkg/adapters/duckdb"   // register duckdb adapter
	_ "github.com/leapstack-labs/themis/pkg/adapters/mysql"    // register mysql adapter
	_ "github.com/leapstack-labs/themis/pkg/adapters/postgres" // register postgres adapter
	"github.com/leapstack-labs/themis/pkg/health"
	_ "github.com/leapstack-labs/themis/pkg/health/rules" // register built-in rules
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext collects the configuration, logger and renderer of cmd.
// A non-empty format overrides the configured output mode.
func NewCommandContext(cmd *cobra.Command, format string) (*CommandContext, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		// command executed without the root command, e.g. in tests
		var err error
		if cfg, err = config.Load("", nil); err != nil {
			return nil, err
		}
	}

	mode := output.Mode(cfg.Output)
	if format != "" {
		mode = output.Mode(format)
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}, nil
}

// OpenStore opens the rule registry and brings its schema up to date.
func (c *CommandContext) OpenStore() (*state.SQLiteStore, error) {
	if c.Cfg.StatePath != ":memory:" {
		if dir := filepath.Dir(c.Cfg.StatePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(c.Cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// NewLoader creates a loader for the configured rule directories.
func (c *CommandContext) NewLoader(catalog *health.Catalog, store state.Store) *loader.Loader {
	return loader.New(loader.Config{
		Dirs:    c.Cfg.Rules.Dirs.ByCategory(),
		Catalog: catalog,
		Store:   store,
		Logger:  c.Logger,
	})
}

// LoadCatalog returns a catalog holding the built-in rules plus every operator rule
// module found in the configured directories. The store may be nil.
func (c *CommandContext) LoadCatalog(ctx context.Context, store state.Store) (*health.Catalog, *loader.Summary, error) {
	catalog := health.NewCatalog()
	summary, err := c.NewLoader(catalog, store).Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, lerr := range summary.Errors {
		c.Renderer.Warning(lerr.Error())
	}
	return catalog, summary, nil
}

// parseCategory converts a --category flag value.
func parseCategory(s string) (health.Category, error) {
	cat, ok := health.ParseCategory(s)
	if !ok {
		return "", fmt.Errorf("unknown category %q\nHint: use one of object, planstat, text, extended", s)
	}
	return cat, nil
}
