package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/themis/internal/cli/output"
	"github.com/leapstack-labs/themis/internal/loader"
	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/spf13/cobra"
)

// LoadOptions holds options for the load command.
type LoadOptions struct {
	Watch  bool   // Keep watching the rule directories
	Format string // Output format
}

// NewLoadCommand creates the load command.
func NewLoadCommand() *cobra.Command {
	opts := &LoadOptions{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Discover operator rules and record them in the registry",
		Long: `Scan the configured rule directories for Starlark rule modules, register
every rule they define and record the catalog in the rule registry.

Loading is idempotent: rules already registered are counted as duplicates.
With --watch the directories are watched and rescanned when modules change.`,
		Example: `  # Load rules once
  themis load

  # Reload while editing rule modules
  themis load --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoad(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Watch rule directories and reload on change")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, markdown, json, yaml")

	return cmd
}

// loadOutput is the machine-readable load result.
type loadOutput struct {
	Scanned    int      `json:"scanned" yaml:"scanned"`
	Registered int      `json:"registered" yaml:"registered"`
	Duplicates int      `json:"duplicates" yaml:"duplicates"`
	NoRule     int      `json:"no_rule" yaml:"no_rule"`
	Persisted  int      `json:"persisted" yaml:"persisted"`
	Failures   []string `json:"failures,omitempty" yaml:"failures,omitempty"`
	Catalog    int      `json:"catalog" yaml:"catalog"`
}

func runLoad(cmd *cobra.Command, opts *LoadOptions) error {
	cmdCtx, err := NewCommandContext(cmd, opts.Format)
	if err != nil {
		return err
	}

	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	catalog := health.NewCatalog()
	ld := cmdCtx.NewLoader(catalog, store)

	summary, err := ld.Load(cmd.Context())
	if err != nil {
		return err
	}
	if err := renderSummary(cmdCtx.Renderer, summary, catalog.Len()); err != nil {
		return err
	}
	if !opts.Watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmdCtx.Renderer.Muted("Watching rule directories, press Ctrl+C to stop")
	err = ld.Watch(ctx, func(summary *loader.Summary, err error) {
		if err != nil {
			cmdCtx.Renderer.Error(fmt.Sprintf("reload failed: %v", err))
			return
		}
		_ = renderSummary(cmdCtx.Renderer, summary, catalog.Len())
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func renderSummary(r *output.Renderer, s *loader.Summary, catalogSize int) error {
	out := loadOutput{
		Scanned:    s.Scanned,
		Registered: s.Registered,
		Duplicates: s.Duplicates,
		NoRule:     s.NoRule,
		Persisted:  s.Persisted,
		Catalog:    catalogSize,
	}
	for _, e := range s.Errors {
		out.Failures = append(out.Failures, e.Error())
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeYAML:
		return r.YAML(out)
	}

	for _, e := range s.Errors {
		r.StatusLine(e.Path, "failed", e.Err.Error())
	}
	msg := fmt.Sprintf("Scanned %d modules: %d registered, %d duplicates, %d without a rule, %d failed",
		s.Scanned, s.Registered, s.Duplicates, s.NoRule, s.Failed())
	if s.Failed() > 0 {
		r.Warning(msg)
	} else {
		r.Success(msg)
	}
	r.Muted(fmt.Sprintf("%d rules in catalog, %d new in registry", catalogSize, s.Persisted))
	return nil
}
