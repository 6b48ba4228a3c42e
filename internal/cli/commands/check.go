package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/leapstack-labs/themis/internal/audit"
	"github.com/leapstack-labs/themis/internal/cli/output"
	"github.com/leapstack-labs/themis/internal/credcache"
	"github.com/leapstack-labs/themis/internal/metrics"
	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/spf13/cobra"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Category string   // Rule category to run
	Rules    []string // Rule ids, empty runs the whole category
	Targets  []string // Target names, empty audits every target
	SQL      string   // Statement handed to text rules
	SQLFile  string   // File holding the statement
	Format   string   // Output format override
	MinScore float64  // Fail when a target scores below this
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run health rules against configured targets",
		Long: `Run a selection of health rules against one or more databases and report
a score out of 100 per target.

Every rule of the category runs unless --rule narrows the selection. Targets are
audited in parallel (see concurrency); a target that cannot be reached is reported
without stopping the others.

Output adapts to environment:
  - Terminal: Styled output with tables
  - Piped/Scripted: Markdown format
  - JSON/YAML: Machine-readable format`,
		Example: `  # Run all object rules on every target
  themis check --category object

  # Run two rules on the prod target
  themis check -c object --rule BIG_TABLE --rule NO_PRIMARY_KEY --target prod

  # Review a statement with the text rules
  themis check -c text --sql "SELECT * FROM orders"

  # Fail the pipeline below 80 points
  themis check -c planstat --min-score 80 -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Category, "category", "c", string(health.CategoryObject), "Rule category: object, planstat, text, extended")
	cmd.Flags().StringArrayVarP(&opts.Rules, "rule", "r", nil, "Rule id to run (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Targets, "target", "t", nil, "Target name to audit (repeatable)")
	cmd.Flags().StringVar(&opts.SQL, "sql", "", "SQL statement for text rules")
	cmd.Flags().StringVar(&opts.SQLFile, "sql-file", "", "File holding the SQL statement for text rules")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, markdown, json, yaml")
	cmd.Flags().Float64Var(&opts.MinScore, "min-score", 0, "Exit with an error when a target scores below this")

	_ = cmd.RegisterFlagCompletionFunc("category", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return categoryNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions) error {
	ctx := cmd.Context()
	cmdCtx, err := NewCommandContext(cmd, opts.Format)
	if err != nil {
		return err
	}
	cfg := cmdCtx.Cfg

	category, err := parseCategory(opts.Category)
	if err != nil {
		return err
	}
	sql, err := readStatement(cmd.InOrStdin(), opts.SQL, opts.SQLFile)
	if err != nil {
		return err
	}

	targets, err := cfg.SelectTargets(opts.Targets)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets configured\nHint: add a targets section to themis.yaml or use 'themis lint' for offline text rules")
	}

	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	catalog, _, err := cmdCtx.LoadCatalog(ctx, store)
	if err != nil {
		return err
	}

	collector := metrics.New()
	executor := health.NewExecutor(health.ExecutorConfig{
		Catalog:     catalog,
		Thresholds:  cfg.Rules.Thresholds,
		Overrides:   cfg.Rules.Overrides,
		RuleTimeout: cfg.RuleTimeout,
		Observer:    collector,
		Logger:      cmdCtx.Logger,
	})

	runner := audit.NewRunner(audit.Config{
		Executor:    executor,
		Credentials: credcache.New(cfg.Credentials.TTL, credcache.WithLogger(cmdCtx.Logger)),
		Concurrency: cfg.Concurrency,
		RunTimeout:  cfg.RunTimeout,
		Logger:      cmdCtx.Logger,
	})

	reports, err := runner.Run(ctx, targets, audit.Request{
		Category: category,
		RuleIDs:  opts.Rules,
		SQL:      sql,
	})
	if err != nil {
		return err
	}

	if err := cmdCtx.Renderer.Reports(toOutput(reports)); err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
		cmdCtx.Logger.Debug("wrote metrics", "path", cfg.MetricsFile)
	}

	return checkOutcome(reports, opts.MinScore)
}

func toOutput(reports []audit.TargetReport) []output.TargetReport {
	out := make([]output.TargetReport, len(reports))
	for i, r := range reports {
		out[i] = output.TargetReport{Target: r.Target, Report: r.Report}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

// checkOutcome turns unreachable targets and low scores into a command error so the
// exit status reflects the audit.
func checkOutcome(reports []audit.TargetReport, minScore float64) error {
	if failed := audit.Failed(reports); len(failed) > 0 {
		return fmt.Errorf("%d of %d targets could not be audited", len(failed), len(reports))
	}
	if minScore <= 0 {
		return nil
	}
	for _, r := range reports {
		if r.Report.TotalScore < minScore {
			return fmt.Errorf("target %s scored %.2f, below the minimum of %.2f", r.Target, r.Report.TotalScore, minScore)
		}
	}
	return nil
}

// readStatement returns the statement given inline or in a file ("-" reads stdin).
func readStatement(stdin io.Reader, inline, path string) (string, error) {
	if inline != "" && path != "" {
		return "", fmt.Errorf("--sql and --sql-file are mutually exclusive")
	}
	switch path {
	case "":
		return inline, nil
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read statement from stdin: %w", err)
		}
		return string(b), nil
	default:
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read statement: %w", err)
		}
		return string(b), nil
	}
}

func categoryNames() []string {
	cats := health.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return names
}
