package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/themis/internal/cli/output"
	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/spf13/cobra"
)

// LintOptions holds options for the lint command.
type LintOptions struct {
	SQL      string   // Inline statement
	Rules    []string // Run only specific rules
	Format   string   // Output format override
	MinScore float64  // Fail below this score
}

// NewLintCommand creates the lint command.
func NewLintCommand() *cobra.Command {
	opts := &LintOptions{}
	cmd := &cobra.Command{
		Use:   "lint [file]",
		Short: "Review a SQL statement with the text rules",
		Long: `Run the text rule category against a SQL statement without connecting to
a database.

The statement is read from --sql, from the file argument, or from stdin when the
argument is "-". Operator rules in the text directories are loaded as well.`,
		Example: `  # Lint a query file
  themis lint queries/report.sql

  # Lint from a pipe
  cat report.sql | themis lint -

  # Only check for UNION without ALL
  themis lint --sql "SELECT a FROM t UNION SELECT a FROM u" --rule UNION`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runLint(cmd, path, opts)
		},
	}

	cmd.Flags().StringVar(&opts.SQL, "sql", "", "SQL statement to lint")
	cmd.Flags().StringArrayVarP(&opts.Rules, "rule", "r", nil, "Rule id to run (repeatable)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, markdown, json, yaml")
	cmd.Flags().Float64Var(&opts.MinScore, "min-score", 0, "Exit with an error when the statement scores below this")

	return cmd
}

func runLint(cmd *cobra.Command, path string, opts *LintOptions) error {
	ctx := cmd.Context()
	cmdCtx, err := NewCommandContext(cmd, opts.Format)
	if err != nil {
		return err
	}

	stmt, err := readStatement(cmd.InOrStdin(), opts.SQL, path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(stmt) == "" {
		return fmt.Errorf("no SQL statement to lint\nHint: pass a file, '-' for stdin, or --sql")
	}

	// lint runs offline and leaves the registry untouched
	catalog, _, err := cmdCtx.LoadCatalog(ctx, nil)
	if err != nil {
		return err
	}

	executor := health.NewExecutor(health.ExecutorConfig{
		Catalog:     catalog,
		Thresholds:  cmdCtx.Cfg.Rules.Thresholds,
		Overrides:   cmdCtx.Cfg.Rules.Overrides,
		RuleTimeout: cmdCtx.Cfg.RuleTimeout,
		Logger:      cmdCtx.Logger,
	})

	name := path
	if name == "" || name == "-" {
		name = "statement"
	}
	report, err := executor.Execute(ctx, health.Target{Name: name, SQL: stmt}, health.CategoryText, opts.Rules)
	if err != nil {
		return err
	}

	if err := cmdCtx.Renderer.Reports([]output.TargetReport{{Target: name, Report: report}}); err != nil {
		return err
	}

	if opts.MinScore > 0 && report.TotalScore < opts.MinScore {
		return fmt.Errorf("statement scored %.2f, below the minimum of %.2f", report.TotalScore, opts.MinScore)
	}
	return nil
}
