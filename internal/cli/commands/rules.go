package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/themis/internal/cli/output"
	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/spf13/cobra"
)

// RulesOptions holds options for the rules command.
type RulesOptions struct {
	Category   string // Filter by category
	Source     string // Filter by source: builtin, operator
	Registered bool   // List the registry store instead of the live catalog
	Format     string // Output format
}

// NewRulesCommand creates the rules command.
func NewRulesCommand() *cobra.Command {
	opts := &RulesOptions{}
	cmd := &cobra.Command{
		Use:   "rules [rule-id]",
		Short: "List available health rules",
		Long: `List the built-in health rules and the operator rules found in the
configured rule directories, with their weights, score caps and thresholds.

Use --registered to list what the rule registry has recorded instead.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON/YAML: Machine-readable format`,
		Example: `  # List all rules
  themis rules

  # Show one rule
  themis rules BIG_TABLE

  # List text rules only
  themis rules --category text

  # Dump operator rules as YAML
  themis rules --source operator --format yaml

  # List the rule registry
  themis rules --registered`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return showRule(cmd, args[0], opts)
			}
			return listRules(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Category, "category", "c", "", "Filter by category: object, planstat, text, extended")
	cmd.Flags().StringVar(&opts.Source, "source", "", "Filter by source: builtin, operator")
	cmd.Flags().BoolVar(&opts.Registered, "registered", false, "List the rule registry store")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, markdown, json, yaml")

	return cmd
}

func listRules(cmd *cobra.Command, opts *RulesOptions) error {
	cmdCtx, err := NewCommandContext(cmd, opts.Format)
	if err != nil {
		return err
	}

	var category health.Category
	if opts.Category != "" {
		if category, err = parseCategory(opts.Category); err != nil {
			return err
		}
	}

	rules, err := collectRules(cmd, cmdCtx, category, opts.Registered)
	if err != nil {
		return err
	}
	rules, err = filterRulesBySource(rules, opts.Source)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(rules)
	case output.ModeYAML:
		return r.YAML(rules)
	default:
		listRulesTable(r, rules)
		return nil
	}
}

func collectRules(cmd *cobra.Command, cmdCtx *CommandContext, category health.Category, registered bool) ([]health.RuleInfo, error) {
	if registered {
		store, err := cmdCtx.OpenStore()
		if err != nil {
			return nil, err
		}
		defer func() { _ = store.Close() }()

		records, err := store.ListRules(cmd.Context(), category)
		if err != nil {
			return nil, err
		}
		rules := make([]health.RuleInfo, len(records))
		for i, rec := range records {
			rules[i] = rec.RuleInfo
		}
		return rules, nil
	}

	catalog, _, err := cmdCtx.LoadCatalog(cmd.Context(), nil)
	if err != nil {
		return nil, err
	}
	defs := catalog.Entries(category)
	rules := make([]health.RuleInfo, len(defs))
	for i, def := range defs {
		rules[i] = def.Info()
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Category != rules[j].Category {
			return categoryRank(rules[i].Category) < categoryRank(rules[j].Category)
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

func filterRulesBySource(rules []health.RuleInfo, source string) ([]health.RuleInfo, error) {
	switch source {
	case "":
		return rules, nil
	case "builtin", "operator":
	default:
		return nil, fmt.Errorf("unknown source %q\nHint: use builtin or operator", source)
	}

	var filtered []health.RuleInfo
	for _, r := range rules {
		builtin := r.Source == health.SourceBuiltin
		if builtin == (source == "builtin") {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func listRulesTable(r *output.Renderer, rules []health.RuleInfo) {
	if len(rules) == 0 {
		r.Warning("No rules found")
		return
	}

	r.Header(1, fmt.Sprintf("Health Rules (%d)", len(rules)))

	current := health.Category("")
	var rows [][]string
	flush := func() {
		if len(rows) > 0 {
			r.Header(2, capitalizeFirst(string(current)))
			r.Table([]string{"ID", "Family", "Weight", "Max", "Thresholds", "Description"}, rows)
			rows = nil
		}
	}
	for _, rule := range rules {
		if rule.Category != current {
			flush()
			current = rule.Category
		}
		rows = append(rows, []string{
			rule.ID,
			string(rule.Family),
			formatNumber(rule.Weight),
			formatNumber(rule.MaxScore),
			formatThresholds(rule.Thresholds),
			rule.Description,
		})
	}
	flush()

	if r.EffectiveMode() != output.ModeMarkdown {
		r.Muted("Use 'themis rules <rule-id>' for details")
	}
}

func showRule(cmd *cobra.Command, ruleID string, opts *RulesOptions) error {
	cmdCtx, err := NewCommandContext(cmd, opts.Format)
	if err != nil {
		return err
	}

	var category health.Category
	if opts.Category != "" {
		if category, err = parseCategory(opts.Category); err != nil {
			return err
		}
	}

	rules, err := collectRules(cmd, cmdCtx, category, opts.Registered)
	if err != nil {
		return err
	}
	var matches []health.RuleInfo
	for _, rule := range rules {
		if strings.EqualFold(rule.ID, ruleID) {
			matches = append(matches, rule)
		}
	}
	if len(matches) == 0 {
		return fmt.Errorf("rule %q not found\nHint: run 'themis rules' to list available rules", ruleID)
	}

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(matches)
	case output.ModeYAML:
		return r.YAML(matches)
	}

	styles := r.Styles()
	for _, rule := range matches {
		if r.EffectiveMode() == output.ModeMarkdown {
			r.Printf("# %s\n\n", rule.ID)
			r.Printf("%s\n\n", rule.Description)
			r.Printf("- **Category:** %s\n", rule.Category)
			r.Printf("- **Family:** %s\n", rule.Family)
			r.Printf("- **Weight:** %s\n", formatNumber(rule.Weight))
			r.Printf("- **Max score:** %s\n", formatNumber(rule.MaxScore))
			r.Printf("- **Thresholds:** %s\n", formatThresholds(rule.Thresholds))
			r.Printf("- **Source:** %s\n\n", rule.Source)
			continue
		}
		r.Println(styles.Header1.Render(rule.ID))
		r.Println(rule.Description)
		r.Println("")
		r.Printf("  %s %s\n", styles.Bold.Render("Category:  "), rule.Category)
		r.Printf("  %s %s\n", styles.Bold.Render("Family:    "), rule.Family)
		r.Printf("  %s %s\n", styles.Bold.Render("Weight:    "), formatNumber(rule.Weight))
		r.Printf("  %s %s\n", styles.Bold.Render("Max score: "), formatNumber(rule.MaxScore))
		r.Printf("  %s %s\n", styles.Bold.Render("Thresholds:"), formatThresholds(rule.Thresholds))
		r.Printf("  %s %s\n", styles.Bold.Render("Source:    "), styles.Muted.Render(rule.Source))
		r.Println("")
	}
	return nil
}

func categoryRank(c health.Category) int {
	for i, cat := range health.Categories() {
		if cat == c {
			return i
		}
	}
	return len(health.Categories())
}

func formatThresholds(m map[string]any) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m[k])
	}
	return strings.Join(parts, ", ")
}

func formatNumber(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

// capitalizeFirst capitalizes the first letter of a string.
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
