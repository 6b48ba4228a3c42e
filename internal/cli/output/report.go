package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/leapstack-labs/themis/pkg/health"
)

// TargetReport pairs a target with its report or failure for rendering.
type TargetReport struct {
	Target string              `json:"target" yaml:"target"`
	Report *health.ScoreReport `json:"report,omitempty" yaml:"report,omitempty"`
	Error  string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// Reports renders one report per target in the effective mode.
func (r *Renderer) Reports(reports []TargetReport) error {
	switch r.EffectiveMode() {
	case ModeJSON:
		return r.JSON(reports)
	case ModeYAML:
		return r.YAML(reports)
	}
	for i, tr := range reports {
		if i > 0 {
			r.Println("")
		}
		r.report(tr)
	}
	return nil
}

func (r *Renderer) report(tr TargetReport) {
	if tr.Report == nil {
		r.Header(2, "Target "+tr.Target)
		r.StatusLine(tr.Target, "failed", tr.Error)
		return
	}

	rep := tr.Report
	title := fmt.Sprintf("Target %s: %s", tr.Target, rep.Category)
	if rep.Schema != "" {
		title += " (" + rep.Schema + ")"
	}
	r.Header(2, title)

	rows := make([][]string, 0, len(rep.Results))
	for _, res := range rep.Results {
		status := "ok"
		if res.Failed {
			status = "failed"
		} else if len(res.Findings) > 0 {
			status = "findings"
		}
		rows = append(rows, []string{
			res.RuleID,
			status,
			fmt.Sprintf("%d", len(res.Findings)),
			formatScore(res.Deduction),
			formatScore(res.MaxScore),
		})
	}
	r.Table([]string{"Rule", "Status", "Findings", "Deduction", "Max"}, rows)

	for _, res := range rep.Results {
		if len(res.Findings) == 0 {
			continue
		}
		r.findings(res)
	}

	total := fmt.Sprintf("Score: %s / %s", formatScore(rep.TotalScore), formatScore(health.MaxTotalScore))
	if r.EffectiveMode() == ModeMarkdown {
		r.Printf("**%s**  (run %s, %d failed)\n", total, rep.ID, rep.Failed())
		return
	}
	r.Println(r.styles.Score(rep.TotalScore).Render(total) +
		r.styles.Muted.Render(fmt.Sprintf("  run %s, %d failed, %s", rep.ID, rep.Failed(), rep.Duration().Round(time.Millisecond))))
}

func (r *Renderer) findings(res health.Result) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Printf("### %s\n\n", res.RuleID)
		for _, f := range res.Findings {
			r.Printf("- %s\n", findingLine(f))
		}
		r.Println("")
		return
	}
	r.Println(r.styles.RuleID.Render(res.RuleID) + " " + r.styles.Muted.Render(res.Description))
	for _, f := range res.Findings {
		line := "    " + findingLine(f)
		if f.Error != "" {
			line = r.styles.Error.Render(line)
		}
		r.Println(line)
	}
	r.Println("")
}

func findingLine(f health.Finding) string {
	var parts []string
	if f.Object != "" {
		parts = append(parts, f.Object)
	}
	if f.Message != "" {
		parts = append(parts, f.Message)
	}
	if f.Error != "" {
		parts = append(parts, "error: "+f.Error)
	}
	if len(f.Attrs) > 0 {
		keys := make([]string, 0, len(f.Attrs))
		for k := range f.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make([]string, len(keys))
		for i, k := range keys {
			attrs[i] = fmt.Sprintf("%s=%v", k, f.Attrs[k])
		}
		parts = append(parts, "("+strings.Join(attrs, ", ")+")")
	}
	return strings.Join(parts, ": ")
}

func formatScore(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
