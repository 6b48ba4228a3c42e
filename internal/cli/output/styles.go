package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used across commands.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style

	RuleID lipgloss.Style

	// Score bands
	ScoreGood lipgloss.Style
	ScoreFair lipgloss.Style
	ScorePoor lipgloss.Style
}

// NewStyles builds the style set on lr so color output follows its profile.
func NewStyles(lr *lipgloss.Renderer) Styles {
	return Styles{
		Header1: lr.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginBottom(1),
		Header2: lr.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Bold:    lr.NewStyle().Bold(true),
		Muted:   lr.NewStyle().Foreground(lipgloss.Color("8")),

		Success: lr.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lr.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lr.NewStyle().Foreground(lipgloss.Color("9")),
		Info:    lr.NewStyle().Foreground(lipgloss.Color("12")),

		StatusSuccess: lr.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		StatusFailed:  lr.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),

		RuleID: lr.NewStyle().Foreground(lipgloss.Color("13")),

		ScoreGood: lr.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		ScoreFair: lr.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		ScorePoor: lr.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// Score returns the style of a total score band.
func (s Styles) Score(total float64) lipgloss.Style {
	switch {
	case total >= 90:
		return s.ScoreGood
	case total >= 70:
		return s.ScoreFair
	default:
		return s.ScorePoor
	}
}
