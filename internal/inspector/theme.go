package inspector

import "github.com/charmbracelet/lipgloss"

// Theme holds every color the inspector's views reference. Views never
// use raw color values directly.
type Theme struct {
	Fg       lipgloss.Color // default text
	FgDim    lipgloss.Color // de-emphasized text (labels, separators)
	FgBright lipgloss.Color // emphasized text (titles, IDs)
	Border   lipgloss.Color // box borders, dividers

	Accent   lipgloss.Color // focus indicators, the spinner
	Healthy  lipgloss.Color // connected, fresh relevance, high confidence
	Warning  lipgloss.Color // decaying relevance, medium confidence
	Critical lipgloss.Color // disconnected, about to expire, low confidence
}

// TerminalTheme returns a theme using ANSI colors that inherits the
// terminal's background.
func TerminalTheme() Theme {
	return Theme{
		Fg:       lipgloss.Color("7"),
		FgDim:    lipgloss.Color("8"),
		FgBright: lipgloss.Color("15"),
		Border:   lipgloss.Color("8"),
		Accent:   lipgloss.Color("4"),
		Healthy:  lipgloss.Color("2"),
		Warning:  lipgloss.Color("3"),
		Critical: lipgloss.Color("1"),
	}
}

// RelevanceColor grades a decayed source relevance in [0,1]: fresh
// activations read Healthy, sources approaching eviction read Critical.
func (t Theme) RelevanceColor(relevance float64) lipgloss.Color {
	switch {
	case relevance >= 0.7:
		return t.Healthy
	case relevance >= 0.3:
		return t.Warning
	default:
		return t.Critical
	}
}

// ConfidenceColor grades a source link's confidence score the same way
// relevance is graded; the two scales share units by construction.
func (t Theme) ConfidenceColor(confidence float64) lipgloss.Color {
	return t.RelevanceColor(confidence)
}
