package inspector

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Style constructors — eliminate repeated inline lipgloss.NewStyle().Foreground() calls.

func mutedStyle(t *Theme) lipgloss.Style  { return lipgloss.NewStyle().Foreground(t.FgDim) }
func accentStyle(t *Theme) lipgloss.Style { return lipgloss.NewStyle().Foreground(t.Accent) }
func fgStyle(t *Theme) lipgloss.Style     { return lipgloss.NewStyle().Foreground(t.Fg) }
func brightStyle(t *Theme) lipgloss.Style { return lipgloss.NewStyle().Foreground(t.FgBright) }

// styledSep returns a " · " separator with a muted dot.
func styledSep(t *Theme) string {
	return " " + mutedStyle(t).Render("·") + " "
}

// helpBinding describes a key-label pair for the help bar.
type helpBinding struct{ Key, Label string }

// renderHelpBar renders a centered help bar from key-label bindings.
func renderHelpBar(bindings []helpBinding, w int, t *Theme) string {
	dim := mutedStyle(t)
	bright := fgStyle(t)

	var parts []string
	for _, b := range bindings {
		parts = append(parts, bright.Render(b.Key)+" "+dim.Render(b.Label))
	}
	return centerText(strings.Join(parts, "  "), w)
}

// pageFrame centers content horizontally (if the terminal is wider than
// contentW) and pads/trims vertically to fill the terminal height.
func pageFrame(content string, contentW, termW, termH int) string {
	if termW > contentW {
		padLeft := (termW - contentW) / 2
		padding := strings.Repeat(" ", padLeft)
		var centered []string
		for _, line := range strings.Split(content, "\n") {
			centered = append(centered, padding+line)
		}
		content = strings.Join(centered, "\n")
	}

	lines := strings.Split(content, "\n")
	for len(lines) < termH {
		lines = append(lines, "")
	}
	if len(lines) > termH {
		lines = lines[:termH]
	}
	return strings.Join(lines, "\n")
}
