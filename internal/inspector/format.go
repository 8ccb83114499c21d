package inspector

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Truncate shortens a plain (non-styled) string to maxLen, appending "…" if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen == 1 {
		return "…"
	}
	return string(runes[:maxLen-1]) + "…"
}

// FormatAge formats the time elapsed since ms (a unix-millis timestamp)
// as a short relative duration: "3s", "5m", "2h", "4d".
func FormatAge(ms int64, now time.Time) string {
	elapsed := now.Sub(time.UnixMilli(ms))
	switch {
	case elapsed < time.Minute:
		return fmt.Sprintf("%ds", int(elapsed.Seconds()))
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%dd", int(elapsed.Hours()/24))
	}
}

// FormatDurationSecs formats a duration given in whole seconds as "2m14s"
// or "1h03m".
func FormatDurationSecs(secs int64) string {
	d := time.Duration(secs) * time.Second
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) - m*60
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) - h*60
	return fmt.Sprintf("%dh%02dm", h, m)
}

func centerText(s string, totalW int) string {
	w := lipgloss.Width(s)
	if w >= totalW {
		return s
	}
	left := (totalW - w) / 2
	right := totalW - w - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}

func renderDivider(w int, theme *Theme) string {
	style := lipgloss.NewStyle().Foreground(theme.Border)
	return style.Render(strings.Repeat("─", w))
}

// renderBox draws a titled box with border theme.Border and title theme.Accent,
// clipping or padding content to exactly width x height.
func renderBox(title, content string, width, height int, theme *Theme) string {
	if width < 4 {
		width = 4
	}
	if height < 3 {
		height = 3
	}

	innerW := width - 2
	borderStyle := lipgloss.NewStyle().Foreground(theme.Border)
	titleStyle := lipgloss.NewStyle().Foreground(theme.Accent).Bold(true)

	var top string
	if title != "" {
		titleStr := " " + title + " "
		titleLen := lipgloss.Width(titleStr)
		if titleLen > innerW-2 {
			titleStr = Truncate(titleStr, innerW-2)
			titleLen = lipgloss.Width(titleStr)
		}
		trailing := innerW - 1 - titleLen
		if trailing < 0 {
			trailing = 0
		}
		top = borderStyle.Render("╭─") + titleStyle.Render(titleStr) + borderStyle.Render(strings.Repeat("─", trailing)+"╮")
	} else {
		top = borderStyle.Render("╭" + strings.Repeat("─", innerW) + "╮")
	}

	lines := strings.Split(content, "\n")
	innerH := height - 2
	for len(lines) < innerH {
		lines = append(lines, "")
	}
	if len(lines) > innerH {
		lines = lines[:innerH]
	}

	var b strings.Builder
	b.WriteString(top)
	b.WriteByte('\n')
	for _, line := range lines {
		lineW := lipgloss.Width(line)
		pad := innerW - lineW
		if pad < 0 {
			pad = 0
			line = Truncate(line, innerW)
		}
		b.WriteString(borderStyle.Render("│"))
		b.WriteString(line)
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(borderStyle.Render("│"))
		b.WriteByte('\n')
	}
	b.WriteString(borderStyle.Render("╰" + strings.Repeat("─", innerW) + "╯"))

	return b.String()
}
