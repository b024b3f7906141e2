package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// RenderBox wraps content in a rounded-border box with an optional title.
func RenderBox(title string, content string) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorDim).
		PaddingLeft(2).
		PaddingRight(2).
		PaddingTop(1).
		PaddingBottom(1)

	if title != "" {
		titleRendered := StyleHeader.Render(strings.ToUpper(title))
		return boxStyle.Render(titleRendered + "\n\n" + content)
	}
	return boxStyle.Render(content)
}

// TruncID returns the first 8 characters of an ID, dimmed.
func TruncID(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return StyleDim.Render(id)
}

// FormatMinutes converts raw minutes into human-friendly form, e.g. "1h 30m".
func FormatMinutes(min int) string {
	if min <= 0 {
		return "0m"
	}
	h := min / 60
	m := min % 60
	if h > 0 && m > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if h > 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dm", m)
}

// SlotTime renders a schedule timestamp as local day plus clock time.
func SlotTime(t time.Time) string {
	return t.Format("Mon Jan 2 15:04")
}

// Percent renders a 0..1 ratio as a whole percentage.
func Percent(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

// UtilizationBar renders a fixed-width bar for a 0..1 ratio, colored by
// load: green below 70%, yellow below 90%, red above.
func UtilizationBar(ratio float64, width int) string {
	if width <= 0 {
		width = 20
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio*float64(width) + 0.5)

	style := StyleGreen
	switch {
	case ratio >= 0.9:
		style = StyleRed
	case ratio >= 0.7:
		style = StyleYellow
	}
	return style.Render(strings.Repeat("█", filled)) +
		StyleDim.Render(strings.Repeat("░", width-filled))
}
