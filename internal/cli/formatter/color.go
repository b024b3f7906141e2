package formatter

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jspindler/takt/internal/domain"
)

// Gruvbox-inspired color palette.
var (
	ColorGreen  = lipgloss.Color("#8ec07c")
	ColorYellow = lipgloss.Color("#fabd2f")
	ColorRed    = lipgloss.Color("#fb4934")
	ColorBlue   = lipgloss.Color("#83a598")
	ColorPurple = lipgloss.Color("#d3869b")
	ColorDim    = lipgloss.Color("#928374")
	ColorFg     = lipgloss.Color("#ebdbb2")
	ColorHeader = lipgloss.Color("#fe8019")
)

// Predefined lipgloss styles.
var (
	StyleGreen  = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleYellow = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleRed    = lipgloss.NewStyle().Foreground(ColorRed)
	StyleBlue   = lipgloss.NewStyle().Foreground(ColorBlue)
	StylePurple = lipgloss.NewStyle().Foreground(ColorPurple)
	StyleDim    = lipgloss.NewStyle().Foreground(ColorDim)
	StyleFg     = lipgloss.NewStyle().Foreground(ColorFg)
	StyleHeader = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
	StyleBold   = lipgloss.NewStyle().Foreground(ColorFg).Bold(true)
)

// UrgencyColor returns the style corresponding to a priority urgency level.
func UrgencyColor(u domain.UrgencyLevel) lipgloss.Style {
	switch u {
	case domain.UrgencyCritical:
		return StyleRed
	case domain.UrgencyHigh:
		return StyleYellow
	case domain.UrgencyMedium:
		return StyleBlue
	default:
		return StyleDim
	}
}

// UrgencyIndicator returns a colored urgency indicator such as "● CRITICAL".
func UrgencyIndicator(u domain.UrgencyLevel) string {
	switch u {
	case domain.UrgencyCritical:
		return StyleRed.Render("● CRITICAL")
	case domain.UrgencyHigh:
		return StyleYellow.Render("● HIGH")
	case domain.UrgencyMedium:
		return StyleBlue.Render("● MEDIUM")
	default:
		return StyleDim.Render("● LOW")
	}
}

// EntryStatusPill returns a colored status indicator for a schedule entry.
func EntryStatusPill(status domain.EntryStatus) string {
	switch status {
	case domain.EntryScheduled:
		return StyleBlue.Render("○ Scheduled")
	case domain.EntryInProgress:
		return StyleGreen.Render("● In Progress")
	case domain.EntryCompleted:
		return StyleDim.Render("✔ Completed")
	case domain.EntryCancelled:
		return StyleDim.Render("✖ Cancelled")
	default:
		return StyleDim.Render(string(status))
	}
}

// EmergencyStatePill returns a colored state indicator for an emergency
// request.
func EmergencyStatePill(state domain.EmergencyState) string {
	switch state {
	case domain.EmergencyRequested:
		return StyleYellow.Render("○ Requested")
	case domain.EmergencyApproved:
		return StyleBlue.Render("● Approved")
	case domain.EmergencyScheduled:
		return StyleGreen.Render("✔ Scheduled")
	case domain.EmergencyRejected:
		return StyleRed.Render("✖ Rejected")
	default:
		return StyleDim.Render(string(state))
	}
}

// Header renders a section header with the orange header style and an underline.
func Header(text string) string {
	upper := strings.ToUpper(text)
	line := strings.Repeat("─", len(upper))
	return fmt.Sprintf("%s\n%s", StyleHeader.Render(upper), StyleDim.Render(line))
}

// Dim renders text in the muted/dim color.
func Dim(text string) string {
	return StyleDim.Render(text)
}

// Bold renders text in bold with the foreground color.
func Bold(text string) string {
	return StyleBold.Render(text)
}
