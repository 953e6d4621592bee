// Package ui provides consistent styling and components for the wayidle CLI
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	// Primary colors
	ColorPrimary   = lipgloss.Color("39")  // Bright blue
	ColorSecondary = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red

	// Neutral colors
	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray
	ColorMuted  = lipgloss.Color("238") // Dark gray

	// Tier state colors
	ColorActive = ColorSuccess
	ColorIdle   = ColorWarning
)

// Base styles - building blocks for other styles
var (
	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorMuted).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(1, 2)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)
)

// Tier indicators
var (
	IdleIndicator = lipgloss.NewStyle().
			Foreground(ColorIdle).
			Render("●")

	ActiveIndicator = lipgloss.NewStyle().
			Foreground(ColorActive).
			Render("○")

	ControlKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	ControlDescStyle = lipgloss.NewStyle().
				Foreground(ColorText)
)

// Table styles
var (
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorPrimary)

	TableCellStyle = lipgloss.NewStyle().
			PaddingRight(2)
)

// Icons and indicators for consistent app-wide usage
var (
	IconSuccess = "✓"
	IconError   = "✗"
	IconNext    = "→"
)

// FormatControl renders a key binding hint
func FormatControl(key, desc string) string {
	return ControlKeyStyle.Render(key) + " - " + ControlDescStyle.Render(desc)
}

// FormatTierState renders a tier's idle/active state with its indicator
func FormatTierState(idle bool) string {
	if idle {
		return IdleIndicator + " " + WarningStyle.Render("idle")
	}
	return ActiveIndicator + " " + SuccessStyle.Render("active")
}

// FormatDuration renders a duration rounded to the second, or to the
// millisecond below one second.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

// FormatSuccess renders a success line
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + msg
}

// FormatError renders an error line
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + msg
}

// FormatHint renders a subtle hint with a leading arrow
func FormatHint(format string, args ...interface{}) string {
	return SubtleStyle.Render(IconNext + " " + fmt.Sprintf(format, args...))
}

// CreateSeparator creates a horizontal line separator
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50 // Default width
	}
	if char == "" {
		char = "─" // Default to horizontal line
	}

	return lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Render(strings.Repeat(char, width))
}
