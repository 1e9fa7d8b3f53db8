package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#A78BFA") // Light purple
	colorSuccess   = lipgloss.Color("#10B981") // Green (installed)
	colorDanger    = lipgloss.Color("#EF4444") // Red (errors)
	colorMuted     = lipgloss.Color("#6B7280") // Gray
	colorWarning   = lipgloss.Color("#F59E0B") // Amber
)

// Shared styles used across prompts.
var (
	// Prompt title: "Select agents to install to".
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(colorPrimary).
			Padding(0, 1)

	// Item under the cursor.
	selectedItemStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorPrimary)

	// Item not under the cursor.
	normalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D1D5DB"))

	// Checked box marker.
	checkedStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	// Muted text (hints, descriptions).
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	// Selection counter.
	badgeStyle = lipgloss.NewStyle().
			Foreground(colorSecondary)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorDanger)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	boldStyle = lipgloss.NewStyle().Bold(true)

	// Confirmation dialog.
	dialogBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(1, 2)

	dialogButtonStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFF7DB")).
				Background(colorMuted).
				Padding(0, 2)

	dialogActiveButtonStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFF7DB")).
				Background(colorPrimary).
				Padding(0, 2).
				Bold(true)
)

// Styled output helpers for command reports printed outside a prompt.
// lipgloss drops colors automatically when the output is not a terminal.

func Success(s string) string { return successStyle.Render(s) }
func Failure(s string) string { return errorStyle.Render(s) }
func Warning(s string) string { return warningStyle.Render(s) }
func Muted(s string) string   { return mutedStyle.Render(s) }
func Bold(s string) string    { return boldStyle.Render(s) }
