package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color palette for prompts and progress output.
type Theme struct {
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Success   lipgloss.AdaptiveColor
	Warning   lipgloss.AdaptiveColor
	Error     lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor
}

// DefaultTheme returns the default rocketctl theme.
func DefaultTheme() Theme {
	return Theme{
		Primary:   lipgloss.AdaptiveColor{Light: "#e8590c", Dark: "#ff922b"},
		Secondary: lipgloss.AdaptiveColor{Light: "#5f6368", Dark: "#9aa0a6"},
		Success:   lipgloss.AdaptiveColor{Light: "#1e8e3e", Dark: "#81c995"},
		Warning:   lipgloss.AdaptiveColor{Light: "#f9ab00", Dark: "#fdd663"},
		Error:     lipgloss.AdaptiveColor{Light: "#d93025", Dark: "#f28b82"},
		Muted:     lipgloss.AdaptiveColor{Light: "#80868b", Dark: "#6e7681"},
	}
}

// Styles holds the rendered styles for a theme.
type Styles struct {
	theme Theme

	Title   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Spinner lipgloss.Style
}

// NewStyles creates Styles from the resolved theme.
func NewStyles() *Styles {
	return NewStylesWithTheme(ResolveTheme())
}

// NewStylesWithTheme creates Styles for theme.
func NewStylesWithTheme(theme Theme) *Styles {
	return &Styles{
		theme:   theme,
		Title:   lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
		Muted:   lipgloss.NewStyle().Foreground(theme.Muted),
		Success: lipgloss.NewStyle().Foreground(theme.Success),
		Warning: lipgloss.NewStyle().Foreground(theme.Warning),
		Error:   lipgloss.NewStyle().Foreground(theme.Error),
		Spinner: lipgloss.NewStyle().Foreground(theme.Primary),
	}
}

// Theme returns the current theme.
func (s *Styles) Theme() Theme {
	return s.theme
}

// RenderStatus renders a status message with appropriate styling.
func (s *Styles) RenderStatus(ok bool, message string) string {
	if ok {
		return s.Success.Render("✓ " + message)
	}
	return s.Error.Render("✗ " + message)
}
