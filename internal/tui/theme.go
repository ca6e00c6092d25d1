package tui

import (
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// ResolveTheme returns NoColorTheme when NO_COLOR is set, otherwise the
// default theme.
func ResolveTheme() Theme {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return NoColorTheme()
	}
	return DefaultTheme()
}

// NoColorTheme returns a theme with empty colors.
// Lipgloss treats empty strings as "no color".
func NoColorTheme() Theme {
	empty := lipgloss.AdaptiveColor{}
	return Theme{
		Primary:   empty,
		Secondary: empty,
		Success:   empty,
		Warning:   empty,
		Error:     empty,
		Muted:     empty,
	}
}

// FormTheme adapts theme to huh prompts.
func FormTheme(theme Theme) *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = t.Focused.Title.Foreground(theme.Primary).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(theme.Muted)
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(theme.Primary)
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(theme.Primary)
	t.Focused.ErrorIndicator = t.Focused.ErrorIndicator.Foreground(theme.Error)
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(theme.Error)
	t.Focused.FocusedButton = t.Focused.FocusedButton.Background(theme.Primary)

	t.Blurred = t.Focused
	t.Blurred.Title = t.Blurred.Title.Foreground(theme.Secondary).Bold(false)

	return t
}
