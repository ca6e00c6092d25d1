// Package tui provides interactive prompts.
package tui

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/charmbracelet/huh"
)

// ConfirmDangerous shows a confirmation prompt for destructive actions.
func ConfirmDangerous(message string) (bool, error) {
	var result bool
	err := run(huh.NewConfirm().
		Title(message).
		Description("This action cannot be undone.").
		Affirmative("Yes, I'm sure").
		Negative("Cancel").
		Value(&result))
	if err != nil {
		return false, err
	}
	return result, nil
}

// SelectOption represents an option in a select prompt.
type SelectOption struct {
	Value string
	Label string
}

// Select shows a single-select prompt.
func Select(title string, options []SelectOption) (string, error) {
	huhOptions := make([]huh.Option[string], len(options))
	for i, opt := range options {
		huhOptions[i] = huh.NewOption(opt.Label, opt.Value)
	}

	var result string
	err := run(huh.NewSelect[string]().
		Title(title).
		Options(huhOptions...).
		Value(&result))
	return result, err
}

// Credentials prompts for the provider email and password. email pre-fills
// the first field.
func Credentials(email string) (string, string, error) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Rocket.net email").
				Placeholder("you@example.com").
				Value(&email).
				Validate(ValidateEmail),
			huh.NewInput().
				Title("Rocket.net password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(required),
		).Title("Rocket.net credentials"),
	).WithTheme(FormTheme(ResolveTheme()))
	if err := form.Run(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(email), password, nil
}

func run(fields ...huh.Field) error {
	return huh.NewForm(huh.NewGroup(fields...)).
		WithTheme(FormTheme(ResolveTheme())).
		Run()
}

// ValidateEmail rejects empty and malformed addresses.
func ValidateEmail(s string) error {
	if err := required(s); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(s)); err != nil {
		return errors.New("not a valid email address")
	}
	return nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("this field is required")
	}
	return nil
}
