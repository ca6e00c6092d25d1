package tui

import (
	"errors"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveThemeHonorsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, NoColorTheme(), ResolveTheme())
}

func TestDefaultThemeHasColors(t *testing.T) {
	theme := DefaultTheme()
	assert.NotEmpty(t, theme.Primary.Dark)
	assert.NotEmpty(t, theme.Error.Light)
}

func TestRenderStatusPlain(t *testing.T) {
	s := NewStylesWithTheme(NoColorTheme())
	assert.Contains(t, s.RenderStatus(true, "done"), "✓ done")
	assert.Contains(t, s.RenderStatus(false, "failed"), "✗ failed")
}

func TestFormTheme(t *testing.T) {
	require.NotNil(t, FormTheme(DefaultTheme()))
}

func TestSpinnerModel(t *testing.T) {
	m := newSpinnerModel("Creating site", NewStylesWithTheme(NoColorTheme()))
	assert.Contains(t, m.View(), "Creating site")

	next, cmd := m.Update(spinnerDoneMsg{err: errors.New("boom")})
	require.NotNil(t, cmd)
	done := next.(spinnerModel)
	assert.True(t, done.done)
	assert.EqualError(t, done.err, "boom")
	assert.Contains(t, done.View(), "✗ Creating site")

	_, cmd = m.Update(spinner.TickMsg{})
	_ = cmd
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("ops@example.com"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("   "))
	assert.Error(t, ValidateEmail("not-an-email"))
}
