package tui

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCanceled is returned when the user interrupts a spinner.
var ErrCanceled = errors.New("canceled")

type spinnerModel struct {
	spinner  spinner.Model
	message  string
	done     bool
	err      error
	styles   *Styles
	quitting bool
}

type spinnerDoneMsg struct {
	err error
}

func newSpinnerModel(message string, styles *Styles) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner
	return spinnerModel{spinner: s, message: message, styles: styles}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case spinnerDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	switch {
	case m.quitting:
		return ""
	case m.done:
		return m.styles.RenderStatus(m.err == nil, m.message) + "\n"
	}
	return fmt.Sprintf("%s %s\n", m.spinner.View(), m.message)
}

// Spinner shows progress on a terminal while a function runs.
type Spinner struct {
	message string
	out     io.Writer
}

// NewSpinner creates a spinner that renders message to out.
func NewSpinner(message string, out io.Writer) *Spinner {
	return &Spinner{message: message, out: out}
}

// Run executes fn while the spinner animates and returns fn's error.
// If the user interrupts, Run returns ErrCanceled without waiting for fn.
func (s *Spinner) Run(fn func() error) error {
	p := tea.NewProgram(newSpinnerModel(s.message, NewStyles()), tea.WithOutput(s.out))

	go func() {
		p.Send(spinnerDoneMsg{err: fn()})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	m := final.(spinnerModel) //nolint:errcheck // the program only runs spinnerModel
	if m.quitting {
		return ErrCanceled
	}
	return m.err
}
