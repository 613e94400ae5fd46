// Package ui renders terminal output for the command line tool.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type doneMsg struct{ err error }

type spinnerModel struct {
	spinner spinner.Model
	title   string
	done    bool
	err     error
}

func newSpinnerModel(title string) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StylePrimary
	return spinnerModel{spinner: s, title: title}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.err = ErrInterrupted
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	if m.done || m.err != nil {
		return ""
	}
	return fmt.Sprintf("%s %s\n", m.spinner.View(), m.title)
}

// ErrInterrupted is returned when the user stops the spinner with Ctrl+C.
var ErrInterrupted = errors.New("interrupted")

// RunWithSpinner shows a spinner on stderr while fn runs. Ctrl+C cancels the
// context passed to fn and waits for fn to return. Without a terminal it just
// prints the title and runs fn.
func RunWithSpinner(ctx context.Context, title string, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !isTerminal(os.Stderr) {
		fmt.Fprintln(os.Stderr, FormatMuted(title))
		return fn(ctx)
	}

	p := tea.NewProgram(newSpinnerModel(title), tea.WithOutput(os.Stderr))
	done := make(chan error, 1)
	go func() {
		err := fn(ctx)
		done <- err
		p.Send(doneMsg{err: err})
	}()

	final, err := p.Run()
	return settle(final, err, cancel, done)
}

// settle cancels the task unless the spinner saw it finish, then waits for it.
func settle(final tea.Model, runErr error, cancel context.CancelFunc, done <-chan error) error {
	m, _ := final.(spinnerModel)
	if runErr != nil || !m.done {
		cancel()
	}
	taskErr := <-done

	switch {
	case runErr != nil:
		return fmt.Errorf("spinner: %w", runErr)
	case errors.Is(m.err, ErrInterrupted):
		return ErrInterrupted
	default:
		return taskErr
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
