package ui

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatters_KeepMessage(t *testing.T) {
	assert.Contains(t, FormatSuccess("saved"), "saved")
	assert.Contains(t, FormatError("boom"), "boom")
	assert.Contains(t, FormatInfo("hello"), "hello")
	assert.Contains(t, FormatWarning("careful"), "careful")
	assert.Contains(t, FormatBanner("translating"), "translating")
	assert.Contains(t, FormatHeader("History"), "History")
	assert.Contains(t, FormatMuted("quiet"), "quiet")
	assert.Contains(t, StatusStyle("FAILED").Render("FAILED"), "FAILED")
}

func TestSpinnerModel_QuitsWhenDone(t *testing.T) {
	m := newSpinnerModel("Translating a.pdf")
	assert.Contains(t, m.View(), "Translating a.pdf")

	failure := errors.New("processor down")
	next, cmd := m.Update(doneMsg{err: failure})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	final := next.(spinnerModel)
	assert.True(t, final.done)
	assert.Equal(t, failure, final.err)
	assert.Empty(t, final.View())
}

func TestSpinnerModel_CtrlC(t *testing.T) {
	m := newSpinnerModel("x")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.ErrorIs(t, next.(spinnerModel).err, ErrInterrupted)
}

func TestSpinnerModel_Ticks(t *testing.T) {
	m := newSpinnerModel("x")
	_, cmd := m.Update(spinner.TickMsg{ID: m.spinner.ID()})
	assert.NotNil(t, cmd)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, isTerminal(f))
}

func TestSettle_InterruptCancelsAndWaits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	finished := false
	go func() {
		<-ctx.Done()
		finished = true
		done <- ctx.Err()
	}()

	err := settle(spinnerModel{err: ErrInterrupted}, nil, cancel, done)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.True(t, finished)
}

func TestSettle_ReturnsTaskError(t *testing.T) {
	failure := errors.New("processor down")
	done := make(chan error, 1)
	done <- failure

	ctx, cancel := context.WithCancel(context.Background())
	err := settle(spinnerModel{done: true, err: failure}, nil, cancel, done)
	assert.Equal(t, failure, err)
	assert.NoError(t, ctx.Err())
	cancel()
}

func TestSettle_ProgramError(t *testing.T) {
	done := make(chan error, 1)
	done <- nil
	ctx, cancel := context.WithCancel(context.Background())

	err := settle(nil, errors.New("no tty"), cancel, done)
	assert.ErrorContains(t, err, "spinner: no tty")
	assert.Error(t, ctx.Err())
}

func TestRunWithSpinner_PassesContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	var seen error
	err := RunWithSpinner(parent, "working", func(ctx context.Context) error {
		seen = ctx.Err()
		return errors.New("stopped")
	})
	assert.EqualError(t, err, "stopped")
	assert.ErrorIs(t, seen, context.Canceled)
}
