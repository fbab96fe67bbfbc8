package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const pollingLabel = "Polling presence source"

type pollFinishedMsg struct {
	err error
}

// pollProgress spins on stderr while one tick polls the source.
type pollProgress struct {
	spinner  spinner.Model
	started  time.Time
	now      func() time.Time
	poll     tea.Cmd
	err      error
	finished bool
}

func newPollProgress(poll tea.Cmd, now func() time.Time) pollProgress {
	return pollProgress{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.MiniDot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("42"))),
		),
		started: now(),
		now:     now,
		poll:    poll,
	}
}

func (p pollProgress) Init() tea.Cmd {
	return tea.Batch(p.spinner.Tick, p.poll)
}

func (p pollProgress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pollFinishedMsg:
		p.finished = true
		p.err = msg.err
		return p, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		p.spinner, cmd = p.spinner.Update(msg)
		return p, cmd
	}
	return p, nil
}

func (p pollProgress) View() string {
	if p.finished {
		return ""
	}
	elapsed := p.now().Sub(p.started).Truncate(100 * time.Millisecond)
	return fmt.Sprintf("%s %s... %s", p.spinner.View(), pollingLabel, elapsed)
}

// runPollProgress runs poll while drawing a spinner to output and returns
// poll's error.
func runPollProgress(ctx context.Context, output io.Writer, poll func(context.Context) error) error {
	program := tea.NewProgram(
		newPollProgress(func() tea.Msg { return pollFinishedMsg{err: poll(ctx)} }, time.Now),
		tea.WithContext(ctx),
		tea.WithInput(nil),
		tea.WithOutput(output),
	)

	final, err := program.Run()
	if err != nil {
		return err
	}
	progress, ok := final.(pollProgress)
	if !ok {
		return fmt.Errorf("unexpected final progress model type %T", final)
	}
	return progress.err
}
