package status

import (
	"errors"
	"io"

	"github.com/bnema/presence-tracker/internal/application"
	tea "github.com/charmbracelet/bubbletea"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

type drawMsg struct{}

// frame draws a single view and quits.
type frame struct {
	draw   func() string
	output string
}

func (f frame) Init() tea.Cmd {
	return func() tea.Msg { return drawMsg{} }
}

func (f frame) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(drawMsg); ok {
		f.output = f.draw()
		return f, tea.Quit
	}
	return f, nil
}

func (f frame) View() string {
	return f.output
}

// Render draws the tracker status for a terminal.
func Render(status application.Status, opts RenderOptions) (string, error) {
	s := newStyles()
	program := tea.NewProgram(
		frame{draw: func() string { return renderView(status, opts, s) }},
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	final, err := program.Run()
	if err != nil {
		return "", err
	}
	drawn, ok := final.(frame)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}
	return drawn.output, nil
}
