package chart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/ports"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const defaultWidth = 40

var (
	ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")
	ErrMismatchedSeries      = errors.New("series labels and values differ in length")
)

var _ ports.Renderer = (*Renderer)(nil)

// Renderer draws a series as a horizontal bar chart in plain text. Payloads
// leave the terminal, so styles are rendered without color.
type Renderer struct {
	width int
}

func New(width int) *Renderer {
	if width <= 0 {
		width = defaultWidth
	}
	return &Renderer{width: width}
}

func (r *Renderer) Render(ctx context.Context, series domain.Series) (domain.Payload, error) {
	if err := ctx.Err(); err != nil {
		return domain.Payload{}, err
	}
	if len(series.Labels) != len(series.Values) {
		return domain.Payload{}, ErrMismatchedSeries
	}

	p := tea.NewProgram(
		newModel(series, r.width),
		tea.WithContext(ctx),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)
	finalModel, err := p.Run()
	if err != nil {
		return domain.Payload{}, fmt.Errorf("render chart: %w", err)
	}
	rendered, ok := finalModel.(model)
	if !ok {
		return domain.Payload{}, ErrUnexpectedRenderModel
	}

	return domain.Payload{
		Kind:        domain.PayloadChart,
		Filename:    slug(series.Title) + ".txt",
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(rendered.View() + "\n"),
	}, nil
}

type renderReadyMsg struct{}

type model struct {
	series domain.Series
	width  int
	styles styles
	output string
}

func newModel(series domain.Series, width int) model {
	return model{series: series, width: width, styles: newStyles()}
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg { return renderReadyMsg{} }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(renderReadyMsg); ok {
		m.output = renderChart(m.series, m.width, m.styles)
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	return m.output
}

type styles struct {
	title lipgloss.Style
	label lipgloss.Style
	bar   lipgloss.Style
	value lipgloss.Style
	axis  lipgloss.Style
}

func newStyles() styles {
	// A renderer bound to a non-terminal writer degrades to plain ASCII.
	r := lipgloss.NewRenderer(io.Discard)
	return styles{
		title: r.NewStyle().Bold(true),
		label: r.NewStyle(),
		bar:   r.NewStyle().Foreground(lipgloss.Color("159")),
		value: r.NewStyle().Foreground(lipgloss.Color("245")),
		axis:  r.NewStyle().Faint(true),
	}
}

func renderChart(series domain.Series, width int, s styles) string {
	lines := []string{s.title.Render(series.Title)}
	if len(series.Values) == 0 {
		lines = append(lines, s.axis.Render("(no data)"))
		return strings.Join(lines, "\n")
	}

	labelWidth := 0
	maxValue := 0.0
	for i, label := range series.Labels {
		labelWidth = max(labelWidth, lipgloss.Width(label))
		maxValue = math.Max(maxValue, series.Values[i])
	}

	labelStyle := s.label.Width(labelWidth)
	for i, label := range series.Labels {
		filled := 0
		if maxValue > 0 {
			filled = int(math.Round(series.Values[i] / maxValue * float64(width)))
		}
		lines = append(lines, labelStyle.Render(label)+" | "+
			s.bar.Render(strings.Repeat("#", filled))+" "+
			s.value.Render(formatValue(series.Values[i])))
	}

	if series.XLabel != "" || series.YLabel != "" {
		lines = append(lines, s.axis.Render(fmt.Sprintf("%s / %s", series.XLabel, series.YLabel)))
	}
	return strings.Join(lines, "\n")
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(title string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if s == "" {
		return "chart"
	}
	return s
}
