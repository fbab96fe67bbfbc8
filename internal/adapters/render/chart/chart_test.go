package chart

import (
	"context"
	"strings"
	"testing"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBarChart(t *testing.T) {
	payload, err := New(10).Render(context.Background(), domain.Series{
		Title:  "Sessions by weekday for alice",
		XLabel: "Day of week",
		YLabel: "Sessions",
		Labels: []string{"Monday", "Tue", "Wed"},
		Values: []float64{4, 2, 0.5},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PayloadChart, payload.Kind)
	assert.Equal(t, "sessions-by-weekday-for-alice.txt", payload.Filename)

	body := string(payload.Body)
	assert.NotContains(t, body, "\x1b[")
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Sessions by weekday for alice", lines[0])
	assert.Equal(t, "Monday | ########## 4", lines[1])
	assert.Equal(t, "Tue    | ##### 2", lines[2])
	assert.Equal(t, "Wed    | # 0.5", lines[3])
	assert.Equal(t, "Day of week / Sessions", lines[4])
}

func TestRenderEmptySeries(t *testing.T) {
	payload, err := New(0).Render(context.Background(), domain.Series{Title: "!!!"})
	require.NoError(t, err)
	assert.Equal(t, "chart.txt", payload.Filename)
	assert.Contains(t, string(payload.Body), "(no data)")
}

func TestRenderRejectsMismatchedSeries(t *testing.T) {
	_, err := New(10).Render(context.Background(), domain.Series{Labels: []string{"a"}})
	require.ErrorIs(t, err, ErrMismatchedSeries)
}
