package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReportsAddedThenAlreadyPresent(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "subscribe", "42")
	require.NoError(t, err)
	assert.Contains(t, stdout, "You are now opted in to being tracked.")

	stdout, _, err = executeCLI(t, home, "subscribe", "42")
	require.NoError(t, err)
	assert.Contains(t, stdout, "You are already opted in to being tracked.")

	raw, err := os.ReadFile(filepath.Join(home, ".presence", "subscriptions.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"42"`)
}

func TestSubscribeRejectsBlankID(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "subscribe", "  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity id is required")
}

func TestUnsubscribeKeepsHistory(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeSessionsFixture(home))

	stdout, _, err := executeCLI(t, home, "unsubscribe", "42")
	require.NoError(t, err)
	assert.Contains(t, stdout, "You are no longer tracked.")

	stdout, _, err = executeCLI(t, home, "unsubscribe", "42")
	require.NoError(t, err)
	assert.Contains(t, stdout, "You were not opted in to being tracked.")

	stdout, _, err = executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "alice (42) [unsubscribed]")
}

func TestStatusRendersTrackedEntities(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeSessionsFixture(home))

	stdout, _, err := executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Presence Tracker")
	assert.Contains(t, stdout, "entities: 1, subscribed: 1")
	assert.Contains(t, stdout, "alice (42)")
	assert.Contains(t, stdout, "2 sessions, 1h 30m")
	assert.Contains(t, stdout, "weekly report: off")
}

func TestStatusJSONOutput(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeSessionsFixture(home))

	stdout, _, err := executeCLI(t, home, "status", "--json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, `"entity_id": "42"`)
	assert.Contains(t, stdout, `"display_name": "alice"`)
}

func TestAnalyticsWithoutDataPrintsMessage(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "analytics", "99")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No data available for analysis.")
}

func TestAnalyticsRendersCharts(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeSessionsFixture(home))

	stdout, _, err := executeCLI(t, home, "analytics", "42")
	require.NoError(t, err)
	assert.Contains(t, stdout, "alice (42): 2 sessions, 90.0 minutes in total")
	assert.Contains(t, stdout, "Sessions by weekday for alice")
	assert.Contains(t, stdout, "Sessions by hour for alice")
	assert.Contains(t, stdout, "Session durations for alice")
	assert.Contains(t, stdout, "Day of week / Sessions")
}

func TestAnalyticsJSONOutput(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeSessionsFixture(home))

	stdout, _, err := executeCLI(t, home, "analytics", "42", "--json")
	require.NoError(t, err)

	var body struct {
		Sessions     int            `json:"sessions"`
		TotalMinutes float64        `json:"total_minutes"`
		ByWeekday    map[string]int `json:"by_weekday"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &body))
	assert.Equal(t, 2, body.Sessions)
	assert.InDelta(t, 90.0, body.TotalMinutes, 0.001)
	assert.Equal(t, 2, body.ByWeekday["Monday"])
}

func TestAnalyticsDeliverWritesChartFiles(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeSessionsFixture(home))
	outDir := filepath.Join(t.TempDir(), "charts")

	stdout, _, err := executeCLI(t, home, "analytics", "42", "--deliver", "file://"+outDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Delivered 3 charts to file://"+outDir)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestReportStartStopAndPreview(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeSessionsFixture(home))
	outDir := t.TempDir()

	stdout, _, err := executeCLI(t, home, "report", "start", "file://"+outDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Weekly online report enabled; delivering to file://"+outDir)
	assert.Contains(t, stdout, "Next report:")

	raw, err := os.ReadFile(filepath.Join(home, ".presence", "schedule.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "enabled = true")

	stdout, _, err = executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "weekly report: on -> file://"+outDir)

	stdout, _, err = executeCLI(t, home, "report", "preview")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Weekly Online Report")
	assert.Contains(t, stdout, "User alice (ID: 42) has been online 2 times, 90.0 minutes in total.")

	stdout, _, err = executeCLI(t, home, "report", "stop")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Weekly online report disabled.")

	raw, err = os.ReadFile(filepath.Join(home, ".presence", "schedule.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "enabled = false")
}

func TestReportStartRejectsUnknownScheme(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "report", "start", "ftp://example.com/reports")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid report destination")
}

func TestTickRecordsOnlineSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/presence", r.URL.Path)
		assert.Equal(t, "Bearer source-token", r.Header.Get("Authorization"))
		_, _ = fmt.Fprint(w, `{"members":[{"id":"42","name":"alice","status":"online"},{"id":"7","name":"bob","status":"online"}]}`)
	}))
	defer server.Close()

	t.Setenv("PRESENCE_SOURCE_URL", server.URL)
	t.Setenv("PRESENCE_SOURCE_TOKEN", "source-token")

	home := t.TempDir()
	_, _, err := executeCLI(t, home, "subscribe", "42")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "tick", "--json")
	require.NoError(t, err)

	var result tickResultJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, 1, result.Observed)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Opened)

	raw, err := os.ReadFile(filepath.Join(home, ".presence", "sessions.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "open_session")
	assert.NotContains(t, string(raw), `entity_id = "7"`)
}

func TestTickShowsPollingSpinnerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = fmt.Fprint(w, `{"members":[]}`)
	}))
	defer server.Close()

	t.Setenv("PRESENCE_SOURCE_URL", server.URL)

	home := t.TempDir()
	stdout, stderr, err := executeCLI(t, home, "tick")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Polling presence source")
	assert.Contains(t, stdout, "observed 0, new 0, online 0, offline 0, ignored 0, pruned 0")
}

func TestTickReturnsSourceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	t.Setenv("PRESENCE_SOURCE_URL", server.URL)

	home := t.TempDir()
	_, _, err := executeCLI(t, home, "tick", "--json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "presence snapshot unavailable")
}

func TestTickResolvesStoredSourceToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer from-store", r.Header.Get("Authorization"))
		_, _ = fmt.Fprint(w, `{"members":[]}`)
	}))
	defer server.Close()

	t.Setenv("PRESENCE_SECRETS_BACKEND", "file")
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "secret", "set", "source-token", "--value", "from-store")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Reference it as secret:source-token.`)

	raw, err := os.ReadFile(filepath.Join(home, ".presence", "secrets", "source-token"))
	require.NoError(t, err)
	assert.Equal(t, "from-store", string(raw))

	t.Setenv("PRESENCE_SOURCE_URL", server.URL)
	t.Setenv("PRESENCE_SOURCE_TOKEN", "secret:source-token")

	_, _, err = executeCLI(t, home, "tick", "--json")
	require.NoError(t, err)

	_, _, err = executeCLI(t, home, "secret", "delete", "source-token")
	require.NoError(t, err)

	_, _, err = executeCLI(t, home, "tick", "--json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret not found")
}

func TestTickRequiresSourceURL(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "tick")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.url is not set")
}

func TestImportLegacyMergesFiles(t *testing.T) {
	home := t.TempDir()
	legacyDir := t.TempDir()
	usersPath := filepath.Join(legacyDir, "users.json")
	timesPath := filepath.Join(legacyDir, "online_times.json")
	require.NoError(t, os.WriteFile(usersPath, []byte(`[42, "7"]`), 0o600))
	require.NoError(t, os.WriteFile(timesPath, []byte(`{
  "42": {
    "username": "alice",
    "sessions": [
      {"start_time": "2026-03-02T09:00:00", "duration": 30.0},
      {"start_time": "2026-03-02T18:00:00", "duration": 60.0}
    ]
  }
}`), 0o600))

	stdout, _, err := executeCLI(t, home, "import-legacy",
		"--users", usersPath,
		"--times", timesPath,
		"--timezone", "UTC",
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "subscribed 2, records created 1, records merged 0, sessions added 2")

	stdout, _, err = executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "entities: 2, subscribed: 2")
	assert.Contains(t, stdout, "alice (42)")
}

func TestImportLegacyRequiresAFile(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "import-legacy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one of --users or --times is required")
}

func TestCommandsFailWhileStateIsLocked(t *testing.T) {
	home := t.TempDir()
	dataDir := filepath.Join(home, ".presence")
	require.NoError(t, os.MkdirAll(dataDir, 0o700))

	lock := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = lock.Unlock() })

	_, _, err = executeCLI(t, home, "subscribe", "42")
	require.Error(t, err)
	assert.ErrorIs(t, err, errStateLocked)
}

func TestDataDirFlagOverridesHome(t *testing.T) {
	home := t.TempDir()
	dataDir := filepath.Join(t.TempDir(), "state")

	_, _, err := executeCLI(t, home, "--data-dir", dataDir, "subscribe", "42")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dataDir, "subscriptions.toml"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(home, ".presence", "subscriptions.toml"))
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidConfigIsReported(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PRESENCE_REPORT_MODE", "monthly")

	_, _, err := executeCLI(t, home, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported report.mode "monthly"`)
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestUnknownCommandIsRejected(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "pool")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command \"pool\"")
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv("PRESENCE_REPORT_TIMEZONE", "UTC")

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// writeSessionsFixture seeds one subscribed entity with two closed Monday
// sessions totalling 90 minutes.
func writeSessionsFixture(home string) error {
	dataDir := filepath.Join(home, ".presence")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return err
	}

	subscriptions := `version = 1
entities = ["42"]
`

	sessions := `version = 1

[[records]]
entity_id = "42"
display_name = "alice"

[[records.sessions]]
start = "2026-03-02T09:00:00Z"
end = "2026-03-02T09:30:00Z"
duration_minutes = 30.0

[[records.sessions]]
start = "2026-03-09T18:00:00Z"
end = "2026-03-09T19:00:00Z"
duration_minutes = 60.0
`

	if err := os.WriteFile(filepath.Join(dataDir, "subscriptions.toml"), []byte(subscriptions), 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, "sessions.toml"), []byte(sessions), 0o600)
}

func TestIsLoopback(t *testing.T) {
	t.Parallel()

	assert.True(t, isLoopback("127.0.0.1:8420"))
	assert.True(t, isLoopback("[::1]:8420"))
	assert.True(t, isLoopback("localhost:8420"))
	assert.False(t, isLoopback(":8420"))
	assert.False(t, isLoopback("0.0.0.0:8420"))
	assert.False(t, isLoopback("192.168.1.10:8420"))
}
