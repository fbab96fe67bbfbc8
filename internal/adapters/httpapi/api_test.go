package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/bnema/presence-tracker/internal/application"
	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	subscribed  map[domain.EntityID]bool
	destination domain.Destination
	stopped     bool
	analytics   map[domain.EntityID]application.Analytics
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		subscribed: map[domain.EntityID]bool{},
		analytics:  map[domain.EntityID]application.Analytics{},
	}
}

func (f *fakeEngine) Subscribe(_ context.Context, id domain.EntityID) (application.SubscribeResult, error) {
	id = id.Normalize()
	if id == "" {
		return "", application.ErrEmptyEntityID
	}
	if f.subscribed[id] {
		return application.SubscribeAlreadyPresent, nil
	}
	f.subscribed[id] = true
	return application.SubscribeAdded, nil
}

func (f *fakeEngine) Unsubscribe(_ context.Context, id domain.EntityID) (bool, error) {
	removed := f.subscribed[id]
	delete(f.subscribed, id)
	return removed, nil
}

func (f *fakeEngine) StartWeeklyReport(_ context.Context, dest domain.Destination) error {
	if err := dest.Validate(); err != nil {
		return err
	}
	f.destination = dest
	return nil
}

func (f *fakeEngine) StopWeeklyReport(context.Context) error {
	f.stopped = true
	return nil
}

func (f *fakeEngine) PreviewReport() application.Report {
	return application.Report{Lines: []application.ReportLine{{EntityID: "1", DisplayName: "alice", Sessions: 2, OnlineMinutes: 12}}}
}

func (f *fakeEngine) GetAnalytics(_ context.Context, id domain.EntityID) (application.Analytics, error) {
	a, ok := f.analytics[id]
	if !ok {
		return application.Analytics{}, domain.ErrNoData
	}
	return a, nil
}

func (f *fakeEngine) DeliverAnalytics(_ context.Context, id domain.EntityID, dest domain.Destination) (int, error) {
	if _, ok := f.analytics[id]; !ok {
		return 0, fmt.Errorf("deliver analytics for %s: %w", id, domain.ErrNoData)
	}
	if err := dest.Validate(); err != nil {
		return 0, err
	}
	return 3, nil
}

func (f *fakeEngine) Status() application.Status {
	return application.Status{
		Entities: []application.EntityStatus{{EntityID: "1", DisplayName: "alice", Subscribed: true, Online: true, OnlineSince: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}},
		Report:   domain.ReportSchedule{Enabled: true, Destination: "file:///srv"},
	}
}

const testFileRoot = "/srv/presence/deliveries"

func newTestServer(t *testing.T, engine Engine, opts ...Option) *httptest.Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	metrics.ObservePrune()

	api := New(engine, reg, slogtest.Make(t, nil), opts...)
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestSubscriptionEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeEngine())

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/subscriptions/42", "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"entity_id":"42","result":"added"}`, body)

	resp, body = do(t, http.MethodPost, srv.URL+"/v1/subscriptions/42", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"entity_id":"42","result":"already_present"}`, body)

	resp, body = do(t, http.MethodDelete, srv.URL+"/v1/subscriptions/42", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"entity_id":"42","removed":true}`, body)
}

func TestReportEndpoints(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	srv := newTestServer(t, engine)

	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/report", `{"destination":"https://hooks.example.com/x"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, domain.Destination("https://hooks.example.com/x"), engine.destination)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/report", `{"destination":"smtp://nope"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "invalid_destination")

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/report", `{"dest":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/report", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, engine.stopped)

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/report/preview", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "User alice (ID: 1) has been online 2 times")
}

func TestAnalyticsEndpoints(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	engine.analytics["1"] = application.Analytics{
		EntityID:    "1",
		DisplayName: "alice",
		Sessions:    3,
		ByWeekday:   [7]int{2, 1},
	}
	srv := newTestServer(t, engine, WithFileRoot(testFileRoot))

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/analytics/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got AnalyticsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, 3, got.Sessions)
	assert.Equal(t, 2, got.ByWeekday["Monday"])
	assert.Len(t, got.Series, 3)

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/analytics/2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"message":"No data available for analysis.","code":"no_data"}`, body)

	resp, body = do(t, http.MethodPost, srv.URL+"/v1/analytics/1/deliver", `{"destination":"file:///srv/presence/deliveries/out"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"delivered":3}`, body)

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/analytics/9/deliver", `{"destination":"file:///srv/presence/deliveries/out"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFileDestinationsStayInsideFileRoot(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	engine.analytics["1"] = application.Analytics{EntityID: "1", Sessions: 1}
	srv := newTestServer(t, engine, WithFileRoot(testFileRoot))

	tests := []struct {
		dest string
		code int
	}{
		{dest: "file:///srv/presence/deliveries", code: http.StatusAccepted},
		{dest: "file:///srv/presence/deliveries/weekly", code: http.StatusAccepted},
		{dest: "file:///etc/cron.d", code: http.StatusBadRequest},
		{dest: "file:///srv/presence/deliveries/../secrets", code: http.StatusBadRequest},
		{dest: "file:///srv/presence/deliveries-other", code: http.StatusBadRequest},
		{dest: "https://hooks.example.com/x", code: http.StatusAccepted},
	}
	for _, tt := range tests {
		resp, body := do(t, http.MethodPost, srv.URL+"/v1/report", fmt.Sprintf(`{"destination":%q}`, tt.dest))
		assert.Equal(t, tt.code, resp.StatusCode, "%s: %s", tt.dest, body)
	}
	assert.Equal(t, domain.Destination("https://hooks.example.com/x"), engine.destination)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/analytics/1/deliver", `{"destination":"file:///home"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "invalid_destination")
}

func TestFileDestinationsRejectedWithoutFileRoot(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	srv := newTestServer(t, engine)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/report", `{"destination":"file:///srv/presence/deliveries"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "file destinations are not accepted over HTTP")
	assert.Empty(t, engine.destination)
}

func TestStatusHealthAndMetrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeEngine())

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var status StatusResponse
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	require.Len(t, status.Entities, 1)
	require.NotNil(t, status.Entities[0].OnlineSince)
	assert.True(t, status.Report.Enabled)
	assert.Nil(t, status.Report.NextReportAt)

	resp, _ = do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "presence_tracker_pruned_records_total 1")
}
