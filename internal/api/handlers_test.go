package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/playerpulse/internal/assistant"
	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/insights"
	"github.com/ignite/playerpulse/internal/schema"
)

type stubGenerator struct {
	insights string
	answer   string
	err      error
}

func (s *stubGenerator) GenerateInsights(ctx context.Context, d assistant.Digest) (string, error) {
	return s.insights, s.err
}

func (s *stubGenerator) AnswerQuery(ctx context.Context, d assistant.Digest, q string) (string, error) {
	return s.answer, s.err
}

func testServer(t *testing.T, gen assistant.InsightGenerator) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.AllowedOrigins = []string{"http://localhost:5173"}
	cfg.Schema.Aliases = config.DefaultAliases()
	cfg.Schema.TimestampFormats = []string{"2006-01-02 15:04:05", "2006-01-02"}
	cfg.Schema.MaxDropRatio = 0.5
	cfg.Metrics.ActivityEvents = []string{"session_start", "login", "purchase"}
	cfg.Segmentation = config.SegmentationConfig{Clusters: 4, Seed: 42, MaxIterations: 100, MinSessions: 3}
	cfg.Churn = config.ChurnConfig{
		HorizonDays: 7, MinHistoryDays: 3, Rounds: 50, MaxDepth: 3,
		LearningRate: 0.1, TestFraction: 0.2, Seed: 42,
		LowThreshold: 0.3, HighThreshold: 0.7, MinAccuracy: 0.6,
	}
	cfg.Anomaly = config.AnomalyConfig{Window: 14, Sigma: 3}

	agg := insights.NewAggregator(insights.NewPipeline(cfg))
	handlers := NewHandlers(agg, schema.NewNormalizer(cfg.Schema), nil, gen)
	return NewServer(cfg.Server, handlers)
}

// uploadBody builds a JSON table of 15 lapsed and 15 loyal users with loose
// source column names, exercising the alias mapping on the way in.
func uploadBody() []byte {
	req := struct {
		Columns []string   `json:"columns"`
		Rows    [][]string `json:"rows"`
	}{
		Columns: []string{"Player ID", "Event", "Event Time", "Amount"},
	}
	for u := 0; u < 15; u++ {
		for d := 1; d <= 5; d++ {
			req.Rows = append(req.Rows, []string{
				fmt.Sprintf("lapsed-%02d", u), "session_start",
				fmt.Sprintf("2024-03-%02d 10:00:00", d), "",
			})
		}
		for d := 1; d <= 30; d++ {
			req.Rows = append(req.Rows, []string{
				fmt.Sprintf("loyal-%02d", u), "session_start",
				fmt.Sprintf("2024-03-%02d 10:00:00", d), "",
			})
		}
		for d := 1; d <= 5; d++ {
			req.Rows = append(req.Rows, []string{
				fmt.Sprintf("loyal-%02d", u), "purchase",
				fmt.Sprintf("2024-03-%02d 12:00:00", d), "9.99",
			})
		}
	}
	body, _ := json.Marshal(req)
	return body
}

func doUpload(t *testing.T, srv *Server) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/datasets", bytes.NewReader(uploadBody()))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealthCheck(t *testing.T) {
	srv := testServer(t, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotContains(t, body, "dataset_id")
}

func TestNoDatasetReturns404(t *testing.T) {
	srv := testServer(t, nil)
	for _, path := range []string{"/api/report", "/api/metrics/summary", "/api/segments", "/api/churn", "/api/anomalies"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)

		var e errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
		assert.Equal(t, "no_dataset", e.Code, path)
	}
}

func TestUploadAndReport(t *testing.T) {
	srv := testServer(t, nil)
	doUpload(t, srv)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report insights.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 30, report.TotalUsers)
	assert.Equal(t, insights.StatusOK, report.Components[insights.ComponentMetrics].Status)
	assert.Equal(t, insights.StatusOK, report.Components[insights.ComponentSegments].Status)
}

func TestUploadCSV(t *testing.T) {
	srv := testServer(t, nil)
	csvBody := "user_id,event_name,timestamp\n" +
		"u1,login,2024-03-01 09:00:00\n" +
		"u2,login,2024-03-01 10:00:00\n"

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/datasets", strings.NewReader(csvBody))
	req.Header.Set("Content-Type", "text/csv")
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var report insights.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.TotalUsers)
}

func TestUploadSchemaError(t *testing.T) {
	srv := testServer(t, nil)
	body, _ := json.Marshal(map[string]interface{}{
		"columns": []string{"event_name", "timestamp"}, // no user column
		"rows":    [][]string{{"login", "2024-03-01 09:00:00"}},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/datasets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "schema_error", e.Code)
}

func TestGetSeries(t *testing.T) {
	srv := testServer(t, nil)
	doUpload(t, srv)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/metrics/series?metric=active_users&grain=day", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var s struct {
		Metric string `json:"metric"`
		Points []struct {
			Value *float64 `json:"value"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, "active_users", s.Metric)
	assert.Len(t, s.Points, 30)
	require.NotNil(t, s.Points[0].Value)
	assert.Equal(t, 30.0, *s.Points[0].Value, "all 30 users active on day 1")
}

func TestGetSeriesBadMetric(t *testing.T) {
	srv := testServer(t, nil)
	doUpload(t, srv)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/metrics/series?metric=rainbows", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/metrics/series?metric=revenue&grain=fortnight", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunFunnel(t *testing.T) {
	srv := testServer(t, nil)
	doUpload(t, srv)

	body, _ := json.Marshal(map[string][]string{"steps": {"session_start", "purchase"}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/metrics/funnel", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []struct {
		Users int `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, 30, results[0].Users)
	assert.Equal(t, 15, results[1].Users, "only loyal users purchase")
}

func TestRunFunnelTooFewSteps(t *testing.T) {
	srv := testServer(t, nil)
	doUpload(t, srv)

	body, _ := json.Marshal(map[string][]string{"steps": {"login"}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/metrics/funnel", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChurnTierFilter(t *testing.T) {
	srv := testServer(t, nil)
	doUpload(t, srv)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/churn?tier=high", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp churnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, insights.StatusOK, resp.Status)
	for _, s := range resp.Scores {
		assert.Equal(t, "high", string(s.Tier))
	}
}

func TestAssistantEndpoints(t *testing.T) {
	srv := testServer(t, &stubGenerator{insights: "whales drive revenue", answer: "target whales"})
	doUpload(t, srv)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/assistant/insights", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "whales drive revenue")

	body, _ := json.Marshal(map[string]string{"question": "who should we target?"})
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/assistant/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "target whales")

	// Blank question rejected.
	body, _ = json.Marshal(map[string]string{"question": "  "})
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/assistant/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssistantDisabled(t *testing.T) {
	srv := testServer(t, nil)
	doUpload(t, srv)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/assistant/insights", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
