package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/playerpulse/internal/assistant"
	"github.com/ignite/playerpulse/internal/churn"
	"github.com/ignite/playerpulse/internal/eventstore"
	"github.com/ignite/playerpulse/internal/insights"
	"github.com/ignite/playerpulse/internal/metrics"
	"github.com/ignite/playerpulse/internal/pkg/logger"
	"github.com/ignite/playerpulse/internal/schema"
)

// Handlers owns the request handlers for the analytics API.
type Handlers struct {
	aggregator *insights.Aggregator
	normalizer *schema.Normalizer
	cache      *metrics.Cache
	generator  assistant.InsightGenerator
	startTime  time.Time
}

// NewHandlers wires the API handlers. cache and generator may be nil.
func NewHandlers(agg *insights.Aggregator, norm *schema.Normalizer, cache *metrics.Cache, gen assistant.InsightGenerator) *Handlers {
	return &Handlers{
		aggregator: agg,
		normalizer: norm,
		cache:      cache,
		generator:  gen,
		startTime:  time.Now(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// HealthCheck reports liveness and whether a dataset is loaded.
//
//	GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	}
	if session, err := h.aggregator.Current(); err == nil {
		status["dataset_id"] = session.ID().String()
	}
	writeJSON(w, http.StatusOK, status)
}

// uploadRequest is the JSON body for dataset ingestion.
type uploadRequest struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// UploadDataset ingests a raw telemetry table, normalizes it, and swaps in a
// new session. Accepts JSON {columns, rows} or a text/csv body.
//
//	POST /api/datasets
func (h *Handlers) UploadDataset(w http.ResponseWriter, r *http.Request) {
	table, err := h.readTable(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	events, quality, err := h.normalizer.Normalize(table)
	var schemaErr *schema.SchemaError
	var qualityErr *schema.DataQualityError
	switch {
	case errors.As(err, &schemaErr):
		writeError(w, http.StatusBadRequest, "schema_error", schemaErr.Error())
		return
	case errors.As(err, &qualityErr):
		writeError(w, http.StatusUnprocessableEntity, "data_quality_error", qualityErr.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	session := h.aggregator.Ingest(r.Context(), events, quality)
	writeJSON(w, http.StatusCreated, session.Report)
}

func (h *Handlers) readTable(r *http.Request) (*schema.RawTable, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "text/csv") {
		records, err := csv.NewReader(r.Body).ReadAll()
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, errors.New("empty csv body")
		}
		return &schema.RawTable{Columns: records[0], Rows: records[1:]}, nil
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return &schema.RawTable{Columns: req.Columns, Rows: req.Rows}, nil
}

// GetReport returns the build report of the current session.
//
//	GET /api/report
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Report)
}

// GetSummary returns whole-window aggregates under the query filter.
//
//	GET /api/metrics/summary?start=&end=&device=&segment=
func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w)
	if !ok {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_filter", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session.Engine.WindowSummary(f))
}

// GetSeries returns one metric time series, cached per filter tuple.
//
//	GET /api/metrics/series?metric=active_users&grain=day&start=&end=&device=&segment=
func (h *Handlers) GetSeries(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w)
	if !ok {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_filter", err.Error())
		return
	}
	grain, err := parseGrain(r.URL.Query().Get("grain"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_grain", err.Error())
		return
	}
	metric := r.URL.Query().Get("metric")

	if s, ok := h.cache.Get(r.Context(), session.ID(), metric, f, grain); ok {
		writeJSON(w, http.StatusOK, s)
		return
	}

	var s metrics.Series
	switch metric {
	case "active_users":
		s = session.Engine.ActiveUsers(f, grain)
	case "revenue":
		s = session.Engine.Revenue(f, grain)
	case "arppu":
		s = session.Engine.ARPPU(f, grain)
	case "arpdau":
		s = session.Engine.ARPDAU(f, grain)
	default:
		writeError(w, http.StatusBadRequest, "bad_metric", "unknown metric "+metric)
		return
	}

	h.cache.Put(r.Context(), session.ID(), s)
	writeJSON(w, http.StatusOK, s)
}

// GetRetention returns day-N retention fractions.
//
//	GET /api/metrics/retention?days=7
func (h *Handlers) GetRetention(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w)
	if !ok {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_filter", err.Error())
		return
	}
	days := queryInt(r, "days", 7)
	writeJSON(w, http.StatusOK, session.Engine.Retention(f, days))
}

// GetCohorts returns the cohort retention table.
//
//	GET /api/metrics/cohorts?periods=8&period_days=7
func (h *Handlers) GetCohorts(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w)
	if !ok {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_filter", err.Error())
		return
	}
	periods := queryInt(r, "periods", 8)
	periodDays := queryInt(r, "period_days", 7)
	writeJSON(w, http.StatusOK, session.Engine.CohortTable(f, periods, periodDays))
}

// funnelRequest is the JSON body for funnel analysis.
type funnelRequest struct {
	Steps []string `json:"steps"`
}

// RunFunnel computes an ordered conversion funnel over named events.
//
//	POST /api/metrics/funnel
func (h *Handlers) RunFunnel(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w)
	if !ok {
		return
	}
	var req funnelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if len(req.Steps) < 2 {
		writeError(w, http.StatusBadRequest, "bad_funnel", "a funnel needs at least two steps")
		return
	}

	steps := make([]metrics.FunnelStep, 0, len(req.Steps))
	for _, name := range req.Steps {
		steps = append(steps, metrics.StepByEvent(name, eventstore.ParseEventName(name)))
	}
	writeJSON(w, http.StatusOK, session.Engine.Funnel(metrics.Filter{}, steps))
}

// segmentsResponse pairs the component status with its payload.
type segmentsResponse struct {
	Status    insights.Status `json:"status"`
	Detail    string          `json:"detail,omitempty"`
	Segments  interface{}     `json:"segments,omitempty"`
	Converged *bool           `json:"converged,omitempty"`
}

// GetSegments returns segment summaries and per-user labels.
//
//	GET /api/segments
func (h *Handlers) GetSegments(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w)
	if !ok {
		return
	}
	report := session.Report.Components[insights.ComponentSegments]
	resp := segmentsResponse{Status: report.Status, Detail: report.Detail}
	if session.Segments != nil {
		resp.Segments = session.Segments.Summaries
		resp.Converged = &session.Segments.Converged
	}
	writeJSON(w, http.StatusOK, resp)
}

// churnResponse pairs the component status with its payload.
type churnResponse struct {
	Status        insights.Status `json:"status"`
	Detail        string          `json:"detail,omitempty"`
	LowConfidence bool            `json:"low_confidence,omitempty"`
	Scores        []churn.Score   `json:"scores,omitempty"`
	Evaluation    interface{}     `json:"evaluation,omitempty"`
}

// GetChurn returns churn scores, optionally filtered to one risk tier.
//
//	GET /api/churn?tier=high
func (h *Handlers) GetChurn(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w)
	if !ok {
		return
	}
	report := session.Report.Components[insights.ComponentChurn]
	resp := churnResponse{Status: report.Status, Detail: report.Detail}
	if session.Churn != nil {
		resp.LowConfidence = session.Churn.LowConfidence
		resp.Evaluation = session.Churn.Eval
		tier := churn.RiskTier(r.URL.Query().Get("tier"))
		for _, s := range session.Churn.Scores {
			if tier != "" && s.Tier != tier {
				continue
			}
			resp.Scores = append(resp.Scores, s)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAnomalies returns the flagged metric anomalies.
//
//	GET /api/anomalies
func (h *Handlers) GetAnomalies(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w)
	if !ok {
		return
	}
	report := session.Report.Components[insights.ComponentAnomalies]
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    report.Status,
		"detail":    report.Detail,
		"anomalies": session.Anomalies,
	})
}

// GenerateInsights produces a narrative report over the current session.
//
//	POST /api/assistant/insights
func (h *Handlers) GenerateInsights(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w)
	if !ok {
		return
	}
	if h.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant_disabled", "insight generator not configured")
		return
	}

	text, err := h.generator.GenerateInsights(r.Context(), session.Digest())
	if err != nil {
		writeError(w, http.StatusBadGateway, "assistant_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"insights": text})
}

// queryRequest is the JSON body for assistant questions.
type queryRequest struct {
	Question string `json:"question"`
}

// AnswerQuery answers a free-form analyst question over the current session.
//
//	POST /api/assistant/query
func (h *Handlers) AnswerQuery(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w)
	if !ok {
		return
	}
	if h.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant_disabled", "insight generator not configured")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "question is required")
		return
	}

	text, err := h.generator.AnswerQuery(r.Context(), session.Digest(), req.Question)
	if err != nil {
		writeError(w, http.StatusBadGateway, "assistant_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": text})
}

// session resolves the current session or writes the no-dataset error.
func (h *Handlers) session(w http.ResponseWriter) (*insights.Session, bool) {
	session, err := h.aggregator.Current()
	if err != nil {
		writeError(w, http.StatusNotFound, "no_dataset", "no dataset loaded yet")
		return nil, false
	}
	return session, true
}

func parseFilter(r *http.Request) (metrics.Filter, error) {
	q := r.URL.Query()
	var f metrics.Filter

	if raw := q.Get("start"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, errors.New("start must be YYYY-MM-DD")
		}
		f.Start = t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, errors.New("end must be YYYY-MM-DD")
		}
		f.End = t
	}
	if raw := q.Get("device"); raw != "" {
		f.Device = eventstore.ParseDeviceType(raw)
	}
	f.Segment = q.Get("segment")
	return f, nil
}

func parseGrain(raw string) (metrics.Grain, error) {
	switch raw {
	case "", "day":
		return metrics.GrainDay, nil
	case "week":
		return metrics.GrainWeek, nil
	case "month":
		return metrics.GrainMonth, nil
	default:
		return "", errors.New("grain must be day, week, or month")
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
