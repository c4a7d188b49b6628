package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/solarsim/internal/generator"
	"github.com/langchou/solarsim/internal/models"
	"github.com/langchou/solarsim/internal/repository"
	"github.com/langchou/solarsim/internal/service"
	"github.com/langchou/solarsim/internal/state"
	"github.com/langchou/solarsim/pkg/ws"
)

type fakeReadings struct {
	readings  []*models.Reading
	counts    models.AnomalyCounts
	err       error
	lastSince *time.Time
}

func (f *fakeReadings) ListBySerialNumber(ctx context.Context, serialNumber string, since *time.Time) ([]*models.Reading, error) {
	f.lastSince = since
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Reading
	for _, r := range f.readings {
		if r.SerialNumber != serialNumber {
			continue
		}
		if since != nil && !r.Timestamp.After(*since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeReadings) CountAnomalies(ctx context.Context, serialNumber string) (models.AnomalyCounts, error) {
	return f.counts, f.err
}

type fakeUnits struct {
	units []*models.SolarUnit
	err   error
}

func (f *fakeUnits) List(ctx context.Context) ([]*models.SolarUnit, error) {
	return f.units, f.err
}

func (f *fakeUnits) GetBySerialNumber(ctx context.Context, serialNumber string) (*models.SolarUnit, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.units {
		if u.SerialNumber == serialNumber {
			return u, nil
		}
	}
	return nil, fmt.Errorf("get solar unit %s: %w", serialNumber, repository.ErrNotFound)
}

type fakeBackfill struct {
	launched []service.BackfillRequest
	err      error
	runs     map[string]*state.RunState
}

func (f *fakeBackfill) Launch(req service.BackfillRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	f.launched = append(f.launched, req)
	return "run-1", nil
}

func (f *fakeBackfill) Status(runID string) (*state.RunState, bool) {
	st, ok := f.runs[runID]
	return st, ok
}

func (f *fakeBackfill) Runs() []*state.RunState {
	runs := make([]*state.RunState, 0, len(f.runs))
	for _, st := range f.runs {
		runs = append(runs, st)
	}
	return runs
}

type testEnv struct {
	router   *gin.Engine
	readings *fakeReadings
	units    *fakeUnits
	backfill *fakeBackfill
}

func newTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)

	base := time.Date(2025, time.August, 1, 8, 0, 0, 0, time.UTC)
	env := &testEnv{
		readings: &fakeReadings{
			readings: []*models.Reading{
				{ID: 1, SerialNumber: "SU-0001", Timestamp: base, EnergyGenerated: 420, IntervalHours: 2},
				{ID: 2, SerialNumber: "SU-0001", Timestamp: base.Add(2 * time.Hour), EnergyGenerated: 610, IntervalHours: 2},
				{ID: 3, SerialNumber: "SU-0002", Timestamp: base, EnergyGenerated: 300, IntervalHours: 2},
			},
			counts: models.AnomalyCounts{models.AnomalyNighttimeGeneration: 9},
		},
		units: &fakeUnits{units: []*models.SolarUnit{
			{ID: 1, SerialNumber: "SU-0001", RatedCapacityW: 5000, IntervalHours: 2},
		}},
		backfill: &fakeBackfill{runs: map[string]*state.RunState{
			"run-1": {RunID: "run-1", SerialNumber: "SU-0001", CurrentState: state.StateCompleted, Inserted: 36},
		}},
	}

	h := NewHandler(zap.NewNop(), env.readings, env.units, env.backfill, ws.NewHub(zap.NewNop()))
	env.router = gin.New()
	env.router.Use(RequestLogger(zap.NewNop()), CORS(""))
	h.RegisterRoutes(env.router)
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var body struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NoError(t, json.Unmarshal(body.Data, out))
}

func TestListReadings(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/api/energy-generation-records/solar-unit/SU-0001", "")
	require.Equal(t, http.StatusOK, w.Code)

	var readings []*models.Reading
	decodeData(t, w, &readings)
	require.Len(t, readings, 2)
	assert.Equal(t, 420, readings[0].EnergyGenerated)
	assert.Nil(t, env.readings.lastSince)
}

func TestListReadings_SinceTimestamp(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/api/energy-generation-records/solar-unit/SU-0001?sinceTimestamp=2025-08-01T10:00:00%2B02:00", "")
	require.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, env.readings.lastSince)
	assert.Equal(t, time.Date(2025, time.August, 1, 8, 0, 0, 0, time.UTC), *env.readings.lastSince)
	assert.Equal(t, time.UTC, env.readings.lastSince.Location())

	var readings []*models.Reading
	decodeData(t, w, &readings)
	require.Len(t, readings, 1)
	assert.Equal(t, int64(2), readings[0].ID)
}

func TestListReadings_InvalidSince(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/api/energy-generation-records/solar-unit/SU-0001?sinceTimestamp=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListReadings_StoreError(t *testing.T) {
	env := newTestEnv()
	env.readings.err = errors.New("db down")

	w := env.do(http.MethodGet, "/api/energy-generation-records/solar-unit/SU-0001", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetAnomalyCounts(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/api/energy-generation-records/solar-unit/SU-0001/anomalies", "")
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		SerialNumber string         `json:"serial_number"`
		Counts       map[string]int `json:"counts"`
		Total        int            `json:"total"`
	}
	decodeData(t, w, &data)
	assert.Equal(t, "SU-0001", data.SerialNumber)
	assert.Equal(t, 9, data.Counts["NIGHTTIME_GENERATION"])
	assert.Equal(t, 9, data.Total)
}

func TestUnits(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/api/solar-units", "")
	require.Equal(t, http.StatusOK, w.Code)
	var units []*models.SolarUnit
	decodeData(t, w, &units)
	require.Len(t, units, 1)

	w = env.do(http.MethodGet, "/api/solar-units/SU-0001", "")
	require.Equal(t, http.StatusOK, w.Code)
	var unit models.SolarUnit
	decodeData(t, w, &unit)
	assert.Equal(t, 5000.0, unit.RatedCapacityW)

	w = env.do(http.MethodGet, "/api/solar-units/SU-9999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.units.err = errors.New("db down")
	w = env.do(http.MethodGet, "/api/solar-units/SU-0001", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStartBackfill(t *testing.T) {
	env := newTestEnv()

	body := `{
		"serial_number": "SU-0001",
		"start": "2025-01-01T00:00:00Z",
		"end": "2025-01-03T22:00:00Z",
		"anomaly_windows": [
			{"kind": "nighttime_generation", "start": "2025-01-01T00:00:00Z", "end": "2025-01-03T23:59:59Z", "hours": [20, 22, 2]}
		]
	}`
	w := env.do(http.MethodPost, "/api/backfill", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp["run_id"])

	require.Len(t, env.backfill.launched, 1)
	req := env.backfill.launched[0]
	assert.Equal(t, 5000.0, req.RatedCapacityW, "capacity comes from the registered unit")
	assert.Equal(t, 2.0, req.IntervalHours)
	require.Len(t, req.Windows, 1)
	assert.Equal(t, models.AnomalyNighttimeGeneration, req.Windows[0].Kind)
}

func TestStartBackfill_UnknownUnitUsesRequestValues(t *testing.T) {
	env := newTestEnv()

	body := `{"serial_number": "SU-0100", "rated_capacity_w": 3000, "start": "2025-01-01T00:00:00Z", "end": "2025-01-02T00:00:00Z"}`
	w := env.do(http.MethodPost, "/api/backfill", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	req := env.backfill.launched[0]
	assert.Equal(t, 3000.0, req.RatedCapacityW)
	assert.Equal(t, generator.DefaultIntervalHours, req.IntervalHours)
}

func TestStartBackfill_Errors(t *testing.T) {
	valid := `{"serial_number": "SU-0001", "start": "2025-01-01T00:00:00Z", "end": "2025-01-02T00:00:00Z"}`

	tests := []struct {
		name       string
		body       string
		launchErr  error
		unitErr    error
		wantStatus int
	}{
		{name: "malformed json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "unknown anomaly kind", body: `{"serial_number": "SU-0001", "anomaly_windows": [{"kind": "SOLAR_FLARE"}]}`, wantStatus: http.StatusBadRequest},
		{name: "reversed range", body: `{"serial_number": "SU-0001", "start": "2025-01-02T00:00:00Z", "end": "2025-01-01T00:00:00Z"}`, wantStatus: http.StatusBadRequest},
		{name: "interval far below minimum", body: `{"serial_number": "SU-0001", "interval_hours": 1e-12, "start": "2025-01-01T00:00:00Z", "end": "2026-01-01T00:00:00Z"}`, wantStatus: http.StatusBadRequest},
		{name: "interval above a day", body: `{"serial_number": "SU-0001", "interval_hours": 48, "start": "2025-01-01T00:00:00Z", "end": "2025-01-02T00:00:00Z"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown unit without capacity", body: `{"serial_number": "SU-0100", "start": "2025-01-01T00:00:00Z", "end": "2025-01-02T00:00:00Z"}`, wantStatus: http.StatusBadRequest},
		{name: "already running", body: valid, launchErr: fmt.Errorf("%w: SU-0001", service.ErrBackfillInProgress), wantStatus: http.StatusConflict},
		{name: "launch failure", body: valid, launchErr: errors.New("boom"), wantStatus: http.StatusInternalServerError},
		{name: "unit lookup failure", body: valid, unitErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.backfill.err = tt.launchErr
			env.units.err = tt.unitErr

			w := env.do(http.MethodPost, "/api/backfill", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestGetBackfill(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/api/backfill/run-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st state.RunState
	decodeData(t, w, &st)
	assert.Equal(t, state.StateCompleted, st.CurrentState)
	assert.Equal(t, 36, st.Inserted)

	w = env.do(http.MethodGet, "/api/backfill/run-404", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/backfill", "")
	require.Equal(t, http.StatusOK, w.Code)
	var runs []state.RunState
	decodeData(t, w, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
}

func TestHealthAndCORS(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["ws_clients"])

	w = env.do(http.MethodOptions, "/api/solar-units", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
