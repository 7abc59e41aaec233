package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylescan/stylescan/internal/artifact"
	"github.com/stylescan/stylescan/internal/model"
	"github.com/stylescan/stylescan/internal/monitoring"
	"github.com/stylescan/stylescan/internal/store"
)

func testRouter(t *testing.T) (http.Handler, *store.SQLiteStore, *artifact.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	artifacts, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)

	return statusRouter(st, artifacts), st, artifacts
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h, _, _ := testRouter(t)

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRunsEndpoints(t *testing.T) {
	h, st, _ := testRouter(t)

	report := &model.PipelineReport{
		RunID:     "run-1",
		TargetURL: "https://example.com",
		Mode:      model.ModeOptimized,
		StartedAt: time.Now().UTC(),
	}
	_, err := st.SaveReport(context.Background(), report, model.RunStatusComplete)
	require.NoError(t, err)

	rec := get(t, h, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	rec = get(t, h, "/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, model.RunStatusComplete, run.Status)

	rec = get(t, h, "/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunsEndpointEmpty(t *testing.T) {
	h, _, _ := testRouter(t)

	rec := get(t, h, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestReportEndpoint(t *testing.T) {
	h, _, artifacts := testRouter(t)

	rec := get(t, h, "/report")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, artifacts.WriteJSON(artifact.PerfReportFile, monitoring.Report{
		OverallSuccessRate: 0.97,
		MinSuccessRate:     0.95,
	}))

	rec = get(t, h, "/report")
	require.Equal(t, http.StatusOK, rec.Code)
	var report monitoring.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 0.97, report.OverallSuccessRate)
	assert.False(t, report.Degraded)
}
