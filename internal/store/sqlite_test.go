package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylescan/stylescan/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "stylescan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleReport(id string) *model.PipelineReport {
	return &model.PipelineReport{
		RunID:     id,
		TargetURL: "https://example.com",
		Mode:      model.ModeSequential,
		Outcomes: []model.PhaseOutcome{
			{Phase: model.PhaseInitial, SuccessCount: 1},
			{Phase: model.PhaseExtract, SuccessCount: 3, FailureCount: 1},
		},
		SuccessRate: 0.8,
		StartedAt:   time.Now().UTC().Add(-time.Minute),
		FinishedAt:  time.Now().UTC(),
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveReport(ctx, sampleReport("run-1"), model.RunStatusComplete)
	require.NoError(t, err)
	assert.Equal(t, "run-1", saved.ID)

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, "https://example.com", got.TargetURL)
	require.NotNil(t, got.Report)
	assert.Equal(t, model.ModeSequential, got.Report.Mode)
	assert.Len(t, got.Report.Outcomes, 2)
}

func TestGetRunUnknown(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveReportUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveReport(ctx, sampleReport("run-1"), model.RunStatusComplete)
	require.NoError(t, err)
	_, err = s.SaveReport(ctx, sampleReport("run-1"), model.RunStatusDegraded)
	require.NoError(t, err)

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDegraded, got.Status)
}

func TestListRunsFilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := sampleReport("run-old")
	older.StartedAt = time.Now().UTC().Add(-2 * time.Hour)
	_, err := s.SaveReport(ctx, older, model.RunStatusFailed)
	require.NoError(t, err)

	newer := sampleReport("run-new")
	_, err = s.SaveReport(ctx, newer, model.RunStatusComplete)
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].ID)

	failed, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "run-old", failed[0].ID)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-old", limited[0].ID)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, model.RunStatusFailed, StatusFor(nil, assert.AnError))
	assert.Equal(t, model.RunStatusDegraded, StatusFor(&model.PipelineReport{Degraded: true}, nil))
	assert.Equal(t, model.RunStatusComplete, StatusFor(&model.PipelineReport{}, nil))
}
