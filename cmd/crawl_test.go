package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylescan/stylescan/internal/errs"
	"github.com/stylescan/stylescan/internal/model"
)

func TestParseConcurrency(t *testing.T) {
	got, err := parseConcurrency(map[string]int{"deepen": 4, "extract": 2})
	require.NoError(t, err)
	assert.Equal(t, map[model.Phase]int{model.PhaseDeepen: 4, model.PhaseExtract: 2}, got)
}

func TestParseConcurrencyUnknownPhase(t *testing.T) {
	_, err := parseConcurrency(map[string]int{"render": 3})
	require.Error(t, err)
	assert.Equal(t, errs.Configuration, errs.CategoryOf(err))
	assert.NotEmpty(t, errs.HintOf(err))
}

func TestSummaryOf(t *testing.T) {
	report := &model.PipelineReport{
		RunID:           "run-1",
		TargetURL:       "https://example.com",
		Mode:            model.ModeOptimized,
		Outcomes:        make([]model.PhaseOutcome, 4),
		SuccessRate:     0.9,
		Degraded:        true,
		FellBack:        true,
		TotalDurationMs: 1200,
	}

	s := summaryOf(report)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 4, s.Phases)
	assert.Equal(t, 0.9, s.SuccessRate)
	assert.True(t, s.Degraded)
	assert.True(t, s.FellBack)
	assert.Equal(t, int64(1200), s.DurationMs)
}
