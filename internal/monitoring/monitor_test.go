package monitoring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylescan/stylescan/internal/artifact"
	"github.com/stylescan/stylescan/internal/model"
)

func TestMonitor_SnapshotMetrics(t *testing.T) {
	m := NewMonitor(0)
	m.RecordPhase(model.PhaseOutcome{
		Phase:        model.PhaseDeepen,
		SuccessCount: 10,
		FailureCount: 0,
		DurationMs:   2000,
	})

	report := m.Snapshot()
	require.Len(t, report.Phases, 1)

	pm := report.Phases[0]
	assert.Equal(t, model.PhaseDeepen, pm.Phase)
	assert.InDelta(t, 5.0, pm.ThroughputPerSec, 0.001) // 10 tasks / 2s
	assert.InDelta(t, 1.0, pm.SuccessRate, 0.001)
	assert.InDelta(t, 1.0, report.OverallSuccessRate, 0.001)
	assert.False(t, report.Degraded)
}

func TestMonitor_DegradedBelowGate(t *testing.T) {
	m := NewMonitor(0.95)
	m.RecordPhase(model.PhaseOutcome{Phase: model.PhaseMetadata, SuccessCount: 8, FailureCount: 2, DurationMs: 100})

	report := m.Snapshot()
	assert.InDelta(t, 0.8, report.OverallSuccessRate, 0.001)
	assert.True(t, report.Degraded, "80%% success is below the 95%% gate")
}

func TestMonitor_ExactlyAtGateIsNotDegraded(t *testing.T) {
	m := NewMonitor(0.95)
	m.RecordPhase(model.PhaseOutcome{Phase: model.PhaseExtract, SuccessCount: 19, FailureCount: 1, DurationMs: 100})

	report := m.Snapshot()
	assert.InDelta(t, 0.95, report.OverallSuccessRate, 0.001)
	assert.False(t, report.Degraded)
}

func TestMonitor_EmptyRun(t *testing.T) {
	report := NewMonitor(0).Snapshot()
	assert.Empty(t, report.Phases)
	assert.False(t, report.Degraded)
}

func TestMonitor_ConcurrentRecording(t *testing.T) {
	m := NewMonitor(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordPhase(model.PhaseOutcome{Phase: model.PhaseDeepen, SuccessCount: 1, DurationMs: 10})
		}()
	}
	wg.Wait()
	assert.Len(t, m.Snapshot().Phases, 8)
}

func TestMonitor_Write(t *testing.T) {
	st, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)

	m := NewMonitor(0.95)
	m.RecordPhase(model.PhaseOutcome{Phase: model.PhaseInitial, SuccessCount: 1, DurationMs: 50})

	report, err := m.Write(st)
	require.NoError(t, err)
	assert.False(t, report.Degraded)
	assert.True(t, st.Exists(artifact.PerfReportFile))

	var persisted Report
	require.NoError(t, st.ReadJSON(artifact.PerfReportFile, &persisted))
	assert.Equal(t, report.OverallSuccessRate, persisted.OverallSuccessRate)
}
