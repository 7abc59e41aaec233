// Package monitoring records per-phase timing and success rates and applies
// the run's quality gate.
package monitoring

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stylescan/stylescan/internal/artifact"
	"github.com/stylescan/stylescan/internal/model"
)

// DefaultMinSuccessRate is the quality gate: below it a run is marked
// degraded. A soft signal, not a failure.
const DefaultMinSuccessRate = 0.95

// PhaseMetrics is the computed view of one phase outcome.
type PhaseMetrics struct {
	Phase            model.Phase `json:"phase"`
	Tasks            int         `json:"tasks"`
	SuccessCount     int         `json:"success_count"`
	FailureCount     int         `json:"failure_count"`
	DurationMs       int64       `json:"duration_ms"`
	ThroughputPerSec float64     `json:"throughput_per_sec"`
	SuccessRate      float64     `json:"success_rate"`
	FromCache        bool        `json:"from_cache,omitempty"`
}

// Report is the performance summary persisted as performance-report.json.
type Report struct {
	Phases             []PhaseMetrics `json:"phases"`
	OverallSuccessRate float64        `json:"overall_success_rate"`
	MinSuccessRate     float64        `json:"min_success_rate"`
	Degraded           bool           `json:"degraded"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

// Monitor accumulates phase outcomes for one run. Safe for concurrent use:
// parallel phases record from separate goroutines.
type Monitor struct {
	mu             sync.Mutex
	outcomes       []model.PhaseOutcome
	minSuccessRate float64
}

// NewMonitor creates a monitor with the given quality gate; zero or negative
// uses the default.
func NewMonitor(minSuccessRate float64) *Monitor {
	if minSuccessRate <= 0 {
		minSuccessRate = DefaultMinSuccessRate
	}
	return &Monitor{minSuccessRate: minSuccessRate}
}

// RecordPhase stores a completed phase outcome.
func (m *Monitor) RecordPhase(outcome model.PhaseOutcome) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, outcome)
	m.mu.Unlock()

	zap.L().Info("phase recorded",
		zap.String("phase", string(outcome.Phase)),
		zap.Int("success", outcome.SuccessCount),
		zap.Int("failure", outcome.FailureCount),
		zap.Int64("duration_ms", outcome.DurationMs),
	)
}

// Snapshot computes the report over everything recorded so far.
func (m *Monitor) Snapshot() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := Report{
		MinSuccessRate: m.minSuccessRate,
		GeneratedAt:    time.Now().UTC(),
	}

	var totalTasks, totalSuccess int
	for _, o := range m.outcomes {
		pm := PhaseMetrics{
			Phase:        o.Phase,
			Tasks:        o.TaskCount(),
			SuccessCount: o.SuccessCount,
			FailureCount: o.FailureCount,
			DurationMs:   o.DurationMs,
			FromCache:    o.FromCache,
		}
		if o.DurationMs > 0 {
			pm.ThroughputPerSec = float64(o.SuccessCount) / (float64(o.DurationMs) / 1000.0)
		}
		if pm.Tasks > 0 {
			pm.SuccessRate = float64(o.SuccessCount) / float64(pm.Tasks)
		}
		report.Phases = append(report.Phases, pm)

		totalTasks += pm.Tasks
		totalSuccess += o.SuccessCount
	}

	if totalTasks > 0 {
		report.OverallSuccessRate = float64(totalSuccess) / float64(totalTasks)
		report.Degraded = report.OverallSuccessRate < m.minSuccessRate
	}
	return report
}

// Write persists the current snapshot to the artifact store and logs the
// quality-gate result.
func (m *Monitor) Write(st *artifact.Store) (Report, error) {
	report := m.Snapshot()
	if report.Degraded {
		zap.L().Warn("run below quality gate",
			zap.Float64("success_rate", report.OverallSuccessRate),
			zap.Float64("min_success_rate", report.MinSuccessRate),
		)
	}
	if err := st.WriteJSON(artifact.PerfReportFile, report); err != nil {
		return report, err
	}
	return report, nil
}
