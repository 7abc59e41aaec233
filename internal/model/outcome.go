package model

// PhaseOutcome summarizes one phase run. Produced once per phase, immutable,
// consumed by the orchestrator and the performance monitor.
type PhaseOutcome struct {
	Phase        Phase         `json:"phase"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	DurationMs   int64         `json:"duration_ms"`
	FromCache    bool          `json:"from_cache,omitempty"`
	Results      []TaskResult  `json:"results,omitempty"`
	Failures     []TaskFailure `json:"failures,omitempty"`
}

// TaskCount returns the total number of tasks the phase attempted.
func (o PhaseOutcome) TaskCount() int {
	return o.SuccessCount + o.FailureCount
}

// FailureRate returns the realized failure rate, or 0 for an empty phase.
func (o PhaseOutcome) FailureRate() float64 {
	total := o.TaskCount()
	if total == 0 {
		return 0
	}
	return float64(o.FailureCount) / float64(total)
}
