package pipeline

import "go.uber.org/zap"

// State is the orchestrator's position in the run lifecycle. Transitions are
// driven by the single goroutine executing Run; parallel phases report back
// to it rather than mutating state themselves.
type State string

const (
	StateIdle                 State = "idle"
	StateClassifyingSite      State = "classifying_site"
	StateRunningPhase         State = "running_phase"
	StateFallbackToSequential State = "fallback_to_sequential"
	StateCompleted            State = "completed"
	StateAborted              State = "aborted"
)

func (o *Orchestrator) setState(s State, fields ...zap.Field) {
	o.state = s
	zap.L().Debug("pipeline state", append([]zap.Field{zap.String("state", string(s))}, fields...)...)
}

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State { return o.state }
