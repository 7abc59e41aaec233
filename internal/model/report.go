package model

import "time"

// RunMode selects how phases are sequenced.
type RunMode string

const (
	// ModeSequential runs every phase one after another.
	ModeSequential RunMode = "sequential"
	// ModeOptimized overlaps independent phases when the site is big enough.
	ModeOptimized RunMode = "optimized"
)

// PipelineReport is the terminal artifact of a run: every phase outcome plus
// the site profile, quality signals, and timing. The caller always receives
// one unless the run aborted before any phase output existed.
type PipelineReport struct {
	RunID           string         `json:"run_id"`
	TargetURL       string         `json:"target_url"`
	Mode            RunMode        `json:"mode"`
	Profile         *SiteProfile   `json:"profile,omitempty"`
	Outcomes        []PhaseOutcome `json:"outcomes"`
	Degraded        bool           `json:"degraded"`
	FellBack        bool           `json:"fell_back,omitempty"`
	SuccessRate     float64        `json:"success_rate"`
	TotalDurationMs int64          `json:"total_duration_ms"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
}

// Outcome returns the recorded outcome for a phase, or nil.
func (r *PipelineReport) Outcome(p Phase) *PhaseOutcome {
	for i := range r.Outcomes {
		if r.Outcomes[i].Phase == p {
			return &r.Outcomes[i]
		}
	}
	return nil
}
