package model

import "time"

// RunStatus tracks a pipeline run in the history store.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusDegraded RunStatus = "degraded"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one pipeline invocation as persisted in the run-history store.
type Run struct {
	ID        string          `json:"id"`
	TargetURL string          `json:"target_url"`
	Status    RunStatus       `json:"status"`
	Report    *PipelineReport `json:"report,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
