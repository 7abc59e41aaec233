// Package store persists run history so past crawls can be listed and
// inspected after the fact. The crawl itself never depends on it.
package store

import (
	"context"

	"github.com/stylescan/stylescan/internal/model"
)

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status model.RunStatus
	Limit  int
	Offset int
}

// Store is the run-history persistence interface.
type Store interface {
	// Migrate creates or upgrades the schema. Idempotent.
	Migrate(ctx context.Context) error
	// SaveReport records a finished run under the report's run ID.
	SaveReport(ctx context.Context, report *model.PipelineReport, status model.RunStatus) (*model.Run, error)
	// GetRun fetches one run, or nil when unknown.
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	Close() error
}

// StatusFor derives the stored status from how the run ended.
func StatusFor(report *model.PipelineReport, runErr error) model.RunStatus {
	switch {
	case runErr != nil:
		return model.RunStatusFailed
	case report != nil && report.Degraded:
		return model.RunStatusDegraded
	default:
		return model.RunStatusComplete
	}
}
