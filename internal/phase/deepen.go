package phase

import (
	"context"

	"github.com/stylescan/stylescan/internal/browser"
	"github.com/stylescan/stylescan/internal/model"
)

// DeepenExecutor visits paths the initial phase surfaced and discovers the
// deeper layers of the site's link graph. Depth limiting lives in the Site
// scope, so a deepen run never queues paths past the configured ceiling.
type DeepenExecutor struct {
	site *Site
}

// NewDeepenExecutor creates the deepen-phase executor for the site.
func NewDeepenExecutor(site *Site) *DeepenExecutor {
	return &DeepenExecutor{site: site}
}

// Execute visits one known path and returns the links found on it.
func (e *DeepenExecutor) Execute(ctx context.Context, task model.Task, page browser.Page) (*model.TaskResult, error) {
	return discoverPage(ctx, task, page, e.site)
}
