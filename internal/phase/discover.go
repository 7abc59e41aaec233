package phase

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/stylescan/stylescan/internal/browser"
	"github.com/stylescan/stylescan/internal/model"
)

// DiscoveryResult is one discovery task's payload: the path that was visited
// and the crawlable same-host paths found on it.
type DiscoveryResult struct {
	Path  string   `json:"path"`
	Links []string `json:"links"`
}

// discoverPage navigates to the task URL, parses the rendered document, and
// returns the filtered link set. Shared by the initial and deepen executors.
func discoverPage(ctx context.Context, task model.Task, page browser.Page, site *Site) (*model.TaskResult, error) {
	if err := page.Navigate(ctx, task.URL); err != nil {
		return nil, eris.Wrapf(err, "discover: navigate %s", task.URL)
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "discover: read document %s", task.URL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrapf(err, "discover: parse document %s", task.URL)
	}

	links := site.Filter(extractLinks(doc, site.Base))
	return &model.TaskResult{
		TaskID: task.ID,
		URL:    task.URL,
		Data: DiscoveryResult{
			Path:  site.PathOf(task.URL),
			Links: links,
		},
	}, nil
}
