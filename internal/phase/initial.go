package phase

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/stylescan/stylescan/internal/browser"
	"github.com/stylescan/stylescan/internal/model"
)

// InitialExecutor probes the site root (plus any seed paths) and discovers
// the first layer of same-host links.
type InitialExecutor struct {
	site *Site
}

// NewInitialExecutor creates the initial-phase executor for the site.
func NewInitialExecutor(site *Site) *InitialExecutor {
	return &InitialExecutor{site: site}
}

// Execute visits one seed URL and returns the links found on it.
func (e *InitialExecutor) Execute(ctx context.Context, task model.Task, page browser.Page) (*model.TaskResult, error) {
	return discoverPage(ctx, task, page, e.site)
}

// sitemapURLSet is the minimal subset of the sitemap protocol we read.
type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// SitemapPaths fetches /sitemap.xml and returns its in-scope paths. The
// sitemap is a bonus source of seeds: a missing or broken one yields an
// empty slice, never an error.
func SitemapPaths(ctx context.Context, site *Site, userAgent string) []string {
	sitemapURL := fmt.Sprintf("%s://%s/sitemap.xml", site.Base.Scheme, site.Base.Host)

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		zap.L().Debug("sitemap unreachable", zap.String("url", sitemapURL), zap.Error(err))
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		zap.L().Debug("sitemap unparsable", zap.String("url", sitemapURL), zap.Error(err))
		return nil
	}

	var paths []string
	for _, entry := range set.URLs {
		u, err := site.Base.Parse(entry.Loc)
		if err != nil || u.Host != site.Base.Host {
			continue
		}
		p := NormalizePath(u.Path)
		if site.Qualifies(p) && !isAssetPath(p) {
			paths = append(paths, p)
		}
	}
	return paths
}
