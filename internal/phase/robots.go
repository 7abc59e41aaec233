package phase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// Robots gates discovery against the site's robots.txt. A nil group (file
// missing, unreachable, or unparsable) allows everything.
type Robots struct {
	group *robotstxt.Group
}

// AllowAll returns a Robots that permits every path.
func AllowAll() *Robots { return &Robots{} }

// FetchRobots retrieves and parses robots.txt for the target host. Fetch or
// parse failures are treated as "no restrictions" rather than errors: a site
// without robots.txt is still crawlable.
func FetchRobots(ctx context.Context, base *url.URL, userAgent string) *Robots {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", base.Scheme, base.Host)

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return AllowAll()
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		zap.L().Debug("robots.txt unreachable, allowing all",
			zap.String("url", robotsURL), zap.Error(err))
		return AllowAll()
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		zap.L().Debug("robots.txt unparsable, allowing all",
			zap.String("url", robotsURL), zap.Error(err))
		return AllowAll()
	}

	zap.L().Debug("robots.txt loaded", zap.String("url", robotsURL))
	return &Robots{group: data.FindGroup(userAgent)}
}

// Allowed reports whether the site permits crawling the given path.
func (r *Robots) Allowed(path string) bool {
	if r == nil || r.group == nil {
		return true
	}
	return r.group.Test(path)
}
