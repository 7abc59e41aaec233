package phase

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/stylescan/stylescan/internal/errs"
)

// ParseTarget validates and normalizes the crawl target URL. Only absolute
// http/https URLs with a host are accepted.
func ParseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errs.Wrap(errs.Validation, err, "phase: parse target URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errs.Newf(errs.Validation, "phase: unsupported scheme %q", u.Scheme).
			WithHint("target must be an absolute http:// or https:// URL")
	}
	if u.Host == "" {
		return nil, errs.New(errs.Validation, "phase: target URL has no host")
	}
	u.Fragment = ""
	return u, nil
}

// NormalizePath canonicalizes a site-relative path: leading slash, no
// trailing slash (except root), no fragment or query.
func NormalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == "/" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimSuffix(p, "/")
}

// skippableExtensions are asset paths that never carry design-relevant
// markup of their own.
var skippableExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
	".css", ".js", ".json", ".xml", ".pdf", ".zip", ".mp4", ".woff", ".woff2",
}

func isAssetPath(p string) bool {
	lower := strings.ToLower(p)
	for _, ext := range skippableExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// extractLinks pulls same-host anchor targets out of a parsed document and
// returns them as sorted, deduplicated site-relative paths.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}
		target, err := base.Parse(href)
		if err != nil {
			return
		}
		if target.Host != base.Host {
			return
		}
		p := NormalizePath(target.Path)
		if isAssetPath(p) {
			return
		}
		seen[p] = struct{}{}
	})

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Slug converts a site-relative path into a filesystem-safe artifact name.
// The root path maps to "index".
func Slug(path string) string {
	p := NormalizePath(path)
	if p == "/" {
		return "index"
	}
	var b strings.Builder
	for _, r := range strings.Trim(p, "/") {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "index"
	}
	return slug
}
