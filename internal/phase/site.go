package phase

import (
	"net/url"
	"strings"
)

// Site is the crawl scope shared by the discovery executors: the target
// host plus the exclusion and robots rules that gate which paths qualify.
type Site struct {
	Base     *url.URL
	Excludes *ExcludeMatcher
	Robots   *Robots
	// MaxDepth caps path depth in segments; 0 means unlimited.
	MaxDepth int
}

// NewSite builds a crawl scope for base. Nil excludes or robots default to
// the standard exclude set and allow-all respectively.
func NewSite(base *url.URL, excludes *ExcludeMatcher, robots *Robots, maxDepth int) *Site {
	if excludes == nil {
		excludes = NewExcludeMatcher(nil)
	}
	if robots == nil {
		robots = AllowAll()
	}
	return &Site{Base: base, Excludes: excludes, Robots: robots, MaxDepth: maxDepth}
}

// Qualifies reports whether a site-relative path is in scope.
func (s *Site) Qualifies(path string) bool {
	path = NormalizePath(path)
	if s.Excludes.Excluded(path) {
		return false
	}
	if !s.Robots.Allowed(path) {
		return false
	}
	if s.MaxDepth > 0 && pathDepth(path) > s.MaxDepth {
		return false
	}
	return true
}

// Filter keeps only the in-scope paths.
func (s *Site) Filter(paths []string) []string {
	kept := paths[:0:0]
	for _, p := range paths {
		if s.Qualifies(p) {
			kept = append(kept, p)
		}
	}
	return kept
}

// URLFor resolves a site-relative path against the base URL.
func (s *Site) URLFor(path string) string {
	u := *s.Base
	u.Path = NormalizePath(path)
	u.RawQuery = ""
	return u.String()
}

// PathOf extracts the normalized site-relative path from an absolute URL.
// Malformed URLs map to root.
func (s *Site) PathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "/"
	}
	return NormalizePath(u.Path)
}

// pathDepth counts path segments: "/" is 0, "/a" is 1, "/a/b" is 2.
func pathDepth(p string) int {
	p = strings.Trim(NormalizePath(p), "/")
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}
