package phase

import (
	"path"
	"strings"
)

// defaultExcludePatterns skip path families that add crawl volume without
// adding design signal.
var defaultExcludePatterns = []string{
	"/blog/*",
	"/news/*",
	"/tag/*",
	"/category/*",
	"/wp-admin/*",
	"/cart/*",
	"/checkout/*",
}

// ExcludeMatcher filters discovered paths with glob-style patterns. A
// pattern like "/blog/*" matches multi-level paths such as "/blog/a/b".
type ExcludeMatcher struct {
	patterns []string
}

// NewExcludeMatcher builds a matcher from glob patterns, falling back to the
// defaults when none are given.
func NewExcludeMatcher(patterns []string) *ExcludeMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &ExcludeMatcher{patterns: patterns}
}

// Patterns returns the configured patterns.
func (m *ExcludeMatcher) Patterns() []string { return m.patterns }

// Excluded reports whether a site-relative path matches any pattern.
func (m *ExcludeMatcher) Excluded(urlPath string) bool {
	urlPath = strings.ToLower(NormalizePath(urlPath))
	for _, pattern := range m.patterns {
		if matchSegmented(strings.ToLower(pattern), urlPath) {
			return true
		}
	}
	return false
}

// matchSegmented tries an exact glob match, then treats a trailing "/*" as a
// subtree prefix so "/blog/*" also matches "/blog/a/b/c".
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
