// Package pipeline sequences the crawl phases, owns the run's shared
// resources (browser pool, cache, monitor), and degrades gracefully when a
// phase fails outright.
package pipeline

import (
	"time"

	"github.com/stylescan/stylescan/internal/model"
)

// Options configures one pipeline run.
type Options struct {
	// TargetURL is the absolute http/https URL of the site to crawl.
	TargetURL string
	// OutputDir receives all artifacts. Default "./stylescan-out".
	OutputDir string
	// SeedPaths are extra site-relative paths probed alongside the root
	// during the initial phase.
	SeedPaths []string
	// ExcludePatterns are glob-style path patterns to skip; empty uses the
	// built-in defaults.
	ExcludePatterns []string
	// MaxDepth caps discovery depth in path segments. Default 3; 0 keeps
	// the default, negative means unlimited.
	MaxDepth int

	// StopAfter ends the run once the named phase has completed. Empty (or
	// the extract phase) runs the whole pipeline; earlier phases are still
	// served from cache when possible.
	StopAfter model.Phase
	// ForceSequential disables parallel phase dispatch regardless of the
	// site's category.
	ForceSequential bool
	// Force bypasses the phase cache and re-runs everything.
	Force bool

	// ConcurrencyOverrides replaces individual per-phase limits from the
	// policy table. Values are validated up front and clamped to the
	// absolute ceiling.
	ConcurrencyOverrides map[model.Phase]int
	// TaskTimeout bounds one task attempt. Default 30s.
	TaskTimeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Zero
	// disables retries; the CLI default of 2 comes from configuration.
	MaxRetries int
	// NavRatePerSec paces page navigations across the whole run. Default 4;
	// negative disables pacing.
	NavRatePerSec float64

	// HardFailureRate escalates a phase to a catastrophic failure when its
	// realized failure rate reaches it. Default 1.0.
	HardFailureRate float64
	// MinSuccessRate is the quality gate for the degraded flag.
	// Default 0.95.
	MinSuccessRate float64

	// UserAgent identifies the crawler to robots.txt and sitemap fetches.
	UserAgent string
}

func (o Options) withDefaults() Options {
	if o.OutputDir == "" {
		o.OutputDir = "./stylescan-out"
	}
	if o.MaxDepth == 0 {
		o.MaxDepth = 3
	}
	if o.MaxDepth < 0 {
		o.MaxDepth = 0
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 30 * time.Second
	}
	if o.NavRatePerSec == 0 {
		o.NavRatePerSec = 4
	}
	if o.UserAgent == "" {
		o.UserAgent = "Mozilla/5.0 (compatible; StyleScan/1.0)"
	}
	return o
}
