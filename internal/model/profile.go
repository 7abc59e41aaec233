package model

// SiteCategory is the size bucket a site falls into after discovery.
type SiteCategory string

const (
	SiteSmall  SiteCategory = "small"
	SiteMedium SiteCategory = "medium"
	SiteLarge  SiteCategory = "large"
)

// Confidence qualifies how much a SiteProfile can be trusted.
type Confidence string

const (
	// ConfidenceHigh means the page count comes from a completed initial phase.
	ConfidenceHigh Confidence = "high"
	// ConfidenceLow means the count was estimated from partial data.
	ConfidenceLow Confidence = "low"
)

// SiteProfile is computed once after the initial phase and never changes
// mid-run, even if later phases discover more URLs.
type SiteProfile struct {
	PageCountEstimate int          `json:"page_count_estimate"`
	Category          SiteCategory `json:"category"`
	Confidence        Confidence   `json:"confidence"`
}

// ConcurrencyConfig holds the per-phase concurrency limits derived from a
// SiteProfile. Immutable for the duration of a run.
type ConcurrencyConfig struct {
	PerPhaseLimit         map[Phase]int `json:"per_phase_limit"`
	ParallelPhasesAllowed bool          `json:"parallel_phases_allowed"`
}

// Limit returns the configured limit for a phase, defaulting to 1.
func (c ConcurrencyConfig) Limit(p Phase) int {
	if n, ok := c.PerPhaseLimit[p]; ok && n > 0 {
		return n
	}
	return 1
}
