package classify

import (
	"github.com/stylescan/stylescan/internal/errs"
	"github.com/stylescan/stylescan/internal/model"
)

// ConcurrencyCeiling is the absolute per-phase limit: explicit overrides are
// clamped to it no matter what the caller asks for.
const ConcurrencyCeiling = 20

// limitTable maps a site category to per-phase limits. Monotonically
// increasing across categories for every phase.
var limitTable = map[model.SiteCategory]map[model.Phase]int{
	model.SiteSmall: {
		model.PhaseDeepen:   3,
		model.PhaseMetadata: 2,
		model.PhaseExtract:  2,
	},
	model.SiteMedium: {
		model.PhaseDeepen:   6,
		model.PhaseMetadata: 4,
		model.PhaseExtract:  3,
	},
	model.SiteLarge: {
		model.PhaseDeepen:   12,
		model.PhaseMetadata: 8,
		model.PhaseExtract:  6,
	},
}

// parallelTable marks which categories may overlap independent phases.
var parallelTable = map[model.SiteCategory]bool{
	model.SiteSmall:  false,
	model.SiteMedium: true,
	model.SiteLarge:  true,
}

// ConcurrencyFor derives the run's concurrency configuration from the site
// profile. Explicit overrides take precedence over table values but are still
// bounded by the ceiling.
func ConcurrencyFor(profile model.SiteProfile, overrides map[model.Phase]int) (model.ConcurrencyConfig, error) {
	table, ok := limitTable[profile.Category]
	if !ok {
		return model.ConcurrencyConfig{}, errs.Newf(errs.Application, "classify: unknown category %q", profile.Category)
	}

	limits := make(map[model.Phase]int, len(table)+1)
	// The initial phase is always a single synchronous discovery pass.
	limits[model.PhaseInitial] = 1
	for phase, n := range table {
		limits[phase] = n
	}

	for phase, n := range overrides {
		if n <= 0 {
			return model.ConcurrencyConfig{}, errs.Newf(errs.Configuration,
				"classify: concurrency override for %s must be positive, got %d", phase, n).
				WithHint("pass --concurrency values between 1 and 20")
		}
		if n > ConcurrencyCeiling {
			n = ConcurrencyCeiling
		}
		limits[phase] = n
	}

	return model.ConcurrencyConfig{
		PerPhaseLimit:         limits,
		ParallelPhasesAllowed: parallelTable[profile.Category],
	}, nil
}

// SequentialFallback returns the Small-category limits with parallel phases
// disabled, used when the orchestrator degrades after a phase-level failure.
func SequentialFallback() model.ConcurrencyConfig {
	limits := map[model.Phase]int{model.PhaseInitial: 1}
	for phase, n := range limitTable[model.SiteSmall] {
		limits[phase] = n
	}
	return model.ConcurrencyConfig{PerPhaseLimit: limits, ParallelPhasesAllowed: false}
}
