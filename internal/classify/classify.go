// Package classify buckets a site by discovered size and maps the bucket to
// per-phase concurrency limits.
package classify

import (
	"go.uber.org/zap"

	"github.com/stylescan/stylescan/internal/model"
)

// Size thresholds: Small <= 15 pages, Medium 16-50, Large >= 51.
const (
	smallMaxPages  = 15
	mediumMaxPages = 50
)

// Classify turns a discovered-URL count into a SiteProfile. Computed once
// after the initial phase; the profile never changes mid-run even if later
// phases discover more URLs.
func Classify(discoveredURLCount int, fromCompletedInitial bool) model.SiteProfile {
	profile := model.SiteProfile{
		PageCountEstimate: discoveredURLCount,
		Confidence:        model.ConfidenceLow,
	}
	if fromCompletedInitial {
		profile.Confidence = model.ConfidenceHigh
	}

	switch {
	case discoveredURLCount <= smallMaxPages:
		profile.Category = model.SiteSmall
	case discoveredURLCount <= mediumMaxPages:
		profile.Category = model.SiteMedium
	default:
		profile.Category = model.SiteLarge
	}

	zap.L().Info("site classified",
		zap.Int("pages", discoveredURLCount),
		zap.String("category", string(profile.Category)),
		zap.String("confidence", string(profile.Confidence)),
	)
	return profile
}
