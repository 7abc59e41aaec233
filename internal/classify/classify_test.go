package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylescan/stylescan/internal/errs"
	"github.com/stylescan/stylescan/internal/model"
)

func TestClassify_Thresholds(t *testing.T) {
	cases := []struct {
		count    int
		category model.SiteCategory
	}{
		{0, model.SiteSmall},
		{15, model.SiteSmall},
		{16, model.SiteMedium},
		{50, model.SiteMedium},
		{51, model.SiteLarge},
		{60, model.SiteLarge},
		{500, model.SiteLarge},
	}
	for _, tc := range cases {
		p := Classify(tc.count, true)
		assert.Equal(t, tc.category, p.Category, "count %d", tc.count)
		assert.Equal(t, tc.count, p.PageCountEstimate)
	}
}

func TestClassify_Confidence(t *testing.T) {
	assert.Equal(t, model.ConfidenceHigh, Classify(10, true).Confidence)
	assert.Equal(t, model.ConfidenceLow, Classify(10, false).Confidence)
}

func TestConcurrencyFor_Table(t *testing.T) {
	cfg, err := ConcurrencyFor(model.SiteProfile{Category: model.SiteLarge}, nil)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Limit(model.PhaseDeepen))
	assert.Equal(t, 8, cfg.Limit(model.PhaseMetadata))
	assert.Equal(t, 6, cfg.Limit(model.PhaseExtract))
	assert.Equal(t, 1, cfg.Limit(model.PhaseInitial))
	assert.True(t, cfg.ParallelPhasesAllowed)
}

func TestConcurrencyFor_SmallIsSequential(t *testing.T) {
	cfg, err := ConcurrencyFor(model.SiteProfile{Category: model.SiteSmall}, nil)
	require.NoError(t, err)
	assert.False(t, cfg.ParallelPhasesAllowed)
}

func TestConcurrencyFor_Monotonic(t *testing.T) {
	small, err := ConcurrencyFor(model.SiteProfile{Category: model.SiteSmall}, nil)
	require.NoError(t, err)
	medium, err := ConcurrencyFor(model.SiteProfile{Category: model.SiteMedium}, nil)
	require.NoError(t, err)
	large, err := ConcurrencyFor(model.SiteProfile{Category: model.SiteLarge}, nil)
	require.NoError(t, err)

	for _, phase := range model.AllPhases() {
		assert.LessOrEqual(t, small.Limit(phase), medium.Limit(phase), "phase %s", phase)
		assert.LessOrEqual(t, medium.Limit(phase), large.Limit(phase), "phase %s", phase)
	}
}

func TestConcurrencyFor_Overrides(t *testing.T) {
	cfg, err := ConcurrencyFor(model.SiteProfile{Category: model.SiteSmall}, map[model.Phase]int{
		model.PhaseDeepen: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Limit(model.PhaseDeepen))
	// Untouched phases keep table values.
	assert.Equal(t, 2, cfg.Limit(model.PhaseMetadata))
}

func TestConcurrencyFor_OverrideCeiling(t *testing.T) {
	cfg, err := ConcurrencyFor(model.SiteProfile{Category: model.SiteLarge}, map[model.Phase]int{
		model.PhaseDeepen: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, ConcurrencyCeiling, cfg.Limit(model.PhaseDeepen))
}

func TestConcurrencyFor_InvalidOverride(t *testing.T) {
	_, err := ConcurrencyFor(model.SiteProfile{Category: model.SiteMedium}, map[model.Phase]int{
		model.PhaseExtract: -1,
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Configuration))
}

func TestSequentialFallback(t *testing.T) {
	cfg := SequentialFallback()
	assert.False(t, cfg.ParallelPhasesAllowed)
	assert.Equal(t, 3, cfg.Limit(model.PhaseDeepen))
	assert.Equal(t, 2, cfg.Limit(model.PhaseMetadata))
	assert.Equal(t, 2, cfg.Limit(model.PhaseExtract))
}
