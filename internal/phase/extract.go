package phase

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/stylescan/stylescan/internal/browser"
	"github.com/stylescan/stylescan/internal/errs"
	"github.com/stylescan/stylescan/internal/model"
)

// designProbeJS walks the rendered DOM and harvests computed-style design
// values. It runs in the page and returns a JSON document matching
// model.DesignData's field tags. The element walk is capped so pathological
// pages cannot stall an attempt.
const designProbeJS = `() => {
	const colors = new Set();
	const fonts = new Set();
	const sizes = new Set();
	const spacing = new Set();
	const radii = new Set();
	const shadows = new Set();

	const els = document.querySelectorAll('*');
	const cap = Math.min(els.length, 2000);
	for (let i = 0; i < cap; i++) {
		const s = getComputedStyle(els[i]);
		if (s.color) colors.add(s.color);
		if (s.backgroundColor && s.backgroundColor !== 'rgba(0, 0, 0, 0)') {
			colors.add(s.backgroundColor);
		}
		if (s.fontFamily) fonts.add(s.fontFamily);
		if (s.fontSize) sizes.add(s.fontSize);
		for (const v of [s.marginTop, s.marginBottom, s.paddingTop, s.paddingBottom, s.gap]) {
			if (v && v !== '0px' && v !== 'normal') spacing.add(v);
		}
		if (s.borderRadius && s.borderRadius !== '0px') radii.add(s.borderRadius);
		if (s.boxShadow && s.boxShadow !== 'none') shadows.add(s.boxShadow);
	}

	const take = (set, n) => Array.from(set).slice(0, n);
	return JSON.stringify({
		colors: take(colors, 64),
		font_families: take(fonts, 16),
		font_sizes: take(sizes, 32),
		spacing: take(spacing, 48),
		border_radii: take(radii, 16),
		shadows: take(shadows, 16),
	});
}`

// ExtractExecutor evaluates the design probe on each page and returns the
// harvested design data.
type ExtractExecutor struct{}

// NewExtractExecutor creates the extract-phase executor.
func NewExtractExecutor() *ExtractExecutor { return &ExtractExecutor{} }

// Execute navigates to the page, runs the probe, and decodes its output.
func (e *ExtractExecutor) Execute(ctx context.Context, task model.Task, page browser.Page) (*model.TaskResult, error) {
	if err := page.Navigate(ctx, task.URL); err != nil {
		return nil, eris.Wrapf(err, "extract: navigate %s", task.URL)
	}

	raw, err := page.Eval(ctx, designProbeJS)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: evaluate probe on %s", task.URL)
	}

	var data model.DesignData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, errs.Wrap(errs.Application, err, "extract: decode probe output")
	}
	data.URL = task.URL

	return &model.TaskResult{TaskID: task.ID, URL: task.URL, Data: data}, nil
}
