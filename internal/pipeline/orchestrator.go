package pipeline

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stylescan/stylescan/internal/artifact"
	"github.com/stylescan/stylescan/internal/browser"
	"github.com/stylescan/stylescan/internal/cache"
	"github.com/stylescan/stylescan/internal/classify"
	"github.com/stylescan/stylescan/internal/errs"
	"github.com/stylescan/stylescan/internal/model"
	"github.com/stylescan/stylescan/internal/monitoring"
	"github.com/stylescan/stylescan/internal/phase"
	"github.com/stylescan/stylescan/internal/resilience"
)

// Orchestrator drives one crawl run through its phases. Build one per run.
type Orchestrator struct {
	opts     Options
	launcher browser.Launcher
	store    *artifact.Store
	cache    *cache.Manager
	monitor  *monitoring.Monitor
	state    State

	// Seams for tests: executor construction and the ambient HTTP fetches.
	execFor      func(p model.Phase, site *phase.Site) phase.Executor
	fetchRobots  func(ctx context.Context, base *url.URL, userAgent string) *phase.Robots
	sitemapPaths func(ctx context.Context, site *phase.Site, userAgent string) []string
}

// New validates options and prepares an orchestrator. Bad concurrency
// overrides surface here, before any phase runs.
func New(opts Options, launcher browser.Launcher) (*Orchestrator, error) {
	opts = opts.withDefaults()

	probe := model.SiteProfile{Category: model.SiteSmall}
	if _, err := classify.ConcurrencyFor(probe, opts.ConcurrencyOverrides); err != nil {
		return nil, err
	}

	st, err := artifact.NewStore(opts.OutputDir)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		opts:         opts,
		launcher:     launcher,
		store:        st,
		cache:        cache.NewManager(st, opts.Force),
		monitor:      monitoring.NewMonitor(opts.MinSuccessRate),
		state:        StateIdle,
		execFor:      defaultExecutor,
		fetchRobots:  phase.FetchRobots,
		sitemapPaths: phase.SitemapPaths,
	}, nil
}

func defaultExecutor(p model.Phase, site *phase.Site) phase.Executor {
	switch p {
	case model.PhaseInitial:
		return phase.NewInitialExecutor(site)
	case model.PhaseDeepen:
		return phase.NewDeepenExecutor(site)
	case model.PhaseMetadata:
		return phase.NewMetadataExecutor()
	default:
		return phase.NewExtractExecutor()
	}
}

// Store exposes the artifact store (the CLI reads artifacts back for
// display).
func (o *Orchestrator) Store() *artifact.Store { return o.store }

// run carries the mutable state of one Run invocation. The driving goroutine
// owns everything except the fields written through record(), which parallel
// phases touch under mu.
type run struct {
	site    *phase.Site
	pool    *browser.Pool
	runner  *phase.Runner
	limiter *rate.Limiter
	report  *model.PipelineReport

	mu       sync.Mutex
	paths    model.PathSet
	metadata []model.PageMetadata
}

// discoveryConfig is the cache-relevant configuration of the discovery
// phases. Changing any field invalidates their cached results.
type discoveryConfig struct {
	Target   string   `json:"target,omitempty"`
	MaxDepth int      `json:"max_depth"`
	Excludes []string `json:"excludes"`
}

// Run executes the pipeline. The returned report is non-nil whenever at
// least one phase produced output, even if the run later aborted; the error
// reports the first unrecoverable failure.
func (o *Orchestrator) Run(ctx context.Context) (*model.PipelineReport, error) {
	start := time.Now()

	base, err := phase.ParseTarget(o.opts.TargetURL)
	if err != nil {
		return nil, err
	}

	robots := o.fetchRobots(ctx, base, o.opts.UserAgent)
	site := phase.NewSite(base, phase.NewExcludeMatcher(o.opts.ExcludePatterns), robots, o.opts.MaxDepth)

	r := &run{
		site: site,
		pool: browser.NewPool(browser.Sizing(o.peakConcurrency()), o.launcher),
		report: &model.PipelineReport{
			RunID:     uuid.New().String(),
			TargetURL: base.String(),
			Mode:      model.ModeSequential,
			StartedAt: start.UTC(),
		},
		paths: model.PathSet{BaseURL: base.String()},
	}
	r.runner = phase.NewRunner(r.pool)
	if o.opts.NavRatePerSec > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(o.opts.NavRatePerSec), 1)
	}
	defer r.pool.Drain()

	seeds := o.seedPaths()
	r.paths.Add(seeds...)

	zap.L().Info("run starting",
		zap.String("run_id", r.report.RunID),
		zap.String("target", base.String()),
		zap.Int("seeds", len(seeds)),
	)

	if err := o.runInitial(ctx, r, seeds); err != nil {
		return o.finalize(r, start, StateAborted), err
	}
	if err := abortErr(ctx); err != nil {
		return o.finalize(r, start, StateAborted), err
	}

	if o.opts.StopAfter == model.PhaseInitial {
		return o.finalize(r, start, StateCompleted), nil
	}

	// Classification happens exactly once; later discoveries never change
	// the profile mid-run.
	o.setState(StateClassifyingSite)
	profile := classify.Classify(len(r.paths.Paths), true)
	r.report.Profile = &profile
	cc, err := classify.ConcurrencyFor(profile, o.opts.ConcurrencyOverrides)
	if err != nil {
		return o.finalize(r, start, StateAborted), err
	}

	if o.opts.StopAfter == model.PhaseDeepen {
		if err := o.runDeepen(ctx, r, cc.Limit(model.PhaseDeepen)); err != nil {
			if errors.Is(err, phase.ErrPhaseFailed) {
				err = errs.Wrap(errs.Application, err, "pipeline: deepen phase failed")
			}
			return o.finalize(r, start, StateAborted), err
		}
		return o.finalize(r, start, StateCompleted), nil
	}

	parallel := cc.ParallelPhasesAllowed && !o.opts.ForceSequential
	if parallel {
		r.report.Mode = model.ModeOptimized
		err = o.runParallelSection(ctx, r, cc)
	} else {
		err = o.runSequentialSection(ctx, r, cc)
	}
	if err != nil {
		return o.finalize(r, start, StateAborted), err
	}
	if err := abortErr(ctx); err != nil {
		return o.finalize(r, start, StateAborted), err
	}

	if o.opts.StopAfter == model.PhaseMetadata {
		return o.finalize(r, start, StateCompleted), nil
	}

	if err := o.runExtract(ctx, r, cc, parallel); err != nil {
		return o.finalize(r, start, StateAborted), err
	}

	return o.finalize(r, start, StateCompleted), nil
}

// runInitial probes the root and seed paths, merges sitemap entries, and
// persists the first path set.
func (o *Orchestrator) runInitial(ctx context.Context, r *run, seeds []string) error {
	cfg := discoveryConfig{
		Target:   r.site.Base.String(),
		MaxDepth: r.site.MaxDepth,
		Excludes: r.site.Excludes.Patterns(),
	}
	fp, err := cache.Fingerprint(model.PhaseInitial, cfg, cache.InputHash(seeds))
	if err != nil {
		return err
	}

	if skip, ref := o.cache.ShouldSkip(model.PhaseInitial, fp); skip {
		var ps model.PathSet
		if err := o.store.ReadJSON(ref, &ps); err == nil {
			r.paths = ps
			o.record(r, model.PhaseOutcome{Phase: model.PhaseInitial, SuccessCount: len(ps.Paths), FromCache: true})
			return nil
		}
	}

	o.setState(StateRunningPhase, zap.String("phase", string(model.PhaseInitial)))
	outcome, err := r.runner.Run(ctx, model.PhaseInitial, o.urlsFor(r, seeds),
		o.execFor(model.PhaseInitial, r.site), o.runnerCfg(1, r.limiter))
	o.record(r, outcome)
	if err != nil {
		return errs.Wrap(errs.Application, err, "pipeline: initial discovery failed").
			WithHint("verify the target URL is reachable and a browser can be launched")
	}

	o.mergeDiscoveries(r, outcome)
	r.paths.Add(o.sitemapPaths(ctx, r.site, o.opts.UserAgent)...)

	if err := o.store.WriteJSON(artifact.InitialPathsFile, r.paths); err != nil {
		return err
	}
	// An aborted phase keeps its partial artifact but is never recorded as
	// complete.
	if ctx.Err() != nil {
		return nil
	}
	return o.cache.RecordCompletion(model.PhaseInitial, fp, artifact.InitialPathsFile)
}

// runSequentialSection runs deepen then metadata one after the other.
func (o *Orchestrator) runSequentialSection(ctx context.Context, r *run, cc model.ConcurrencyConfig) error {
	if err := o.runDeepen(ctx, r, cc.Limit(model.PhaseDeepen)); err != nil {
		if !errors.Is(err, phase.ErrPhaseFailed) {
			return err
		}
		return errs.Wrap(errs.Application, err, "pipeline: deepen phase failed")
	}
	if err := abortErr(ctx); err != nil {
		return err
	}

	fromCache, err := o.runMetadata(ctx, r, r.paths.Paths, cc.Limit(model.PhaseMetadata))
	if err != nil {
		if !errors.Is(err, phase.ErrPhaseFailed) {
			return err
		}
		return errs.Wrap(errs.Application, err, "pipeline: metadata phase failed")
	}
	if fromCache {
		return nil
	}
	return o.finishMetadata(ctx, r)
}

// runParallelSection overlaps deepen and metadata, then reconciles: paths
// deepen found after metadata was dispatched get one follow-up metadata pass
// before extraction. A phase that fails outright is retried once with
// small-site limits; only a second failure aborts the run.
func (o *Orchestrator) runParallelSection(ctx context.Context, r *run, cc model.ConcurrencyConfig) error {
	snapshot := append([]string(nil), r.paths.Paths...)

	var wg sync.WaitGroup
	var deepenErr, metaErr error
	var metaFromCache bool
	wg.Add(2)
	go func() {
		defer wg.Done()
		deepenErr = o.runDeepen(ctx, r, cc.Limit(model.PhaseDeepen))
	}()
	go func() {
		defer wg.Done()
		metaFromCache, metaErr = o.runMetadata(ctx, r, snapshot, cc.Limit(model.PhaseMetadata))
	}()
	wg.Wait()

	fb := classify.SequentialFallback()

	if deepenErr != nil {
		if !errors.Is(deepenErr, phase.ErrPhaseFailed) {
			return deepenErr
		}
		o.fellBack(r, model.PhaseDeepen)
		if err := o.runDeepen(ctx, r, fb.Limit(model.PhaseDeepen)); err != nil {
			return errs.Wrap(errs.Application, err, "pipeline: deepen phase failed after sequential retry")
		}
	}
	if metaErr != nil {
		if !errors.Is(metaErr, phase.ErrPhaseFailed) {
			return metaErr
		}
		o.fellBack(r, model.PhaseMetadata)
		// The retry sees the post-deepen path set, so it doubles as the
		// reconciliation pass.
		snapshot = append([]string(nil), r.paths.Paths...)
		if _, err := o.runMetadata(ctx, r, snapshot, fb.Limit(model.PhaseMetadata)); err != nil {
			return errs.Wrap(errs.Application, err, "pipeline: metadata phase failed after sequential retry")
		}
	}
	if err := abortErr(ctx); err != nil {
		return err
	}

	if late := difference(r.paths.Paths, snapshot); len(late) > 0 {
		zap.L().Info("reconciling metadata for late discoveries", zap.Int("paths", len(late)))
		outcome, err := r.runner.Run(ctx, model.PhaseMetadata, o.urlsFor(r, late),
			o.execFor(model.PhaseMetadata, r.site), o.runnerCfg(cc.Limit(model.PhaseMetadata), r.limiter))
		o.record(r, outcome)
		if err != nil {
			return errs.Wrap(errs.Application, err, "pipeline: metadata reconciliation failed")
		}
		o.mergeMetadata(r, outcome)
		metaFromCache = false
	}

	if metaFromCache {
		return nil
	}
	return o.finishMetadata(ctx, r)
}

// runDeepen expands the path set by visiting everything known so far.
func (o *Orchestrator) runDeepen(ctx context.Context, r *run, limit int) error {
	r.mu.Lock()
	input := append([]string(nil), r.paths.Paths...)
	r.mu.Unlock()

	cfg := discoveryConfig{MaxDepth: r.site.MaxDepth, Excludes: r.site.Excludes.Patterns()}
	fp, err := cache.Fingerprint(model.PhaseDeepen, cfg, cache.InputHash(input))
	if err != nil {
		return err
	}

	if skip, ref := o.cache.ShouldSkip(model.PhaseDeepen, fp); skip {
		var ps model.PathSet
		if err := o.store.ReadJSON(ref, &ps); err == nil {
			r.mu.Lock()
			r.paths = ps
			r.mu.Unlock()
			o.record(r, model.PhaseOutcome{Phase: model.PhaseDeepen, SuccessCount: len(ps.Paths), FromCache: true})
			return nil
		}
	}

	o.setState(StateRunningPhase, zap.String("phase", string(model.PhaseDeepen)))
	outcome, err := r.runner.Run(ctx, model.PhaseDeepen, o.urlsFor(r, input),
		o.execFor(model.PhaseDeepen, r.site), o.runnerCfg(limit, r.limiter))
	o.record(r, outcome)
	if err != nil {
		return err
	}

	o.mergeDiscoveries(r, outcome)

	r.mu.Lock()
	full := r.paths
	r.mu.Unlock()
	if err := o.store.WriteJSON(artifact.PathsFile, full); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	return o.cache.RecordCompletion(model.PhaseDeepen, fp, artifact.PathsFile)
}

// runMetadata collects page metadata for the given paths. It reports whether
// the whole phase came from cache; when it did, r.metadata is already
// persisted and finishMetadata must not run.
func (o *Orchestrator) runMetadata(ctx context.Context, r *run, paths []string, limit int) (bool, error) {
	fp, err := cache.Fingerprint(model.PhaseMetadata, struct{}{}, cache.InputHash(paths))
	if err != nil {
		return false, err
	}

	// In optimized mode this lookup uses the pre-deepen path set, so it
	// only hits when discovery itself was served from cache.
	if skip, ref := o.cache.ShouldSkip(model.PhaseMetadata, fp); skip {
		var md []model.PageMetadata
		if err := o.store.ReadJSON(ref, &md); err == nil {
			r.mu.Lock()
			r.metadata = md
			r.mu.Unlock()
			o.record(r, model.PhaseOutcome{Phase: model.PhaseMetadata, SuccessCount: len(md), FromCache: true})
			return true, nil
		}
	}

	o.setState(StateRunningPhase, zap.String("phase", string(model.PhaseMetadata)))
	outcome, err := r.runner.Run(ctx, model.PhaseMetadata, o.urlsFor(r, paths),
		o.execFor(model.PhaseMetadata, r.site), o.runnerCfg(limit, r.limiter))
	o.record(r, outcome)
	if err != nil {
		return false, err
	}
	o.mergeMetadata(r, outcome)
	return false, nil
}

// finishMetadata persists the merged metadata and caches it against the
// final path set.
func (o *Orchestrator) finishMetadata(ctx context.Context, r *run) error {
	r.mu.Lock()
	md := append([]model.PageMetadata(nil), r.metadata...)
	full := append([]string(nil), r.paths.Paths...)
	r.mu.Unlock()

	if err := o.store.WriteJSON(artifact.MetadataFile, md); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	fp, err := cache.Fingerprint(model.PhaseMetadata, struct{}{}, cache.InputHash(full))
	if err != nil {
		return err
	}
	return o.cache.RecordCompletion(model.PhaseMetadata, fp, artifact.MetadataFile)
}

// extractEntry is one row of the extract manifest.
type extractEntry struct {
	Path string `json:"path"`
	File string `json:"file"`
}

// runExtract pulls design data for every known path. Runs strictly after
// metadata has been persisted.
func (o *Orchestrator) runExtract(ctx context.Context, r *run, cc model.ConcurrencyConfig, optimized bool) error {
	full := append([]string(nil), r.paths.Paths...)

	fp, err := cache.Fingerprint(model.PhaseExtract, struct{}{}, cache.InputHash(full))
	if err != nil {
		return err
	}
	if skip, ref := o.cache.ShouldSkip(model.PhaseExtract, fp); skip {
		var manifest []extractEntry
		if err := o.store.ReadJSON(ref, &manifest); err == nil {
			o.record(r, model.PhaseOutcome{Phase: model.PhaseExtract, SuccessCount: len(manifest), FromCache: true})
			return nil
		}
	}

	o.setState(StateRunningPhase, zap.String("phase", string(model.PhaseExtract)))
	outcome, err := r.runner.Run(ctx, model.PhaseExtract, o.urlsFor(r, full),
		o.execFor(model.PhaseExtract, r.site), o.runnerCfg(cc.Limit(model.PhaseExtract), r.limiter))
	o.record(r, outcome)
	if err != nil {
		if !errors.Is(err, phase.ErrPhaseFailed) || !optimized {
			return errs.Wrap(errs.Application, err, "pipeline: extract phase failed")
		}
		o.fellBack(r, model.PhaseExtract)
		fb := classify.SequentialFallback()
		outcome, err = r.runner.Run(ctx, model.PhaseExtract, o.urlsFor(r, full),
			o.execFor(model.PhaseExtract, r.site), o.runnerCfg(fb.Limit(model.PhaseExtract), r.limiter))
		o.record(r, outcome)
		if err != nil {
			return errs.Wrap(errs.Application, err, "pipeline: extract phase failed after sequential retry")
		}
	}

	manifest := make([]extractEntry, 0, len(outcome.Results))
	for _, res := range outcome.Results {
		data, ok := res.Data.(model.DesignData)
		if !ok {
			continue
		}
		p := r.site.PathOf(res.URL)
		name := artifact.ExtractDir + "/" + phase.Slug(p) + ".json"
		if err := o.store.WriteJSON(name, data); err != nil {
			return err
		}
		manifest = append(manifest, extractEntry{Path: p, File: name})
	}
	if err := o.store.WriteJSON(artifact.ExtractManifest, manifest); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	return o.cache.RecordCompletion(model.PhaseExtract, fp, artifact.ExtractManifest)
}

// finalize writes the performance report and closes out the run report. It
// returns nil when no phase produced any output at all.
func (o *Orchestrator) finalize(r *run, start time.Time, terminal State) *model.PipelineReport {
	o.setState(terminal)

	perf, perfErr := o.monitor.Write(o.store)
	if perfErr != nil {
		zap.L().Warn("performance report not written", zap.Error(perfErr))
	}

	// A run that needed the sequential fallback is degraded even when the
	// retried phase fully succeeded.
	r.report.Degraded = perf.Degraded || r.report.FellBack
	r.report.SuccessRate = perf.OverallSuccessRate
	r.report.FinishedAt = time.Now().UTC()
	r.report.TotalDurationMs = time.Since(start).Milliseconds()

	zap.L().Info("run finished",
		zap.String("run_id", r.report.RunID),
		zap.String("state", string(terminal)),
		zap.Float64("success_rate", r.report.SuccessRate),
		zap.Bool("degraded", r.report.Degraded),
		zap.Bool("fell_back", r.report.FellBack),
	)

	if len(r.report.Outcomes) == 0 {
		return nil
	}
	return r.report
}

// record attaches an outcome to the report and the monitor. Safe under
// parallel phases.
func (o *Orchestrator) record(r *run, outcome model.PhaseOutcome) {
	r.mu.Lock()
	r.report.Outcomes = append(r.report.Outcomes, outcome)
	r.mu.Unlock()
	o.monitor.RecordPhase(outcome)
}

func (o *Orchestrator) fellBack(r *run, p model.Phase) {
	o.setState(StateFallbackToSequential, zap.String("phase", string(p)))
	// The retry must be able to launch again even if repeated launch
	// failures opened the breaker during the failed dispatch.
	r.pool.ResetLaunchBreaker()
	r.mu.Lock()
	r.report.FellBack = true
	r.mu.Unlock()
	zap.L().Warn("phase failed, retrying sequentially", zap.String("phase", string(p)))
}

// mergeDiscoveries folds a discovery outcome's links into the path set.
func (o *Orchestrator) mergeDiscoveries(r *run, outcome model.PhaseOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range outcome.Results {
		disc, ok := res.Data.(phase.DiscoveryResult)
		if !ok {
			continue
		}
		r.paths.Add(disc.Path)
		r.paths.Add(disc.Links...)
	}
}

// mergeMetadata folds a metadata outcome's results into the run, dropping
// URLs already collected. A fallback retry re-runs every path, so a partially
// successful first dispatch would otherwise leave duplicates.
func (o *Orchestrator) mergeMetadata(r *run, outcome model.PhaseOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(r.metadata))
	for _, md := range r.metadata {
		seen[md.URL] = struct{}{}
	}
	for _, res := range outcome.Results {
		md, ok := res.Data.(model.PageMetadata)
		if !ok {
			continue
		}
		if _, dup := seen[md.URL]; dup {
			continue
		}
		seen[md.URL] = struct{}{}
		r.metadata = append(r.metadata, md)
	}
}

// urlsFor resolves site-relative paths to absolute task URLs.
func (o *Orchestrator) urlsFor(r *run, paths []string) []string {
	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		urls = append(urls, r.site.URLFor(p))
	}
	return urls
}

func (o *Orchestrator) seedPaths() []string {
	seeds := []string{"/"}
	for _, p := range o.opts.SeedPaths {
		n := phase.NormalizePath(p)
		if n != "/" {
			seeds = append(seeds, n)
		}
	}
	return seeds
}

func (o *Orchestrator) runnerCfg(limit int, limiter *rate.Limiter) phase.RunnerConfig {
	return phase.RunnerConfig{
		Limit:           limit,
		TaskTimeout:     o.opts.TaskTimeout,
		HardFailureRate: o.opts.HardFailureRate,
		Retry:           resilience.RetryPolicy{MaxRetries: o.opts.MaxRetries},
		Limiter:         limiter,
	}
}

// peakConcurrency is the worst case the pool must cover: the largest single
// phase limit, or the deepen+metadata sum when parallel dispatch is
// possible. The pool launches lazily, so overshooting costs nothing when the
// site classifies small.
func (o *Orchestrator) peakConcurrency() int {
	limit := func(p model.Phase, def int) int {
		if n, ok := o.opts.ConcurrencyOverrides[p]; ok && n > 0 {
			if n > classify.ConcurrencyCeiling {
				return classify.ConcurrencyCeiling
			}
			return n
		}
		return def
	}

	deepen := limit(model.PhaseDeepen, 12)
	meta := limit(model.PhaseMetadata, 8)
	extract := limit(model.PhaseExtract, 6)

	peak := max(deepen, meta, extract)
	if !o.opts.ForceSequential && deepen+meta > peak {
		peak = deepen + meta
	}
	if peak > classify.ConcurrencyCeiling {
		peak = classify.ConcurrencyCeiling
	}
	return peak
}

// difference returns the members of full absent from known.
func difference(full, known []string) []string {
	seen := make(map[string]struct{}, len(known))
	for _, p := range known {
		seen[p] = struct{}{}
	}
	var out []string
	for _, p := range full {
		if _, ok := seen[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

func abortErr(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return errs.Wrap(errs.Application, ctx.Err(), "pipeline: run aborted")
}
