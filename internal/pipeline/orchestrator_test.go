package pipeline

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylescan/stylescan/internal/browser"
	"github.com/stylescan/stylescan/internal/errs"
	"github.com/stylescan/stylescan/internal/model"
	"github.com/stylescan/stylescan/internal/phase"
)

type nullPage struct{}

func (nullPage) Navigate(context.Context, string) error       { return nil }
func (nullPage) HTML(context.Context) (string, error)         { return "", nil }
func (nullPage) Eval(context.Context, string) (string, error) { return "{}", nil }
func (nullPage) Close() error                                 { return nil }

type nullBrowser struct{}

func (nullBrowser) NewPage(context.Context) (browser.Page, error) { return nullPage{}, nil }
func (nullBrowser) Close() error                                  { return nil }

type nullLauncher struct{ fail bool }

func (l nullLauncher) Launch(context.Context) (browser.Browser, error) {
	if l.fail {
		return nil, errors.New("chrome exited immediately")
	}
	return nullBrowser{}, nil
}

// scriptedExec counts executions and delegates to fn.
type scriptedExec struct {
	fn    func(task model.Task) (*model.TaskResult, error)
	calls atomic.Int32
}

func (e *scriptedExec) Execute(_ context.Context, task model.Task, _ browser.Page) (*model.TaskResult, error) {
	e.calls.Add(1)
	return e.fn(task)
}

func pathOf(raw string) string {
	u, _ := url.Parse(raw)
	return phase.NormalizePath(u.Path)
}

func discoveryExec(links map[string][]string) *scriptedExec {
	return &scriptedExec{fn: func(task model.Task) (*model.TaskResult, error) {
		p := pathOf(task.URL)
		return &model.TaskResult{TaskID: task.ID, URL: task.URL,
			Data: phase.DiscoveryResult{Path: p, Links: links[p]}}, nil
	}}
}

func metadataExec() *scriptedExec {
	return &scriptedExec{fn: func(task model.Task) (*model.TaskResult, error) {
		return &model.TaskResult{TaskID: task.ID, URL: task.URL,
			Data: model.PageMetadata{URL: task.URL, Title: "page"}}, nil
	}}
}

func extractExec() *scriptedExec {
	return &scriptedExec{fn: func(task model.Task) (*model.TaskResult, error) {
		return &model.TaskResult{TaskID: task.ID, URL: task.URL,
			Data: model.DesignData{URL: task.URL, Colors: []string{"rgb(0, 0, 0)"}}}, nil
	}}
}

func failingExec() *scriptedExec {
	return &scriptedExec{fn: func(model.Task) (*model.TaskResult, error) {
		return nil, errors.New("page exploded")
	}}
}

// execSet routes execFor to scripted executors, with optional per-phase
// overrides that apply once in order.
type execSet struct {
	mu        sync.Mutex
	initial   *scriptedExec
	deepen    *scriptedExec
	metadata  []*scriptedExec
	extract   []*scriptedExec
	metaCalls int
	extCalls  int
}

func (s *execSet) for_(p model.Phase, _ *phase.Site) phase.Executor {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p {
	case model.PhaseInitial:
		return s.initial
	case model.PhaseDeepen:
		return s.deepen
	case model.PhaseMetadata:
		e := s.metadata[min(s.metaCalls, len(s.metadata)-1)]
		s.metaCalls++
		return e
	default:
		e := s.extract[min(s.extCalls, len(s.extract)-1)]
		s.extCalls++
		return e
	}
}

func newTestOrchestrator(t *testing.T, opts Options, set *execSet, launcher browser.Launcher) *Orchestrator {
	t.Helper()
	if opts.TargetURL == "" {
		opts.TargetURL = "https://example.com"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	opts.NavRatePerSec = -1

	o, err := New(opts, launcher)
	require.NoError(t, err)
	o.execFor = set.for_
	o.fetchRobots = func(context.Context, *url.URL, string) *phase.Robots { return phase.AllowAll() }
	o.sitemapPaths = func(context.Context, *phase.Site, string) []string { return nil }
	return o
}

func smallSet() *execSet {
	return &execSet{
		initial:  discoveryExec(map[string][]string{"/": {"/about", "/contact"}}),
		deepen:   discoveryExec(nil),
		metadata: []*scriptedExec{metadataExec()},
		extract:  []*scriptedExec{extractExec()},
	}
}

func mediumLinks() map[string][]string {
	links := make([]string, 20)
	for i := range links {
		links[i] = "/p" + string(rune('a'+i))
	}
	return map[string][]string{"/": links}
}

func TestRunSequentialSmallSite(t *testing.T) {
	set := smallSet()
	o := newTestOrchestrator(t, Options{}, set, nullLauncher{})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, model.ModeSequential, report.Mode)
	require.NotNil(t, report.Profile)
	assert.Equal(t, model.SiteSmall, report.Profile.Category)
	assert.Equal(t, model.ConfidenceHigh, report.Profile.Confidence)
	assert.Len(t, report.Outcomes, 4)
	assert.Equal(t, 1.0, report.SuccessRate)
	assert.False(t, report.Degraded)
	assert.False(t, report.FellBack)
	assert.Equal(t, StateCompleted, o.State())

	st := o.Store()
	assert.True(t, st.Exists("paths.json"))
	assert.True(t, st.Exists("metadata.json"))
	assert.True(t, st.Exists("extract/manifest.json"))
	assert.True(t, st.Exists("extract/about.json"))
	assert.True(t, st.Exists("performance-report.json"))

	var ps model.PathSet
	require.NoError(t, st.ReadJSON("paths.json", &ps))
	assert.ElementsMatch(t, []string{"/", "/about", "/contact"}, ps.Paths)

	// Metadata and extract each visited every known path.
	assert.Equal(t, int32(3), set.metadata[0].calls.Load())
	assert.Equal(t, int32(3), set.extract[0].calls.Load())
}

func TestRunOptimizedReconcilesLateDiscoveries(t *testing.T) {
	links := mediumLinks()
	links["/pa"] = []string{"/late-page"}

	set := &execSet{
		initial:  discoveryExec(links),
		deepen:   discoveryExec(links),
		metadata: []*scriptedExec{metadataExec()},
		extract:  []*scriptedExec{extractExec()},
	}
	o := newTestOrchestrator(t, Options{}, set, nullLauncher{})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, model.ModeOptimized, report.Mode)
	assert.Equal(t, model.SiteMedium, report.Profile.Category)

	var md []model.PageMetadata
	require.NoError(t, o.Store().ReadJSON("metadata.json", &md))
	var urls []string
	for _, m := range md {
		urls = append(urls, m.URL)
	}
	assert.Contains(t, urls, "https://example.com/late-page")
	// 21 snapshot paths plus one reconciled.
	assert.Len(t, md, 22)
}

func TestSecondRunServedFromCache(t *testing.T) {
	dir := t.TempDir()

	first := smallSet()
	o1 := newTestOrchestrator(t, Options{OutputDir: dir}, first, nullLauncher{})
	_, err := o1.Run(context.Background())
	require.NoError(t, err)

	second := smallSet()
	o2 := newTestOrchestrator(t, Options{OutputDir: dir}, second, nullLauncher{})
	report, err := o2.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	for _, outcome := range report.Outcomes {
		assert.True(t, outcome.FromCache, "phase %s should be cached", outcome.Phase)
	}
	assert.Zero(t, second.initial.calls.Load())
	assert.Zero(t, second.deepen.calls.Load())
	assert.Zero(t, second.metadata[0].calls.Load())
	assert.Zero(t, second.extract[0].calls.Load())
}

func TestForceBypassesCache(t *testing.T) {
	dir := t.TempDir()

	first := smallSet()
	o1 := newTestOrchestrator(t, Options{OutputDir: dir}, first, nullLauncher{})
	_, err := o1.Run(context.Background())
	require.NoError(t, err)

	second := smallSet()
	o2 := newTestOrchestrator(t, Options{OutputDir: dir, Force: true}, second, nullLauncher{})
	report, err := o2.Run(context.Background())
	require.NoError(t, err)

	for _, outcome := range report.Outcomes {
		assert.False(t, outcome.FromCache)
	}
	assert.Equal(t, int32(1), second.initial.calls.Load())
}

func TestForceSequentialDisablesParallel(t *testing.T) {
	set := &execSet{
		initial:  discoveryExec(mediumLinks()),
		deepen:   discoveryExec(nil),
		metadata: []*scriptedExec{metadataExec()},
		extract:  []*scriptedExec{extractExec()},
	}
	o := newTestOrchestrator(t, Options{ForceSequential: true}, set, nullLauncher{})

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.SiteMedium, report.Profile.Category)
	assert.Equal(t, model.ModeSequential, report.Mode)
}

func TestMetadataFallsBackToSequential(t *testing.T) {
	set := &execSet{
		initial: discoveryExec(mediumLinks()),
		deepen:  discoveryExec(nil),
		// First metadata dispatch fails every task; the sequential retry
		// succeeds.
		metadata: []*scriptedExec{failingExec(), metadataExec()},
		extract:  []*scriptedExec{extractExec()},
	}
	o := newTestOrchestrator(t, Options{MaxRetries: -1}, set, nullLauncher{})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, model.ModeOptimized, report.Mode)
	assert.True(t, report.FellBack)
	assert.True(t, report.Degraded, "a run that fell back is degraded even when the retry succeeded")
	assert.True(t, o.Store().Exists("metadata.json"))

	var md []model.PageMetadata
	require.NoError(t, o.Store().ReadJSON("metadata.json", &md))
	assert.Len(t, md, 21)
}

func TestMetadataRetryDoesNotDuplicateEntries(t *testing.T) {
	o := &Orchestrator{}
	r := &run{}

	page := func(path string) model.TaskResult {
		u := "https://example.com" + path
		return model.TaskResult{URL: u, Data: model.PageMetadata{URL: u, Title: path}}
	}

	// A partially successful dispatch, then a full retry over the same paths.
	o.mergeMetadata(r, model.PhaseOutcome{Results: []model.TaskResult{page("/a"), page("/b")}})
	o.mergeMetadata(r, model.PhaseOutcome{Results: []model.TaskResult{page("/a"), page("/b"), page("/c")}})

	require.Len(t, r.metadata, 3)
	seen := make(map[string]bool)
	for _, md := range r.metadata {
		assert.False(t, seen[md.URL], "duplicate metadata entry for %s", md.URL)
		seen[md.URL] = true
	}
}

func TestRepeatedPhaseFailureAborts(t *testing.T) {
	set := &execSet{
		initial:  discoveryExec(mediumLinks()),
		deepen:   discoveryExec(nil),
		metadata: []*scriptedExec{failingExec(), failingExec()},
		extract:  []*scriptedExec{extractExec()},
	}
	o := newTestOrchestrator(t, Options{MaxRetries: -1}, set, nullLauncher{})

	report, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.Application, errs.CategoryOf(err))
	assert.Equal(t, StateAborted, o.State())

	// Partial results still come back.
	require.NotNil(t, report)
	assert.True(t, report.FellBack)
	assert.NotNil(t, report.Outcome(model.PhaseInitial))
}

func TestAbortBetweenPhases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	set := smallSet()
	set.deepen = &scriptedExec{fn: func(task model.Task) (*model.TaskResult, error) {
		cancel()
		return &model.TaskResult{TaskID: task.ID, URL: task.URL,
			Data: phase.DiscoveryResult{Path: pathOf(task.URL)}}, nil
	}}
	o := newTestOrchestrator(t, Options{}, set, nullLauncher{})

	report, err := o.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, o.State())

	require.NotNil(t, report)
	assert.NotNil(t, report.Outcome(model.PhaseInitial))
	assert.Nil(t, report.Outcome(model.PhaseExtract))
}

func TestInitialLaunchFailureAborts(t *testing.T) {
	set := smallSet()
	o := newTestOrchestrator(t, Options{}, set, nullLauncher{fail: true})

	report, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.Application, errs.CategoryOf(err))
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Outcome(model.PhaseInitial).SuccessCount)
}

func TestStopAfterDeepen(t *testing.T) {
	set := smallSet()
	o := newTestOrchestrator(t, Options{StopAfter: model.PhaseDeepen}, set, nullLauncher{})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Len(t, report.Outcomes, 2)
	assert.NotNil(t, report.Outcome(model.PhaseDeepen))
	assert.Nil(t, report.Outcome(model.PhaseMetadata))
	assert.True(t, o.Store().Exists("paths.json"))
	assert.False(t, o.Store().Exists("metadata.json"))
	assert.Equal(t, StateCompleted, o.State())
}

func TestBadTargetURLRejected(t *testing.T) {
	o, err := New(Options{TargetURL: "not a url", OutputDir: t.TempDir()}, nullLauncher{})
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	assert.Nil(t, report)
	require.Error(t, err)
	assert.Equal(t, errs.Validation, errs.CategoryOf(err))
}

func TestInvalidOverrideRejectedUpFront(t *testing.T) {
	_, err := New(Options{
		TargetURL:            "https://example.com",
		OutputDir:            t.TempDir(),
		ConcurrencyOverrides: map[model.Phase]int{model.PhaseDeepen: -2},
	}, nullLauncher{})
	require.Error(t, err)
	assert.Equal(t, errs.Configuration, errs.CategoryOf(err))
}
