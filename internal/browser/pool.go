package browser

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stylescan/stylescan/internal/resilience"
)

// ErrPoolDrained is returned by Acquire after Drain has been called.
var ErrPoolDrained = eris.New("browser pool is drained")

// LaunchError marks a failure to launch a browser instance. It is a
// phase-level error, not a task-level one: the phase runner escalates it
// instead of recording it against a single task.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string { return e.Err.Error() }
func (e *LaunchError) Unwrap() error { return e.Err }

// IsLaunchFailure reports whether err stems from a browser launch failure.
func IsLaunchFailure(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}

// PoolConfig bounds the pool: at most MaxBrowsers instances, each serving at
// most PagesPerBrowser concurrent pages.
type PoolConfig struct {
	MaxBrowsers     int
	PagesPerBrowser int
}

// Sizing derives pool dimensions from the peak number of concurrent tasks a
// run can have in flight. At most four browser instances; pages are spread so
// no single browser carries the whole phase.
func Sizing(peakConcurrent int) PoolConfig {
	if peakConcurrent < 1 {
		peakConcurrent = 1
	}
	browsers := (peakConcurrent + 2) / 3
	if browsers > 4 {
		browsers = 4
	}
	pages := (peakConcurrent + browsers - 1) / browsers
	return PoolConfig{MaxBrowsers: browsers, PagesPerBrowser: pages}
}

func (c PoolConfig) capacity() int {
	return c.MaxBrowsers * c.PagesPerBrowser
}

// Handle is a pooled page, exclusively owned by one task until released.
type Handle struct {
	pool *Pool
	slot *slot
	page Page
}

// Page returns the underlying page.
func (h *Handle) Page() Page { return h.page }

type slot struct {
	browser Browser
	inUse   int
}

// Pool owns the browser instances for one pipeline run. Acquire suspends on
// a FIFO queue when every browser is at its page ceiling; Drain is idempotent
// and must run on every exit path.
type Pool struct {
	cfg      PoolConfig
	launcher Launcher
	breaker  *resilience.LaunchBreaker

	tokens  chan struct{}
	drainCh chan struct{}

	mu      sync.Mutex
	slots   []*slot
	open    int
	drained bool

	launchMu  sync.Mutex
	drainOnce sync.Once
}

// NewPool creates a pool. Browsers are launched lazily on demand.
func NewPool(cfg PoolConfig, l Launcher) *Pool {
	if cfg.MaxBrowsers <= 0 {
		cfg.MaxBrowsers = 1
	}
	if cfg.PagesPerBrowser <= 0 {
		cfg.PagesPerBrowser = 2
	}
	tokens := make(chan struct{}, cfg.capacity())
	for i := 0; i < cfg.capacity(); i++ {
		tokens <- struct{}{}
	}
	return &Pool{
		cfg:      cfg,
		launcher: l,
		breaker:  resilience.NewLaunchBreaker(3, 0),
		tokens:   tokens,
		drainCh:  make(chan struct{}),
	}
}

// Acquire hands out a page handle, suspending while the pool is saturated.
// The returned handle must be released exactly once; prefer WithPage.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	select {
	case <-p.drainCh:
		return nil, ErrPoolDrained
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "browser: acquire cancelled")
	case <-p.tokens:
	}

	h, err := p.allocate(ctx)
	if err != nil {
		p.returnToken()
		return nil, err
	}
	return h, nil
}

// allocate finds (or launches) the least-loaded browser and opens a page on
// it. The capacity token held by the caller guarantees a page slot exists
// once all browsers are up.
func (p *Pool) allocate(ctx context.Context) (*Handle, error) {
	for {
		p.mu.Lock()
		if p.drained {
			p.mu.Unlock()
			return nil, ErrPoolDrained
		}
		var best *slot
		for _, s := range p.slots {
			if s.inUse >= p.cfg.PagesPerBrowser {
				continue
			}
			if best == nil || s.inUse < best.inUse {
				best = s
			}
		}
		if best != nil {
			best.inUse++
			p.open++
			p.mu.Unlock()

			page, err := best.browser.NewPage(ctx)
			if err != nil {
				p.mu.Lock()
				best.inUse--
				p.open--
				p.mu.Unlock()
				return nil, eris.Wrap(err, "browser: new page")
			}
			return &Handle{pool: p, slot: best, page: page}, nil
		}
		needLaunch := len(p.slots) < p.cfg.MaxBrowsers
		p.mu.Unlock()

		if !needLaunch {
			// A launch by another caller is in flight; serialize behind it.
			p.launchMu.Lock()
			p.launchMu.Unlock() //nolint:staticcheck
			continue
		}
		if err := p.launch(ctx); err != nil {
			return nil, err
		}
	}
}

// launch starts one browser, serialized so concurrent acquirers do not race
// past MaxBrowsers.
func (p *Pool) launch(ctx context.Context) error {
	p.launchMu.Lock()
	defer p.launchMu.Unlock()

	p.mu.Lock()
	full := len(p.slots) >= p.cfg.MaxBrowsers
	drained := p.drained
	p.mu.Unlock()
	if drained {
		return ErrPoolDrained
	}
	if full {
		return nil
	}

	if err := p.breaker.Allow(); err != nil {
		return &LaunchError{Err: err}
	}

	b, err := p.launcher.Launch(ctx)
	p.breaker.Record(err)
	if err != nil {
		return &LaunchError{Err: eris.Wrap(err, "browser: launch")}
	}

	p.mu.Lock()
	if p.drained {
		p.mu.Unlock()
		_ = b.Close()
		return ErrPoolDrained
	}
	p.slots = append(p.slots, &slot{browser: b})
	count := len(p.slots)
	p.mu.Unlock()

	zap.L().Debug("browser launched",
		zap.Int("instances", count),
		zap.Int("pages_per_browser", p.cfg.PagesPerBrowser),
	)
	return nil
}

// Release closes the handle's page and returns the capacity to the pool.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}
	if err := h.page.Close(); err != nil {
		zap.L().Debug("browser: page close failed", zap.Error(err))
	}

	p.mu.Lock()
	h.slot.inUse--
	p.open--
	drained := p.drained
	p.mu.Unlock()

	if !drained {
		p.returnToken()
	}
}

// WithPage runs fn with a scoped page handle. The handle is released on every
// exit path, including panic and error returns.
func (p *Pool) WithPage(ctx context.Context, fn func(page Page) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)
	return fn(h.Page())
}

// Drain closes every browser. Idempotent; pending and future Acquires fail
// with ErrPoolDrained. In-flight handles stay valid until released.
func (p *Pool) Drain() {
	p.drainOnce.Do(func() {
		close(p.drainCh)

		p.mu.Lock()
		p.drained = true
		slots := p.slots
		p.slots = nil
		p.mu.Unlock()

		for _, s := range slots {
			if err := s.browser.Close(); err != nil {
				zap.L().Debug("browser: close failed", zap.Error(err))
			}
		}
		zap.L().Debug("browser pool drained", zap.Int("instances", len(slots)))
	})
}

// ResetLaunchBreaker closes the launch breaker so the next acquire may try a
// fresh launch without waiting out the reset timeout.
func (p *Pool) ResetLaunchBreaker() {
	p.breaker.Reset()
}

// OpenHandles reports how many page handles are currently held.
func (p *Pool) OpenHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Browsers reports how many browser instances are running.
func (p *Pool) Browsers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

func (p *Pool) returnToken() {
	select {
	case p.tokens <- struct{}{}:
	default:
	}
}
