// Package phase executes one phase's task list under a concurrency limit,
// aggregating partial successes and failures.
package phase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/stylescan/stylescan/internal/browser"
	"github.com/stylescan/stylescan/internal/errs"
	"github.com/stylescan/stylescan/internal/model"
	"github.com/stylescan/stylescan/internal/resilience"
)

// ErrPhaseFailed marks a phase-level (catastrophic) failure: the pool never
// launched a browser, or the realized failure rate crossed the hard
// threshold. The orchestrator catches it and degrades to sequential mode.
var ErrPhaseFailed = eris.New("phase failed")

// Executor runs one task against an exclusively-owned page. Implemented per
// phase; the runner only inspects the result/error envelope.
type Executor interface {
	Execute(ctx context.Context, task model.Task, page browser.Page) (*model.TaskResult, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task model.Task, page browser.Page) (*model.TaskResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, task model.Task, page browser.Page) (*model.TaskResult, error) {
	return f(ctx, task, page)
}

// RunnerConfig bounds one phase run.
type RunnerConfig struct {
	// Limit is the number of tasks in flight at once. Default 1.
	Limit int
	// TaskTimeout bounds one attempt; expiry fails the attempt with a
	// transient network error subject to the retry policy.
	TaskTimeout time.Duration
	// HardFailureRate escalates the phase when the realized failure rate
	// reaches it. Default 1.0 (every task failed).
	HardFailureRate float64
	// Retry governs per-task retries.
	Retry resilience.RetryPolicy
	// Limiter, when set, paces page navigations across the whole run.
	Limiter *rate.Limiter
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Limit <= 0 {
		c.Limit = 1
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 30 * time.Second
	}
	if c.HardFailureRate <= 0 || c.HardFailureRate > 1 {
		c.HardFailureRate = 1.0
	}
	return c
}

// Runner executes phases against a shared browser pool.
type Runner struct {
	pool *browser.Pool
}

// NewRunner creates a runner over the pool.
func NewRunner(pool *browser.Pool) *Runner {
	return &Runner{pool: pool}
}

// Run executes one task per URL under cfg.Limit concurrent workers. A single
// task's terminal failure never aborts the phase; transient failures retry
// locally with backoff. A task that cannot obtain a browser counts as a
// failure like any other, so every dispatched task lands in exactly one of
// Results or Failures. The cooperative abort signal (ctx) is checked between
// dispatches: in-flight tasks finish before the phase reports partial
// results. The returned outcome is always populated; a non-nil error wraps
// ErrPhaseFailed and means the phase failed catastrophically (no browser
// ever launched, or the failure rate crossed the hard threshold).
func (r *Runner) Run(ctx context.Context, p model.Phase, urls []string, exec Executor, cfg RunnerConfig) (model.PhaseOutcome, error) {
	cfg = cfg.withDefaults()
	start := time.Now()

	log := zap.L().With(zap.String("phase", string(p)))
	log.Info("phase starting", zap.Int("tasks", len(urls)), zap.Int("limit", cfg.Limit))

	var (
		mu        sync.Mutex
		results   []model.TaskResult
		failures  []model.TaskFailure
		launchErr error
	)

	g := &errgroup.Group{}
	g.SetLimit(cfg.Limit)

dispatch:
	for _, u := range urls {
		// Cooperative abort: stop dispatching, let in-flight tasks finish.
		select {
		case <-ctx.Done():
			log.Warn("phase aborted, finishing in-flight tasks", zap.Error(ctx.Err()))
			break dispatch
		default:
		}

		task := model.Task{
			ID:     uuid.New().String(),
			Phase:  p,
			URL:    u,
			Status: model.TaskPending,
		}

		g.Go(func() error {
			res, failure, lerr := r.runTask(ctx, task, exec, cfg)
			mu.Lock()
			defer mu.Unlock()
			if lerr != nil && launchErr == nil {
				launchErr = lerr
			}
			switch {
			case failure != nil:
				failures = append(failures, *failure)
			case res != nil:
				results = append(results, *res)
			}
			return nil
		})
	}

	_ = g.Wait()

	outcome := model.PhaseOutcome{
		Phase:        p,
		SuccessCount: len(results),
		FailureCount: len(failures),
		DurationMs:   time.Since(start).Milliseconds(),
		Results:      results,
		Failures:     failures,
	}

	if launchErr != nil && r.pool.Browsers() == 0 && outcome.SuccessCount == 0 {
		return outcome, eris.Wrapf(ErrPhaseFailed, "phase %s: no browser could be launched: %v", p, launchErr)
	}
	if outcome.TaskCount() > 0 && outcome.FailureRate() >= cfg.HardFailureRate {
		return outcome, eris.Wrapf(ErrPhaseFailed, "phase %s: failure rate %.2f reached hard threshold %.2f",
			p, outcome.FailureRate(), cfg.HardFailureRate)
	}

	log.Info("phase complete",
		zap.Int("success", outcome.SuccessCount),
		zap.Int("failure", outcome.FailureCount),
		zap.Int64("duration_ms", outcome.DurationMs),
	)
	return outcome, nil
}

// runTask drives one task through acquisition, execution, and local retries.
// Returns a result or a terminal failure; the third value surfaces a launch
// failure seen along the way so the phase can escalate when no browser ever
// came up. A launch-failed task is still returned as a failure.
func (r *Runner) runTask(ctx context.Context, task model.Task, exec Executor, cfg RunnerConfig) (*model.TaskResult, *model.TaskFailure, error) {
	var lastErr, launchErr error

	for attempt := 0; ; attempt++ {
		task.Attempt = attempt
		task.Status = model.TaskRunning

		res, err := r.attempt(ctx, task, exec, cfg)
		if err == nil {
			task.Status = model.TaskSucceeded
			return res, nil, nil
		}
		lastErr = err

		if browser.IsLaunchFailure(err) {
			launchErr = err
		}
		if ctx.Err() != nil {
			break
		}
		if !cfg.Retry.ShouldRetry(attempt, err) {
			break
		}

		delay := cfg.Retry.Backoff(attempt)
		resilience.LogRetry(string(task.Phase), task.URL, attempt+1, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
			continue
		}
		break
	}

	task.Status = model.TaskFailed
	return nil, &model.TaskFailure{
		TaskID:   task.ID,
		URL:      task.URL,
		Attempts: task.Attempt + 1,
		Error:    lastErr.Error(),
	}, launchErr
}

// attempt makes a single execution attempt with a scoped page handle and the
// per-task timeout. A deadline expiry surfaces as a transient network error.
func (r *Runner) attempt(ctx context.Context, task model.Task, exec Executor, cfg RunnerConfig) (*model.TaskResult, error) {
	if cfg.Limiter != nil {
		if err := cfg.Limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "phase: rate limit wait")
		}
	}

	// The abort signal is only honored between dispatches: an in-flight
	// attempt runs to completion under its own timeout.
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.TaskTimeout)
	defer cancel()

	var result *model.TaskResult
	err := r.pool.WithPage(attemptCtx, func(page browser.Page) error {
		res, execErr := exec.Execute(attemptCtx, task, page)
		if execErr != nil {
			return execErr
		}
		result = res
		return nil
	})
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, errs.Wrap(errs.Network, err, "phase: task timed out")
		}
		return nil, err
	}
	if result == nil {
		result = &model.TaskResult{TaskID: task.ID, URL: task.URL}
	}
	return result, nil
}
