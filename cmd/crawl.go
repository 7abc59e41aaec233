package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stylescan/stylescan/internal/browser"
	"github.com/stylescan/stylescan/internal/errs"
	"github.com/stylescan/stylescan/internal/model"
	"github.com/stylescan/stylescan/internal/pipeline"
	"github.com/stylescan/stylescan/internal/store"
)

type crawlFlags struct {
	url             string
	out             string
	depth           int
	timeoutSecs     int
	retries         int
	force           bool
	forceSequential bool
	concurrency     map[string]int
	seeds           []string
	excludes        []string
}

// newCrawlCommand builds one pipeline command. The per-phase commands stop
// after their phase; earlier phases run normally (or come from cache).
func newCrawlCommand(use, short string, stopAfter model.Phase) *cobra.Command {
	f := &crawlFlags{}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, f, stopAfter)
		},
	}

	cmd.Flags().StringVar(&f.url, "url", "", "target site URL (required)")
	cmd.Flags().StringVar(&f.out, "out", "", "output directory (default from config)")
	cmd.Flags().IntVar(&f.depth, "depth", 0, "max discovery depth in path segments (default from config)")
	cmd.Flags().IntVar(&f.timeoutSecs, "timeout", 0, "per-task timeout in seconds (default from config)")
	cmd.Flags().IntVar(&f.retries, "retries", 0, "retries per task after the first attempt; 0 disables (default from config)")
	cmd.Flags().BoolVar(&f.force, "force", false, "ignore cached phase results and re-run everything")
	cmd.Flags().BoolVar(&f.forceSequential, "force-sequential", false, "never overlap phases")
	cmd.Flags().StringToIntVar(&f.concurrency, "concurrency", nil, "per-phase limit overrides, e.g. deepen=4,extract=2")
	cmd.Flags().StringSliceVar(&f.seeds, "seed", nil, "extra seed paths for the initial phase")
	cmd.Flags().StringSliceVar(&f.excludes, "exclude", nil, "glob path patterns to skip (default from config)")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func runCrawl(cmd *cobra.Command, f *crawlFlags, stopAfter model.Phase) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := crawlOptions(cmd, f, stopAfter)
	if err != nil {
		return err
	}

	launcher := browser.NewRodLauncher()
	launcher.Headless = cfg.Browser.Headless
	launcher.BinPath = cfg.Browser.BinPath

	orch, err := pipeline.New(opts, launcher)
	if err != nil {
		return err
	}

	report, runErr := orch.Run(ctx)

	if report != nil {
		saveRunHistory(cmd, report, runErr)
		if err := json.NewEncoder(os.Stdout).Encode(summaryOf(report)); err != nil {
			zap.L().Warn("summary not written", zap.Error(err))
		}
	}
	return runErr
}

// crawlOptions merges config defaults with command flags. A set flag always
// wins over its config counterpart.
func crawlOptions(cmd *cobra.Command, f *crawlFlags, stopAfter model.Phase) (pipeline.Options, error) {
	opts := pipeline.Options{
		TargetURL:            f.url,
		OutputDir:            cfg.Pipeline.OutputDir,
		SeedPaths:            cfg.Crawl.SeedPaths,
		ExcludePatterns:      cfg.Crawl.ExcludePaths,
		MaxDepth:             cfg.Crawl.MaxDepth,
		StopAfter:            stopAfter,
		ForceSequential:      f.forceSequential,
		Force:                f.force,
		ConcurrencyOverrides: cfg.ConcurrencyOverrides(),
		TaskTimeout:          time.Duration(cfg.Crawl.TimeoutSecs) * time.Second,
		MaxRetries:           cfg.Crawl.Retries,
		NavRatePerSec:        cfg.Crawl.NavRatePerSec,
		HardFailureRate:      cfg.Pipeline.HardFailureRate,
		MinSuccessRate:       cfg.Pipeline.MinSuccessRate,
		UserAgent:            cfg.Crawl.UserAgent,
	}

	flags := cmd.Flags()
	if f.out != "" {
		opts.OutputDir = f.out
	}
	if flags.Changed("depth") {
		opts.MaxDepth = f.depth
	}
	if flags.Changed("timeout") {
		opts.TaskTimeout = time.Duration(f.timeoutSecs) * time.Second
	}
	if flags.Changed("retries") {
		opts.MaxRetries = f.retries
	}
	if len(f.seeds) > 0 {
		opts.SeedPaths = f.seeds
	}
	if flags.Changed("exclude") {
		opts.ExcludePatterns = f.excludes
	}

	if len(f.concurrency) > 0 {
		overrides, err := parseConcurrency(f.concurrency)
		if err != nil {
			return pipeline.Options{}, err
		}
		if opts.ConcurrencyOverrides == nil {
			opts.ConcurrencyOverrides = map[model.Phase]int{}
		}
		for p, n := range overrides {
			opts.ConcurrencyOverrides[p] = n
		}
	}
	return opts, nil
}

func parseConcurrency(raw map[string]int) (map[model.Phase]int, error) {
	out := make(map[model.Phase]int, len(raw))
	for name, n := range raw {
		switch p := model.Phase(name); p {
		case model.PhaseInitial, model.PhaseDeepen, model.PhaseMetadata, model.PhaseExtract:
			out[p] = n
		default:
			return nil, errs.Newf(errs.Configuration, "unknown phase %q in --concurrency", name).
				WithHint("valid phases are initial, deepen, metadata, extract")
		}
	}
	return out, nil
}

// saveRunHistory is best effort: a run that produced artifacts should not
// fail because the history database is unavailable.
func saveRunHistory(cmd *cobra.Command, report *model.PipelineReport, runErr error) {
	st, err := initStore(cmd)
	if err != nil {
		zap.L().Warn("run history unavailable", zap.Error(err))
		return
	}
	defer st.Close()

	if _, err := st.SaveReport(cmd.Context(), report, store.StatusFor(report, runErr)); err != nil {
		zap.L().Warn("run history not saved", zap.Error(err))
	}
}

// runSummary is the one-line JSON printed after a run.
type runSummary struct {
	RunID       string        `json:"run_id"`
	TargetURL   string        `json:"target_url"`
	Mode        model.RunMode `json:"mode"`
	Phases      int           `json:"phases"`
	SuccessRate float64       `json:"success_rate"`
	Degraded    bool          `json:"degraded"`
	FellBack    bool          `json:"fell_back,omitempty"`
	DurationMs  int64         `json:"duration_ms"`
}

func summaryOf(report *model.PipelineReport) runSummary {
	return runSummary{
		RunID:       report.RunID,
		TargetURL:   report.TargetURL,
		Mode:        report.Mode,
		Phases:      len(report.Outcomes),
		SuccessRate: report.SuccessRate,
		Degraded:    report.Degraded,
		FellBack:    report.FellBack,
		DurationMs:  report.TotalDurationMs,
	}
}

func init() {
	rootCmd.AddCommand(
		newCrawlCommand("all", "Run the full crawl pipeline", ""),
		newCrawlCommand("initial", "Run only the initial discovery phase", model.PhaseInitial),
		newCrawlCommand("deepen", "Run through the deepen phase", model.PhaseDeepen),
		newCrawlCommand("metadata", "Run through the metadata phase", model.PhaseMetadata),
		newCrawlCommand("extract", "Run the full pipeline through extraction", model.PhaseExtract),
	)
}
