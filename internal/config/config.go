// Package config loads application configuration from config.yaml and
// STYLESCAN_* environment variables, and initializes the global logger.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stylescan/stylescan/internal/errs"
	"github.com/stylescan/stylescan/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Crawl    CrawlConfig    `yaml:"crawl" mapstructure:"crawl"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Browser  BrowserConfig  `yaml:"browser" mapstructure:"browser"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CrawlConfig bounds site discovery.
type CrawlConfig struct {
	MaxDepth      int      `yaml:"max_depth" mapstructure:"max_depth"`
	SeedPaths     []string `yaml:"seed_paths" mapstructure:"seed_paths"`
	ExcludePaths  []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
	UserAgent     string   `yaml:"user_agent" mapstructure:"user_agent"`
	NavRatePerSec float64  `yaml:"nav_rate_per_sec" mapstructure:"nav_rate_per_sec"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries       int      `yaml:"retries" mapstructure:"retries"`
}

// PipelineConfig tunes orchestration behavior.
type PipelineConfig struct {
	OutputDir       string         `yaml:"output_dir" mapstructure:"output_dir"`
	Concurrency     map[string]int `yaml:"concurrency" mapstructure:"concurrency"`
	HardFailureRate float64        `yaml:"hard_failure_rate" mapstructure:"hard_failure_rate"`
	MinSuccessRate  float64        `yaml:"min_success_rate" mapstructure:"min_success_rate"`
}

// BrowserConfig configures the automation engine.
type BrowserConfig struct {
	Headless bool   `yaml:"headless" mapstructure:"headless"`
	BinPath  string `yaml:"bin_path" mapstructure:"bin_path"`
}

// StoreConfig configures run-history persistence.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and the environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STYLESCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("crawl.max_depth", 3)
	v.SetDefault("crawl.timeout_secs", 30)
	v.SetDefault("crawl.retries", 2)
	v.SetDefault("crawl.nav_rate_per_sec", 4)
	v.SetDefault("crawl.user_agent", "Mozilla/5.0 (compatible; StyleScan/1.0)")
	v.SetDefault("pipeline.output_dir", "./stylescan-out")
	v.SetDefault("pipeline.hard_failure_rate", 1.0)
	v.SetDefault("pipeline.min_success_rate", 0.95)
	v.SetDefault("browser.headless", true)
	v.SetDefault("store.path", "stylescan.db")
	v.SetDefault("server.port", 8080)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errs.Wrap(errs.Configuration, err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would misbehave at runtime. Errors
// surface before any phase runs.
func (c *Config) Validate() error {
	if c.Crawl.TimeoutSecs <= 0 {
		return errs.Newf(errs.Configuration, "config: crawl.timeout_secs must be positive, got %d", c.Crawl.TimeoutSecs)
	}
	if c.Pipeline.HardFailureRate <= 0 || c.Pipeline.HardFailureRate > 1 {
		return errs.Newf(errs.Configuration, "config: pipeline.hard_failure_rate must be in (0, 1], got %g", c.Pipeline.HardFailureRate)
	}
	if c.Pipeline.MinSuccessRate <= 0 || c.Pipeline.MinSuccessRate > 1 {
		return errs.Newf(errs.Configuration, "config: pipeline.min_success_rate must be in (0, 1], got %g", c.Pipeline.MinSuccessRate)
	}
	for name, n := range c.Pipeline.Concurrency {
		if _, ok := phaseNames[name]; !ok {
			return errs.Newf(errs.Configuration, "config: pipeline.concurrency has unknown phase %q", name).
				WithHint("valid phases are initial, deepen, metadata, extract")
		}
		if n <= 0 {
			return errs.Newf(errs.Configuration, "config: pipeline.concurrency.%s must be positive, got %d", name, n)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errs.Newf(errs.Configuration, "config: server.port out of range: %d", c.Server.Port)
	}
	return nil
}

var phaseNames = map[string]model.Phase{
	string(model.PhaseInitial):  model.PhaseInitial,
	string(model.PhaseDeepen):   model.PhaseDeepen,
	string(model.PhaseMetadata): model.PhaseMetadata,
	string(model.PhaseExtract):  model.PhaseExtract,
}

// ConcurrencyOverrides converts the configured limits to typed phase keys.
func (c *Config) ConcurrencyOverrides() map[model.Phase]int {
	if len(c.Pipeline.Concurrency) == 0 {
		return nil
	}
	out := make(map[model.Phase]int, len(c.Pipeline.Concurrency))
	for name, n := range c.Pipeline.Concurrency {
		out[phaseNames[name]] = n
	}
	return out
}

// InitLogger builds the global zap logger from the log config.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return errs.Wrap(errs.Configuration, err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return errs.Wrap(errs.Configuration, err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
