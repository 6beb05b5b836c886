package grove

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultShutdownTimeout is the shutdown deadline used when none is
// configured.
const DefaultShutdownTimeout = 30 * time.Second

// Config holds file and environment driven orchestrator settings.
type Config struct {
	// InitTimeout bounds the init barrier. Zero waits forever.
	InitTimeout time.Duration `env:"GROVE_INIT_TIMEOUT"`

	// ShutdownTimeout is the deadline hosts should give Shutdown.
	ShutdownTimeout time.Duration `env:"GROVE_SHUTDOWN_TIMEOUT"`

	LogLevel  string `env:"GROVE_LOG_LEVEL"`  // debug, info, warn, error
	LogFormat string `env:"GROVE_LOG_FORMAT"` // text, json

	MetricsNamespace string `env:"GROVE_METRICS_NAMESPACE"`
}

// fileConfig is the TOML shape of [Config].
type fileConfig struct {
	InitTimeout      string `toml:"init_timeout"`
	ShutdownTimeout  string `toml:"shutdown_timeout"`
	LogLevel         string `toml:"log_level"`
	LogFormat        string `toml:"log_format"`
	MetricsNamespace string `toml:"metrics_namespace"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ShutdownTimeout:  DefaultShutdownTimeout,
		LogLevel:         "info",
		LogFormat:        "text",
		MetricsNamespace: DefaultMetricsNamespace,
	}
}

// LoadConfig starts from [DefaultConfig], applies the TOML file at path when
// path is not empty, then applies GROVE_* environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("init_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.InitTimeout))
		if err != nil {
			return fmt.Errorf("parse init_timeout: %w", err)
		}
		cfg.InitTimeout = d
	}

	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownTimeout))
		if err != nil {
			return fmt.Errorf("parse shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}

	if meta.IsDefined("metrics_namespace") {
		cfg.MetricsNamespace = strings.TrimSpace(raw.MetricsNamespace)
	}

	return nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.InitTimeout < 0 {
		errs = append(errs, fmt.Errorf("init_timeout must not be negative, got %s", c.InitTimeout))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout))
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if !validFormat(c.LogFormat) {
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Logger builds the configured logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	return NewLogger(w, c.LogLevel, c.LogFormat)
}

// Options converts the configuration into orchestrator options that log to
// logger. Metrics are registered with reg when it is not nil.
func (c Config) Options(logger *slog.Logger, reg prometheus.Registerer) []Option {
	opts := []Option{
		WithLogger(logger),
		WithInitTimeout(c.InitTimeout),
	}
	if reg != nil {
		opts = append(opts, WithMetrics(NewMetrics(reg, c.MetricsNamespace)))
	}
	return opts
}
