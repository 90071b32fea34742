// Package config loads server configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	DefaultListenAddr      = ":8080"
	DefaultHistorySize     = 10000
	DefaultIngestBuffer    = 1024
	DefaultMetricsInterval = 5 * time.Second
	DefaultTailPoll        = 2 * time.Second
	DefaultDockerPoll      = 30 * time.Second
	DefaultLogFormat       = "text"
	DefaultLogLevel        = "info"
)

// Validation errors.
var (
	ErrNoSources      = errors.New("no log sources enabled")
	ErrInvalidSetting = errors.New("invalid setting")
)

// Docker configures the container log source.
type Docker struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"` // empty uses the SDK's environment defaults
	PollInterval time.Duration `mapstructure:"poll-interval"`
}

// Tail configures the file-follow log source.
type Tail struct {
	Globs        []string      `mapstructure:"globs"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	FromStart    bool          `mapstructure:"from-start"`
}

// Log configures the process's own structured logging.
type Log struct {
	Format string `mapstructure:"format"` // text or json
	Level  string `mapstructure:"level"`  // debug, info, warn, error
}

// Config is the full server configuration.
type Config struct {
	ListenAddr      string        `mapstructure:"listen-addr"`
	HistorySize     int           `mapstructure:"history-size"`
	IngestBuffer    int           `mapstructure:"ingest-buffer"`
	MetricsInterval time.Duration `mapstructure:"metrics-interval"`
	Docker          Docker        `mapstructure:"docker"`
	Tail            Tail          `mapstructure:"tail"`
	Log             Log           `mapstructure:"log"`
}

// Load reads configuration from the given file (optional), the environment
// (CONTAINERYARD_ prefix, dashes and dots as underscores), and defaults, in
// rising precedence of default < file < environment. A missing config file
// is not an error; a malformed one is.
func Load(path string) (Config, error) {
	var cfg Config

	v := viper.New()
	v.SetEnvPrefix("CONTAINERYARD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("listen-addr", DefaultListenAddr)
	v.SetDefault("history-size", DefaultHistorySize)
	v.SetDefault("ingest-buffer", DefaultIngestBuffer)
	v.SetDefault("metrics-interval", DefaultMetricsInterval)
	v.SetDefault("docker.enabled", true)
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.poll-interval", DefaultDockerPoll)
	v.SetDefault("tail.globs", []string{})
	v.SetDefault("tail.poll-interval", DefaultTailPoll)
	v.SetDefault("tail.from-start", false)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.level", DefaultLogLevel)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the system relies on.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen-addr must not be empty", ErrInvalidSetting)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("%w: history-size must be positive, got %d", ErrInvalidSetting, c.HistorySize)
	}
	if c.IngestBuffer <= 0 {
		return fmt.Errorf("%w: ingest-buffer must be positive, got %d", ErrInvalidSetting, c.IngestBuffer)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("%w: metrics-interval must be positive, got %s", ErrInvalidSetting, c.MetricsInterval)
	}
	if !c.Docker.Enabled && len(c.Tail.Globs) == 0 {
		return ErrNoSources
	}
	return nil
}
