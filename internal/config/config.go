package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Partial-result policies for multi-season fetches.
const (
	// PolicyFailFast aborts a multi-season fetch on the first season failure.
	PolicyFailFast = "fail_fast"
	// PolicySkipAndWarn drops failed seasons and returns the partial result
	// with a logged warning per skipped season.
	PolicySkipAndWarn = "skip_and_warn"
)

// DatasetConfig describes one dataset the cache warmer should fetch.
type DatasetConfig struct {
	Endpoint string            `mapstructure:"endpoint"`
	Params   map[string]string `mapstructure:"params"`
}

// Config holds all configuration for the NBA stats fetcher.
type Config struct {
	// Upstream provider
	UpstreamBaseURL string `mapstructure:"upstream_base_url"`

	// Cache storage
	CacheRoot     string `mapstructure:"cache_root"`
	SchemaVersion int    `mapstructure:"schema_version"`

	// Rate limiting budget for outbound upstream calls
	CallsPerWindow int     `mapstructure:"calls_per_window"`
	WindowSeconds  float64 `mapstructure:"window_seconds"`

	// Retry policy
	MaxAttempts      int     `mapstructure:"max_attempts"`
	BaseDelaySeconds float64 `mapstructure:"base_delay_seconds"`

	// PartialResultPolicy is either "fail_fast" or "skip_and_warn".
	PartialResultPolicy string `mapstructure:"partial_result_policy"`

	// Season range and datasets for the cache warmer
	StartingYear int             `mapstructure:"starting_year"`
	EndingYear   int             `mapstructure:"ending_year"`
	Datasets     []DatasetConfig `mapstructure:"datasets"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

// Load reads configuration from environment variables and optional config file.
// Environment variables take precedence over config file values.
//
// Recognized environment variables:
//   - UPSTREAM_BASE_URL (optional, defaults to stats.nba.com)
//   - CACHE_ROOT (optional, defaults to ./cache)
//   - SCHEMA_VERSION
//   - CALLS_PER_WINDOW, WINDOW_SECONDS
//   - MAX_ATTEMPTS, BASE_DELAY_SECONDS
//   - PARTIAL_RESULT_POLICY
//   - STARTING_YEAR, ENDING_YEAR
//   - LOG_LEVEL, LOG_PRETTY
func Load() (*Config, error) {
	v := viper.New()

	v.AutomaticEnv()

	// Defaults: a conservative budget against stats.nba.com, which throttles
	// aggressively and publishes no limits.
	v.SetDefault("upstream_base_url", "https://stats.nba.com/stats/")
	v.SetDefault("cache_root", "cache")
	v.SetDefault("schema_version", 1)
	v.SetDefault("calls_per_window", 5)
	v.SetDefault("window_seconds", 60.0)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("base_delay_seconds", 1.0)
	v.SetDefault("partial_result_policy", PolicyFailFast)
	v.SetDefault("starting_year", 1996)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.nbafetcher")

	// Read config file (ignore if not found)
	_ = v.ReadInConfig()

	v.BindEnv("upstream_base_url", "UPSTREAM_BASE_URL")
	v.BindEnv("cache_root", "CACHE_ROOT")
	v.BindEnv("schema_version", "SCHEMA_VERSION")
	v.BindEnv("calls_per_window", "CALLS_PER_WINDOW")
	v.BindEnv("window_seconds", "WINDOW_SECONDS")
	v.BindEnv("max_attempts", "MAX_ATTEMPTS")
	v.BindEnv("base_delay_seconds", "BASE_DELAY_SECONDS")
	v.BindEnv("partial_result_policy", "PARTIAL_RESULT_POLICY")
	v.BindEnv("starting_year", "STARTING_YEAR")
	v.BindEnv("ending_year", "ENDING_YEAR")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("log_pretty", "LOG_PRETTY")

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks bounds on the configuration values.
func (c *Config) Validate() error {
	var problems []string

	if c.UpstreamBaseURL == "" {
		problems = append(problems, "upstream_base_url must not be empty")
	}
	if c.CacheRoot == "" {
		problems = append(problems, "cache_root must not be empty")
	}
	if c.SchemaVersion < 1 {
		problems = append(problems, fmt.Sprintf("schema_version must be >= 1 (got %d)", c.SchemaVersion))
	}
	if c.CallsPerWindow <= 0 {
		problems = append(problems, fmt.Sprintf("calls_per_window must be > 0 (got %d)", c.CallsPerWindow))
	}
	if c.WindowSeconds <= 0 {
		problems = append(problems, fmt.Sprintf("window_seconds must be > 0 (got %g)", c.WindowSeconds))
	}
	if c.MaxAttempts < 1 {
		problems = append(problems, fmt.Sprintf("max_attempts must be >= 1 (got %d)", c.MaxAttempts))
	}
	if c.BaseDelaySeconds < 0 {
		problems = append(problems, fmt.Sprintf("base_delay_seconds must be >= 0 (got %g)", c.BaseDelaySeconds))
	}
	if c.PartialResultPolicy != PolicyFailFast && c.PartialResultPolicy != PolicySkipAndWarn {
		problems = append(problems, fmt.Sprintf("partial_result_policy must be %q or %q (got %q)",
			PolicyFailFast, PolicySkipAndWarn, c.PartialResultPolicy))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
