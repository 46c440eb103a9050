package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
)

// Config represents the optional shard configuration file. Every field is
// a pointer so the CLI can tell "unset" from a deliberate zero.
type Config struct {
	Thresholds   ThresholdsConfig   `toml:"thresholds"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Executor     ExecutorConfig     `toml:"executor"`
	Cache        CacheConfig        `toml:"cache"`
}

// ThresholdsConfig bounds chunk planning. Sizes accept humanized strings
// such as "10GiB".
type ThresholdsConfig struct {
	MaxSize  *string `toml:"max_size"`
	MaxFiles *int64  `toml:"max_files"`
	MaxDepth *int    `toml:"max_depth"`
	MinSize  *string `toml:"min_size"`
}

// OrchestratorConfig tunes scheduling, retry, and the circuit breaker.
// Durations accept Go duration strings such as "30s".
type OrchestratorConfig struct {
	MaxConcurrentJobs *int     `toml:"max_concurrent_jobs"`
	MaxRetries        *int     `toml:"max_retries"`
	RetryDelay        *string  `toml:"retry_delay"`
	JobTimeout        *string  `toml:"job_timeout"`
	StartRate         *float64 `toml:"start_rate"`
	BreakerThreshold  *int     `toml:"breaker_threshold"`
	BreakerWindow     *string  `toml:"breaker_window"`
	BreakerCooldown   *string  `toml:"breaker_cooldown"`
}

// ExecutorConfig describes the external copy tool invocation.
type ExecutorConfig struct {
	Command       *string  `toml:"command"`
	Args          []string `toml:"args"`
	FilesOnlyArgs []string `toml:"files_only_args"`
	NoReparseArgs []string `toml:"no_reparse_args"`
}

// CacheConfig tunes the directory-profile cache.
type CacheConfig struct {
	Enabled *bool   `toml:"enabled"`
	TTL     *string `toml:"ttl"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "shard", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// ParseSize parses a humanized byte size such as "10GiB" or "500MB".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return int64(n), nil
}

// ParseDuration parses a Go duration string such as "90s" or "2m".
func ParseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return d, nil
}
