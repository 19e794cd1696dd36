// Package config loads server configuration from flags, environment
// variables and an optional YAML config file, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kennedydane/static-server/internal/checksum"
	"github.com/kennedydane/static-server/internal/watch"
)

// Config holds all server configuration.
type Config struct {
	// Root is the directory whose contents are indexed and served.
	Root string `mapstructure:"root"`

	ListenAddr  string `mapstructure:"listen_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	Log   LogConfig   `mapstructure:"log"`
	Watch WatchConfig `mapstructure:"watch"`

	Checksums ChecksumConfig `mapstructure:"checksums"`

	// Marker is the reserved per-directory description filename. Its
	// content becomes the directory description; the file itself is never
	// listed or served.
	Marker string `mapstructure:"marker"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// WatchConfig configures change detection.
type WatchConfig struct {
	Mode         string        `mapstructure:"mode"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Debounce     time.Duration `mapstructure:"debounce"`
}

// ChecksumConfig configures which digests are computed.
type ChecksumConfig struct {
	Algorithms []string `mapstructure:"algorithms"`
	// MaxSize: files larger than this are listed without checksums
	// (0 = unlimited).
	MaxSize int64 `mapstructure:"max_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", "static")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("watch.mode", "auto")
	v.SetDefault("watch.poll_interval", 5*time.Second)
	v.SetDefault("watch.debounce", 500*time.Millisecond)
	v.SetDefault("checksums.algorithms", []string{"md5", "sha256"})
	v.SetDefault("checksums.max_size", 0)
	v.SetDefault("marker", ".description")
}

// Load reads configuration. path optionally names a YAML config file; flags
// may be nil. Environment variables use the STATIC_SERVER_ prefix with
// underscores (e.g. STATIC_SERVER_LISTEN_ADDR).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STATIC_SERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root directory is required")
	}
	switch watch.Mode(c.Watch.Mode) {
	case watch.ModeAuto, watch.ModeNotify, watch.ModePoll:
	default:
		return fmt.Errorf("invalid watch mode %q (want auto, notify or poll)", c.Watch.Mode)
	}
	if c.Watch.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.Watch.PollInterval)
	}
	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %v", c.Watch.Debounce)
	}
	if len(c.Checksums.Algorithms) == 0 {
		return fmt.Errorf("at least one checksum algorithm is required")
	}
	for _, algo := range c.Checksums.Algorithms {
		if !checksum.IsSupported(checksum.Algorithm(algo)) {
			return fmt.Errorf("unsupported checksum algorithm %q", algo)
		}
	}
	if c.Marker == "" {
		return fmt.Errorf("description marker filename is required")
	}
	return nil
}

// Algorithms returns the configured algorithms as checksum types.
func (c *Config) Algorithms() []checksum.Algorithm {
	out := make([]checksum.Algorithm, len(c.Checksums.Algorithms))
	for i, a := range c.Checksums.Algorithms {
		out[i] = checksum.Algorithm(a)
	}
	return out
}
