// backend/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// CacheConfig configures the raw-CSV cache engine.
type CacheConfig struct {
	RootDir            string `yaml:"root_dir"`
	SizeWarnBytes      int64  `yaml:"size_warn_bytes"`
	SizeToleranceBytes int64  `yaml:"size_tolerance_bytes"`
	TrackSlowOps       bool   `yaml:"track_slow_ops"`

	BreakerFailureThreshold int    `yaml:"breaker_failure_threshold"`
	BreakerCoolDownStr      string `yaml:"breaker_cool_down"`
	BreakerCoolDown         time.Duration
}

// SnapshotConfig configures snapshot retention.
type SnapshotConfig struct {
	MaxSnapshots int `yaml:"max_snapshots"`
	MaxAgeDays   int `yaml:"max_age_days"`
}

// Config is the application configuration document.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// LoadConfig reads configuration from a yaml file, with a .env overlay for
// the cache root (DISTDASH_CACHE_DIR) so deployments can relocate the cache
// without editing the file. Unset fields get working defaults.
func LoadConfig(configPath string) (*Config, error) {
	// A missing .env is fine; environment variables may come from anywhere.
	_ = godotenv.Load()

	cfg := &Config{}
	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if dir := os.Getenv("DISTDASH_CACHE_DIR"); dir != "" {
		cfg.Cache.RootDir = dir
	}
	if cfg.Cache.RootDir == "" {
		cfg.Cache.RootDir = "./cache_data"
	}

	if cfg.Cache.BreakerCoolDownStr != "" {
		d, err := time.ParseDuration(cfg.Cache.BreakerCoolDownStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse breaker cool-down: %w", err)
		}
		cfg.Cache.BreakerCoolDown = d
	}

	return cfg, nil
}

// EnsureCacheDir creates the configured cache root if needed.
func (c *Config) EnsureCacheDir() error {
	if err := os.MkdirAll(c.Cache.RootDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", c.Cache.RootDir, err)
	}
	return nil
}
