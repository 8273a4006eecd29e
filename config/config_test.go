// backend/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gewnthar/distdash/backend/cache"
)

const sampleYAML = `cache:
  root_dir: "./somewhere"
  size_warn_bytes: 2048
  size_tolerance_bytes: 64
  track_slow_ops: true
  breaker_failure_threshold: 3
  breaker_cool_down: "5s"

snapshot:
  max_snapshots: 30
  max_age_days: 60
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Cache.RootDir != "./somewhere" {
		t.Errorf("rootDir = %q", cfg.Cache.RootDir)
	}
	if cfg.Cache.SizeWarnBytes != 2048 || cfg.Cache.SizeToleranceBytes != 64 {
		t.Errorf("size tunables = %d/%d, want 2048/64", cfg.Cache.SizeWarnBytes, cfg.Cache.SizeToleranceBytes)
	}
	if cfg.Cache.BreakerFailureThreshold != 3 {
		t.Errorf("breaker threshold = %d, want 3", cfg.Cache.BreakerFailureThreshold)
	}
	if cfg.Cache.BreakerCoolDown != 5*time.Second {
		t.Errorf("breaker cool-down = %v, want 5s", cfg.Cache.BreakerCoolDown)
	}
	if cfg.Snapshot.MaxSnapshots != 30 || cfg.Snapshot.MaxAgeDays != 60 {
		t.Errorf("snapshot retention = %+v", cfg.Snapshot)
	}
}

func TestLoadConfigDefaultsAndEnvOverride(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.RootDir != "./cache_data" {
		t.Errorf("default rootDir = %q, want ./cache_data", cfg.Cache.RootDir)
	}

	t.Setenv("DISTDASH_CACHE_DIR", "/tmp/elsewhere")
	cfg, err = LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.RootDir != "/tmp/elsewhere" {
		t.Errorf("env override ignored: %q", cfg.Cache.RootDir)
	}
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := writeConfigFile(t, "cache:\n  breaker_cool_down: \"not-a-duration\"\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unparseable cool-down accepted")
	}
}

// The cache tunables must actually reach a store built from the loaded
// config, not just parse.
func TestConfigDrivesStoreConstruction(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Cache.RootDir = t.TempDir()

	logger := cache.NewStdLogger("Cache")
	validator := cache.NewIntegrityValidator(logger)
	validator.SizeTolerance = cfg.Cache.SizeToleranceBytes
	breaker := cache.NewCircuitBreaker("cache", cfg.Cache.BreakerFailureThreshold, cfg.Cache.BreakerCoolDown)
	store, err := cache.NewRawCacheStoreWith(cache.DirProvider{Root: cfg.Cache.RootDir}, logger, validator, breaker, cache.Configuration{
		SizeWarnBytes: cfg.Cache.SizeWarnBytes,
		TrackSlowOps:  cfg.Cache.TrackSlowOps,
	})
	if err != nil {
		t.Fatal(err)
	}

	got := store.GetConfiguration()
	if got.SizeWarnBytes != 2048 || !got.TrackSlowOps {
		t.Errorf("store configuration = %+v, want the file's tunables", got)
	}
	if validator.SizeTolerance != 64 {
		t.Errorf("validator tolerance = %d, want 64", validator.SizeTolerance)
	}
}
