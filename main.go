// backend/main.go
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/gewnthar/distdash/backend/cache"
	"github.com/gewnthar/distdash/backend/config"
	"github.com/gewnthar/distdash/backend/snapshot"
)

// A small operator CLI over the persistence engine:
//
//	distdash dates               list cached dates
//	distdash validate <date>     check a date's metadata against disk
//	distdash latest              print the latest successful snapshot ID
//	distdash prune               apply snapshot retention limits now
func main() {
	log.Println("Starting district dashboard cache tool...")

	configPath := "config/config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = ""
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	if err := cfg.EnsureCacheDir(); err != nil {
		log.Fatalf("Error preparing cache directory: %v", err)
	}

	provider := cache.DirProvider{Root: cfg.Cache.RootDir}
	logger := cache.NewStdLogger("Cache")
	validator := cache.NewIntegrityValidator(logger)
	if cfg.Cache.SizeToleranceBytes > 0 {
		validator.SizeTolerance = cfg.Cache.SizeToleranceBytes
	}
	breaker := cache.NewCircuitBreaker("cache", cfg.Cache.BreakerFailureThreshold, cfg.Cache.BreakerCoolDown)
	store, err := cache.NewRawCacheStoreWith(provider, logger, validator, breaker, cache.Configuration{
		SizeWarnBytes: cfg.Cache.SizeWarnBytes,
		TrackSlowOps:  cfg.Cache.TrackSlowOps,
	})
	if err != nil {
		log.Fatalf("Error initializing cache store: %v", err)
	}
	snaps, err := snapshot.NewStore(provider, nil, snapshot.Options{
		MaxSnapshots: cfg.Snapshot.MaxSnapshots,
		MaxAgeDays:   cfg.Snapshot.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Error initializing snapshot store: %v", err)
	}

	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s dates|validate <date>|latest|prune", os.Args[0])
	}

	switch os.Args[1] {
	case "dates":
		dates, err := store.GetCachedDates()
		if err != nil {
			log.Fatalf("Error listing cached dates: %v", err)
		}
		for _, date := range dates {
			fmt.Println(date)
		}

	case "validate":
		if len(os.Args) < 3 {
			log.Fatalf("Usage: %s validate <YYYY-MM-DD>", os.Args[0])
		}
		report, err := store.ValidateMetadataIntegrity(os.Args[2])
		if err != nil {
			log.Fatalf("Error validating %s: %v", os.Args[2], err)
		}
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		if !report.Valid {
			os.Exit(1)
		}

	case "latest":
		snap, err := snaps.GetLatestSuccessful()
		if err != nil {
			log.Fatalf("Error finding latest snapshot: %v", err)
		}
		if snap == nil {
			log.Println("No successful snapshot exists yet.")
			return
		}
		fmt.Println(snap.SnapshotID)

	case "prune":
		if err := snaps.Prune(); err != nil {
			log.Fatalf("Error pruning snapshots: %v", err)
		}
		log.Println("Snapshot retention applied.")

	default:
		log.Fatalf("Unknown command %q. Usage: %s dates|validate <date>|latest|prune", os.Args[1], os.Args[0])
	}
}
