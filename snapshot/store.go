// backend/snapshot/store.go
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gewnthar/distdash/backend/cache"
	"github.com/gewnthar/distdash/backend/models"
)

// On-disk names under <cacheRoot>/snapshots/<YYYY-MM-DD>/.
const (
	snapshotsDirName = "snapshots"
	snapshotFileName = "snapshot.json"
	metadataFileName = "metadata.json"
	rankingsFileName = "rankings.json"
)

// Retention defaults: keep roughly a quarter's worth of daily snapshots.
const (
	DefaultMaxSnapshots = 90
	DefaultMaxAgeDays   = 180
)

// Options are the store's retention tunables.
type Options struct {
	MaxSnapshots int
	MaxAgeDays   int
}

// Store persists complete computed result-sets keyed by calendar date under
// <cacheRoot>/snapshots/. The directory name is always derived from the
// payload's dataAsOfDate; writing the same date twice replaces the first
// snapshot entirely.
type Store struct {
	provider     cache.ConfigProvider
	logger       cache.Logger
	maxSnapshots int
	maxAgeDays   int

	// mu guards the known-ID listing cache. The cache is populated by
	// ListSnapshots and kept current by writes and deletes; while warm it
	// lets batch queries skip disk probes for IDs known not to exist.
	mu       sync.Mutex
	knownIDs map[string]bool
}

// NewStore builds a snapshot store over the provider's cache root. Nil logger
// and non-positive retention limits fall back to defaults.
func NewStore(provider cache.ConfigProvider, logger cache.Logger, opts Options) (*Store, error) {
	if provider == nil {
		return nil, fmt.Errorf("snapshot store requires a config provider")
	}
	if err := provider.Ensure(); err != nil {
		return nil, fmt.Errorf("cache root is not usable: %w", err)
	}
	if logger == nil {
		logger = cache.NewStdLogger("Snapshot")
	}
	if opts.MaxSnapshots <= 0 {
		opts.MaxSnapshots = DefaultMaxSnapshots
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = DefaultMaxAgeDays
	}
	return &Store{
		provider:     provider,
		logger:       logger,
		maxSnapshots: opts.MaxSnapshots,
		maxAgeDays:   opts.MaxAgeDays,
	}, nil
}

func (st *Store) snapshotsDir() string {
	return filepath.Join(st.provider.CacheRoot(), snapshotsDirName)
}

func (st *Store) snapshotDir(id string) string {
	return filepath.Join(st.snapshotsDir(), id)
}

// WriteSnapshot persists snap (and rankings, when supplied) under the
// directory named for snap.Payload.Metadata.DataAsOfDate. The target
// directory's previous contents are fully replaced. Content files are written
// before metadata.json, so metadata never references data that is not yet
// durable; each file lands atomically, so readers see old-or-new, never half.
func (st *Store) WriteSnapshot(snap *models.Snapshot, rankings *models.AllDistrictsRankingsData) error {
	if snap == nil {
		return fmt.Errorf("cannot write a nil snapshot")
	}
	id := snap.Payload.Metadata.DataAsOfDate
	if err := cache.ValidateDateKey(id, cache.ContextDirectoryPath); err != nil {
		return fmt.Errorf("snapshot dataAsOfDate is not a usable directory name: %w", err)
	}

	// The directory name is the one source of truth for the snapshot ID;
	// whatever the caller put in SnapshotID is overridden, never trusted.
	snap.SnapshotID = id
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	if snap.SchemaVersion == "" {
		snap.SchemaVersion = models.SchemaVersion
	}

	dir := st.snapshotDir(id)
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", id, err)
	}
	if err := cache.WriteFileAtomic(filepath.Join(dir, snapshotFileName), body); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", id, err)
	}

	if rankings != nil {
		data, err := json.MarshalIndent(rankings, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal rankings for %s: %w", id, err)
		}
		if err := cache.WriteFileAtomic(filepath.Join(dir, rankingsFileName), data); err != nil {
			return fmt.Errorf("failed to write rankings for %s: %w", id, err)
		}
	} else {
		// Full replacement: a rankings document from an earlier write for
		// this date must not survive a write without one.
		if err := os.Remove(filepath.Join(dir, rankingsFileName)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to drop stale rankings for %s: %w", id, err)
		}
	}

	meta := projectMetadata(snap, rankings)
	metaBody, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot metadata %s: %w", id, err)
	}
	if err := cache.WriteFileAtomic(filepath.Join(dir, metadataFileName), metaBody); err != nil {
		return fmt.Errorf("failed to write snapshot metadata %s: %w", id, err)
	}

	st.mu.Lock()
	if st.knownIDs != nil {
		st.knownIDs[id] = true
	}
	st.mu.Unlock()

	st.logger.Infof("wrote snapshot %s (status %s, %d districts)", id, snap.Status, len(snap.Payload.Districts))

	// Retention runs opportunistically; a slow prune must never block the
	// write that triggered it.
	go func() {
		if err := st.Prune(); err != nil {
			st.logger.Warnf("retention pruning failed: %v", err)
		}
	}()
	return nil
}

// projectMetadata builds the metadata.json projection. Its SnapshotID always
// equals the directory name.
func projectMetadata(snap *models.Snapshot, rankings *models.AllDistrictsRankingsData) models.SnapshotMetadata {
	meta := models.SnapshotMetadata{
		SnapshotID:         snap.SnapshotID,
		CreatedAt:          snap.CreatedAt,
		Status:             snap.Status,
		SchemaVersion:      snap.SchemaVersion,
		CalculationVersion: snap.CalculationVersion,
		ErrorCount:         len(snap.Errors),
		DataAsOfDate:       snap.Payload.Metadata.DataAsOfDate,
	}
	for _, d := range snap.Payload.Districts {
		meta.SuccessfulDistricts = append(meta.SuccessfulDistricts, d.DistrictID)
	}
	if rankings != nil {
		meta.RankingVersion = rankings.Metadata.RankingVersion
	}
	return meta
}

// GetSnapshot loads the full snapshot for id, or (nil, nil) when absent.
// Malformed IDs resolve to absent rather than raising; a document with an
// unrecognized schema version is reported absent and logged, never trusted.
func (st *Store) GetSnapshot(id string) (*models.Snapshot, error) {
	if cache.ValidateDateKey(id, cache.ContextDirectoryPath) != nil {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(st.snapshotDir(id), snapshotFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", id, err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot %s is not valid JSON: %w", id, err)
	}
	if snap.SchemaVersion != models.SchemaVersion {
		st.logger.Warnf("snapshot %s has unrecognized schema version %q, treating as absent", id, snap.SchemaVersion)
		return nil, nil
	}
	return &snap, nil
}

// GetSnapshotMetadata loads the lightweight projection for id, or (nil, nil)
// when absent.
func (st *Store) GetSnapshotMetadata(id string) (*models.SnapshotMetadata, error) {
	if cache.ValidateDateKey(id, cache.ContextDirectoryPath) != nil {
		return nil, nil
	}
	return st.readMetadataFile(id), nil
}

func (st *Store) readMetadataFile(id string) *models.SnapshotMetadata {
	data, err := os.ReadFile(filepath.Join(st.snapshotDir(id), metadataFileName))
	if err != nil {
		return nil
	}
	var meta models.SnapshotMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		st.logger.Warnf("snapshot metadata %s is unreadable, treating as absent: %v", id, err)
		return nil
	}
	if meta.SchemaVersion != models.SchemaVersion {
		st.logger.Warnf("snapshot metadata %s has unrecognized schema version %q, treating as absent", id, meta.SchemaVersion)
		return nil
	}
	return &meta
}

// GetLatestSuccessful returns the most recent snapshot whose status is
// "success", or (nil, nil) when none exists.
func (st *Store) GetLatestSuccessful() (*models.Snapshot, error) {
	ids, err := st.ListSnapshots()
	if err != nil {
		return nil, err
	}
	// ListSnapshots sorts ascending; scan newest-first.
	for i := len(ids) - 1; i >= 0; i-- {
		snap, err := st.GetSnapshot(ids[i])
		if err != nil {
			st.logger.Warnf("skipping unreadable snapshot %s: %v", ids[i], err)
			continue
		}
		if snap != nil && snap.Status == models.SnapshotStatusSuccess {
			return snap, nil
		}
	}
	return nil, nil
}

// ListSnapshots returns every known snapshot ID sorted ascending and refreshes
// the listing cache other operations use to skip disk probes. The cache only
// ever changes through ListSnapshots, WriteSnapshot and DeleteSnapshot.
func (st *Store) ListSnapshots() ([]string, error) {
	ids, err := st.listIDs()
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	st.mu.Lock()
	st.knownIDs = known
	st.mu.Unlock()
	return ids, nil
}

// listIDs scans the snapshots directory without touching the listing cache,
// so background pruning cannot repopulate it behind a caller's back.
func (st *Store) listIDs() ([]string, error) {
	entries, err := os.ReadDir(st.snapshotsDir())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if cache.ValidateDateKey(entry.Name(), cache.ContextDirectoryPath) != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// GetSnapshotMetadataBatch resolves each requested ID to its metadata or nil.
// The result's key set exactly equals the input set (duplicates collapse onto
// the same key); malformed IDs resolve to nil without raising. When the
// listing cache is warm, IDs it does not contain are answered without
// touching the filesystem, so a batch never costs more than the per-ID
// equivalent.
func (st *Store) GetSnapshotMetadataBatch(ids []string) map[string]*models.SnapshotMetadata {
	result := make(map[string]*models.SnapshotMetadata, len(ids))
	if len(ids) == 0 {
		return result
	}

	// Membership is resolved under the lock into a batch-local set; the live
	// map stays private to the mutex so concurrent writes and deletes cannot
	// race this read.
	var absent map[string]bool
	st.mu.Lock()
	if st.knownIDs != nil {
		absent = make(map[string]bool, len(ids))
		for _, id := range ids {
			if !st.knownIDs[id] {
				absent[id] = true
			}
		}
	}
	st.mu.Unlock()

	for _, id := range ids {
		if _, done := result[id]; done {
			continue
		}
		if cache.ValidateDateKey(id, cache.ContextDirectoryPath) != nil {
			result[id] = nil
			continue
		}
		if absent[id] {
			result[id] = nil
			continue
		}
		result[id] = st.readMetadataFile(id)
	}
	return result
}

// ReadAllDistrictsRankings loads the rankings document stored alongside the
// snapshot, or (nil, nil) when the snapshot has none. The document comes back
// verbatim; version mismatches against the owning snapshot are the caller's
// to detect.
func (st *Store) ReadAllDistrictsRankings(id string) (*models.AllDistrictsRankingsData, error) {
	if cache.ValidateDateKey(id, cache.ContextDirectoryPath) != nil {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(st.snapshotDir(id), rankingsFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rankings for %s: %w", id, err)
	}
	var rankings models.AllDistrictsRankingsData
	if err := json.Unmarshal(data, &rankings); err != nil {
		return nil, fmt.Errorf("rankings for %s are not valid JSON: %w", id, err)
	}
	return &rankings, nil
}

// HasAllDistrictsRankings reports whether a rankings document exists for id.
func (st *Store) HasAllDistrictsRankings(id string) (bool, error) {
	if cache.ValidateDateKey(id, cache.ContextDirectoryPath) != nil {
		return false, nil
	}
	_, err := os.Stat(filepath.Join(st.snapshotDir(id), rankingsFileName))
	return err == nil, nil
}

// DeleteSnapshot removes the snapshot directory for id and keeps the listing
// cache current. Deleting an absent snapshot is a no-op.
func (st *Store) DeleteSnapshot(id string) error {
	if err := cache.ValidateDateKey(id, cache.ContextDirectoryPath); err != nil {
		return err
	}
	if err := os.RemoveAll(st.snapshotDir(id)); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
	}
	st.mu.Lock()
	if st.knownIDs != nil {
		delete(st.knownIDs, id)
	}
	st.mu.Unlock()
	return nil
}

// Prune applies the retention limits: snapshots older than maxAgeDays go
// first, then the oldest of whatever still exceeds maxSnapshots.
func (st *Store) Prune() error {
	ids, err := st.listIDs()
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -st.maxAgeDays).Format("2006-01-02")
	var kept []string
	for _, id := range ids {
		if id < cutoff {
			if err := st.DeleteSnapshot(id); err != nil {
				return err
			}
			st.logger.Infof("pruned snapshot %s (older than %d days)", id, st.maxAgeDays)
			continue
		}
		kept = append(kept, id)
	}

	if excess := len(kept) - st.maxSnapshots; excess > 0 {
		for _, id := range kept[:excess] {
			if err := st.DeleteSnapshot(id); err != nil {
				return err
			}
			st.logger.Infof("pruned snapshot %s (over the %d-snapshot limit)", id, st.maxSnapshots)
		}
	}
	return nil
}
