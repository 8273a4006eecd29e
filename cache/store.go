// backend/cache/store.go
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gewnthar/distdash/backend/csvdoc"
	"github.com/gewnthar/distdash/backend/models"
)

// MetadataFileName is the per-date metadata document's filename.
const MetadataFileName = "cache-metadata.json"

// districtsDirName is the subtree that shards per-district documents.
const districtsDirName = "districts"

// DefaultSizeWarnBytes is the cached-document size above which writes warn.
const DefaultSizeWarnBytes = 10 * 1024 * 1024

// Configuration is the store's static tunables, exposed read-only.
type Configuration struct {
	CompressionEnabled bool  `json:"compression_enabled"`
	SizeWarnBytes      int64 `json:"size_warn_bytes"`
	TrackSlowOps       bool  `json:"track_slow_ops"`
}

// RawCacheStore persists raw scraped CSV text keyed by (date, documentType,
// optional districtID) under the provider's cache root, maintaining a
// cache-metadata.json per date with checksums, sizes and access counters.
//
// Everything it depends on is injected; two stores built over different
// directories from equivalent inputs behave identically, which is what makes
// the store safely reconfigurable in tests and deployments.
type RawCacheStore struct {
	provider  ConfigProvider
	logger    Logger
	validator *IntegrityValidator
	breaker   *CircuitBreaker
	cfg       Configuration
	source    string

	// metaMu serializes metadata read-modify-write cycles within this
	// process. Cross-process writers to the same date are last-writer-wins.
	metaMu sync.Mutex
}

// NewRawCacheStore builds a store with default collaborators: a "Cache"
// stdlib logger, a default-tolerance integrity validator, and a breaker named
// "cache".
func NewRawCacheStore(provider ConfigProvider) (*RawCacheStore, error) {
	logger := NewStdLogger("Cache")
	return NewRawCacheStoreWith(provider, logger, NewIntegrityValidator(logger), NewCacheCircuitBreaker("cache"), Configuration{
		SizeWarnBytes: DefaultSizeWarnBytes,
		TrackSlowOps:  true,
	})
}

// NewRawCacheStoreWith builds a store with explicit collaborators. Nil
// collaborators fall back to the same defaults NewRawCacheStore uses, so the
// two construction paths are behaviorally equivalent.
func NewRawCacheStoreWith(provider ConfigProvider, logger Logger, validator *IntegrityValidator, breaker *CircuitBreaker, cfg Configuration) (*RawCacheStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("cache store requires a config provider")
	}
	if err := provider.Ensure(); err != nil {
		return nil, fmt.Errorf("cache root is not usable: %w", err)
	}
	if logger == nil {
		logger = NewStdLogger("Cache")
	}
	if validator == nil {
		validator = NewIntegrityValidator(logger)
	}
	if breaker == nil {
		breaker = NewCacheCircuitBreaker("cache")
	}
	if cfg.SizeWarnBytes <= 0 {
		cfg.SizeWarnBytes = DefaultSizeWarnBytes
	}
	return &RawCacheStore{
		provider:  provider,
		logger:    logger,
		validator: validator,
		breaker:   breaker,
		cfg:       cfg,
		source:    "ti-dashboards",
	}, nil
}

// documentPath validates the keys and returns the document's absolute path
// plus its metadata-relative name (the checksum map key). Validation always
// runs before any path is assembled.
func (s *RawCacheStore) documentPath(date, docType, districtID string) (absPath, relName string, err error) {
	if err := ValidateDateKey(date, ContextDirectoryPath); err != nil {
		return "", "", err
	}
	if docType != DocTypeAllDistricts && docType != DocTypeDistrictPerformance {
		return "", "", &ValidationError{Context: ContextFilePath, Value: docType, Reason: "unknown document type"}
	}
	filename := docType + ".csv"
	if districtID != "" {
		if err := ValidateDistrictID(districtID, ContextDirectoryPath); err != nil {
			return "", "", err
		}
		relName = districtsDirName + "/" + districtID + "/" + filename
		absPath = filepath.Join(s.provider.CacheRoot(), date, districtsDirName, districtID, filename)
		return absPath, relName, nil
	}
	if docType == DocTypeDistrictPerformance {
		return "", "", &ValidationError{Context: ContextFilePath, Value: docType, Reason: "district performance documents require a district ID"}
	}
	return filepath.Join(s.provider.CacheRoot(), date, filename), filename, nil
}

// SetCachedCSV writes content for (date, docType, districtID) and rewrites the
// date's metadata document. The content file lands via temp+rename, so a
// concurrent reader sees either the old complete file or the new one, and no
// temporary artifact survives a successful call.
func (s *RawCacheStore) SetCachedCSV(date, docType, content, districtID string) error {
	path, _, err := s.documentPath(date, docType, districtID)
	if err != nil {
		return err
	}
	if int64(len(content)) > s.cfg.SizeWarnBytes {
		s.logger.Warnf("document %s for %s is %d bytes, above the warning threshold", docType, date, len(content))
	}

	start := time.Now()
	err = s.breaker.Do(func() error {
		if err := WriteFileAtomic(path, []byte(content)); err != nil {
			return err
		}
		return s.recomputeMetadata(date, true)
	})
	if err != nil {
		if _, open := err.(*BreakerOpenError); !open {
			s.logger.Errorf("failed to cache %s for %s: %v", docType, date, err)
		}
		return err
	}
	if s.cfg.TrackSlowOps {
		if elapsed := time.Since(start); elapsed > time.Second {
			s.logger.Warnf("slow cache write: %s for %s took %s", docType, date, elapsed)
		}
	}
	s.logger.Debugf("cached %s for %s (%d bytes)", docType, date, len(content))
	return nil
}

// GetCachedCSV returns the cached text and whether it was present. A missing
// document is a routine miss, not an error; an I/O failure is logged, counted
// against the breaker, and degraded to a miss so readers keep working.
func (s *RawCacheStore) GetCachedCSV(date, docType, districtID string) (string, bool, error) {
	path, _, err := s.documentPath(date, docType, districtID)
	if err != nil {
		return "", false, err
	}
	if err := s.breaker.Allow(); err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.breaker.RecordSuccess()
		s.recordAccess(date, false)
		return "", false, nil
	}
	if err != nil {
		s.breaker.RecordFailure()
		s.logger.Errorf("failed to read cached %s for %s, treating as miss: %v", docType, date, err)
		return "", false, nil
	}
	s.breaker.RecordSuccess()
	s.recordAccess(date, true)
	return string(data), true, nil
}

// HasCachedCSV reports existence without reading content or touching counters.
func (s *RawCacheStore) HasCachedCSV(date, docType, districtID string) (bool, error) {
	path, _, err := s.documentPath(date, docType, districtID)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	return !info.IsDir(), nil
}

// GetCacheMetadata loads the metadata document for date, or (nil, nil) when
// the date has none. A document with an unrecognized cacheVersion is treated
// as absent rather than trusted.
func (s *RawCacheStore) GetCacheMetadata(date string) (*models.CacheMetadata, error) {
	if err := ValidateDateKey(date, ContextDirectoryPath); err != nil {
		return nil, err
	}
	return s.loadMetadata(date), nil
}

func (s *RawCacheStore) loadMetadata(date string) *models.CacheMetadata {
	path := filepath.Join(s.provider.CacheRoot(), date, MetadataFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var meta models.CacheMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		s.logger.Warnf("metadata for %s is unreadable, treating as absent: %v", date, err)
		return nil
	}
	if meta.CacheVersion != models.CacheVersion {
		s.logger.Warnf("metadata for %s has unrecognized cache version %q, treating as absent", date, meta.CacheVersion)
		return nil
	}
	return &meta
}

// ClearCacheForDate removes the entire date directory. Clearing an absent
// date is a no-op.
func (s *RawCacheStore) ClearCacheForDate(date string) error {
	if err := ValidateDateKey(date, ContextDirectoryPath); err != nil {
		return err
	}
	dir := filepath.Join(s.provider.CacheRoot(), date)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear cache for %s: %w", date, err)
	}
	s.logger.Infof("cleared cache for %s", date)
	return nil
}

// GetCachedDates lists every date with at least one cached document, sorted
// ascending.
func (s *RawCacheStore) GetCachedDates() ([]string, error) {
	entries, err := os.ReadDir(s.provider.CacheRoot())
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cache root: %w", err)
	}
	dates := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if ValidateDateKey(entry.Name(), ContextDirectoryPath) != nil {
			continue
		}
		dates = append(dates, entry.Name())
	}
	sort.Strings(dates)
	return dates, nil
}

// ValidateMetadataIntegrity checks the date's metadata document against what
// is physically on disk. Findings come back as data; nothing here raises for
// a mismatch.
func (s *RawCacheStore) ValidateMetadataIntegrity(date string) (IntegrityReport, error) {
	if err := ValidateDateKey(date, ContextDirectoryPath); err != nil {
		return IntegrityReport{}, err
	}
	meta := s.loadMetadata(date)
	return s.validator.ValidateMetadataIntegrity(s.provider.CacheRoot(), date, meta), nil
}

// ValidateCachedDocument runs the corruption heuristics over one cached
// document, including its recorded checksum when metadata is present, and
// checks the CSV header carries the columns the document type requires.
func (s *RawCacheStore) ValidateCachedDocument(date, docType, districtID string) (CorruptionReport, error) {
	path, relName, err := s.documentPath(date, docType, districtID)
	if err != nil {
		return CorruptionReport{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return CorruptionReport{Valid: false, Issues: []string{"content is empty (document not cached)"}}, nil
	}
	meta := s.loadMetadata(date)
	report := s.validator.DetectCorruption(string(data), meta, relName)
	if err := csvdoc.ValidateHeader(string(data), docType); err != nil {
		report.Valid = false
		report.Issues = append(report.Issues, fmt.Sprintf("unexpected header: %v", err))
	}
	return report, nil
}

// AttemptCorruptionRecovery delegates to the integrity validator's best-effort
// removal and rewrites the date's metadata to match whatever survived.
func (s *RawCacheStore) AttemptCorruptionRecovery(date, docType string) RecoveryResult {
	if err := ValidateDateKey(date, ContextDirectoryPath); err != nil {
		return RecoveryResult{Actions: []string{}, Errors: []string{err.Error()}}
	}
	result := s.validator.AttemptCorruptionRecovery(s.provider.CacheRoot(), date, docType)
	dateDir := filepath.Join(s.provider.CacheRoot(), date)
	if _, err := os.Stat(dateDir); os.IsNotExist(err) {
		// Nothing was ever cached for this date, so there is no metadata
		// to refresh.
		return result
	}
	if result.Recovered {
		if err := s.recomputeMetadata(date, false); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to refresh metadata after recovery: %v", err))
		}
	}
	return result
}

// GetCircuitBreakerStatus exposes the breaker state for observability.
func (s *RawCacheStore) GetCircuitBreakerStatus() BreakerStatus {
	return s.breaker.Status()
}

// GetConfiguration returns the store's static tunables. No I/O.
func (s *RawCacheStore) GetConfiguration() Configuration {
	return s.cfg
}

// DiskHeadroom returns the free bytes available on the filesystem backing the
// cache root.
func (s *RawCacheStore) DiskHeadroom() (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(s.provider.CacheRoot(), &stat); err != nil {
		return 0, fmt.Errorf("failed to stat cache filesystem: %w", err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// recomputeMetadata rebuilds the date's metadata document from the files
// actually on disk, carrying access counters forward. countDownload is set by
// the write path so the download total only counts real cache writes.
// Metadata is written last, after the content it describes is durable.
func (s *RawCacheStore) recomputeMetadata(date string, countDownload bool) error {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	dateDir := filepath.Join(s.provider.CacheRoot(), date)
	listing, err := statDateDir(dateDir)
	if err != nil {
		return fmt.Errorf("failed to scan %s for metadata: %w", dateDir, err)
	}

	programYear, err := models.ProgramYearFor(date)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	meta := models.CacheMetadata{
		Date:         date,
		Timestamp:    now,
		ProgramYear:  programYear,
		CSVFiles:     models.CSVFilePresence{Districts: map[string]bool{}},
		Source:       s.source,
		CacheVersion: models.CacheVersion,
		Integrity: models.IntegrityInfo{
			Checksums: map[string]string{},
			TotalSize: listing.stats.TotalSize,
			FileCount: listing.stats.FileCount,
		},
	}

	if prev := s.loadMetadata(date); prev != nil {
		meta.DownloadStats = prev.DownloadStats
	}
	if countDownload {
		meta.DownloadStats.TotalDownloads++
	}
	meta.DownloadStats.LastAccessed = &now

	for relName, absPath := range listing.paths {
		data, err := os.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", relName, err)
		}
		meta.Integrity.Checksums[relName] = ChecksumHex(string(data))

		switch {
		case relName == DocTypeAllDistricts+".csv":
			meta.CSVFiles.AllDistricts = true
		case strings.HasPrefix(relName, districtsDirName+"/"):
			parts := strings.Split(relName, "/")
			if len(parts) == 3 {
				meta.CSVFiles.Districts[parts[1]] = true
			}
		}
	}

	return s.writeMetadata(date, &meta)
}

// recordAccess bumps hit/miss counters on an existing metadata document.
// Dates that have never been written have nothing to record against.
func (s *RawCacheStore) recordAccess(date string, hit bool) {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	meta := s.loadMetadata(date)
	if meta == nil {
		return
	}
	now := time.Now().UTC()
	if hit {
		meta.DownloadStats.CacheHits++
	} else {
		meta.DownloadStats.CacheMisses++
	}
	meta.DownloadStats.LastAccessed = &now
	if err := s.writeMetadata(date, meta); err != nil {
		s.logger.Warnf("failed to record cache access for %s: %v", date, err)
	}
}

func (s *RawCacheStore) writeMetadata(date string, meta *models.CacheMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %s: %w", date, err)
	}
	path := filepath.Join(s.provider.CacheRoot(), date, MetadataFileName)
	if err := WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write metadata for %s: %w", date, err)
	}
	return nil
}

// WriteFileAtomic lands data at path via a dot-prefixed temp file in the same
// directory plus rename, so partially written content is never visible under
// the final name. The temp file is removed on any failure.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp file %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
