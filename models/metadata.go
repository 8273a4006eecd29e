// backend/models/metadata.go
package models

import (
	"fmt"
	"time"
)

// CacheVersion is the schema revision written into every cache-metadata.json.
// Bump it whenever CacheMetadata changes incompatibly; loaders reject documents
// carrying a version they do not recognize instead of guessing at absent fields.
const CacheVersion = "1.0"

// CSVFilePresence records which scraped documents exist for a cached date.
type CSVFilePresence struct {
	AllDistricts bool `json:"all_districts"`
	// Districts maps a district ID to whether its per-district performance
	// document is cached under the date's districts/ subtree.
	Districts map[string]bool `json:"districts,omitempty"`
}

// DownloadStats tracks access counters for one cached date.
type DownloadStats struct {
	TotalDownloads int        `json:"total_downloads"`
	CacheHits      int        `json:"cache_hits"`
	CacheMisses    int        `json:"cache_misses"`
	LastAccessed   *time.Time `json:"last_accessed,omitempty"`
}

// IntegrityInfo is the verifiable fingerprint of a date directory's contents.
// Checksums maps filename -> SHA-256 hex digest.
type IntegrityInfo struct {
	Checksums map[string]string `json:"checksums"`
	TotalSize int64             `json:"total_size"`
	FileCount int               `json:"file_count"`
}

// CacheMetadata is the per-date metadata document (cache-metadata.json).
// It is only ever rewritten whole; partial field updates never happen.
type CacheMetadata struct {
	Date          string          `json:"date"` // YYYY-MM-DD
	Timestamp     time.Time       `json:"timestamp"`
	ProgramYear   string          `json:"program_year"` // e.g. "2025-2026"
	CSVFiles      CSVFilePresence `json:"csv_files"`
	DownloadStats DownloadStats   `json:"download_stats"`
	Integrity     IntegrityInfo   `json:"integrity"`
	Source        string          `json:"source"`
	CacheVersion  string          `json:"cache_version"`
}

// ProgramYearFor derives the program-year partition key for an ISO date.
// Program years run July 1 through June 30, so 2026-01-14 falls in "2025-2026"
// and 2026-07-01 starts "2026-2027".
func ProgramYearFor(date string) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("cannot derive program year from %q: %w", date, err)
	}
	year := t.Year()
	if t.Month() >= time.July {
		return fmt.Sprintf("%d-%d", year, year+1), nil
	}
	return fmt.Sprintf("%d-%d", year-1, year), nil
}
