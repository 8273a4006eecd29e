// backend/cache/integrity.go
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gewnthar/distdash/backend/models"
)

// DefaultSizeTolerance is how far the summed on-disk byte count may drift from
// the recorded total before it counts as a mismatch. The slack absorbs
// newline-normalization and encoding differences between write paths; the
// exact figure is a tunable, not a law.
const DefaultSizeTolerance = 100

// MaxLineLength is the longest single line a sane scraped CSV can contain.
// Anything beyond it is treated as corruption.
const MaxLineLength = 50000

// DirStats summarizes what is physically present under a date directory.
type DirStats struct {
	FileCount int   `json:"file_count"`
	TotalSize int64 `json:"total_size"`
}

// IntegrityReport is the outcome of comparing stored metadata against the
// files actually on disk. Valid only when Issues is empty; ActualStats and
// MetadataStats are populated for diagnostics either way.
type IntegrityReport struct {
	Valid         bool     `json:"valid"`
	Issues        []string `json:"issues"`
	ActualStats   DirStats `json:"actual_stats"`
	MetadataStats DirStats `json:"metadata_stats"`
}

// CorruptionReport is the outcome of content-level heuristics on one document.
type CorruptionReport struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// RecoveryResult reports a best-effort remediation attempt. Errors holds
// problems hit while recovering (e.g. permission denied); they are data, not
// control flow — recovery never raises.
type RecoveryResult struct {
	Recovered bool     `json:"recovered"`
	Actions   []string `json:"actions"`
	Errors    []string `json:"errors"`
}

// IntegrityValidator verifies cache metadata against disk contents and runs
// corruption heuristics over cached text.
type IntegrityValidator struct {
	// SizeTolerance is the permitted drift between recorded and actual total
	// size in bytes. Zero means DefaultSizeTolerance.
	SizeTolerance int64
	Logger        Logger
}

// NewIntegrityValidator returns a validator with the default tolerance.
func NewIntegrityValidator(logger Logger) *IntegrityValidator {
	if logger == nil {
		logger = NewStdLogger("Integrity")
	}
	return &IntegrityValidator{SizeTolerance: DefaultSizeTolerance, Logger: logger}
}

func (v *IntegrityValidator) tolerance() int64 {
	if v.SizeTolerance > 0 {
		return v.SizeTolerance
	}
	return DefaultSizeTolerance
}

// ChecksumHex returns the SHA-256 hex digest of content.
func ChecksumHex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ValidateMetadataIntegrity compares meta against the files under
// cacheDir/date. A nil meta yields a single "metadata file does not exist"
// issue. Holding issues as data (not errors) lets callers decide whether to
// repair, re-fetch, or ignore.
func (v *IntegrityValidator) ValidateMetadataIntegrity(cacheDir, date string, meta *models.CacheMetadata) IntegrityReport {
	report := IntegrityReport{Issues: []string{}}

	if meta == nil {
		report.Issues = append(report.Issues, "metadata file does not exist")
		return report
	}
	report.MetadataStats = DirStats{
		FileCount: meta.Integrity.FileCount,
		TotalSize: meta.Integrity.TotalSize,
	}

	dateDir := filepath.Join(cacheDir, date)
	actual, err := statDateDir(dateDir)
	if err != nil {
		if !os.IsNotExist(err) {
			report.Issues = append(report.Issues, fmt.Sprintf("cannot read cache directory: %v", err))
			return report
		}
		// An absent date directory counts as zero actual files; the usual
		// mismatch issues describe the gap.
		actual = dirListing{paths: map[string]string{}}
	}
	report.ActualStats = actual.stats

	if actual.stats.FileCount != meta.Integrity.FileCount {
		report.Issues = append(report.Issues, fmt.Sprintf(
			"file count mismatch: actual %d, expected %d", actual.stats.FileCount, meta.Integrity.FileCount))
	}

	diff := actual.stats.TotalSize - meta.Integrity.TotalSize
	if diff < 0 {
		diff = -diff
	}
	if diff > v.tolerance() {
		report.Issues = append(report.Issues, fmt.Sprintf(
			"total size mismatch: actual %d, expected %d", actual.stats.TotalSize, meta.Integrity.TotalSize))
	}

	for name, want := range meta.Integrity.Checksums {
		path, ok := actual.paths[name]
		if !ok {
			report.Issues = append(report.Issues, fmt.Sprintf("missing file: %s", name))
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("missing file: %s (%v)", name, err))
			continue
		}
		if got := ChecksumHex(string(data)); got != want {
			report.Issues = append(report.Issues, fmt.Sprintf("checksum mismatch: %s", name))
		}
	}

	report.Valid = len(report.Issues) == 0
	return report
}

// DetectCorruption runs the content heuristics on one cached document. meta
// may be nil; when it carries a checksum for filename the digest is verified
// too. Deterministic and order-independent: every failing heuristic reports.
func (v *IntegrityValidator) DetectCorruption(content string, meta *models.CacheMetadata, filename string) CorruptionReport {
	report := CorruptionReport{Issues: []string{}}

	if strings.TrimSpace(content) == "" {
		report.Issues = append(report.Issues, "content is empty")
	}

	if hasBinaryBytes(content) {
		report.Issues = append(report.Issues, "binary or control characters present")
	}

	for _, line := range strings.Split(content, "\n") {
		if len(line) > MaxLineLength {
			report.Issues = append(report.Issues, fmt.Sprintf(
				"excessively long line (%d characters)", len(line)))
			break
		}
	}

	if meta != nil {
		if want, ok := meta.Integrity.Checksums[filename]; ok {
			if got := ChecksumHex(content); got != want {
				report.Issues = append(report.Issues, fmt.Sprintf("checksum mismatch: %s", filename))
			}
		}
	}

	report.Valid = len(report.Issues) == 0
	return report
}

// AttemptCorruptionRecovery removes the corrupted document for
// (date, docType) under cacheDir. A file that is already gone counts as
// recovered; problems during removal are captured in Errors, never raised.
func (v *IntegrityValidator) AttemptCorruptionRecovery(cacheDir, date, docType string) RecoveryResult {
	result := RecoveryResult{Actions: []string{}, Errors: []string{}}

	// Both identifiers become path segments; they are checked before any
	// path is assembled so a hostile value cannot reach outside cacheDir.
	if err := ValidateDateKey(date, ContextDirectoryPath); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	if docType != DocTypeAllDistricts && docType != DocTypeDistrictPerformance {
		verr := &ValidationError{Context: ContextFilePath, Value: docType, Reason: "unknown document type"}
		result.Errors = append(result.Errors, verr.Error())
		return result
	}

	path := filepath.Join(cacheDir, date, docType+".csv")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		result.Recovered = true
		result.Actions = append(result.Actions, fmt.Sprintf("no file to remove for %s/%s", date, docType))
		return result
	}

	if err := os.Remove(path); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to remove %s: %v", path, err))
		v.Logger.Warnf("recovery could not remove %s: %v", path, err)
		return result
	}

	result.Recovered = true
	result.Actions = append(result.Actions, fmt.Sprintf("removed corrupted file %s", path))
	v.Logger.Infof("recovered corrupted document %s/%s by removal", date, docType)
	return result
}

// hasBinaryBytes reports bytes below 0x20 other than tab/LF/CR, or DEL.
func hasBinaryBytes(content string) bool {
	for i := 0; i < len(content); i++ {
		b := content[i]
		if b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if b < 0x20 || b == 0x7f {
			return true
		}
	}
	return false
}

// dirListing pairs a date directory's aggregate stats with the flattened
// filename -> absolute path mapping used for checksum verification. Files in
// the districts/ subtree are keyed as "districts/<id>/<file>", matching how
// the store records their checksums.
type dirListing struct {
	stats DirStats
	paths map[string]string
}

func statDateDir(dateDir string) (dirListing, error) {
	listing := dirListing{paths: map[string]string{}}

	err := filepath.Walk(dateDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		// The metadata document describes the directory; it never counts
		// itself, or every rewrite would invalidate the stats it records.
		// In-flight temp files are likewise invisible.
		if info.Name() == MetadataFileName || strings.HasPrefix(info.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(dateDir, path)
		if err != nil {
			return err
		}
		listing.paths[filepath.ToSlash(rel)] = path
		listing.stats.FileCount++
		listing.stats.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		return dirListing{paths: map[string]string{}}, err
	}
	return listing, nil
}
