// backend/snapshot/district_store.go
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gewnthar/distdash/backend/cache"
)

// districtsDirName shards per-district documents under a snapshot date.
const districtsDirName = "districts"

// DistrictStore is the per-district variant of Store. On top of the flat
// snapshot operations it caches per-district performance documents under
// snapshots/<date>/districts/<id>/, applying the same key validation (and the
// same error wording) the raw cache uses for district identifiers.
type DistrictStore struct {
	*Store
}

// NewDistrictStore builds the per-district variant over the same layout.
func NewDistrictStore(provider cache.ConfigProvider, logger cache.Logger, opts Options) (*DistrictStore, error) {
	base, err := NewStore(provider, logger, opts)
	if err != nil {
		return nil, err
	}
	return &DistrictStore{Store: base}, nil
}

// districtDocPath validates both keys before assembling any path.
func (st *DistrictStore) districtDocPath(date, districtID string) (string, error) {
	if err := cache.ValidateDateKey(date, cache.ContextDirectoryPath); err != nil {
		return "", err
	}
	if err := cache.ValidateDistrictID(districtID, cache.ContextDirectoryPath); err != nil {
		return "", err
	}
	return filepath.Join(st.snapshotDir(date), districtsDirName, districtID,
		cache.DocTypeDistrictPerformance+".csv"), nil
}

// SetDistrictCSV caches a per-district performance document for date.
func (st *DistrictStore) SetDistrictCSV(date, districtID, content string) error {
	path, err := st.districtDocPath(date, districtID)
	if err != nil {
		return err
	}
	if err := cache.WriteFileAtomic(path, []byte(content)); err != nil {
		return fmt.Errorf("failed to cache district %s document for %s: %w", districtID, date, err)
	}
	st.logger.Debugf("cached district %s performance document for %s (%d bytes)", districtID, date, len(content))
	return nil
}

// GetDistrictCSV returns the cached per-district document, or ("", false, nil)
// when absent.
func (st *DistrictStore) GetDistrictCSV(date, districtID string) (string, bool, error) {
	path, err := st.districtDocPath(date, districtID)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read district %s document for %s: %w", districtID, date, err)
	}
	return string(data), true, nil
}

// HasDistrictCSV reports existence without reading content.
func (st *DistrictStore) HasDistrictCSV(date, districtID string) (bool, error) {
	path, err := st.districtDocPath(date, districtID)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(path)
	return statErr == nil, nil
}

// ListCachedDistricts lists the district IDs with a cached document for date,
// or an empty slice when the date has none.
func (st *DistrictStore) ListCachedDistricts(date string) ([]string, error) {
	if err := cache.ValidateDateKey(date, cache.ContextDirectoryPath); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(st.snapshotDir(date), districtsDirName))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cached districts for %s: %w", date, err)
	}
	districts := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			districts = append(districts, entry.Name())
		}
	}
	return districts, nil
}
