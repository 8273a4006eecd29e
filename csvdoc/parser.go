// backend/csvdoc/parser.go
package csvdoc

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
)

// DecodeAllDistricts decodes an all-districts performance CSV into typed rows.
// csvutil maps the header line onto the struct tags in AllDistrictsRow, so the
// export headers must match the tags exactly.
func DecodeAllDistricts(reader io.Reader) ([]AllDistrictsRow, error) {
	var rows []AllDistrictsRow
	decoder, err := csvutil.NewDecoder(csv.NewReader(reader))
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV decoder for all-districts data: %w", err)
	}
	if err := decoder.Decode(&rows); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode all-districts CSV data: %w", err)
	}
	return rows, nil
}

// DecodeDistrictPerformance decodes a per-district performance CSV into typed
// rows.
func DecodeDistrictPerformance(reader io.Reader) ([]DistrictPerformanceRow, error) {
	var rows []DistrictPerformanceRow
	decoder, err := csvutil.NewDecoder(csv.NewReader(reader))
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV decoder for district performance data: %w", err)
	}
	if err := decoder.Decode(&rows); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode district performance CSV data: %w", err)
	}
	return rows, nil
}

// ValidateHeader checks that content begins with a parseable CSV header
// carrying the columns required for docType ("all-districts" or
// "district-performance"). It reads only the first record.
func ValidateHeader(content, docType string) error {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("document has no parseable CSV header: %w", err)
	}

	var required []string
	switch docType {
	case "all-districts":
		required = []string{"District", "Paid Clubs", "Total Membership"}
	case "district-performance":
		required = []string{"District", "Club Number", "Club Name"}
	default:
		return fmt.Errorf("unknown document type %q", docType)
	}

	have := make(map[string]bool, len(header))
	for _, col := range header {
		have[strings.TrimSpace(col)] = true
	}
	for _, col := range required {
		if !have[col] {
			return fmt.Errorf("%s document is missing required column %q", docType, col)
		}
	}
	return nil
}
