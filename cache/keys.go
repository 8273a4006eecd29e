// backend/cache/keys.go
package cache

import (
	"fmt"
	"strings"
)

// Document types the raw cache understands.
const (
	DocTypeAllDistricts        = "all-districts"
	DocTypeDistrictPerformance = "district-performance"
)

// maxDistrictIDLen caps district identifiers well above anything the dashboards
// actually emit ("42", "F", "district-123").
const maxDistrictIDLen = 32

// forbiddenSequences are rejected unconditionally in any key. They are the
// characters that would let a caller-supplied identifier escape the cache root.
var forbiddenSequences = []string{"..", "/", "\\", ":", "*", "?", "<", ">", "|"}

// ValidateDistrictID checks a caller-supplied district identifier before it is
// used as a path segment. pathContext is ContextDirectoryPath or
// ContextFilePath and is echoed in the error so failures attribute precisely.
func ValidateDistrictID(id, pathContext string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Context: pathContext, Value: id, Reason: "district ID is empty"}
	}
	if err := checkForbidden(id, pathContext); err != nil {
		return err
	}
	if len(id) > maxDistrictIDLen {
		return &ValidationError{Context: pathContext, Value: id, Reason: "district ID is too long"}
	}
	for _, r := range id {
		if !isKeyRune(r) {
			return &ValidationError{Context: pathContext, Value: id, Reason: "district ID contains characters outside [A-Za-z0-9_-]"}
		}
	}
	return nil
}

// ValidateDateKey checks a caller-supplied date string (strict YYYY-MM-DD)
// before it is used as a path segment.
func ValidateDateKey(date, pathContext string) error {
	if strings.TrimSpace(date) == "" {
		return &ValidationError{Context: pathContext, Value: date, Reason: "date is empty"}
	}
	if err := checkForbidden(date, pathContext); err != nil {
		return err
	}
	if !isISODate(date) {
		return &ValidationError{Context: pathContext, Value: date, Reason: "date is not in YYYY-MM-DD format"}
	}
	return nil
}

func checkForbidden(value, pathContext string) error {
	for _, seq := range forbiddenSequences {
		if strings.Contains(value, seq) {
			return &ValidationError{
				Context: pathContext,
				Value:   value,
				Reason:  fmt.Sprintf("contains forbidden sequence %q", seq),
			}
		}
	}
	return nil
}

func isKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}

// isISODate accepts exactly YYYY-MM-DD with plausible month/day ranges. It
// deliberately does not chase calendar edge cases (leap years); the scraper
// only ever supplies dates it actually fetched.
func isISODate(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, r := range s {
		if i == 4 || i == 7 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	month := (int(s[5]-'0') * 10) + int(s[6]-'0')
	day := (int(s[8]-'0') * 10) + int(s[9]-'0')
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}
