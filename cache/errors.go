// backend/cache/errors.go
package cache

import "fmt"

// Path contexts reported by validation failures, so callers can attribute a
// rejected key to the exact path component being built.
const (
	ContextDirectoryPath = "directory path"
	ContextFilePath      = "file path"
)

// ValidationError reports a district ID or date string that failed key
// validation. It is always raised before any filesystem path is constructed.
type ValidationError struct {
	Context string // ContextDirectoryPath or ContextFilePath
	Value   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s component %q: %s", e.Context, e.Value, e.Reason)
}

// BreakerOpenError is returned when the circuit breaker refuses an operation
// without attempting the underlying I/O.
type BreakerOpenError struct {
	Name     string
	Failures int
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open after %d consecutive failures", e.Name, e.Failures)
}
