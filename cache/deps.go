// backend/cache/deps.go
package cache

import (
	"fmt"
	"log"
	"os"
)

// Logger is the logging capability the stores depend on. No return values;
// sinks that can fail must swallow their own errors.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StdLogger writes through the standard log package with a component prefix,
// e.g. "Cache:" / "ERROR Cache:".
type StdLogger struct {
	Component string
	// Verbose enables Debugf output; off by default.
	Verbose bool
}

// NewStdLogger returns a Logger for the given component name.
func NewStdLogger(component string) *StdLogger {
	return &StdLogger{Component: component}
}

func (l *StdLogger) Debugf(format string, args ...any) {
	if l.Verbose {
		log.Printf("DEBUG %s: %s", l.Component, fmt.Sprintf(format, args...))
	}
}

func (l *StdLogger) Infof(format string, args ...any) {
	log.Printf("%s: %s", l.Component, fmt.Sprintf(format, args...))
}

func (l *StdLogger) Warnf(format string, args ...any) {
	log.Printf("WARN %s: %s", l.Component, fmt.Sprintf(format, args...))
}

func (l *StdLogger) Errorf(format string, args ...any) {
	log.Printf("ERROR %s: %s", l.Component, fmt.Sprintf(format, args...))
}

// ConfigProvider supplies the root cache directory. The stores never decide
// where data lives; they ask the provider and trust its answer.
type ConfigProvider interface {
	// CacheRoot returns the root directory all cache paths are built under.
	CacheRoot() string
	// Ensure creates the root directory if needed and verifies it is usable.
	Ensure() error
	// Ready reports whether the root directory currently exists.
	Ready() bool
}

// DirProvider is the trivial ConfigProvider over a fixed directory.
type DirProvider struct {
	Root string
}

func (p DirProvider) CacheRoot() string { return p.Root }

func (p DirProvider) Ensure() error {
	if p.Root == "" {
		return fmt.Errorf("cache root directory is not configured")
	}
	if err := os.MkdirAll(p.Root, 0755); err != nil {
		return fmt.Errorf("failed to create cache root %s: %w", p.Root, err)
	}
	return nil
}

func (p DirProvider) Ready() bool {
	info, err := os.Stat(p.Root)
	return err == nil && info.IsDir()
}
