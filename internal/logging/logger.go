// Package logging builds the process logger from the loaded configuration,
// optionally writing to a timestamped file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"structflow/internal/config"
)

// Prefix is printed before every log line.
const Prefix = "structflow "

// FilePattern matches the log files NewLogger creates.
const FilePattern = "structflow-*-debug.log"

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
	// Path is the log file, empty when logging to a non-file writer.
	Path string
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// NewLoggerWithWriter creates a new logger with the provided writer
func NewLoggerWithWriter(w io.Writer, level log.Level) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           level,
	})

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(Prefix),
		closer: closer,
	}
}

// NewLogger creates the logger described by cfg. With LogToFile set it logs
// to structflow-<timestamp>-debug.log in cfg.LogDir, falling back to stderr
// if the file cannot be created.
func NewLogger(cfg config.Config) *LoggerCloser {
	if !cfg.LogToFile {
		return NewLoggerWithWriter(os.Stderr, cfg.Level())
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(cfg.LogDir, fmt.Sprintf("structflow-%s-debug.log", timestamp))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return NewLoggerWithWriter(os.Stderr, cfg.Level())
	}
	lc := NewLoggerWithWriter(f, cfg.Level())
	lc.Path = path
	return lc
}

// LatestFile returns the newest log file in dir other than those in skip.
func LatestFile(dir string, skip ...string) (string, error) {
	all, err := filepath.Glob(filepath.Join(dir, FilePattern))
	if err != nil {
		return "", err
	}
	matches := all[:0]
	for _, m := range all {
		if !slices.Contains(skip, m) {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no log files in %s", dir)
	}
	// The timestamp format sorts lexically.
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
