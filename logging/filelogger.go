// Package logging persists the diagnostic text of each case under a
// per-run log directory, split into passed and failed subdirectories. Log
// files are plain text: ANSI color sequences from the terminal reporting
// are stripped before writing.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
)

const (
	// RunDirectoryPrefix is the standardized prefix for run directories.
	RunDirectoryPrefix = "testrun-"

	SummaryFilename = "summary.log"
)

// FileLogger writes case diagnostics for one run.
type FileLogger struct {
	mu sync.Mutex

	baseDir     string
	logDir      string
	passedDir   string
	failedDir   string
	summaryFile string
	runID       string
}

// NewFileLogger creates the run directory layout under baseDir.
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	l := &FileLogger{
		baseDir:     baseDir,
		logDir:      logDir,
		passedDir:   filepath.Join(logDir, "passed"),
		failedDir:   filepath.Join(logDir, "failed"),
		summaryFile: filepath.Join(logDir, SummaryFilename),
		runID:       runID,
	}
	for _, dir := range []string{baseDir, logDir, l.passedDir, l.failedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return l, nil
}

// LogCaseResult writes one case's diagnostic text into the passed or failed
// subdirectory, named after the test and the case.
func (l *FileLogger) LogCaseResult(testName, caseName string, passed bool, text string) error {
	dir := l.failedDir
	if passed {
		dir = l.passedDir
	}
	name := safeFilename(testName)
	if caseName != "" {
		name = name + "." + safeFilename(caseName)
	}
	path := filepath.Join(dir, name+".log")

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open case log %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(stripansi.Strip(text) + "\n"); err != nil {
		return fmt.Errorf("failed to write case log %s: %w", path, err)
	}
	return nil
}

// LogSummary writes the run summary file.
func (l *FileLogger) LogSummary(summary string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.WriteFile(l.summaryFile, []byte(stripansi.Strip(summary)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// LogDir returns the directory holding this run's logs.
func (l *FileLogger) LogDir() string {
	return l.logDir
}

// RunID returns the run id the logger was created with.
func (l *FileLogger) RunID() string {
	return l.runID
}

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "*", "_")
	s = strings.ReplaceAll(s, "?", "_")
	s = strings.ReplaceAll(s, "\"", "_")
	s = strings.ReplaceAll(s, "<", "_")
	s = strings.ReplaceAll(s, ">", "_")
	s = strings.ReplaceAll(s, "|", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
