package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// setupFileLogger opens logs/casedesk-<name>.log for appending, nil on failure.
func setupFileLogger(name string) *os.File {
	logDir := filepath.Join(getWorkingDir(), "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil
	}
	logPath := filepath.Join(logDir, fmt.Sprintf("casedesk-%s.log", name))
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil
	}
	return f
}

// errorFilterWriter passes through only lines that report a failure.
type errorFilterWriter struct {
	writer io.Writer
}

func (w *errorFilterWriter) Write(p []byte) (int, error) {
	lc := strings.ToLower(string(p))
	// cancelled contexts on shutdown
	if strings.Contains(lc, "context canceled") {
		return len(p), nil
	}
	if strings.Contains(lc, "error") || strings.Contains(lc, "failed") || strings.Contains(lc, "panic") {
		return w.writer.Write(p)
	}
	return len(p), nil
}

// setupLogging returns the command logger. In TUI mode everything goes to
// logs/casedesk-<name>.log and only error lines reach stderr.
func setupLogging(useTUI bool, name, prefix string) (*log.Logger, func()) {
	if !useTUI {
		return log.New(os.Stderr, prefix, log.LstdFlags), func() {}
	}
	logFile := setupFileLogger(name)
	if logFile == nil {
		return log.New(os.Stderr, prefix, log.LstdFlags), func() {}
	}
	logger := log.New(io.MultiWriter(logFile, &errorFilterWriter{os.Stderr}), prefix, log.LstdFlags)
	return logger, func() { logFile.Close() }
}
