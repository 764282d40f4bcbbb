// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup parses the level name and applies it to the standard logger.
// An empty or invalid level falls back to info. When file is non-empty
// output is appended there instead of stderr, which keeps log lines off
// the terminal while the TUI owns it; the returned func closes the file.
func Setup(level, file string) (func() error, error) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if file == "" {
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(f)
	return f.Close, nil
}
