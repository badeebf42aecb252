// Package logging provides the structured logger shared by every modupdater
// component. While the TUI owns the terminal, logs go to a file under
// ~/.modupdater that is truncated on each launch; CLI commands log to stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// LogFileName is the name of the log file used in TUI mode.
	LogFileName = "modupdater.log"
	// LogDirName is the name of the directory containing the log file.
	LogDirName = ".modupdater"

	// KeyComponent is the field naming the emitting component.
	KeyComponent = "component"
	// KeyPackage is the field naming the mod being processed.
	KeyPackage = "package"
)

// Options configures Init.
type Options struct {
	// Level is a logrus level name; empty means info.
	Level string
	// File, when non-empty, receives log output (truncated on open).
	File string
	// Output is used when File is empty. Nil means os.Stderr.
	Output io.Writer
}

var (
	mu      sync.Mutex
	root    = newLogger(os.Stderr, logrus.InfoLevel)
	logFile *os.File

	// getLogPath is a function variable to allow overriding in tests.
	getLogPath = defaultGetLogPath
)

func newLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return l
}

// Init reconfigures the shared logger. Calling it again replaces the previous
// destination and closes any file opened by an earlier call.
func Init(opts Options) error {
	level := logrus.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		parsed, err := logrus.ParseLevel(s)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	var out io.Writer = os.Stderr
	if opts.Output != nil {
		out = opts.Output
	}

	var f *os.File
	if path := strings.TrimSpace(opts.File); path != "" {
		//nolint:gosec // G301: user config directory needs standard permissions
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		//nolint:gosec // G304: log path comes from configuration
		opened, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		f = opened
		out = f
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	root.SetOutput(out)
	root.SetLevel(level)
	if f != nil {
		root.Infof("=== modupdater log started at %s ===", time.Now().Format(time.RFC3339))
	}
	return nil
}

// Close closes the log file if one is open and reverts output to stderr.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
		root.SetOutput(os.Stderr)
	}
}

// L returns a logger entry tagged with the given component name.
func L(component string) *logrus.Entry {
	return root.WithField(KeyComponent, component)
}

func defaultGetLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, LogDirName, LogFileName), nil
}

// DefaultLogPath returns the default TUI log file location.
func DefaultLogPath() (string, error) {
	return getLogPath()
}
