package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log file names, one per level.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger provides leveled logging (debug/info/warning/error) to per-level files and stdout/stderr.
type Logger struct {
	info    *slog.Logger
	warning *slog.Logger
	error   *slog.Logger

	level  slog.LevelVar
	logDir string
	files  []*os.File
	mu     sync.Mutex
}

// New creates a Logger writing into logDir, creating the directory if needed.
func New(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{logDir: logDir}

	infoFile, err := l.openLogFile(InfoFile)
	if err != nil {
		return nil, err
	}
	warningFile, err := l.openLogFile(WarningFile)
	if err != nil {
		l.Close()
		return nil, err
	}
	errorFile, err := l.openLogFile(ErrorFile)
	if err != nil {
		l.Close()
		return nil, err
	}

	l.setup(
		io.MultiWriter(os.Stdout, infoFile),
		io.MultiWriter(os.Stdout, warningFile),
		io.MultiWriter(os.Stderr, errorFile),
	)
	return l, nil
}

// NewWriter creates a Logger sending every level to w. No files are opened.
func NewWriter(w io.Writer) *Logger {
	l := &Logger{}
	l.setup(w, w, w)
	return l
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return NewWriter(io.Discard)
}

func (l *Logger) setup(info, warning, errw io.Writer) {
	l.level.Set(slog.LevelInfo)
	opts := &slog.HandlerOptions{Level: &l.level}
	l.info = slog.New(slog.NewTextHandler(info, opts))
	l.warning = slog.New(slog.NewTextHandler(warning, opts))
	l.error = slog.New(slog.NewTextHandler(errw, opts))
}

func (l *Logger) openLogFile(name string) (*os.File, error) {
	path := filepath.Join(l.logDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	l.files = append(l.files, f)
	return f, nil
}

// SetLevel accepts debug, info, warn/warning or error (case-insensitive).
func (l *Logger) SetLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l.level.Set(slog.LevelDebug)
	case "", "info":
		l.level.Set(slog.LevelInfo)
	case "warn", "warning":
		l.level.Set(slog.LevelWarn)
	case "error":
		l.level.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}

// Debug writes a formatted debug-level entry to the info stream.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(l.info, slog.LevelDebug, format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.log(l.info, slog.LevelInfo, format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.log(l.warning, slog.LevelWarn, format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.log(l.error, slog.LevelError, format, v...)
}

func (l *Logger) log(dst *slog.Logger, level slog.Level, format string, v ...interface{}) {
	ctx := context.Background()
	if !dst.Enabled(ctx, level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	dst.Log(ctx, level, fmt.Sprintf(format, v...))
}

// Dir is the directory log files are written to; empty for writer-backed loggers.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the named log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	filePath := filepath.Join(l.logDir, filepath.Base(fileName))
	if err := os.Truncate(filePath, 0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", fileName, err)
	}
	return nil
}

// Close releases the log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}
