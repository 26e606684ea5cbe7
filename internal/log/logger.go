package log

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ollamagate/internal/core"
)

// LogLevel defines the severity level for log messages.
type LogLevel int

// Log level constants.
const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[string]LogLevel{
	"debug": DEBUG,
	"info":  INFO,
	"warn":  WARN,
	"error": ERROR,
}

// AppLogger is the application logger implementation.
type AppLogger struct {
	logger     *log.Logger
	output     io.Writer
	minLevel   LogLevel
	fileHandle *os.File
	closed     bool
	mu         sync.RWMutex
}

// NewAppLoggerWithConfig creates a logger instance with configuration.
func NewAppLoggerWithConfig(output io.Writer, debugMode bool) *AppLogger {
	minLevel := INFO
	if debugMode {
		minLevel = DEBUG
	}
	return &AppLogger{
		logger:   log.New(output, "", log.LstdFlags),
		output:   output,
		minLevel: minLevel,
	}
}

func (l *AppLogger) logf(level LogLevel, prefix, format string, args ...any) {
	if l == nil || level < l.minLevel {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	l.logger.Printf(prefix+format, args...)
}

// Debug logs a message at DEBUG level.
func (l *AppLogger) Debug(format string, args ...any) {
	l.logf(DEBUG, "[DEBUG] ", format, args...)
}

// Info logs a message at INFO level.
func (l *AppLogger) Info(format string, args ...any) {
	l.logf(INFO, "[INFO] ", format, args...)
}

// Warn logs a message at WARN level.
func (l *AppLogger) Warn(format string, args ...any) {
	l.logf(WARN, "[WARN] ", format, args...)
}

// Error logs a message at ERROR level.
func (l *AppLogger) Error(format string, args ...any) {
	l.logf(ERROR, "[ERROR] ", format, args...)
}

// Fatal logs a message at FATAL level and terminates the process.
func (l *AppLogger) Fatal(format string, args ...any) {
	if l != nil {
		l.logger.Fatalf("[FATAL] "+format, args...)
	} else {
		log.Fatalf("[FATAL] "+format, args...)
	}
}

// Writer returns a writer onto the logger's output for gin's access log.
// Writes after Close are discarded.
func (l *AppLogger) Writer() io.Writer {
	if l == nil || l.output == nil {
		return os.Stdout
	}
	return loggerWriter{l}
}

type loggerWriter struct {
	l *AppLogger
}

func (w loggerWriter) Write(p []byte) (int, error) {
	w.l.mu.RLock()
	defer w.l.mu.RUnlock()
	if w.l.closed {
		return len(p), nil
	}
	return w.l.output.Write(p)
}

// Close safely closes log file handle.
func (l *AppLogger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileHandle != nil {
		l.closed = true
		err := l.fileHandle.Close()
		l.fileHandle = nil
		return err
	}
	return nil
}

// containsPathTraversal reports whether path climbs out of its starting directory.
func containsPathTraversal(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// createDebugFileOutput creates debug file output, falls back gracefully on failure.
func createDebugFileOutput() (io.Writer, *os.File) {
	debugFile := strings.TrimSpace(os.Getenv("DEBUG_FILE"))
	if debugFile == "" {
		return os.Stdout, nil
	}

	if len(debugFile) > core.MaxDebugFilePathLength {
		log.Printf("[WARN] DEBUG_FILE path too long, falling back to stdout")
		return os.Stdout, nil
	}

	if containsPathTraversal(debugFile) {
		log.Printf("[WARN] DEBUG_FILE contains path traversal characters, falling back to stdout")
		return os.Stdout, nil
	}

	//nolint:gosec // G304: debugFile from env var, validated by containsPathTraversal
	file, err := os.OpenFile(filepath.Clean(debugFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, core.FilePermissionReadWrite)
	if err != nil {
		log.Printf("[WARN] Failed to open DEBUG_FILE '%s': %v, falling back to stdout", debugFile, err)
		return os.Stdout, nil
	}

	return file, file
}

// IsDebug returns whether the app is running in debug mode.
func IsDebug() bool {
	return os.Getenv("GIN_MODE") == "debug"
}

// levelFromEnv reads LOG_LEVEL; GIN_MODE=debug forces DEBUG.
func levelFromEnv() LogLevel {
	if IsDebug() {
		return DEBUG
	}
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))]; ok {
		return level
	}
	return INFO
}

// CreateLogger creates a logger instance (for dependency injection).
func CreateLogger() *AppLogger {
	output, fileHandle := createDebugFileOutput()

	return &AppLogger{
		logger:     log.New(output, "", log.LstdFlags),
		output:     output,
		minLevel:   levelFromEnv(),
		fileHandle: fileHandle,
	}
}
