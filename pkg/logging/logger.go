/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logger.go
Description: Logging system for the Akaylee Mirror. Provides structured logging with
timestamped files, multiple output formats, and synthesis-specific helpers for
observations, variables, rules and generated artifacts.
*/

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warn"
	LogLevelError   LogLevel = "error"
)

// LogFormat represents the logging format
type LogFormat string

const (
	LogFormatJSON   LogFormat = "json"
	LogFormatText   LogFormat = "text"
	LogFormatCustom LogFormat = "custom"
)

// FieldStage names the synthesis stage an entry belongs to
const FieldStage = "stage"

// LoggerConfig holds the configuration for the logger
type LoggerConfig struct {
	Level     LogLevel  `json:"level"`
	Format    LogFormat `json:"format"`
	OutputDir string    `json:"output_dir"` // empty disables file output
	MaxFiles  int       `json:"max_files"`
	Timestamp bool      `json:"timestamp"`
	Caller    bool      `json:"caller"`
	Colors    bool      `json:"colors"`
	// Console receives log output in addition to the log file; defaults to stderr
	Console io.Writer `json:"-"`
}

// DefaultLoggerConfig returns console-only custom-format logging at info level
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:     LogLevelInfo,
		Format:    LogFormatCustom,
		MaxFiles:  10,
		Timestamp: true,
		Colors:    true,
	}
}

// Validate checks the LoggerConfig for invalid values
func (c *LoggerConfig) Validate() error {
	switch c.Format {
	case LogFormatJSON, LogFormatText, LogFormatCustom:
	default:
		return fmt.Errorf("unsupported log format: %s", c.Format)
	}
	switch c.Level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("unsupported log level: %s", c.Level)
	}
	if c.OutputDir != "" && c.MaxFiles <= 0 {
		return fmt.Errorf("max_files must be positive")
	}
	return nil
}

// Logger wraps a logrus logger with mirror-specific helpers
type Logger struct {
	config     *LoggerConfig
	logger     *logrus.Logger
	fileHandle *os.File
	filePath   string
	startTime  time.Time
}

// NewLogger creates a new logger instance
func NewLogger(config *LoggerConfig) (*Logger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l := &Logger{
		config:    config,
		logger:    logrus.New(),
		startTime: time.Now(),
	}
	if err := l.setup(); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}
	return l, nil
}

// Discard returns a logger that drops every entry
func Discard() *Logger {
	return &Logger{
		config:    &LoggerConfig{Level: LogLevelInfo, Format: LogFormatText},
		logger:    OrDiscard(nil),
		startTime: time.Now(),
	}
}

// setup configures the logger with the given configuration
func (l *Logger) setup() error {
	level, err := logrus.ParseLevel(string(l.config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.logger.SetLevel(level)
	l.logger.SetReportCaller(l.config.Caller)

	if err := l.setFormatter(); err != nil {
		return err
	}
	return l.setupOutput()
}

// setFormatter configures the log formatter
func (l *Logger) setFormatter() error {
	prettyCaller := func(f *runtime.Frame) (string, string) {
		return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}

	switch l.config.Format {
	case LogFormatJSON:
		l.logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettyCaller,
		})
	case LogFormatText:
		l.logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    l.config.Timestamp,
			TimestampFormat:  time.RFC3339,
			ForceColors:      l.config.Colors,
			DisableColors:    !l.config.Colors,
			CallerPrettyfier: prettyCaller,
		})
	case LogFormatCustom:
		l.logger.SetFormatter(&CustomFormatter{
			Timestamp: l.config.Timestamp,
			Caller:    l.config.Caller,
			Colors:    l.config.Colors,
		})
	default:
		return fmt.Errorf("unsupported log format: %s", l.config.Format)
	}
	return nil
}

// setupOutput wires console and optional timestamped file output
func (l *Logger) setupOutput() error {
	console := l.config.Console
	if console == nil {
		console = os.Stderr
	}
	if l.config.OutputDir == "" {
		l.logger.SetOutput(console)
		return nil
	}

	if err := os.MkdirAll(l.config.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	path := filepath.Join(l.config.OutputDir, fmt.Sprintf("akaylee-mirror_%s.log", timestamp))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	l.fileHandle = file
	l.filePath = path
	l.logger.SetOutput(io.MultiWriter(console, file))

	l.logger.WithFields(logrus.Fields{
		"log_file": path,
		"level":    l.config.Level,
		"format":   l.config.Format,
	}).Debug("Logging system initialized")
	return nil
}

// LogObservation logs a captured network exchange
func (l *Logger) LogObservation(vendor, url, kind string, isNew bool) {
	l.logger.WithFields(logrus.Fields{
		FieldStage: "observe",
		"vendor":   vendor,
		"url":      url,
		"kind":     kind,
		"new":      isNew,
	}).Info("Observation recorded")
}

// LogVariable logs associations stored for one identifier
func (l *Logger) LogVariable(vendor, identifier string, count int) {
	l.logger.WithFields(logrus.Fields{
		FieldStage:   "variables",
		"vendor":     vendor,
		"identifier": identifier,
		"count":      count,
	}).Info("Variable associations saved")
}

// LogRule logs one synthesized path rule
func (l *Logger) LogRule(vendor, pattern, kind, target string) {
	l.logger.WithFields(logrus.Fields{
		FieldStage: "rules",
		"vendor":   vendor,
		"pattern":  pattern,
		"kind":     kind,
		"target":   target,
	}).Debug("Path rule synthesized")
}

// LogDiff logs the outcome of a traffic diff pass
func (l *Logger) LogDiff(vendor string, matchedStatic, matchedDynamic, fresh int) {
	l.logger.WithFields(logrus.Fields{
		FieldStage:        "diff",
		"vendor":          vendor,
		"matched_static":  matchedStatic,
		"matched_dynamic": matchedDynamic,
		"new":             fresh,
	}).Info("Traffic diff completed")
}

// LogGeneration logs a written configuration artifact
func (l *Logger) LogGeneration(vendor, dominantHost, path string, rules int) {
	l.logger.WithFields(logrus.Fields{
		FieldStage:      "emit",
		"vendor":        vendor,
		"dominant_host": dominantHost,
		"artifact":      path,
		"path_rules":    rules,
		"uptime":        time.Since(l.startTime),
	}).Info("Configuration generated")
}

// FilePath returns the active log file, if any
func (l *Logger) FilePath() string {
	return l.filePath
}

// Close closes the log file and enforces retention
func (l *Logger) Close() error {
	if l.fileHandle != nil {
		l.fileHandle.Close()
	}
	if err := CleanupOldLogs(l.config.OutputDir, l.config.MaxFiles); err != nil {
		return fmt.Errorf("failed to cleanup log files: %w", err)
	}
	return nil
}

// GetLogger returns the underlying logrus logger
func (l *Logger) GetLogger() *logrus.Logger {
	return l.logger
}
