/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logging_test.go
Description: Tests for the logging system: configuration validation, file output,
custom formatting and log retention.
*/

package logging_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kleascm/akaylee-mirror/pkg/logging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoggerConfigValidate tests rejection of invalid settings
func TestLoggerConfigValidate(t *testing.T) {
	config := logging.DefaultLoggerConfig()
	require.NoError(t, config.Validate())

	config.Format = "xml"
	assert.Error(t, config.Validate())

	config = logging.DefaultLoggerConfig()
	config.Level = "verbose"
	assert.Error(t, config.Validate())

	config = logging.DefaultLoggerConfig()
	config.OutputDir = t.TempDir()
	config.MaxFiles = 0
	assert.Error(t, config.Validate())
}

// TestLoggerWritesFile tests console and file output together
func TestLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	config := logging.DefaultLoggerConfig()
	config.OutputDir = dir
	config.Format = logging.LogFormatJSON
	config.Console = &console

	logger, err := logging.NewLogger(config)
	require.NoError(t, err)

	logger.LogObservation("acme", "https://api.acme.com/v1/config", "xhr", true)
	logger.LogGeneration("acme", "api.acme.com", "output/acme/nginx.conf", 3)
	require.NoError(t, logger.Close())

	assert.Contains(t, console.String(), `"vendor":"acme"`)
	assert.True(t, strings.HasPrefix(filepath.Base(logger.FilePath()), "akaylee-mirror_"))

	data, err := os.ReadFile(logger.FilePath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Observation recorded")
	assert.Contains(t, string(data), "Configuration generated")
}

// TestCustomFormatter tests the stage prefix and sorted fields
func TestCustomFormatter(t *testing.T) {
	f := &logging.CustomFormatter{}
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Now(),
		Level:   logrus.WarnLevel,
		Message: "Skipping observation",
		Data: logrus.Fields{
			logging.FieldStage: "observe",
			"url":              "bad",
			"error":            errors.New("missing host"),
		},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "WARNING [OBSERVE] Skipping observation error=missing host url=bad\n", string(out))
}

// TestCleanupOldLogs tests retention of the newest files
func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"akaylee-mirror_2025-01-01_00-00-00.log",
		"akaylee-mirror_2025-01-02_00-00-00.log",
		"akaylee-mirror_2025-01-03_00-00-00.log",
		"unrelated.log",
	}
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644))
	}

	require.NoError(t, logging.CleanupOldLogs(dir, 2))

	remaining, err := filepath.Glob(filepath.Join(dir, "*.log"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "akaylee-mirror_2025-01-02_00-00-00.log"),
		filepath.Join(dir, "akaylee-mirror_2025-01-03_00-00-00.log"),
		filepath.Join(dir, "unrelated.log"),
	}, remaining)
}

// TestOrDiscard tests the nil-logger fallback
func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, logging.OrDiscard(nil))
	l := logrus.New()
	assert.Same(t, l, logging.OrDiscard(l))
	assert.NotNil(t, logging.Discard().GetLogger())
}
