/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Utility functions for log management in the Akaylee Mirror: a discard logger
for library callers that pass nil, and retention cleanup of timestamped log files.
*/

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
)

const logFileGlob = "akaylee-mirror_*.log"

// OrDiscard returns logger, or a logger that drops everything when logger is nil
func OrDiscard(logger *logrus.Logger) *logrus.Logger {
	if logger != nil {
		return logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// CleanupOldLogs removes the oldest log files in dir beyond maxFiles
func CleanupOldLogs(dir string, maxFiles int) error {
	if dir == "" || maxFiles <= 0 {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(dir, logFileGlob))
	if err != nil {
		return fmt.Errorf("failed to glob log files: %w", err)
	}
	if len(files) <= maxFiles {
		return nil
	}

	// Timestamped names sort chronologically
	sort.Strings(files)
	for _, f := range files[:len(files)-maxFiles] {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", f, err)
		}
	}
	return nil
}
