/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report_writer.go
Description: Utility for archiving scan reports next to a vendor's generated
configuration. Handles timestamped, scan-specific file naming under
<output>/<vendor>/scans and writes indented JSON for later analysis.
*/

package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// ScansDir is the per-vendor subdirectory holding archived reports
const ScansDir = "scans"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// WriteScanReport writes report to <outputDir>/<vendor>/scans/<timestamp>_<scanID>.json
func WriteScanReport(outputDir, vendor, scanID string, at time.Time, report interface{}) (string, error) {
	vendor = unsafeName.ReplaceAllString(vendor, "_")
	if vendor == "" || vendor == "." || vendor == ".." {
		return "", fmt.Errorf("invalid vendor name for report archive")
	}
	dir := filepath.Join(outputDir, vendor, ScansDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	// Generate filename: 2024-06-11_01-30-00_<scan id>.json
	name := at.Format("2006-01-02_15-04-05")
	if id := unsafeName.ReplaceAllString(scanID, "_"); id != "" {
		name += "_" + id
	}
	path := filepath.Join(dir, name+".json")

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}
