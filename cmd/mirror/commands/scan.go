/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: scan.go
Description: Scan command. Observes a vendor landing URL, records the traffic in the Rule
Store, prints a JSON scan report with the diff against the vendor's history and archives
it under the vendor's output directory.
*/

package commands

import (
	"fmt"
	"time"

	"github.com/kleascm/akaylee-mirror/pkg/utils"
	"github.com/spf13/cobra"
)

// RunScan executes `mirror scan <vendor> <url>`
func RunScan(cmd *cobra.Command, args []string) error {
	vendor, targetURL := args[0], args[1]
	status := cmd.ErrOrStderr()

	fmt.Fprintln(status, "🔭 Akaylee Mirror - Scan")
	fmt.Fprintln(status, "========================")

	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(status, "🏷️  Vendor: %s\n", vendor)
	fmt.Fprintf(status, "🎯 Target: %s\n", targetURL)
	fmt.Fprintf(status, "🧭 Observer: %s\n", s.config.Observer.Mode)
	fmt.Fprintln(status)

	ctx, cancel := signalContext()
	defer cancel()

	report, err := s.synthesizer.Scan(ctx, vendor, targetURL)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Fprintf(status, "📡 Observations: %d (%d new)\n", report.Observations, report.NewObservations)
	fmt.Fprintf(status, "🧬 Scripts with variables: %d\n", len(report.DiscoveredVariables))
	fmt.Fprintf(status, "🌐 Domains: %d\n", len(report.DiscoveredDomains))
	if report.Redirected {
		fmt.Fprintf(status, "↪️  Redirected to: %s\n", report.FinalURL)
	}
	if path, err := utils.WriteScanReport(s.config.OutputDir, vendor, report.ScanID, time.Now(), report); err != nil {
		fmt.Fprintf(status, "⚠️  Report not archived: %v\n", err)
	} else {
		fmt.Fprintf(status, "🗂️  Report archived to %s\n", path)
	}
	fmt.Fprintln(status)

	return writeJSON(cmd.OutOrStdout(), report)
}
