/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Main command-line interface for the Akaylee Mirror. Scans vendor landing
pages, keeps a per-vendor history of observed traffic, and generates OpenResty proxy
configurations that serve the vendor through a single controlled origin.
*/

package main

import (
	"os"
	"time"

	"github.com/kleascm/akaylee-mirror/cmd/mirror/commands"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mirror",
		Short: "Akaylee Mirror - reverse-proxy configuration synthesizer",
		Long: `Akaylee Mirror observes the network traffic of a third-party web application,
learns which hosts, paths and script variables carry its backend traffic, and emits an
nginx/OpenResty configuration that proxies the application through one origin.`,
		Version: "1.0.0",
	}

	// Add persistent flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Configuration file path (yaml, json or toml)")
	flags.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flags.String("log-format", "custom", "Log format (text, json, custom)")
	flags.String("log-dir", "", "Log output directory (empty disables log files)")
	flags.String("store", "./data/mirror.db", "Rule Store database path (\"memory\" for an in-memory store)")
	flags.String("output", "./output", "Directory for generated configurations")
	flags.String("proxy-host", "localhost:8080", "Externally visible proxy host[:port]")
	flags.String("host-mode", "single", "Path rule target hosts (single, per-path)")

	// Bind flags to viper
	viper.BindPFlag("config", flags.Lookup("config"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))
	viper.BindPFlag("log_dir", flags.Lookup("log-dir"))
	viper.BindPFlag("store.path", flags.Lookup("store"))
	viper.BindPFlag("output.dir", flags.Lookup("output"))
	viper.BindPFlag("proxy.public_host", flags.Lookup("proxy-host"))
	viper.BindPFlag("host_mode", flags.Lookup("host-mode"))

	// Add scan command
	scanCmd := &cobra.Command{
		Use:   "scan <vendor> <url>",
		Short: "Observe a vendor landing page and record its traffic",
		Long: `Load the landing URL, capture every network exchange, extract domain-bearing
script variables and discovered domains, diff the traffic against the vendor's history
and record it. Prints a JSON scan report.`,
		Args: cobra.ExactArgs(2),
		RunE: commands.RunScan,
	}
	scanCmd.Flags().String("observer", "browser", "Traffic observer (browser, http)")
	scanCmd.Flags().Bool("headless", true, "Run the browser headless")
	scanCmd.Flags().Duration("handshake-wait", 60*time.Second, "Time to keep capturing after load")
	scanCmd.Flags().Duration("timeout", 60*time.Second, "Navigation timeout")
	viper.BindPFlag("observer.mode", scanCmd.Flags().Lookup("observer"))
	viper.BindPFlag("observer.headless", scanCmd.Flags().Lookup("headless"))
	viper.BindPFlag("observer.handshake_wait", scanCmd.Flags().Lookup("handshake-wait"))
	viper.BindPFlag("observer.navigation_timeout", scanCmd.Flags().Lookup("timeout"))
	rootCmd.AddCommand(scanCmd)

	// Add generate command
	generateCmd := &cobra.Command{
		Use:   "generate <vendor>",
		Short: "Generate the proxy configuration for a vendor",
		Long: `Regenerate the vendor's RuleSet from the Rule Store and write
output/<vendor>/nginx.conf. Fails without writing when no target domain can be resolved.`,
		Args: cobra.ExactArgs(1),
		RunE: commands.RunGenerate,
	}
	generateCmd.Flags().String("target-domain", "", "Use this backend host instead of the dominant host")
	rootCmd.AddCommand(generateCmd)

	// Add analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze <vendor> <urls-file|->",
		Short: "Diff a list of URLs against the vendor's recorded traffic",
		Long: `Classify each URL as matched-static, matched-dynamic or new against the vendor's
history, with location suggestions. Nothing is recorded.`,
		Args: cobra.ExactArgs(2),
		RunE: commands.RunAnalyze,
	}
	rootCmd.AddCommand(analyzeCmd)

	// Add rules command
	rulesCmd := &cobra.Command{
		Use:   "rules <vendor>",
		Short: "Print the regenerated RuleSet",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.RunRules,
	}
	rulesCmd.Flags().String("format", "yaml", "Output format (yaml, json)")
	rulesCmd.Flags().String("target-domain", "", "Use this backend host instead of the dominant host")
	rootCmd.AddCommand(rulesCmd)

	// Add check command for built-in self-checks
	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Perform built-in self-checks",
		Long: `Validate configuration, Rule Store reachability, output directory writability,
guard script compilation and browser availability.`,
		Args: cobra.NoArgs,
		RunE: commands.PerformSelfCheck,
	})

	return rootCmd
}
