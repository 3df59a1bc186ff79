/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: check.go
Description: Self-check command. Validates configuration, Rule Store reachability, output
directory writability, guard script compilation and browser availability.
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/kleascm/akaylee-mirror/pkg/emitter"
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/kleascm/akaylee-mirror/pkg/storage"
	"github.com/kleascm/akaylee-mirror/pkg/web"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var browserBinaries = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}

// PerformSelfCheck performs system validation
func PerformSelfCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🔍 Akaylee Mirror - System Self-Check")
	fmt.Fprintln(out, "=====================================")
	fmt.Fprintln(out)

	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	config, err := BuildConfig(viper.GetViper())
	if err != nil {
		fmt.Fprintf(out, "🔍 Configuration Validation... ❌ FAILED: %v\n", err)
		return err
	}

	checks := []struct {
		name     string
		function func() error
	}{
		{"Configuration Validation", func() error { return nil }},
		{"Rule Store", func() error { return checkStore(config) }},
		{"Output Directory", func() error { return checkOutputDir(config.OutputDir) }},
		{"Guard Script", func() error { return checkGuard(config) }},
		{"Noise Filter", func() error {
			_, err := web.NewNoiseFilter(config.Observer.IgnoredDomains, config.Observer.IgnoredKinds)
			return err
		}},
		{"Browser", func() error { return checkBrowser(config) }},
	}

	passed := 0
	for _, check := range checks {
		fmt.Fprintf(out, "🔍 %s... ", check.name)
		if err := check.function(); err != nil {
			fmt.Fprintf(out, "❌ FAILED: %v\n", err)
			continue
		}
		fmt.Fprintln(out, "✅ PASSED")
		passed++
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "📊 Results: %d/%d checks passed\n", passed, len(checks))
	if passed != len(checks) {
		fmt.Fprintln(out, "⚠️  Some checks failed. Please address the issues before scanning.")
		return fmt.Errorf("%d/%d checks failed", len(checks)-passed, len(checks))
	}
	fmt.Fprintln(out, "✨ All checks passed! Ready to mirror.")
	return nil
}

func checkStore(config *interfaces.MirrorConfig) error {
	store, err := storage.Open(config.StorePath)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.Ping(ctx)
}

func checkOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".check-*")
	if err != nil {
		return fmt.Errorf("output directory not writable: %w", err)
	}
	f.Close()
	return os.Remove(f.Name())
}

func checkGuard(config *interfaces.MirrorConfig) error {
	_, err := emitter.RenderGuardScript(emitter.GuardOptions{
		ProxyHost: config.Proxy.PublicHost,
		Scheme:    config.Proxy.Scheme,
		Domains:   []string{"vendor.example.com"},
	})
	return err
}

func checkBrowser(config *interfaces.MirrorConfig) error {
	if config.Observer.Mode != web.ModeBrowser {
		return nil
	}
	for _, name := range browserBinaries {
		if _, err := exec.LookPath(name); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no Chrome or Chromium binary on PATH (use --observer http to scan without a browser)")
}
