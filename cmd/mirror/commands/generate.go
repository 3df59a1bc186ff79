/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: generate.go
Description: Generate command. Regenerates the vendor RuleSet from the Rule Store and
writes the proxy configuration artifact.
*/

package commands

import (
	"errors"
	"fmt"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/spf13/cobra"
)

// RunGenerate executes `mirror generate <vendor> [--target-domain host]`
func RunGenerate(cmd *cobra.Command, args []string) error {
	vendor := args[0]
	override, _ := cmd.Flags().GetString("target-domain")
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "🛠️  Akaylee Mirror - Generate")
	fmt.Fprintln(out, "============================")

	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	result, err := s.synthesizer.Generate(ctx, vendor, override)
	if errors.Is(err, interfaces.ErrNoTargetDomain) {
		fmt.Fprintf(out, "❌ No target domain could be resolved for %s\n", vendor)
		fmt.Fprintln(out, "   Scan the vendor first or pass --target-domain.")
		return err
	}
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	rs := result.RuleSet
	fmt.Fprintf(out, "🏷️  Vendor: %s\n", rs.Vendor)
	fmt.Fprintf(out, "🎯 Target domain: %s\n", rs.DominantHost)
	fmt.Fprintf(out, "🧭 Path rules: %d\n", len(rs.PathRules))
	fmt.Fprintf(out, "🧬 Variable associations: %d\n", len(rs.VariableAssociations))
	fmt.Fprintf(out, "🌐 Domains: %d\n", len(rs.Domains))
	fmt.Fprintf(out, "🔑 RuleSet: %s\n", result.Fingerprint)
	fmt.Fprintf(out, "✅ Configuration written to %s\n", result.Path)
	return nil
}
