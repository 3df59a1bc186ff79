/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: rules.go
Description: Rules command. Prints the regenerated RuleSet for a vendor as YAML or JSON.
*/

package commands

import (
	"fmt"
	"io"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// WriteRuleSet renders rs in the given format
func WriteRuleSet(w io.Writer, rs *interfaces.RuleSet, format string) error {
	switch format {
	case "yaml", "yml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rs); err != nil {
			return fmt.Errorf("failed to encode ruleset: %w", err)
		}
		return enc.Close()
	case "json":
		return writeJSON(w, rs)
	default:
		return fmt.Errorf("unsupported format: %q", format)
	}
}

// RunRules executes `mirror rules <vendor> [--format yaml|json]`
func RunRules(cmd *cobra.Command, args []string) error {
	vendor := args[0]
	format, _ := cmd.Flags().GetString("format")
	override, _ := cmd.Flags().GetString("target-domain")

	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	rs, err := s.synthesizer.BuildRuleSet(ctx, vendor, override)
	if err != nil {
		return err
	}
	return WriteRuleSet(cmd.OutOrStdout(), rs, format)
}
