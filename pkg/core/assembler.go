/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: assembler.go
Description: Rule assembler. Merges the dominant host, generalized path rules, variable
associations and discovered domains into one deterministic RuleSet.
*/

package core

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/kleascm/akaylee-mirror/pkg/emitter"
	"github.com/kleascm/akaylee-mirror/pkg/inference"
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/kleascm/akaylee-mirror/pkg/logging"
	"github.com/sirupsen/logrus"
)

// AssemblyInput is everything a RuleSet is derived from
type AssemblyInput struct {
	Vendor       string
	Observations []interfaces.Observation
	Variables    []interfaces.VariableAssociation
	Domains      []string
	// TargetOverride replaces dominant host resolution when set
	TargetOverride string
}

// Assembler builds RuleSets
type Assembler struct {
	inference *inference.Engine
	mode      interfaces.HostMode
	assets    map[string]struct{}
	logger    *logrus.Logger
}

// NewAssembler creates an assembler for the configured host mode and thresholds
func NewAssembler(config *interfaces.MirrorConfig, logger *logrus.Logger) *Assembler {
	if config == nil {
		config = interfaces.DefaultConfig()
	}
	assets := make(map[string]struct{}, len(emitter.AssetExtensions))
	for _, ext := range emitter.AssetExtensions {
		assets["."+ext] = struct{}{}
	}
	logger = logging.OrDiscard(logger)
	return &Assembler{
		inference: inference.NewEngine(config, logger),
		mode:      config.HostMode,
		assets:    assets,
		logger:    logger,
	}
}

// Assemble derives a RuleSet. Observations are traversed in the given order, which
// decides tie-breaks and which rule wins a pattern collision.
func (a *Assembler) Assemble(in AssemblyInput) (*interfaces.RuleSet, error) {
	dominant := strings.ToLower(strings.TrimSpace(in.TargetOverride))
	if dominant == "" {
		host, err := a.inference.DominantHost(in.Observations)
		if err != nil {
			return nil, err
		}
		dominant = host
	}

	for i, v := range in.Variables {
		if v.Identifier == "" || v.Property == "" {
			return nil, fmt.Errorf("%w: association %d has empty identifier or property",
				interfaces.ErrMalformedAssociationData, i)
		}
	}

	rs := &interfaces.RuleSet{
		Vendor:               in.Vendor,
		DominantHost:         dominant,
		HostMode:             a.mode,
		PathRules:            a.pathRules(in.Observations, dominant),
		VariableAssociations: append([]interfaces.VariableAssociation{}, in.Variables...),
		Domains:              a.domains(in, dominant),
	}

	a.logger.WithFields(logrus.Fields{
		logging.FieldStage: "assemble",
		"vendor":           in.Vendor,
		"dominant_host":    dominant,
		"path_rules":       len(rs.PathRules),
		"variables":        len(rs.VariableAssociations),
		"domains":          len(rs.Domains),
	}).Info("RuleSet assembled")
	return rs, nil
}

// pathRules generalizes every routable path; the first rule for a pattern wins
func (a *Assembler) pathRules(observations []interfaces.Observation, dominant string) []interfaces.PathRule {
	rules := []interfaces.PathRule{}
	seen := make(map[string]struct{})
	for _, obs := range observations {
		u, err := url.Parse(obs.URL)
		if err != nil || u.Host == "" {
			a.logger.WithField("url", obs.URL).Warn("Skipping observation with invalid URL")
			continue
		}
		if !a.routable(u.Path) {
			continue
		}
		pattern := a.inference.Paths.Generalize(u.Path)
		if _, dup := seen[pattern.Pattern]; dup {
			continue
		}
		seen[pattern.Pattern] = struct{}{}

		rule := interfaces.PathRule{
			Pattern:    pattern.Pattern,
			Kind:       pattern.Kind,
			TargetHost: a.targetHost(obs, dominant),
		}
		rules = append(rules, rule)
		a.logger.WithFields(logrus.Fields{
			logging.FieldStage: "rules",
			"pattern":          rule.Pattern,
			"kind":             rule.Kind,
			"target":           rule.TargetHost,
			"reason":           pattern.Reason,
		}).Debug("Path rule synthesized")
	}
	return rules
}

func (a *Assembler) targetHost(obs interfaces.Observation, dominant string) string {
	if a.mode != interfaces.HostModePerPath {
		return dominant
	}
	host := strings.ToLower(obs.Hostname)
	if host == "" {
		return dominant
	}
	return host
}

// routable excludes the root and asset files
func (a *Assembler) routable(p string) bool {
	if p == "" || p == "/" {
		return false
	}
	_, asset := a.assets[strings.ToLower(path.Ext(p))]
	return !asset
}

// domains unions stored domains, observation hosts and the dominant host, sorted
func (a *Assembler) domains(in AssemblyInput, dominant string) []string {
	set := map[string]struct{}{dominant: {}}
	for _, d := range in.Domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			set[d] = struct{}{}
		}
	}
	for _, obs := range in.Observations {
		if host, err := inference.Hostname(obs.URL); err == nil {
			set[host] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
