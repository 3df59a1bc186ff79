/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: engine.go
Description: Synthesis engine for the Akaylee Mirror. Owns the control flow from a
captured scan session to persisted observations, variable associations and domains, and
from the Rule Store to an assembled RuleSet and an emitted configuration artifact.
*/

package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/akaylee-mirror/pkg/analysis"
	"github.com/kleascm/akaylee-mirror/pkg/emitter"
	"github.com/kleascm/akaylee-mirror/pkg/inference"
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/kleascm/akaylee-mirror/pkg/logging"
	"github.com/kleascm/akaylee-mirror/pkg/web"
	"github.com/sirupsen/logrus"
)

// Metadata keys recorded per scan
const (
	MetaOriginalDomain = "original_domain"
	MetaFinalDomain    = "final_domain"
	MetaLastScanID     = "last_scan_id"
)

// ScriptVariables are the associations found in one script
type ScriptVariables struct {
	File      string                    `json:"file" yaml:"file"`
	Variables []inference.VariableGroup `json:"variables" yaml:"variables"`
}

// ScanReport summarizes one ingested scan session
type ScanReport struct {
	Vendor              string                `json:"vendor"`
	ScanID              string                `json:"scanId"`
	Observer            string                `json:"observer,omitempty"`
	TargetURL           string                `json:"targetUrl"`
	FinalURL            string                `json:"finalUrl"`
	Redirected          bool                  `json:"redirected"`
	Observations        int                   `json:"observations"`
	NewObservations     int                   `json:"newObservations"`
	DiscoveredPaths     []string              `json:"discoveredPaths"`
	DiscoveredVariables []ScriptVariables     `json:"discoveredVariables"`
	DiscoveredDomains   []string              `json:"discoveredDomains"`
	Skipped             []string              `json:"skipped,omitempty"`
	Analysis            *analysis.TrafficDiff `json:"analysis"`
	Duration            time.Duration         `json:"duration"`
}

// GenerateResult describes one emitted artifact
type GenerateResult struct {
	RuleSet     *interfaces.RuleSet
	Fingerprint string
	Path        string
}

// Synthesizer drives scanning, persistence, assembly and emission
type Synthesizer struct {
	config    *interfaces.MirrorConfig
	store     interfaces.RuleStore
	observer  interfaces.TrafficObserver
	inference *inference.Engine
	assembler *Assembler
	diff      *analysis.DiffEngine
	noise     *web.NoiseFilter
	generator *emitter.Generator
	logger    *logging.Logger
}

// NewSynthesizer wires a synthesizer. observer may be nil for commands that never scan.
func NewSynthesizer(config *interfaces.MirrorConfig, store interfaces.RuleStore, observer interfaces.TrafficObserver, logger *logging.Logger) (*Synthesizer, error) {
	if config == nil {
		config = interfaces.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: no rule store configured", interfaces.ErrRuleStoreUnavailable)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	noise, err := web.NewNoiseFilter(config.Observer.IgnoredDomains, config.Observer.IgnoredKinds)
	if err != nil {
		return nil, err
	}
	log := logger.GetLogger()
	return &Synthesizer{
		config:    config,
		store:     store,
		observer:  observer,
		inference: inference.NewEngine(config, log),
		assembler: NewAssembler(config, log),
		diff:      analysis.NewDiffEngine(config.Thresholds.URLDigitRun, config.Thresholds.HexRun),
		noise:     noise,
		generator: emitter.NewGenerator(config.OutputDir, emitter.OptionsFromConfig(config), log),
		logger:    logger,
	}, nil
}

// Scan observes targetURL and ingests the capture
func (s *Synthesizer) Scan(ctx context.Context, vendor, targetURL string) (*ScanReport, error) {
	if vendor == "" || targetURL == "" {
		return nil, fmt.Errorf("%w: vendor and url are required", interfaces.ErrMissingArgument)
	}
	if _, err := inference.Hostname(targetURL); err != nil {
		return nil, err
	}
	if s.observer == nil {
		return nil, fmt.Errorf("no traffic observer configured")
	}

	capture, err := s.observer.Observe(ctx, targetURL)
	if err != nil {
		return nil, fmt.Errorf("observation failed: %w", err)
	}
	if capture.ScanID == "" {
		capture.ScanID = uuid.NewString()
	}
	report, err := s.Ingest(ctx, vendor, capture)
	if err != nil {
		return nil, err
	}
	report.Observer = s.observer.Name()
	return report, nil
}

// Ingest records a capture: scripts yield variable associations and domains, all other
// exchanges yield path observations. The diff is computed against the history as it was
// before this capture.
func (s *Synthesizer) Ingest(ctx context.Context, vendor string, capture *interfaces.Capture) (*ScanReport, error) {
	if vendor == "" {
		return nil, fmt.Errorf("%w: vendor", interfaces.ErrMissingArgument)
	}
	if capture == nil {
		return nil, fmt.Errorf("nil capture")
	}
	log := s.logger.GetLogger()

	known, err := s.store.GetObservations(ctx, vendor)
	if err != nil {
		return nil, err
	}

	report := &ScanReport{
		Vendor:              vendor,
		ScanID:              capture.ScanID,
		TargetURL:           capture.TargetURL,
		FinalURL:            capture.FinalURL,
		Observations:        len(capture.Observations),
		DiscoveredPaths:     []string{},
		DiscoveredVariables: []ScriptVariables{},
		DiscoveredDomains:   []string{},
		Duration:            capture.Duration,
	}

	var paths []interfaces.Observation
	merged := make(map[string][]interfaces.VariableAssociation)
	var identifiers []string
	domains := make(map[string]struct{})
	addDomain := func(d string) {
		if d == "" || s.noise.IgnoreHost(d) {
			return
		}
		if _, ok := domains[d]; ok {
			return
		}
		domains[d] = struct{}{}
		report.DiscoveredDomains = append(report.DiscoveredDomains, d)
	}

	for _, obs := range capture.Observations {
		host, err := inference.Hostname(obs.URL)
		if err != nil {
			log.WithError(err).Warn("Skipping observation with invalid URL")
			report.Skipped = append(report.Skipped, obs.URL)
			continue
		}

		switch obs.ResourceKind {
		case interfaces.KindScript:
			groups := s.inference.Variables.Extract(obs.BodySample)
			if len(groups) > 0 {
				report.DiscoveredVariables = append(report.DiscoveredVariables,
					ScriptVariables{File: obs.URL, Variables: groups})
			}
			for _, g := range groups {
				if _, ok := merged[g.Identifier]; !ok {
					identifiers = append(identifiers, g.Identifier)
				}
				merged[g.Identifier] = append(merged[g.Identifier], g.Associations...)
			}
		case interfaces.KindDocument:
			// the landing document only contributes body domains
		default:
			paths = append(paths, obs)
			report.DiscoveredPaths = append(report.DiscoveredPaths, obs.URL)
			addDomain(host)
		}

		for _, d := range inference.ExtractDomains(obs.BodySample) {
			addDomain(d)
		}
	}

	report.Analysis = s.diff.Diff(known, paths)
	s.logger.LogDiff(vendor, len(report.Analysis.MatchedStatic),
		len(report.Analysis.MatchedDynamic), len(report.Analysis.New))

	for _, obs := range paths {
		added, err := s.store.AddObservation(ctx, vendor, obs)
		if err != nil {
			return nil, err
		}
		if added {
			report.NewObservations++
		}
		s.logger.LogObservation(vendor, obs.URL, string(obs.ResourceKind), added)
	}

	for _, id := range identifiers {
		if err := s.store.SetVariables(ctx, vendor, id, merged[id]); err != nil {
			return nil, err
		}
		s.logger.LogVariable(vendor, id, len(merged[id]))
	}

	for _, d := range report.DiscoveredDomains {
		if err := s.store.AddDomain(ctx, vendor, d); err != nil {
			return nil, err
		}
	}

	if err := s.recordMetadata(ctx, vendor, capture, report); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		logging.FieldStage: "ingest",
		"vendor":           vendor,
		"scan_id":          capture.ScanID,
		"paths":            len(paths),
		"new":              report.NewObservations,
		"identifiers":      len(identifiers),
		"domains":          len(report.DiscoveredDomains),
	}).Info("Scan ingested")
	return report, nil
}

func (s *Synthesizer) recordMetadata(ctx context.Context, vendor string, capture *interfaces.Capture, report *ScanReport) error {
	original, _ := inference.Hostname(capture.TargetURL)
	final, _ := inference.Hostname(capture.FinalURL)
	report.Redirected = original != "" && final != "" && original != final

	meta := map[string]string{
		MetaOriginalDomain: original,
		MetaFinalDomain:    final,
		MetaLastScanID:     capture.ScanID,
	}
	for _, key := range []string{MetaOriginalDomain, MetaFinalDomain, MetaLastScanID} {
		if meta[key] == "" {
			continue
		}
		if err := s.store.SetMetadata(ctx, vendor, key, meta[key]); err != nil {
			return err
		}
	}
	if report.Redirected {
		s.logger.GetLogger().WithFields(logrus.Fields{
			"from": original,
			"to":   final,
		}).Warn("Landing page redirected")
	}
	return nil
}

// BuildRuleSet regenerates the vendor's RuleSet from the Rule Store. targetOverride,
// when set, replaces dominant host resolution.
func (s *Synthesizer) BuildRuleSet(ctx context.Context, vendor, targetOverride string) (*interfaces.RuleSet, error) {
	if vendor == "" {
		return nil, fmt.Errorf("%w: vendor", interfaces.ErrMissingArgument)
	}
	observations, err := s.store.GetObservations(ctx, vendor)
	if err != nil {
		return nil, err
	}
	variables, err := s.store.GetVariables(ctx, vendor)
	if err != nil {
		return nil, err
	}
	domains, err := s.store.GetDomains(ctx, vendor)
	if err != nil {
		return nil, err
	}
	return s.assembler.Assemble(AssemblyInput{
		Vendor:         vendor,
		Observations:   observations,
		Variables:      variables,
		Domains:        s.noise.FilterDomains(domains),
		TargetOverride: targetOverride,
	})
}

// Generate assembles the vendor's RuleSet and writes output/<vendor>/nginx.conf.
// No artifact is written when assembly or rendering fails.
func (s *Synthesizer) Generate(ctx context.Context, vendor, targetOverride string) (*GenerateResult, error) {
	rs, err := s.BuildRuleSet(ctx, vendor, targetOverride)
	if err != nil {
		return nil, err
	}
	fingerprint, err := rs.Fingerprint()
	if err != nil {
		return nil, err
	}
	for _, rule := range rs.PathRules {
		s.logger.LogRule(vendor, rule.Pattern, string(rule.Kind), rule.TargetHost)
	}
	path, err := s.generator.Generate(rs)
	if err != nil {
		return nil, err
	}
	s.logger.LogGeneration(vendor, rs.DominantHost, path, len(rs.PathRules))
	return &GenerateResult{RuleSet: rs, Fingerprint: fingerprint, Path: path}, nil
}

// Analyze diffs an offline URL list against the vendor's history without persisting it
func (s *Synthesizer) Analyze(ctx context.Context, vendor string, urls []string) (*analysis.TrafficDiff, error) {
	if vendor == "" {
		return nil, fmt.Errorf("%w: vendor", interfaces.ErrMissingArgument)
	}
	known, err := s.store.GetObservations(ctx, vendor)
	if err != nil {
		return nil, err
	}
	batch := make([]interfaces.Observation, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			batch = append(batch, interfaces.Observation{URL: u, Method: "GET"})
		}
	}
	diff := s.diff.Diff(known, batch)
	s.logger.LogDiff(vendor, len(diff.MatchedStatic), len(diff.MatchedDynamic), len(diff.New))
	return diff, nil
}

// Store returns the synthesizer's Rule Store
func (s *Synthesizer) Store() interfaces.RuleStore {
	return s.store
}
